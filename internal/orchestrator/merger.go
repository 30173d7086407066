package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/goreliks/pdf-hunter-sub000/internal/evidence"
	"github.com/goreliks/pdf-hunter-sub000/internal/gateway"
)

// Merger folds a round's evidence fragments into the master graph via
// the gateway's semantic merge. The merged result replaces the master
// outright, which keeps merge idempotent: re-merging with no fragments
// is a no-op.
type Merger struct {
	gw      gateway.Gateway
	timeout time.Duration
	logger  *zap.Logger
}

// NewMerger creates a merger.
func NewMerger(gw gateway.Gateway, timeout time.Duration, logger *zap.Logger) *Merger {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{gw: gw, timeout: timeout, logger: logger.Named("merger")}
}

// Merge returns the new master graph. Fragments are discarded by the
// caller afterwards; they never outlive the round.
//
// When the semantic merge fails the merger degrades to a structural
// union so no evidence is lost; degraded is true in that case and the
// caller records a session error.
func (m *Merger) Merge(ctx context.Context, master *evidence.Graph, fragments []*evidence.Graph) (merged *evidence.Graph, degraded bool, err error) {
	if len(fragments) == 0 {
		return master, false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	merged, err = m.gw.MergeGraphs(ctx, master, fragments)
	if err != nil {
		m.logger.Warn("semantic merge failed, falling back to structural union", zap.Error(err))
		return master.Union(fragments...), true, err
	}

	// The reasoning service must not lose evidence: every node id
	// present in any fragment appears in the merged graph. Backfill
	// anything it dropped.
	backfilled := 0
	for _, f := range append([]*evidence.Graph{master}, fragments...) {
		for _, n := range f.Nodes() {
			if !merged.HasNode(n.ID) {
				merged.AddNode(n)
				backfilled++
			}
		}
		for _, e := range f.Edges() {
			merged.AddEdge(e)
		}
	}
	if backfilled > 0 {
		m.logger.Warn("semantic merge dropped nodes, backfilled from fragments",
			zap.Int("backfilled", backfilled))
	}

	m.logger.Info("round merged",
		zap.Int("fragments", len(fragments)),
		zap.Int("nodes", merged.NodeCount()),
		zap.Int("edges", merged.EdgeCount()))

	return merged, false, nil
}
