package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/goreliks/pdf-hunter-sub000/internal/evidence"
	"github.com/goreliks/pdf-hunter-sub000/internal/gateway"
	"github.com/goreliks/pdf-hunter-sub000/internal/mission"
)

// Reviewer inspects the merged graph and the round's outcomes and
// decides whether follow-up missions are warranted. Its scope is
// strictly the known reports and the merged graph; it never re-derives
// candidates from the original scan; that was triage's one-time job.
type Reviewer struct {
	gw       gateway.Gateway
	registry *mission.Registry
	timeout  time.Duration
	logger   *zap.Logger
}

// NewReviewer creates a reviewer.
func NewReviewer(gw gateway.Gateway, registry *mission.Registry, timeout time.Duration, logger *zap.Logger) *Reviewer {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reviewer{gw: gw, registry: registry, timeout: timeout, logger: logger.Named("reviewer")}
}

// Outcome is the reviewer's decision for one round.
type Outcome struct {
	// Created is the number of follow-up missions accepted by the
	// registry this round.
	Created int

	// Rejected lists malformed mission specs the registry refused.
	Rejected []string

	// Complete reports whether the investigation should finalize.
	Complete bool
}

// Review asks the gateway for follow-ups, registers the valid ones, and
// decides completion. Malformed specs are rejected, logged, and skipped;
// the round continues. Zero accepted missions always means complete.
func (r *Reviewer) Review(ctx context.Context, master *evidence.Graph, reports []mission.Report) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.gw.Review(ctx, master, reports)
	if err != nil {
		return Outcome{Complete: true}, err
	}

	out := Outcome{Complete: result.Complete}
	for _, spec := range result.NewMissions {
		if _, err := r.registry.Create(spec); err != nil {
			r.logger.Warn("rejected follow-up mission",
				zap.String("mission_id", spec.ID),
				zap.String("category", string(spec.Category)),
				zap.Error(err))
			out.Rejected = append(out.Rejected, spec.ID+": "+err.Error())
			continue
		}
		r.logger.Info("follow-up mission accepted",
			zap.String("mission_id", spec.ID),
			zap.String("category", string(spec.Category)),
			zap.String("rationale", spec.Rationale))
		out.Created++
	}

	// No accepted missions means there is nothing left to dispatch,
	// whatever the gateway claimed.
	if out.Created == 0 {
		out.Complete = true
	}
	return out, nil
}
