package orchestrator

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goreliks/pdf-hunter-sub000/internal/evidence"
	"github.com/goreliks/pdf-hunter-sub000/internal/gateway"
	"github.com/goreliks/pdf-hunter-sub000/internal/mission"
)

// Finalizer produces the verdict and narrative from the final graph and
// all mission reports.
type Finalizer struct {
	gw      gateway.Gateway
	timeout time.Duration
	logger  *zap.Logger
}

// NewFinalizer creates a finalizer.
func NewFinalizer(gw gateway.Gateway, timeout time.Duration, logger *zap.Logger) *Finalizer {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finalizer{gw: gw, timeout: timeout, logger: logger.Named("finalizer")}
}

// Finalize runs the single finalize gateway call. IOCs are deduplicated
// across mission reports here, before the call: cross-report free-text
// deduplication is too unreliable to delegate.
func (f *Finalizer) Finalize(ctx context.Context, master *evidence.Graph, reports []mission.Report) (gateway.FinalReport, error) {
	iocs := DedupIOCs(reports)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	report, err := f.gw.Finalize(ctx, master, reports, iocs)
	if err != nil {
		return gateway.FinalReport{}, err
	}
	if len(report.IOCs) == 0 {
		report.IOCs = iocs
	}

	f.logger.Info("session finalized",
		zap.String("verdict", report.Verdict),
		zap.Int("confidence", report.Confidence),
		zap.Int("iocs", len(report.IOCs)))

	return report, nil
}

// DedupIOCs collects indicators across reports, first-seen order,
// case- and whitespace-insensitive.
func DedupIOCs(reports []mission.Report) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rep := range reports {
		for _, ioc := range rep.IOCs {
			trimmed := strings.TrimSpace(ioc)
			if trimmed == "" {
				continue
			}
			key := strings.ToLower(trimmed)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, trimmed)
		}
	}
	return out
}
