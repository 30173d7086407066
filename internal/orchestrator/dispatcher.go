package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goreliks/pdf-hunter-sub000/internal/investigator"
	"github.com/goreliks/pdf-hunter-sub000/internal/mission"
)

// Dispatcher fans one round's pending missions out to concurrent
// investigator runs and joins on all of them before returning. The join
// is a barrier: the merger never sees partial rounds.
type Dispatcher struct {
	registry      *mission.Registry
	inv           *investigator.Investigator
	maxConcurrent int
	logger        *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(registry *mission.Registry, inv *investigator.Investigator, maxConcurrent int, logger *zap.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry:      registry,
		inv:           inv,
		maxConcurrent: maxConcurrent,
		logger:        logger.Named("dispatcher"),
	}
}

// Dispatch marks every pending mission in progress, runs one
// investigator per mission concurrently (bounded by maxConcurrent), and
// returns exactly one report per mission. A crashed investigator still
// yields a /failed report; a mission is never silently dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, pending []mission.Mission) ([]mission.Report, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, len(pending))
	for i, m := range pending {
		ids[i] = m.ID
	}
	if err := d.registry.MarkInProgress(ids); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	d.logger.Info("dispatching round",
		zap.Int("missions", len(pending)),
		zap.Int("max_concurrent", d.maxConcurrent))

	reports := make([]mission.Report, len(pending))

	// The group context is deliberately not used for the runs: one
	// investigator's outcome must not cancel its siblings. Investigators
	// handle the caller's ctx themselves and always return a report.
	eg := &errgroup.Group{}
	eg.SetLimit(d.maxConcurrent)

	for i, m := range pending {
		eg.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("investigator panicked",
						zap.String("mission_id", m.ID),
						zap.Any("panic", r))
					reports[i] = mission.Report{
						MissionID:   m.ID,
						FinalStatus: mission.StatusFailed,
						Summary:     fmt.Sprintf("investigator panic: %v", r),
					}
				}
			}()
			reports[i] = d.inv.Run(ctx, m)
			return nil
		})
	}

	// Join barrier: all investigators finish before any result is used.
	_ = eg.Wait()

	for _, rep := range reports {
		if err := d.registry.RecordReport(rep); err != nil {
			return nil, fmt.Errorf("dispatch: record report for %s: %w", rep.MissionID, err)
		}
	}

	return reports, nil
}
