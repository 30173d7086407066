package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/goreliks/pdf-hunter-sub000/internal/config"
	"github.com/goreliks/pdf-hunter-sub000/internal/evidence"
	"github.com/goreliks/pdf-hunter-sub000/internal/forensics"
	"github.com/goreliks/pdf-hunter-sub000/internal/gateway"
	"github.com/goreliks/pdf-hunter-sub000/internal/investigator"
	"github.com/goreliks/pdf-hunter-sub000/internal/mission"
)

// Loop drives one investigation session through its phases:
// Triaging -> {Dispatching -> Merging -> Reviewing}* -> Finalizing -> Done.
// The round budget guarantees termination even under pathological
// reviewer behavior.
type Loop struct {
	gw     gateway.Gateway
	tools  *forensics.Registry
	cfg    config.Config
	logger *zap.Logger

	phase Phase
}

// NewLoop creates an orchestration loop.
func NewLoop(gw gateway.Gateway, tools *forensics.Registry, cfg config.Config, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		gw:     gw,
		tools:  tools,
		cfg:    cfg,
		logger: logger.Named("orchestrator"),
		phase:  PhaseTriaging,
	}
}

// Phase returns the loop's current phase.
func (l *Loop) Phase() Phase { return l.phase }

// Run executes a full session and returns the final report plus the
// session aggregate for audit. The session is returned even when
// finalization fails.
//
// Cancellation is honored between rounds: the current round's
// investigators finish their in-flight step (forced /blocked) and the
// session proceeds straight to finalization with partial evidence.
func (l *Loop) Run(ctx context.Context, in Input) (gateway.FinalReport, *Session, error) {
	registry := mission.NewRegistry(l.logger)
	session := NewSession(in, registry)

	log := l.logger.With(zap.String("session_id", session.ID), zap.String("artifact", in.ArtifactPath))
	log.Info("session started")

	inv := investigator.New(l.gw, l.tools, investigator.Config{
		StepBudget:     l.cfg.Budgets.StepBudget,
		ToolCallBudget: l.cfg.Budgets.ToolCallBudget,
		StepTimeout:    l.cfg.StepTimeout(),
		ArtifactPath:   in.ArtifactPath,
		OutputDir:      in.OutputDir,
	}, l.logger)

	dispatcher := NewDispatcher(registry, inv, l.cfg.Budgets.MaxConcurrent, l.logger)
	merger := NewMerger(l.gw, l.cfg.MergeTimeout(), l.logger)
	reviewer := NewReviewer(l.gw, registry, l.cfg.ReviewTimeout(), l.logger)
	finalizer := NewFinalizer(l.gw, l.cfg.FinalizeTimeout(), l.logger)

	if err := l.triage(ctx, session, in); err != nil {
		// A failed triage leaves nothing to investigate; finalize with
		// whatever we have rather than crash.
		session.RecordError(errorKindFor(err), "", "triage: "+err.Error())
		log.Error("triage failed", zap.Error(err))
	}

	for round := 1; ; round++ {
		if session.Complete {
			break
		}
		if round > l.cfg.Budgets.RoundBudget {
			session.RecordError(ErrorRoundBudgetExhausted, "",
				fmt.Sprintf("round budget (%d) exhausted, finalizing with partial evidence", l.cfg.Budgets.RoundBudget))
			log.Warn("round budget exhausted", zap.Int("budget", l.cfg.Budgets.RoundBudget))
			break
		}
		if ctx.Err() != nil {
			session.RecordError(ErrorCancelled, "", "session cancelled between rounds")
			log.Warn("session cancelled between rounds")
			break
		}

		pending := registry.Pending()
		if len(pending) == 0 {
			session.Complete = true
			break
		}

		log.Info("round started", zap.Int("round", round), zap.Int("pending", len(pending)))

		// Dispatch: fan out, join barrier.
		l.phase = PhaseDispatching
		reports, err := dispatcher.Dispatch(ctx, pending)
		if err != nil {
			return gateway.FinalReport{}, session, fmt.Errorf("round %d: %w", round, err)
		}
		l.recordMissionErrors(session, reports)

		// Merge: one fragment per dispatched mission, then the merged
		// result replaces the master.
		l.phase = PhaseMerging
		fragments := make([]*evidence.Graph, len(reports))
		for i, rep := range reports {
			if rep.Fragment != nil {
				fragments[i] = rep.Fragment
			} else {
				fragments[i] = evidence.NewGraph()
			}
		}
		merged, degraded, mergeErr := merger.Merge(ctx, session.Master, fragments)
		if degraded {
			session.RecordError(ErrorMergeDegraded, "", "semantic merge failed, used structural union: "+mergeErr.Error())
			if gateway.IsTimeout(mergeErr) {
				session.RecordError(ErrorReasoningTimeout, "", "merge: "+mergeErr.Error())
			}
		}
		session.Master = merged

		// Review: follow-ups or completion.
		l.phase = PhaseReviewing
		outcome, err := reviewer.Review(ctx, session.Master, session.Reports())
		if err != nil {
			session.RecordError(errorKindFor(err), "", "review: "+err.Error())
			log.Warn("review failed, completing with current evidence", zap.Error(err))
		}
		for _, rejected := range outcome.Rejected {
			session.RecordError(ErrorMalformedMission, "", rejected)
		}
		session.Complete = outcome.Complete
		session.RoundsExecuted = round

		log.Info("round finished",
			zap.Int("round", round),
			zap.Int("new_missions", outcome.Created),
			zap.Bool("complete", session.Complete))
	}

	l.phase = PhaseFinalizing

	// Finalize even when the caller cancelled: partial evidence still
	// deserves a verdict, and the finalizer carries its own timeout.
	report, err := finalizer.Finalize(context.WithoutCancel(ctx), session.Master, session.Reports())
	if err != nil {
		session.RecordError(errorKindFor(err), "", "finalize: "+err.Error())
		return gateway.FinalReport{}, session, fmt.Errorf("finalize: %w", err)
	}

	l.phase = PhaseDone
	log.Info("session done",
		zap.Int("rounds", session.RoundsExecuted),
		zap.Int("missions", registry.Count()),
		zap.String("verdict", report.Verdict),
		zap.Int("errors", len(session.Errors)))

	return report, session, nil
}

// triage runs the one-time structural scan and classification, seeding
// the registry with the initial missions. This is the only place
// mission candidates are derived from the raw scan.
func (l *Loop) triage(ctx context.Context, session *Session, in Input) error {
	scanOut, err := l.tools.Invoke(ctx, forensics.Invocation{
		Request:      forensics.Request{Tool: "pdfid"},
		ArtifactPath: in.ArtifactPath,
		OutputDir:    in.OutputDir,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.ReviewTimeout())
	defer cancel()

	triage, err := l.gw.Classify(ctx, gateway.ScanSummary{
		ArtifactPath: in.ArtifactPath,
		ScanOutput:   scanOut,
		Directive:    in.Directive,
	})
	if err != nil {
		return err
	}

	session.Triage.Decision = triage.Decision
	session.Triage.Rationale = triage.Rationale

	userDirectedSeen := false
	for _, spec := range triage.Missions {
		if spec.Category == mission.CategoryUserDirected {
			spec.UserDirected = true
			userDirectedSeen = true
		}
		if _, err := session.Registry.Create(spec); err != nil {
			session.RecordError(ErrorMalformedMission, spec.ID, err.Error())
			l.logger.Warn("rejected triage mission", zap.String("mission_id", spec.ID), zap.Error(err))
		}
	}

	// The operator directive always yields a mission, whether or not
	// the classifier produced one.
	if in.Directive != "" && !userDirectedSeen {
		spec := mission.Spec{
			ID:           "user-directive",
			Category:     mission.CategoryUserDirected,
			EntryPoint:   in.Directive,
			Rationale:    "operator-supplied directive",
			UserDirected: true,
		}
		if _, err := session.Registry.Create(spec); err != nil {
			session.RecordError(ErrorMalformedMission, spec.ID, err.Error())
		}
	}

	l.logger.Info("triage complete",
		zap.String("decision", triage.Decision),
		zap.Int("missions", session.Registry.Count()))

	return nil
}

// recordMissionErrors maps terminal mission outcomes onto the session
// error taxonomy.
func (l *Loop) recordMissionErrors(session *Session, reports []mission.Report) {
	for _, rep := range reports {
		switch rep.FinalStatus {
		case mission.StatusFailed:
			session.RecordError(ErrorReasoningTimeout, rep.MissionID, rep.Summary)
		case mission.StatusBlocked:
			session.RecordError(ErrorRecursionExhausted, rep.MissionID, rep.Summary)
		}
	}
}

// errorKindFor maps a gateway error to its session error kind.
func errorKindFor(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled):
		return ErrorCancelled
	case gateway.IsTimeout(err):
		return ErrorReasoningTimeout
	}
	return ErrorGatewayFailure
}
