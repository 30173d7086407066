// Package investigator executes one mission: a bounded loop of
// reasoning-gateway steps interleaved with forensic tool invocations.
//
// An investigator consumes exactly one mission. Evidence belonging to a
// different threat category is recorded in the fragment but never
// changes the mission's scope or spawns new missions; strategic
// prioritization belongs to the reviewer.
package investigator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goreliks/pdf-hunter-sub000/internal/evidence"
	"github.com/goreliks/pdf-hunter-sub000/internal/forensics"
	"github.com/goreliks/pdf-hunter-sub000/internal/gateway"
	"github.com/goreliks/pdf-hunter-sub000/internal/mission"
)

// Config bounds one investigation run.
type Config struct {
	// StepBudget caps reasoning steps. Exhaustion forces /blocked.
	StepBudget int

	// ToolCallBudget caps tool invocations independently of steps, so a
	// tool-heavy transcript cannot exhaust local resources within the
	// step budget. Zero disables the cap.
	ToolCallBudget int

	// StepTimeout bounds each gateway call.
	StepTimeout time.Duration

	// ArtifactPath and OutputDir are injected into every tool
	// invocation by the investigator, never taken from the reasoning
	// service.
	ArtifactPath string
	OutputDir    string
}

// Investigator runs missions against the reasoning gateway and the
// forensic tool registry. It holds no mutable state between runs and is
// safe to share across concurrent missions.
type Investigator struct {
	gw     gateway.Gateway
	tools  *forensics.Registry
	cfg    Config
	logger *zap.Logger
}

// New creates an investigator.
func New(gw gateway.Gateway, tools *forensics.Registry, cfg Config, logger *zap.Logger) *Investigator {
	if cfg.StepBudget <= 0 {
		cfg.StepBudget = 25
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Investigator{gw: gw, tools: tools, cfg: cfg, logger: logger.Named("investigator")}
}

// Run executes the mission to a terminal report. It never returns an
// error: gateway failures become /failed, budget exhaustion and
// cancellation become /blocked, and the partial transcript is preserved
// in the report summary for audit.
func (inv *Investigator) Run(ctx context.Context, m mission.Mission) mission.Report {
	log := inv.logger.With(
		zap.String("mission_id", m.ID),
		zap.String("category", string(m.Category)))
	log.Info("investigation started", zap.String("entry_point", m.EntryPoint))

	fragment := evidence.NewGraph()
	var transcript []gateway.Turn
	toolCalls := 0

	for step := 0; step < inv.cfg.StepBudget; step++ {
		// Cancellation is honored between steps; the current step always
		// finishes so partial evidence is preserved.
		if ctx.Err() != nil {
			log.Warn("investigation cancelled", zap.Int("steps", step))
			return inv.blockedReport(m, fragment, transcript, step, toolCalls,
				"investigation cancelled before completion")
		}

		stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), inv.cfg.StepTimeout)
		result, err := inv.gw.InvestigateStep(stepCtx, m, transcript)
		cancel()
		if err != nil {
			log.Error("gateway step failed", zap.Int("step", step), zap.Error(err))
			return mission.Report{
				MissionID:   m.ID,
				FinalStatus: mission.StatusFailed,
				Summary:     fmt.Sprintf("gateway failure at step %d: %v", step, err),
				Fragment:    fragment,
				Steps:       step + 1,
				ToolCalls:   toolCalls,
			}
		}

		inv.recordEvidence(fragment, result)

		if result.Verdict != nil {
			status := result.Verdict.Status
			if !status.Terminal() || status == mission.StatusFailed {
				status = mission.StatusBlocked
			}
			log.Info("investigation concluded",
				zap.String("status", string(status)),
				zap.Int("steps", step+1),
				zap.Int("tool_calls", toolCalls),
				zap.Int("nodes", fragment.NodeCount()))
			return mission.Report{
				MissionID:   m.ID,
				FinalStatus: status,
				Summary:     result.Verdict.Summary,
				IOCs:        result.Verdict.IOCs,
				Fragment:    fragment,
				Steps:       step + 1,
				ToolCalls:   toolCalls,
			}
		}

		// Tool request path.
		if inv.cfg.ToolCallBudget > 0 && toolCalls >= inv.cfg.ToolCallBudget {
			log.Warn("tool call budget exhausted", zap.Int("tool_calls", toolCalls))
			return inv.blockedReport(m, fragment, transcript, step+1, toolCalls,
				fmt.Sprintf("tool call budget (%d) exhausted", inv.cfg.ToolCallBudget))
		}

		observation, err := inv.tools.Invoke(ctx, forensics.Invocation{
			Request: forensics.Request{
				Tool: result.ToolCall.Tool,
				Args: result.ToolCall.Args,
			},
			ArtifactPath: inv.cfg.ArtifactPath,
			OutputDir:    inv.cfg.OutputDir,
		})
		if err != nil {
			// Only cancellation reaches here; tool failures come back as
			// textual observations.
			return inv.blockedReport(m, fragment, transcript, step+1, toolCalls,
				"investigation cancelled during tool invocation")
		}
		toolCalls++

		transcript = append(transcript,
			gateway.Turn{Role: "reasoning", Content: fmt.Sprintf("tool_call %s %v", result.ToolCall.Tool, result.ToolCall.Args)},
			gateway.Turn{Role: "observation", Content: observation},
		)
	}

	log.Warn("step budget exhausted",
		zap.Int("budget", inv.cfg.StepBudget),
		zap.Int("tool_calls", toolCalls))
	return inv.blockedReport(m, fragment, transcript, inv.cfg.StepBudget, toolCalls,
		fmt.Sprintf("step budget (%d) exhausted", inv.cfg.StepBudget))
}

// recordEvidence folds a step's nodes and edges into the fragment.
// Nodes with invalid kinds are dropped rather than poisoning the merge.
func (inv *Investigator) recordEvidence(fragment *evidence.Graph, result gateway.StepResult) {
	for _, n := range result.Nodes {
		if n.ID == "" || !evidence.ValidKind(n.Kind) {
			inv.logger.Warn("dropping malformed evidence node",
				zap.String("id", n.ID), zap.String("kind", string(n.Kind)))
			continue
		}
		fragment.AddNode(n)
	}
	for _, e := range result.Edges {
		if e.SourceID == "" || e.TargetID == "" {
			continue
		}
		fragment.AddEdge(e)
	}
}

// blockedReport builds a /blocked report preserving the partial
// transcript for audit.
func (inv *Investigator) blockedReport(m mission.Mission, fragment *evidence.Graph, transcript []gateway.Turn, steps, toolCalls int, reason string) mission.Report {
	summary := reason
	if n := len(transcript); n > 0 {
		summary = fmt.Sprintf("%s; last observation: %s", reason, tail(transcript))
	}
	return mission.Report{
		MissionID:   m.ID,
		FinalStatus: mission.StatusBlocked,
		Summary:     summary,
		Fragment:    fragment,
		Steps:       steps,
		ToolCalls:   toolCalls,
	}
}

func tail(transcript []gateway.Turn) string {
	last := transcript[len(transcript)-1].Content
	const max = 400
	if len(last) > max {
		return last[:max] + "..."
	}
	return last
}
