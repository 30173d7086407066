// Package gateway defines the interface to the external semantic
// reasoning service and its wire types.
//
// The orchestrator consumes five call types: classify once at session
// start, investigate-step repeatedly per mission, merge and review once
// per round, finalize once at session end. All calls are synchronous and
// timeout-bounded by the caller; a timeout is a recoverable failure and
// is never auto-retried within the same call.
package gateway

import (
	"context"
	"errors"

	"github.com/goreliks/pdf-hunter-sub000/internal/evidence"
	"github.com/goreliks/pdf-hunter-sub000/internal/mission"
)

// ErrTimeout marks a gateway call that exceeded its budget.
var ErrTimeout = errors.New("reasoning gateway timeout")

// ErrMalformedResponse marks a gateway reply that could not be decoded.
var ErrMalformedResponse = errors.New("malformed gateway response")

// IsTimeout reports whether err represents a gateway timeout, either
// our sentinel or a context deadline surfaced by the transport.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// ScanSummary is the static triage input: the raw output of the initial
// structural scan plus an optional operator directive.
type ScanSummary struct {
	ArtifactPath string `json:"artifact_path"`
	ScanOutput   string `json:"scan_output"`
	Directive    string `json:"directive,omitempty"`
}

// TriageResult is the classify response: an initial read on the
// artifact and the missions worth dispatching.
type TriageResult struct {
	Decision  string         `json:"decision"` // innocent, suspicious, malicious
	Rationale string         `json:"rationale"`
	Missions  []mission.Spec `json:"missions"`
}

// Turn is one entry in an investigation transcript: either a request
// from the reasoning service or an observation fed back to it.
type Turn struct {
	Role    string `json:"role"` // "reasoning" or "observation"
	Content string `json:"content"`
}

// ToolCall asks the investigator to run a forensic tool. Only the tool
// name and free arguments travel here; the artifact path and output
// directory are supplied by the orchestrator, never by the reasoning
// service.
type ToolCall struct {
	Tool string            `json:"tool"`
	Args map[string]string `json:"args,omitempty"`
}

// Verdict terminates an investigation.
type Verdict struct {
	Status  mission.Status `json:"status"` // /resolved_malicious, /resolved_benign, /blocked
	Summary string         `json:"summary"`
	IOCs    []string       `json:"iocs,omitempty"`
}

// StepResult is the investigate-step response: exactly one of ToolCall
// or Verdict is set. Evidence nodes and edges discovered during the
// step are attached either way.
type StepResult struct {
	ToolCall *ToolCall       `json:"tool_call,omitempty"`
	Verdict  *Verdict        `json:"verdict,omitempty"`
	Nodes    []evidence.Node `json:"nodes,omitempty"`
	Edges    []evidence.Edge `json:"edges,omitempty"`
}

// ReviewResult is the review response: follow-up missions and the
// completion decision. No new missions implies complete.
type ReviewResult struct {
	NewMissions []mission.Spec `json:"new_missions"`
	Complete    bool           `json:"complete"`
}

// FinalReport is the finalize response plus orchestrator-side context.
type FinalReport struct {
	Verdict     string   `json:"verdict"` // Malicious, Suspicious, Benign
	Confidence  int      `json:"confidence"`
	Summary     string   `json:"summary"`
	AttackChain []string `json:"attack_chain,omitempty"`
	IOCs        []string `json:"iocs,omitempty"`
}

// Gateway is the reasoning service contract. Implementations must honor
// ctx cancellation and deadlines on every call.
type Gateway interface {
	// Classify triages the initial scan into dispatchable missions.
	Classify(ctx context.Context, scan ScanSummary) (TriageResult, error)

	// InvestigateStep advances one mission given its transcript so far.
	InvestigateStep(ctx context.Context, m mission.Mission, transcript []Turn) (StepResult, error)

	// MergeGraphs folds the round's fragments into the master graph.
	// Deduplication is semantic: shared node ids keep the qualitatively
	// more complete version.
	MergeGraphs(ctx context.Context, master *evidence.Graph, fragments []*evidence.Graph) (*evidence.Graph, error)

	// Review inspects the merged graph and the round's outcomes and
	// decides on follow-up missions and completion.
	Review(ctx context.Context, master *evidence.Graph, reports []mission.Report) (ReviewResult, error)

	// Finalize produces the verdict and narrative from the final graph
	// and all reports.
	Finalize(ctx context.Context, master *evidence.Graph, reports []mission.Report, iocs []string) (FinalReport, error)
}
