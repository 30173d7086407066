// Package orchestrator drives the round-based investigation of one
// artifact: triage once, then dispatch-merge-review rounds until the
// reviewer declares completion or the round budget runs out, then
// finalize.
//
// Only the master evidence graph and the mission registry persist
// across rounds, and both are mutated solely by the orchestrating task.
// Investigators never see them.
package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/goreliks/pdf-hunter-sub000/internal/evidence"
	"github.com/goreliks/pdf-hunter-sub000/internal/mission"
)

// Phase is the state of the orchestration loop.
type Phase string

const (
	PhaseTriaging    Phase = "/triaging"
	PhaseDispatching Phase = "/dispatching"
	PhaseMerging     Phase = "/merging"
	PhaseReviewing   Phase = "/reviewing"
	PhaseFinalizing  Phase = "/finalizing"
	PhaseDone        Phase = "/done"
)

// ErrorKind classifies recoverable session-level failures.
type ErrorKind string

const (
	ErrorToolFailure          ErrorKind = "/tool_error"
	ErrorGatewayFailure       ErrorKind = "/gateway_error"
	ErrorReasoningTimeout     ErrorKind = "/reasoning_timeout"
	ErrorRecursionExhausted   ErrorKind = "/recursion_exhausted"
	ErrorRoundBudgetExhausted ErrorKind = "/round_budget_exhausted"
	ErrorMalformedMission     ErrorKind = "/malformed_mission"
	ErrorMergeDegraded        ErrorKind = "/merge_degraded"
	ErrorCancelled            ErrorKind = "/cancelled"
)

// SessionError is one recoverable failure accumulated during a session.
// Errors never abort the session; they ride along to the final report.
type SessionError struct {
	Kind      ErrorKind `json:"kind"`
	MissionID string    `json:"mission_id,omitempty"`
	Round     int       `json:"round,omitempty"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Input describes one investigation request.
type Input struct {
	ArtifactPath string
	OutputDir    string

	// SessionID is optional; a short random id is minted when empty.
	SessionID string

	// Directive is an optional operator focus, consumed only by triage
	// to create a /user_directed mission.
	Directive string
}

// Session is the root aggregate of one investigation: created once at
// session start, mutated once per round by the loop's phases, consumed
// once by the finalizer, and returned intact for audit. The core never
// writes it to disk; persistence belongs to the caller.
type Session struct {
	ID           string    `json:"id"`
	ArtifactPath string    `json:"artifact_path"`
	OutputDir    string    `json:"output_dir"`
	StartedAt    time.Time `json:"started_at"`

	Triage struct {
		Decision  string `json:"decision"`
		Rationale string `json:"rationale"`
	} `json:"triage"`

	Registry       *mission.Registry `json:"-"`
	Master         *evidence.Graph   `json:"master_graph"`
	RoundsExecuted int               `json:"rounds_executed"`
	Errors         []SessionError    `json:"errors,omitempty"`
	Complete       bool              `json:"complete"`
}

// NewSession creates the session aggregate for one artifact.
func NewSession(in Input, registry *mission.Registry) *Session {
	id := in.SessionID
	if id == "" {
		id = uuid.New().String()[:8]
	}
	return &Session{
		ID:           id,
		ArtifactPath: in.ArtifactPath,
		OutputDir:    in.OutputDir,
		StartedAt:    time.Now(),
		Registry:     registry,
		Master:       evidence.NewGraph(),
	}
}

// RecordError appends a session-level error.
func (s *Session) RecordError(kind ErrorKind, missionID, message string) {
	s.Errors = append(s.Errors, SessionError{
		Kind:      kind,
		MissionID: missionID,
		Round:     s.RoundsExecuted,
		Message:   message,
		At:        time.Now(),
	})
}

// Reports returns all recorded mission reports in mission creation
// order.
func (s *Session) Reports() []mission.Report {
	byID := s.Registry.Reports()
	var out []mission.Report
	for _, m := range s.Registry.All() {
		if rep, ok := byID[m.ID]; ok {
			out = append(out, rep)
		}
	}
	return out
}
