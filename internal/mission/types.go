// Package mission defines the unit of investigative work and the
// registry that tracks mission lifecycle across rounds.
package mission

import (
	"time"

	"github.com/goreliks/pdf-hunter-sub000/internal/evidence"
)

// Status represents the lifecycle state of a mission.
// Transitions are monotone: /new -> /in_progress -> one terminal state.
// A mission never re-enters /new or /in_progress.
type Status string

const (
	StatusNew               Status = "/new"
	StatusInProgress        Status = "/in_progress"
	StatusResolvedMalicious Status = "/resolved_malicious"
	StatusResolvedBenign    Status = "/resolved_benign"
	StatusBlocked           Status = "/blocked"
	StatusFailed            Status = "/failed"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusResolvedMalicious, StatusResolvedBenign, StatusBlocked, StatusFailed:
		return true
	}
	return false
}

// ThreatCategory classifies the suspected threat a mission targets.
type ThreatCategory string

const (
	CategoryAutoExecution     ThreatCategory = "/auto_execution"
	CategoryExternalLaunch    ThreatCategory = "/external_launch"
	CategoryScriptPayload     ThreatCategory = "/script_payload"
	CategoryInteractiveForm   ThreatCategory = "/interactive_form"
	CategoryAttachedFile      ThreatCategory = "/attached_file"
	CategoryUserDirected      ThreatCategory = "/user_directed"
	CategoryStructuralAnomaly ThreatCategory = "/structural_anomaly"
)

// ValidCategory reports whether c is a known threat category.
func ValidCategory(c ThreatCategory) bool {
	switch c {
	case CategoryAutoExecution, CategoryExternalLaunch, CategoryScriptPayload,
		CategoryInteractiveForm, CategoryAttachedFile, CategoryUserDirected,
		CategoryStructuralAnomaly:
		return true
	}
	return false
}

// Spec describes a mission to be created. The registry assigns nothing;
// the id arrives with the spec (triage and review both mint fresh ids)
// and duplicates are rejected.
type Spec struct {
	ID           string         `json:"id"`
	Category     ThreatCategory `json:"category"`
	EntryPoint   string         `json:"entry_point"`
	SourceRef    string         `json:"source_ref,omitempty"`
	Rationale    string         `json:"rationale"`
	UserDirected bool           `json:"user_directed,omitempty"`
}

// Mission is a bounded investigative task targeting one suspected
// threat indicator.
type Mission struct {
	ID           string         `json:"id"`
	Category     ThreatCategory `json:"category"`
	EntryPoint   string         `json:"entry_point"`
	SourceRef    string         `json:"source_ref,omitempty"`
	Status       Status         `json:"status"`
	Rationale    string         `json:"rationale"`
	UserDirected bool           `json:"user_directed,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Report is the outcome of one investigator run. The fragment is the
// evidence graph produced solely by this mission, unmerged.
type Report struct {
	MissionID   string          `json:"mission_id"`
	FinalStatus Status          `json:"final_status"`
	Summary     string          `json:"summary"`
	IOCs        []string        `json:"iocs,omitempty"`
	Fragment    *evidence.Graph `json:"fragment,omitempty"`
	Steps       int             `json:"steps"`
	ToolCalls   int             `json:"tool_calls"`
}

// Transition records one status change for audit.
type Transition struct {
	MissionID string    `json:"mission_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	At        time.Time `json:"at"`
}
