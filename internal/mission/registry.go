package mission

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry tracks all missions of a session and enforces the monotone
// status lifecycle. Creation is append-only: terminal missions are never
// mutated or removed; follow-ups get fresh ids.
//
// The registry is mutated only by the single orchestrating task, but it
// is guarded anyway so read-only inspection (status queries during a
// round) stays safe.
type Registry struct {
	mu       sync.RWMutex
	missions map[string]*Mission
	order    []string
	reports  map[string]Report
	log      []Transition

	logger *zap.Logger
}

// NewRegistry creates an empty mission registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		missions: make(map[string]*Mission),
		reports:  make(map[string]Report),
		logger:   logger.Named("registry"),
	}
}

// Create registers a new mission from a spec with status /new.
// Duplicate ids and unknown categories are rejected.
func (r *Registry) Create(spec Spec) (Mission, error) {
	if spec.ID == "" {
		return Mission{}, ErrEmptyID
	}
	if !ValidCategory(spec.Category) {
		return Mission{}, fmt.Errorf("%w: %s", ErrUnknownCategory, spec.Category)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.missions[spec.ID]; exists {
		return Mission{}, fmt.Errorf("%w: %s", ErrDuplicateID, spec.ID)
	}

	m := &Mission{
		ID:           spec.ID,
		Category:     spec.Category,
		EntryPoint:   spec.EntryPoint,
		SourceRef:    spec.SourceRef,
		Status:       StatusNew,
		Rationale:    spec.Rationale,
		UserDirected: spec.UserDirected,
		CreatedAt:    time.Now(),
	}
	r.missions[spec.ID] = m
	r.order = append(r.order, spec.ID)

	r.logger.Debug("mission created",
		zap.String("mission_id", m.ID),
		zap.String("category", string(m.Category)),
		zap.Bool("user_directed", m.UserDirected))

	return *m, nil
}

// MarkInProgress transitions the given missions from /new to
// /in_progress. Missions not in /new are left untouched and reported.
func (r *Registry) MarkInProgress(ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		m, ok := r.missions[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMission, id)
		}
		if m.Status != StatusNew {
			return fmt.Errorf("mission %s is %s, cannot mark in progress", id, m.Status)
		}
		r.transition(m, StatusInProgress)
	}
	return nil
}

// RecordReport stores a mission report and moves the owning mission to
// the report's terminal status. Terminal status is immutable: recording
// a second report for the same mission fails.
func (r *Registry) RecordReport(rep Report) error {
	if !rep.FinalStatus.Terminal() {
		return fmt.Errorf("%w: %s", ErrNotTerminal, rep.FinalStatus)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.missions[rep.MissionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMission, rep.MissionID)
	}
	if m.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, m.ID, m.Status)
	}

	r.transition(m, rep.FinalStatus)
	r.reports[rep.MissionID] = rep

	r.logger.Info("mission resolved",
		zap.String("mission_id", m.ID),
		zap.String("status", string(m.Status)),
		zap.Int("steps", rep.Steps))

	return nil
}

// transition applies a status change and appends it to the audit log.
// Callers hold the write lock.
func (r *Registry) transition(m *Mission, to Status) {
	r.log = append(r.log, Transition{
		MissionID: m.ID,
		From:      m.Status,
		To:        to,
		At:        time.Now(),
	})
	m.Status = to
}

// Pending returns all missions with status /new, in creation order.
func (r *Registry) Pending() []Mission {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Mission
	for _, id := range r.order {
		if m := r.missions[id]; m.Status == StatusNew {
			out = append(out, *m)
		}
	}
	return out
}

// All returns every mission in creation order.
func (r *Registry) All() []Mission {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Mission, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.missions[id])
	}
	return out
}

// Get returns the mission with the given id.
func (r *Registry) Get(id string) (Mission, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.missions[id]
	if !ok {
		return Mission{}, false
	}
	return *m, true
}

// Report returns the stored report for a mission, if any.
func (r *Registry) Report(id string) (Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reports[id]
	return rep, ok
}

// Reports returns all stored reports keyed by mission id.
func (r *Registry) Reports() map[string]Report {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Report, len(r.reports))
	for k, v := range r.reports {
		out[k] = v
	}
	return out
}

// TransitionLog returns a copy of every status transition recorded so
// far, in order. Used for audit and for verifying monotonicity.
func (r *Registry) TransitionLog() []Transition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Transition(nil), r.log...)
}

// Count returns the number of registered missions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.missions)
}
