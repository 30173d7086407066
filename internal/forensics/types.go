// Package forensics provides the forensic tool collaborator: a registry
// of command-line examination tools the investigator can invoke against
// the artifact.
//
// The collaborator never raises tool-level failures: every invocation
// returns text, and failures come back as textual error observations the
// investigation loop feeds to the reasoning service. The artifact path
// and session output directory are always supplied by the orchestrator,
// never by the reasoning service, to avoid malformed or truncated paths.
package forensics

import "context"

// Request names a tool and its free-form arguments as chosen by the
// reasoning service. Paths are injected separately via Invocation.
type Request struct {
	Tool string            `json:"tool"`
	Args map[string]string `json:"args,omitempty"`
}

// Invocation is the fully resolved call: the request plus the
// orchestrator-supplied paths.
type Invocation struct {
	Request
	ArtifactPath string
	OutputDir    string
}

// RunFunc executes one tool. The returned string is the observation;
// err is reserved for context cancellation, which must abort the run.
type RunFunc func(ctx context.Context, inv Invocation) (string, error)

// Tool describes one registered forensic tool.
type Tool struct {
	// Name is the unique identifier the reasoning service requests.
	Name string

	// Description explains what the tool examines.
	Description string

	// Run executes the tool.
	Run RunFunc
}

// Validate checks the tool definition.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Run == nil {
		return ErrToolRunNil
	}
	return nil
}
