package forensics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry holds the available forensic tools and dispatches requests
// to them. It is thread-safe; tools register once at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool

	logger *zap.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger.Named("forensics"),
	}
}

// Register adds a tool. Duplicate names are rejected.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool

	r.logger.Debug("registered tool", zap.String("tool", tool.Name))
	return nil
}

// MustRegister registers a tool and panics on error. For static
// registration at startup.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the requested tool and returns its textual result.
// Any tool-level failure (unknown tool, command failure, unexpected
// output) is returned as text, never as an error; the investigation
// loop records it as an observation and continues. The error return is
// reserved for context cancellation.
func (r *Registry) Invoke(ctx context.Context, inv Invocation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.RLock()
	tool, ok := r.tools[inv.Tool]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("unknown tool requested", zap.String("tool", inv.Tool))
		return fmt.Sprintf("error: unknown tool %q (available: %v)", inv.Tool, r.Names()), nil
	}

	start := time.Now()
	out, err := tool.Run(ctx, inv)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		// Non-cancellation failures degrade to observations.
		out = fmt.Sprintf("error: %s failed: %v", inv.Tool, err)
	}

	r.logger.Debug("tool invoked",
		zap.String("tool", inv.Tool),
		zap.Duration("elapsed", elapsed),
		zap.Int("output_len", len(out)))

	return out, nil
}
