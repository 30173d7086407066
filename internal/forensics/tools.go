package forensics

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"time"
)

// commandTimeout bounds one external tool run. A hung parser must not
// stall the mission's step loop past its own budget.
const commandTimeout = 60 * time.Second

// maxOutputBytes truncates runaway tool output before it reaches the
// reasoning service's transcript.
const maxOutputBytes = 64 * 1024

// CommandTool wraps an external examination binary. buildArgs maps the
// invocation to argv; the artifact path is appended by each builder so
// the reasoning service can never substitute its own.
func CommandTool(name, description, binary string, buildArgs func(inv Invocation) []string) *Tool {
	return &Tool{
		Name:        name,
		Description: description,
		Run: func(ctx context.Context, inv Invocation) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			cmd := exec.CommandContext(ctx, binary, buildArgs(inv)...)
			cmd.Dir = inv.OutputDir

			var buf bytes.Buffer
			cmd.Stdout = &buf
			cmd.Stderr = &buf

			err := cmd.Run()
			out := buf.String()
			if len(out) > maxOutputBytes {
				out = out[:maxOutputBytes] + "\n[output truncated]"
			}
			if err != nil {
				if ctx.Err() == context.DeadlineExceeded {
					return "", fmt.Errorf("timed out after %s", commandTimeout)
				}
				// Exit failures still usually carry useful diagnostics.
				return fmt.Sprintf("%s\n(exit: %v)", out, err), nil
			}
			return out, nil
		},
	}
}

// flagArgs converts the free-form request args to "--key value" pairs in
// stable order.
func flagArgs(args map[string]string) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(args)*2)
	for _, k := range keys {
		out = append(out, "--"+k)
		if v := args[k]; v != "" {
			out = append(out, v)
		}
	}
	return out
}

// RegisterDefaults registers the standard static-examination toolset.
func RegisterDefaults(r *Registry) {
	r.MustRegister(CommandTool(
		"pdfid",
		"Scan PDF structure for risky keywords (OpenAction, JS, Launch, EmbeddedFile)",
		"pdfid.py",
		func(inv Invocation) []string {
			return append(flagArgs(inv.Args), inv.ArtifactPath)
		},
	))

	r.MustRegister(CommandTool(
		"pdf-parser",
		"Parse and search PDF objects, dump streams, follow references",
		"pdf-parser.py",
		func(inv Invocation) []string {
			argv := flagArgs(inv.Args)
			return append(argv, inv.ArtifactPath)
		},
	))

	r.MustRegister(CommandTool(
		"strings",
		"Extract printable strings from the raw artifact bytes",
		"strings",
		func(inv Invocation) []string {
			return append(flagArgs(inv.Args), inv.ArtifactPath)
		},
	))

	r.MustRegister(CommandTool(
		"exiftool",
		"Read artifact metadata (producer, creation dates, XMP)",
		"exiftool",
		func(inv Invocation) []string {
			return append(flagArgs(inv.Args), inv.ArtifactPath)
		},
	))
}
