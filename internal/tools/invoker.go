package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/orchestria/orchestria/internal/schema"
)

// TTYFDEnv tells a tool which file descriptor reaches the user's terminal.
const TTYFDEnv = "ORCHESTRIA_TTY_FD"

const (
	defaultTimeout = 120 * time.Second
	waitDelay      = 2 * time.Second
	maxDiagnostic  = 8 << 10
	maxOutput      = 4 << 20
)

// Terminal is the pass-through channel between a tool and the user. It is
// independent of the structured stdin/stdout channel.
type Terminal struct {
	// In is handed to the tool as file descriptor 3 when set.
	In *os.File
	// Out receives everything the tool writes to stderr.
	Out io.Writer
}

// Invoker runs process tools: the arguments go to stdin as one JSON document
// and the tool must answer with exactly one JSON object on stdout.
type Invoker struct {
	timeout   time.Duration
	terminal  Terminal
	maxOutput int
}

// NewInvoker creates an Invoker. A non-positive timeout selects the default.
func NewInvoker(timeoutSeconds int, terminal Terminal) *Invoker {
	t := defaultTimeout
	if timeoutSeconds > 0 {
		t = time.Duration(timeoutSeconds) * time.Second
	}
	return &Invoker{timeout: t, terminal: terminal, maxOutput: maxOutput}
}

// Invoke validates args against the tool's input schema and, if they pass,
// runs the tool. Failures never escape as errors: they come back as an
// unsuccessful result whose Err is typed.
func (iv *Invoker) Invoke(ctx context.Context, def schema.ToolDefinition, args map[string]any) schema.ToolCallResult {
	if args == nil {
		args = map[string]any{}
	}
	if err := ValidateArguments(def, args); err != nil {
		return schema.FailedResult("", err)
	}
	if !def.IsProcess() {
		return schema.FailedResult("", &schema.ToolInvocationError{
			Tool: def.Name, ExitCode: -1,
			Reason: fmt.Sprintf("unsupported language %q", def.Language),
		})
	}
	for _, name := range def.Secrets {
		if os.Getenv(name) == "" {
			return schema.FailedResult("", &schema.ToolInvocationError{
				Tool: def.Name, ExitCode: -1,
				Reason: fmt.Sprintf("secret %s is not set", name),
			})
		}
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return schema.FailedResult("", &schema.ToolInvocationError{
			Tool: def.Name, ExitCode: -1, Reason: fmt.Sprintf("encode arguments: %v", err),
		})
	}

	out, err := iv.run(ctx, def, payload)
	if err != nil {
		return schema.FailedResult("", err)
	}
	return schema.ToolCallResult{Success: true, Payload: out}
}

func (iv *Invoker) run(ctx context.Context, def schema.ToolDefinition, payload []byte) (map[string]any, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, iv.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, entrypointPath(def))
	cmd.Dir = def.Dir
	cmd.WaitDelay = waitDelay
	cmd.Env = append(os.Environ(), "ORCHESTRIA_TOOL="+def.Name)
	if iv.terminal.In != nil {
		cmd.ExtraFiles = []*os.File{iv.terminal.In}
		cmd.Env = append(cmd.Env, TTYFDEnv+"=3")
	}
	killProcessGroup(cmd, isTerminal(iv.terminal.In))

	stdout := &limitBuffer{max: iv.maxOutput, onExceed: cancel}
	diag := &tailBuffer{max: maxDiagnostic}
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = stdout
	if iv.terminal.Out != nil {
		cmd.Stderr = io.MultiWriter(iv.terminal.Out, diag)
	} else {
		cmd.Stderr = diag
	}

	runErr := cmd.Run()

	fail := func(code int, reason string) error {
		return &schema.ToolInvocationError{
			Tool: def.Name, ExitCode: code, Reason: reason,
			Diagnostic: strings.TrimSpace(diag.String()),
		}
	}

	switch {
	case ctx.Err() != nil:
		return nil, fmt.Errorf("tool %q: %w", def.Name, schema.ErrCancelled)
	case stdout.exceeded:
		return nil, fail(-1, fmt.Sprintf("output exceeds %d bytes", iv.maxOutput))
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded):
		return nil, fail(-1, fmt.Sprintf("timed out after %v", iv.timeout))
	case runErr != nil:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, fail(exitErr.ExitCode(), fmt.Sprintf("exit status %d", exitErr.ExitCode()))
		}
		return nil, fail(-1, fmt.Sprintf("launch: %v", runErr))
	}

	out, err := decodeObject(stdout.Bytes())
	if err != nil {
		return nil, fail(0, err.Error())
	}
	return out, nil
}

// isTerminal reports whether f is a character device, i.e. a terminal the
// tool may read from.
func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// ValidateArguments checks args against the tool's input schema.
func ValidateArguments(def schema.ToolDefinition, args map[string]any) error {
	if len(def.InputsSchema) == 0 {
		return nil
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(def.InputsSchema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return &schema.ToolCallValidationError{Tool: def.Name, Violations: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return &schema.ToolCallValidationError{Tool: def.Name, Violations: violations}
}

// decodeObject requires data to hold exactly one JSON object.
func decodeObject(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("no output")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("output is not JSON: %v", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("output is a JSON %T, not an object", v)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("output holds more than one JSON document")
	}
	return obj, nil
}

func entrypointPath(def schema.ToolDefinition) string {
	if filepath.IsAbs(def.Entrypoint) || def.Dir == "" {
		return def.Entrypoint
	}
	return filepath.Join(def.Dir, def.Entrypoint)
}

// limitBuffer collects up to max bytes. The first write past the limit marks
// it exceeded, drops the rest and calls onExceed.
type limitBuffer struct {
	max      int
	buf      bytes.Buffer
	exceeded bool
	onExceed func()
}

func (l *limitBuffer) Write(p []byte) (int, error) {
	if l.exceeded {
		return len(p), nil
	}
	if l.buf.Len()+len(p) > l.max {
		l.exceeded = true
		l.onExceed()
		return len(p), nil
	}
	return l.buf.Write(p)
}

func (l *limitBuffer) Bytes() []byte { return l.buf.Bytes() }

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
