package schema

import (
	"errors"
	"fmt"
	"strings"
)

// EntryKind distinguishes the two registry mappings.
type EntryKind string

const (
	KindAgent EntryKind = "agent"
	KindTool  EntryKind = "tool"
)

// ErrCancelled marks a turn or tool call stopped by the user.
var ErrCancelled = errors.New("cancelled")

// ConfigError reports a malformed or schema-invalid definition document.
// Path names the offending field, e.g. "agents.0.model".
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "invalid config: " + e.Reason
	}
	return fmt.Sprintf("invalid config at %s: %s", e.Path, e.Reason)
}

// NameCollisionError reports a name already registered under another provenance.
type NameCollisionError struct {
	Kind     EntryKind
	Name     string
	Existing Provenance
	Incoming Provenance
}

func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("%s %q already registered from %s (incoming from %s)", e.Kind, e.Name, e.Existing, e.Incoming)
}

// BundleConflictError aggregates every collision found while merging one bundle.
// Nothing from the bundle was committed.
type BundleConflictError struct {
	Provenance Provenance
	Collisions []*NameCollisionError
}

func (e *BundleConflictError) Error() string {
	parts := make([]string, 0, len(e.Collisions))
	for _, c := range e.Collisions {
		parts = append(parts, fmt.Sprintf("%s %q (registered from %s)", c.Kind, c.Name, c.Existing))
	}
	return fmt.Sprintf("bundle %s not merged, name collisions: %s", e.Provenance, strings.Join(parts, ", "))
}

func (e *BundleConflictError) Unwrap() []error {
	out := make([]error, len(e.Collisions))
	for i, c := range e.Collisions {
		out[i] = c
	}
	return out
}

// NotFoundError reports a lookup or deletion of an unregistered name.
type NotFoundError struct {
	Kind EntryKind
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// ToolCallValidationError reports arguments that fail a tool's input schema.
type ToolCallValidationError struct {
	Tool       string
	Violations []string
}

func (e *ToolCallValidationError) Error() string {
	return fmt.Sprintf("schema violation for tool %q: %s", e.Tool, strings.Join(e.Violations, "; "))
}

// ToolInvocationError reports a tool process that did not honour its contract:
// non-zero exit, bad output, no output, timeout, or a launch failure.
type ToolInvocationError struct {
	Tool       string
	ExitCode   int // -1 when the process never exited normally
	Reason     string
	Diagnostic string // captured stderr, possibly truncated
}

func (e *ToolInvocationError) Error() string {
	msg := fmt.Sprintf("tool %q failed: %s", e.Tool, e.Reason)
	if e.Diagnostic != "" {
		msg += "\n" + e.Diagnostic
	}
	return msg
}

// ProviderError reports a transport, auth or protocol failure of a model backend.
type ProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s (model %s): %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// LoopLimitExceededError reports a turn whose tool-call chain hit the
// iteration bound.
type LoopLimitExceededError struct {
	Limit int
}

func (e *LoopLimitExceededError) Error() string {
	return fmt.Sprintf("tool-call loop exceeded %d model calls without a final answer", e.Limit)
}
