// Package bundle parses and validates definition bundles: the
// .orchestria.yml document at a repository root that declares agents and
// tools.
//
// A bundle is validated in three passes. The raw document is checked against
// a JSON-schema reflected from the Go types, so that errors can name the
// offending path. It is then decoded into typed records. Finally the checks a
// schema cannot express run: duplicate names, tool languages, and whether each
// inputs_schema is itself a usable JSON-schema.
package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/orchestria/orchestria/internal/schema"
)

// FileName is the bundle document looked up at a repository root.
const FileName = ".orchestria.yml"

var fileNames = []string{FileName, ".orchestria.yaml"}

// Bundle is a validated definition document.
type Bundle struct {
	Agents []schema.AgentDefinition `json:"agents,omitempty" yaml:"agents,omitempty"`
	Tools  []schema.ToolDefinition  `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// Empty reports whether the bundle declares nothing.
func (b *Bundle) Empty() bool { return len(b.Agents) == 0 && len(b.Tools) == 0 }

// Parse validates a YAML (or JSON) bundle document and returns its typed form.
// Every failure is a *schema.ConfigError.
func Parse(data []byte) (*Bundle, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &schema.ConfigError{Reason: fmt.Sprintf("unparsable document: %v", err)}
	}
	if doc == nil {
		return &Bundle{}, nil
	}

	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, &schema.ConfigError{Reason: fmt.Sprintf("decode bundle: %v", err)}
	}

	if err := checkAgents(b.Agents); err != nil {
		return nil, err
	}
	if err := checkTools(b.Tools); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate runs the document checks on an in-memory bundle, such as one
// assembled from command-line flags.
func Validate(b *Bundle) error {
	data, err := yaml.Marshal(b)
	if err != nil {
		return &schema.ConfigError{Reason: fmt.Sprintf("encode bundle: %v", err)}
	}
	_, err = Parse(data)
	return err
}

// ReadFile reads and parses the bundle document at the root of dir.
func ReadFile(dir string) (*Bundle, error) {
	for _, name := range fileNames {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read bundle: %w", err)
		}
		return Parse(data)
	}
	return nil, &schema.ConfigError{
		Path:   FileName,
		Reason: "no bundle file at the root of " + dir,
	}
}

func checkAgents(agents []schema.AgentDefinition) error {
	seen := make(map[string]bool, len(agents))
	for i, a := range agents {
		path := fmt.Sprintf("agents.%d.name", i)
		if seen[a.Name] {
			return &schema.ConfigError{Path: path, Reason: fmt.Sprintf("duplicate agent name %q", a.Name)}
		}
		seen[a.Name] = true
		warnWhitespace("agent", a.Name)
	}
	return nil
}

func checkTools(tools []schema.ToolDefinition) error {
	seen := make(map[string]bool, len(tools))
	for i, t := range tools {
		if seen[t.Name] {
			return &schema.ConfigError{
				Path:   fmt.Sprintf("tools.%d.name", i),
				Reason: fmt.Sprintf("duplicate tool name %q", t.Name),
			}
		}
		seen[t.Name] = true
		warnWhitespace("tool", t.Name)

		if !t.IsProcess() {
			return &schema.ConfigError{
				Path:   fmt.Sprintf("tools.%d.language", i),
				Reason: fmt.Sprintf("unsupported language %q, only %q tools can be run", t.Language, schema.LanguageProcess),
			}
		}
		if err := CheckInputsSchema(t.InputsSchema); err != nil {
			return &schema.ConfigError{
				Path:   fmt.Sprintf("tools.%d.inputs_schema", i),
				Reason: err.Error(),
			}
		}
	}
	return nil
}

func warnWhitespace(kind, name string) {
	if strings.ContainsAny(name, " \t\n") {
		slog.Warn("Definition name contains whitespace", "kind", kind, "name", name)
	}
}
