package bundle

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/orchestria/orchestria/internal/schema"
)

// documentSchema is the JSON-schema of a bundle document, reflected once from
// the Bundle type so the two cannot drift apart.
var documentSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	s := r.Reflect(&Bundle{})
	// gojsonschema speaks draft-07; the keywords the reflector emits for
	// these types are shared by both drafts.
	s.Version = ""
	s.ID = ""

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle schema: %w", err)
	}
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
})

// DocumentSchema returns the reflected bundle JSON-schema, for documentation
// and editor integration.
func DocumentSchema() ([]byte, error) {
	r := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	return json.MarshalIndent(r.Reflect(&Bundle{}), "", "  ")
}

func validateDocument(doc any) error {
	s, err := documentSchema()
	if err != nil {
		return fmt.Errorf("load bundle schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &schema.ConfigError{Reason: fmt.Sprintf("document is not representable as JSON: %v", err)}
	}
	if result.Valid() {
		return nil
	}
	return firstViolation(result.Errors())
}

// firstViolation turns gojsonschema errors into one ConfigError whose path
// points at the offending field. Errors are sorted so the report is stable.
func firstViolation(errs []gojsonschema.ResultError) error {
	type violation struct{ path, reason string }
	vs := make([]violation, 0, len(errs))
	for _, e := range errs {
		vs = append(vs, violation{path: fieldPath(e), reason: e.Description()})
	}
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].path != vs[j].path {
			return vs[i].path < vs[j].path
		}
		return vs[i].reason < vs[j].reason
	})

	reason := vs[0].reason
	if n := len(vs) - 1; n > 0 {
		reason += fmt.Sprintf(" (and %d more)", n)
	}
	return &schema.ConfigError{Path: vs[0].path, Reason: reason}
}

const rootField = "(root)"

// fieldPath returns the dotted path of the value an error is about. For
// "required" and "additional property" errors gojsonschema reports the parent
// object, so the property name is appended.
func fieldPath(e gojsonschema.ResultError) string {
	path := e.Field()
	if path == rootField {
		path = ""
	}
	if prop, ok := e.Details()["property"].(string); ok && prop != "" {
		if path == "" {
			return prop
		}
		return path + "." + prop
	}
	if path == "" {
		return rootField
	}
	return path
}

// CheckInputsSchema reports whether s is a usable JSON-schema document.
func CheckInputsSchema(s map[string]any) error {
	if len(s) == 0 {
		return fmt.Errorf("schema is empty")
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(s)); err != nil {
		return fmt.Errorf("not a valid JSON-schema: %s", strings.TrimSpace(err.Error()))
	}
	return nil
}
