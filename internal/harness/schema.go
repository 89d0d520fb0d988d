package harness

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// SchemaError reports a scenario that does not satisfy the schema.
type SchemaError struct {
	Path    string
	Message string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return "schema: " + e.Message
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Message)
}

// ValidateSchema checks raw scenario YAML against the #Scenario
// definition. Definitions are closed, so misspelled fields fail here.
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile scenario schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Scenario"))
	v := ctx.Encode(doc)
	if err := v.Err(); err != nil {
		return formatCUEError(err)
	}

	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError keeps the first error with its path.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	path := ""
	for i, p := range first.Path() {
		if i > 0 {
			path += "."
		}
		path += p
	}
	return &SchemaError{Path: path, Message: fmt.Sprintf(format, args...)}
}
