// Package schema validates export and analysis artifacts against their
// JSON Schemas before they are written to disk (spec §6). The analysis
// schema is expressed as an extension of the export schema's record
// shape: every export-valid record is also analysis-valid once the
// optional analyzer fields are added.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Kind selects which artifact shape to validate against.
type Kind int

const (
	KindExport Kind = iota
	KindAnalysis
	// KindScriptOutput validates a script runner's parsed stdout (spec
	// §4.4, §4.8 step 4) before its fields are merged into a job's
	// contribution.
	KindScriptOutput
)

// ValidationError is one schema violation, addressed by JSON pointer so
// a caller can report exactly which field and record failed.
type ValidationError struct {
	Pointer string
	Message string
}

func (e ValidationError) String() string {
	return fmt.Sprintf("%s: %s", e.Pointer, e.Message)
}

// Validator wraps compiled jsonschema.Schema instances for every
// artifact kind.
type Validator struct {
	export       *jsonschema.Schema
	analysis     *jsonschema.Schema
	scriptOutput *jsonschema.Schema
}

// New compiles the embedded schemas. It only fails if the embedded
// schema documents themselves are malformed, which would be a packaging
// bug rather than a runtime condition.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	names := []string{"export.schema.json", "analysis.schema.json", "script-output.schema.json"}
	for _, name := range names {
		data, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read embedded schema %s: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parse embedded schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("add embedded schema %s: %w", name, err)
		}
	}

	exportSchema, err := compiler.Compile("export.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile export schema: %w", err)
	}
	analysisSchema, err := compiler.Compile("analysis.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile analysis schema: %w", err)
	}
	scriptOutputSchema, err := compiler.Compile("script-output.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile script-output schema: %w", err)
	}

	return &Validator{export: exportSchema, analysis: analysisSchema, scriptOutput: scriptOutputSchema}, nil
}

// Validate checks artifact (already json.Marshal-able) against the
// schema for kind. It round-trips through encoding/json into
// interface{} because jsonschema/v6 validates generic Go values, not
// struct literals.
func (v *Validator) Validate(artifact interface{}, kind Kind) (bool, []ValidationError) {
	data, err := json.Marshal(artifact)
	if err != nil {
		return false, []ValidationError{{Pointer: "", Message: fmt.Sprintf("marshal artifact: %v", err)}}
	}

	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return false, []ValidationError{{Pointer: "", Message: fmt.Sprintf("unmarshal artifact: %v", err)}}
	}

	var schema *jsonschema.Schema
	switch kind {
	case KindAnalysis:
		schema = v.analysis
	case KindScriptOutput:
		schema = v.scriptOutput
	default:
		schema = v.export
	}

	err = schema.Validate(generic)
	if err == nil {
		return true, nil
	}

	return false, flattenValidationError(err)
}

// flattenValidationError walks a jsonschema.ValidationError tree (it is
// usually deeply nested, one level per schema keyword) into a flat list
// addressed by instance location.
func flattenValidationError(err error) []ValidationError {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []ValidationError{{Pointer: "", Message: err.Error()}}
	}

	var out []ValidationError
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		if len(node.Causes) == 0 {
			out = append(out, ValidationError{
				Pointer: node.InstanceLocation.String(),
				Message: node.Error(),
			})
			return
		}
		for _, cause := range node.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return out
}
