package validator

// =============================================================================
// VALIDATOR: THE ANALYZER CONTRACT GUARD
// =============================================================================
//
// The analyzer is a separate program. Its JSON crosses a process boundary and
// everything the rewriter does rests on it: instance offsets drive the splice,
// connection expressions become the new port bindings.
//
// If a field is renamed or mistyped on the analyzer side, encoding/json just
// leaves a zero value behind and the rewriter would splice at offset 0 or
// bind every port to "". Validating against the CUE schema first turns that
// into an immediate, named error instead.
//
// The same guard runs on the JSON report before it is written, so consumers
// of --report can rely on #Report.
// =============================================================================

import (
	"embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed analyzer_schema.cue
var analyzerSchemaFS embed.FS

//go:embed report_schema.cue
var reportSchemaFS embed.FS

// Validator checks analyzer output and reports against the embedded CUE schemas.
type Validator struct {
	ctx      *cue.Context
	analyzer cue.Value
	report   cue.Value
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	ctx := cuecontext.New()

	analyzer, err := compileSchema(ctx, analyzerSchemaFS, "analyzer_schema.cue")
	if err != nil {
		return nil, err
	}
	report, err := compileSchema(ctx, reportSchemaFS, "report_schema.cue")
	if err != nil {
		return nil, err
	}

	return &Validator{
		ctx:      ctx,
		analyzer: analyzer,
		report:   report,
	}, nil
}

func compileSchema(ctx *cue.Context, fs embed.FS, name string) (cue.Value, error) {
	schemaBytes, err := fs.ReadFile(name)
	if err != nil {
		return cue.Value{}, fmt.Errorf("loading embedded schema %s: %w", name, err)
	}

	schema := ctx.CompileBytes(schemaBytes)
	if schema.Err() != nil {
		return cue.Value{}, fmt.Errorf("compiling schema %s: %w", name, schema.Err())
	}
	return schema, nil
}

// ValidateInspectionJSON checks raw analyzer output against #Inspection.
func (v *Validator) ValidateInspectionJSON(jsonBytes []byte) error {
	return v.validateJSON(v.analyzer, "#Inspection", jsonBytes)
}

// ValidateReport checks a report value against #Report.
func (v *Validator) ValidateReport(data interface{}) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling report to JSON: %w", err)
	}
	return v.validateJSON(v.report, "#Report", jsonBytes)
}

func (v *Validator) validateJSON(schema cue.Value, path string, jsonBytes []byte) error {
	dataValue := v.ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return fmt.Errorf("compiling JSON as CUE: %w", dataValue.Err())
	}

	def := schema.LookupPath(cue.ParsePath(path))
	if def.Err() != nil {
		return fmt.Errorf("looking up %s definition: %w", path, def.Err())
	}

	unified := def.Unify(dataValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s schema validation failed: %w", path, err)
	}

	return nil
}

// InspectionErrors lists every schema violation in raw analyzer output, one
// message per violation. It returns nil when the document is valid.
func (v *Validator) InspectionErrors(jsonBytes []byte) []string {
	dataValue := v.ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return []string{fmt.Sprintf("compile error: %v", dataValue.Err())}
	}

	def := v.analyzer.LookupPath(cue.ParsePath("#Inspection"))
	if def.Err() != nil {
		return []string{fmt.Sprintf("schema lookup error: %v", def.Err())}
	}

	err := def.Unify(dataValue).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var errs []string
	for _, e := range errors.Errors(err) {
		errs = append(errs, e.Error())
	}
	return errs
}
