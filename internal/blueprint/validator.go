package blueprint

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed blueprint_schema.json
var embeddedSchema []byte

// SchemaError is one validation finding. Location is a dotted pointer into
// the document; the document root is the empty string.
type SchemaError struct {
	Location string `json:"location"`
	Message  string `json:"message"`
}

// Validator wraps a compiled blueprint schema. Compilation happens once at
// startup; Validate is pure and safe for concurrent use.
type Validator struct {
	schema *gojsonschema.Schema
}

// Compile parses and compiles a blueprint schema document. A failure here is
// an unrecoverable configuration error, not a request-time condition.
func Compile(schemaJSON []byte) (*Validator, error) {
	if len(schemaJSON) == 0 {
		return nil, fmt.Errorf("schema document is empty")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile blueprint schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// CompileDefault compiles the embedded schema, or the file at schemaPath
// when one is configured.
func CompileDefault(schemaPath string) (*Validator, error) {
	if schemaPath == "" {
		return Compile(embeddedSchema)
	}
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("read blueprint schema %s: %w", schemaPath, err)
	}
	return Compile(data)
}

// Validate checks an arbitrary document against the compiled schema and
// returns every finding with a structured location.
func (v *Validator) Validate(document any) (bool, []SchemaError) {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		// The document itself could not be loaded (e.g. non-JSON value).
		return false, []SchemaError{{Location: "", Message: err.Error()}}
	}
	if result.Valid() {
		return true, nil
	}
	errs := make([]SchemaError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		errs = append(errs, SchemaError{
			Location: normalizeLocation(re.Field()),
			Message:  re.Description(),
		})
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Location < errs[j].Location })
	return false, errs
}

// ValidateJSON decodes raw JSON and validates it.
func (v *Validator) ValidateJSON(raw []byte) (bool, []SchemaError) {
	var document any
	if err := json.Unmarshal(raw, &document); err != nil {
		return false, []SchemaError{{Location: "", Message: "document is not valid JSON: " + err.Error()}}
	}
	return v.Validate(document)
}

func normalizeLocation(field string) string {
	// gojsonschema reports the document root as "(root)".
	if field == "(root)" {
		return ""
	}
	return field
}
