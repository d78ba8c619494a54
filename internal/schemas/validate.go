package schemas

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jonathan/content-pipeline/internal/llm"
)

// ParseError indicates the raw model output was not valid JSON at all.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("model output is not valid JSON: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ValidationError indicates syntactically valid JSON that violates the schema.
type ValidationError struct {
	Errors []FieldError
}

// FieldError is a single violation at a specific field.
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("schema validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Decode strips markdown fences from raw model output, validates it against
// the schema, and unmarshals into v. It returns *ParseError for malformed
// JSON and *ValidationError for schema violations; v is only populated on
// success.
func Decode(schema, raw string, v any) error {
	cleaned := llm.ExtractJSONObject(raw)

	if !json.Valid([]byte(cleaned)) {
		// Re-run through Unmarshal for a positioned error message.
		err := json.Unmarshal([]byte(cleaned), &struct{}{})
		return &ParseError{Cause: err}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(cleaned),
	)
	if err != nil {
		return &ParseError{Cause: err}
	}

	if !result.Valid() {
		validationErr := &ValidationError{
			Errors: make([]FieldError, 0, len(result.Errors())),
		}
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "" {
				field = "(root)"
			}
			validationErr.Errors = append(validationErr.Errors, FieldError{
				Field:   field,
				Message: desc.Description(),
			})
		}
		return validationErr
	}

	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &ParseError{Cause: err}
	}
	return nil
}
