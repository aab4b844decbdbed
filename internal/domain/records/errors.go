package records

import "strings"

// FieldError is one failed rule on one form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field of a create submission that failed
// validation. Nothing is written when it is returned.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	return len(e.For(field)) > 0
}

// For returns the messages recorded for field.
func (e *ValidationError) For(field string) []string {
	var out []string
	for _, f := range e.Fields {
		if f.Field == field {
			out = append(out, f.Message)
		}
	}
	return out
}

// UploadValidationError rejects an uploaded document. Reason is shown to the
// user as is.
type UploadValidationError struct {
	Reason string
}

func (e *UploadValidationError) Error() string {
	return "invalid upload: " + e.Reason
}
