package records

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// RequiredUploadFields must be present as top-level keys of an uploaded
// document. Only presence is checked, not type or range.
var RequiredUploadFields = []string{
	FieldPatientName,
	FieldAge,
	FieldGender,
	FieldHeight,
	FieldWeight,
}

// ValidateUpload checks that data is UTF-8 text holding a single JSON object
// with all RequiredUploadFields. It returns the parsed object unchanged.
func ValidateUpload(data []byte) (map[string]any, error) {
	if pos := invalidUTF8At(data); pos >= 0 {
		return nil, &UploadValidationError{
			Reason: fmt.Sprintf("invalid utf-8: byte 0x%02x at position %d", data[pos], pos),
		}
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &UploadValidationError{Reason: "invalid json: " + err.Error()}
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &UploadValidationError{Reason: "invalid json: expected an object at the top level"}
	}

	for _, field := range RequiredUploadFields {
		if _, ok := obj[field]; !ok {
			return nil, &UploadValidationError{Reason: "missing field: " + field}
		}
	}
	return obj, nil
}

// invalidUTF8At returns the offset of the first byte that does not start a
// valid UTF-8 sequence, or -1.
func invalidUTF8At(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}
