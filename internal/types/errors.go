package types

import (
	"sort"
	"strings"
)

// ValidationErrors collects field level validation failures. The key is the
// request field name; an empty key holds errors that span several fields.
type ValidationErrors map[string][]string

// Add records a message for field.
func (v ValidationErrors) Add(field, message string) {
	v[field] = append(v[field], message)
}

// HasErrors reports whether any failure has been recorded.
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// Err returns v as an error, or nil when nothing was recorded.
func (v ValidationErrors) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		msg := strings.Join(v[field], "; ")
		if field != "" {
			msg = field + ": " + msg
		}
		parts = append(parts, msg)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
