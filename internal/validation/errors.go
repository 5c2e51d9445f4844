package validation

import "strings"

// fieldLabels names form fields the way the pages show them.
var fieldLabels = map[string]string{
	"name":            "The name",
	"group_name":      "The group name",
	"description":     "The description",
	"submission_text": "The submission text",
	"submission_url":  "The submission link",
	"email":           "The e-mail address",
}

// FieldError is a problem with one form field. Error reads as a sentence
// that can be shown to whoever filled in the form.
type FieldError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	label, ok := fieldLabels[e.Field]
	if !ok {
		label = "The " + strings.ReplaceAll(e.Field, "_", " ")
	}
	return label + " " + e.Message + "."
}

func newFieldError(field, value, message string) *FieldError {
	return &FieldError{Field: field, Value: value, Message: message}
}

// FieldErrors collects every problem found in one form.
type FieldErrors []*FieldError

func (e FieldErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, " ")
}

// Add records a problem with field.
func (e *FieldErrors) Add(field, value, message string) {
	*e = append(*e, newFieldError(field, value, message))
}

func (e FieldErrors) HasErrors() bool {
	return len(e) > 0
}
