package validate

import "strings"

// FieldError field error to be nested by other errors
type FieldError struct {
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

// NewFieldError create new field error
func NewFieldError(domain string, reason string) *FieldError {
	return &FieldError{domain, reason}
}

// FieldErrors list of field errors, implements error so it can travel through use cases
type FieldErrors []*FieldError

func (fe FieldErrors) Error() string {
	reasons := make([]string, 0, len(fe))
	for _, e := range fe {
		reasons = append(reasons, e.Domain+": "+e.Reason)
	}
	return strings.Join(reasons, "; ")
}

// Validator .
type Validator interface {
	Struct(s interface{}) FieldErrors
	Empty(varName string, s interface{}) FieldErrors
	AllEmpty(names []string, fields ...interface{}) *FieldError
}
