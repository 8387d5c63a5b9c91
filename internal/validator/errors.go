package validator

import (
	"fmt"
	"strings"
)

// ViolationKind classifies a single validation failure
type ViolationKind string

const (
	MissingParameter     ViolationKind = "missing_parameter"
	TypeMismatch         ViolationKind = "type_mismatch"
	EnumViolation        ViolationKind = "enum_violation"
	ConstraintViolation  ViolationKind = "constraint_violation"
	UnknownField         ViolationKind = "unknown_field"
	UnsupportedMediaType ViolationKind = "unsupported_media_type"
	MalformedBody        ViolationKind = "malformed_body"
	UndeclaredStatus     ViolationKind = "undeclared_status"
)

// Violation is one problem found in a request or response.
//
// In is the part of the message it was found in: path, query, header,
// cookie, body or response. Name is the parameter name or, for bodies, the
// property path such as "category.name" or "tags[1]".
type Violation struct {
	Kind     ViolationKind `json:"kind"`
	In       string        `json:"in"`
	Name     string        `json:"name"`
	Expected string        `json:"expected,omitempty"`
	Actual   string        `json:"actual,omitempty"`
	Allowed  []any         `json:"allowed,omitempty"`
	Message  string        `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s: %s", v.In, v.Name, v.Message)
}

// ValidationError carries every violation found in one pass
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("%d validation violation(s): %s", len(e.Violations), strings.Join(msgs, "; "))
}

// Has reports whether any violation of the given kind was recorded
func (e *ValidationError) Has(kind ViolationKind) bool {
	for _, v := range e.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

// report accumulates violations for one message
type report struct {
	violations []Violation
}

func (r *report) add(v Violation) {
	r.violations = append(r.violations, v)
}

func (r *report) missing(in, name string) {
	r.add(Violation{
		Kind:    MissingParameter,
		In:      in,
		Name:    name,
		Message: fmt.Sprintf("required %s %q is missing", noun(in), name),
	})
}

func (r *report) err() error {
	if len(r.violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: r.violations}
}

func noun(in string) string {
	switch in {
	case "body", "response":
		return "field"
	default:
		return in + " parameter"
	}
}
