package validator

import "fmt"

// UnknownFieldPolicy decides what happens to undeclared object properties
// when the schema says nothing about additionalProperties
type UnknownFieldPolicy int

const (
	Ignore UnknownFieldPolicy = iota
	Reject
)

func (p UnknownFieldPolicy) String() string {
	if p == Reject {
		return "reject"
	}
	return "ignore"
}

// ParseUnknownFieldPolicy reads "ignore" or "reject"
func ParseUnknownFieldPolicy(s string) (UnknownFieldPolicy, error) {
	switch s {
	case "", "ignore":
		return Ignore, nil
	case "reject":
		return Reject, nil
	}
	return Ignore, fmt.Errorf("unknown field policy %q: want ignore or reject", s)
}

// DefaultMaxBodySize bounds request bodies when no limit is configured
const DefaultMaxBodySize int64 = 10 << 20

// Option configures a Validator
type Option func(*Validator)

// WithUnknownFields sets the policy for undeclared body properties
func WithUnknownFields(p UnknownFieldPolicy) Option {
	return func(v *Validator) {
		v.unknownFields = p
	}
}

// WithMaxBodySize caps the accepted body size in bytes. Zero or less keeps
// the default.
func WithMaxBodySize(n int64) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxBodySize = n
		}
	}
}
