// Package security evaluates the security requirements of an operation.
//
// A requirement is a list of alternative sets: any one fully satisfied set
// authorizes the request, and every scheme inside a set must be satisfied.
// The gate extracts credentials and combines results; checking a credential
// is delegated to an injected CredentialValidator per scheme.
package security

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/validator"
)

// Outcome of an authorization attempt
type Outcome int

const (
	Authorized Outcome = iota
	Unauthorized
	Forbidden
)

func (o Outcome) String() string {
	switch o {
	case Authorized:
		return "authorized"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	}
	return "unknown"
}

// AuthResult reports how a request fared against an operation's security
type AuthResult struct {
	Outcome Outcome

	// Scheme names the schemes of the satisfied set, joined with "+"
	Scheme    string
	Principal string

	// Challenge is the WWW-Authenticate value for Unauthorized and
	// insufficient-scope Forbidden results
	Challenge string
}

// CredentialValidator checks a credential extracted for a scheme. A false
// result is a denial; an error means the check itself could not be made.
type CredentialValidator interface {
	Check(ctx context.Context, scheme *models.SecurityScheme, credential string) (bool, error)
}

// ScopedValidator is a CredentialValidator that also knows which scopes a
// credential grants. Scope requirements are only enforced through it.
type ScopedValidator interface {
	CredentialValidator
	Scopes(ctx context.Context, scheme *models.SecurityScheme, credential string) ([]string, error)
}

// Identifier names the principal behind a valid credential
type Identifier interface {
	Identify(ctx context.Context, scheme *models.SecurityScheme, credential string) string
}

// Gate is built once and shared by every request
type Gate struct {
	schemes    map[string]*models.SecurityScheme
	validators map[string]CredentialValidator
	logger     *slog.Logger
}

// NewGate creates a gate. validators is keyed by security scheme name.
func NewGate(schemes map[string]*models.SecurityScheme, validators map[string]CredentialValidator, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{schemes: schemes, validators: validators, logger: logger}
}

// Verify returns an error naming every scheme used by the operations that
// has no validator bound
func (g *Gate) Verify(ops []*models.OperationSpec) error {
	missing := make(map[string][]string)
	for _, op := range ops {
		for _, set := range op.Security {
			for _, req := range set {
				if _, ok := g.validators[req.Scheme]; !ok {
					missing[req.Scheme] = appendUnique(missing[req.Scheme], op.ID)
				}
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}

	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s (used by %s)", name, strings.Join(missing[name], ", "))
	}
	return fmt.Errorf("no credential validator configured for security schemes: %s", strings.Join(parts, "; "))
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// schemeCheck memoizes one scheme's outcome within a single request
type schemeCheck struct {
	present   bool
	valid     bool
	principal string
	granted   map[string]bool
	scoped    bool
}

// Authorize evaluates op's requirement sets in order and stops at the first
// satisfied one. It returns an error only when a validator fails or a
// scheme is not configured.
func (g *Gate) Authorize(ctx context.Context, req *validator.RequestContext, op *models.OperationSpec) (AuthResult, error) {
	if len(op.Security) == 0 {
		return AuthResult{Outcome: Authorized}, nil
	}

	checks := make(map[string]*schemeCheck)
	scopeDenied := false
	var challenged []string

	for _, set := range op.Security {
		if len(set) == 0 {
			return AuthResult{Outcome: Authorized}, nil
		}

		satisfied := true
		setScopeDenied := false
		principal := ""
		names := make([]string, 0, len(set))

		for _, requirement := range set {
			names = append(names, requirement.Scheme)
			challenged = appendUnique(challenged, requirement.Scheme)

			check, err := g.check(ctx, req, requirement.Scheme, checks)
			if err != nil {
				return AuthResult{}, err
			}
			if !check.present || !check.valid {
				satisfied = false
				continue
			}
			if check.scoped && !hasScopes(check.granted, requirement.Scopes) {
				satisfied = false
				setScopeDenied = true
				continue
			}
			if principal == "" {
				principal = check.principal
			}
		}

		if satisfied {
			return AuthResult{
				Outcome:   Authorized,
				Scheme:    strings.Join(names, "+"),
				Principal: principal,
			}, nil
		}
		if setScopeDenied && g.credentialsValid(set, checks) {
			scopeDenied = true
		}
	}

	if scopeDenied {
		g.logger.Debug("insufficient scope", "request_id", req.RequestID, "operation_id", op.ID)
		return AuthResult{Outcome: Forbidden, Challenge: g.challenge(challenged, true)}, nil
	}

	g.logger.Debug("no security requirement satisfied", "request_id", req.RequestID, "operation_id", op.ID)
	return AuthResult{Outcome: Unauthorized, Challenge: g.challenge(challenged, false)}, nil
}

// credentialsValid reports whether every credential of the set was present
// and accepted, so the only failure was scope
func (g *Gate) credentialsValid(set models.SecurityRequirement, checks map[string]*schemeCheck) bool {
	for _, requirement := range set {
		c := checks[requirement.Scheme]
		if c == nil || !c.present || !c.valid {
			return false
		}
	}
	return true
}

func (g *Gate) check(ctx context.Context, req *validator.RequestContext, name string, checks map[string]*schemeCheck) (*schemeCheck, error) {
	if c, ok := checks[name]; ok {
		return c, nil
	}

	scheme, ok := g.schemes[name]
	if !ok {
		return nil, fmt.Errorf("security scheme %q is not declared", name)
	}
	v, ok := g.validators[name]
	if !ok {
		return nil, fmt.Errorf("security scheme %q has no credential validator", name)
	}

	c := &schemeCheck{}
	checks[name] = c

	credential, present := Extract(scheme, req)
	if !present {
		return c, nil
	}
	c.present = true

	valid, err := v.Check(ctx, scheme, credential)
	if err != nil {
		return nil, fmt.Errorf("checking %s credential: %w", name, err)
	}
	if !valid {
		return c, nil
	}
	c.valid = true

	if id, ok := v.(Identifier); ok {
		c.principal = id.Identify(ctx, scheme, credential)
	}

	if sv, ok := v.(ScopedValidator); ok {
		scopes, err := sv.Scopes(ctx, scheme, credential)
		if err != nil {
			return nil, fmt.Errorf("reading %s scopes: %w", name, err)
		}
		c.scoped = true
		c.granted = make(map[string]bool, len(scopes))
		for _, s := range scopes {
			c.granted[s] = true
		}
	}
	return c, nil
}

func hasScopes(granted map[string]bool, required []string) bool {
	for _, s := range required {
		if !granted[s] {
			return false
		}
	}
	return true
}

// challenge builds a WWW-Authenticate value for the http based schemes
func (g *Gate) challenge(names []string, insufficientScope bool) string {
	var parts []string
	seen := make(map[string]bool)
	for _, name := range names {
		scheme := g.schemes[name]
		if scheme == nil {
			continue
		}
		var c string
		switch {
		case scheme.Type == models.SchemeTypeHTTP && scheme.Scheme == "basic":
			c = `Basic realm="` + name + `"`
		case usesBearer(scheme):
			c = `Bearer realm="` + name + `"`
			if insufficientScope {
				c += `, error="insufficient_scope"`
			}
		default:
			continue
		}
		if !seen[c] {
			seen[c] = true
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, ", ")
}
