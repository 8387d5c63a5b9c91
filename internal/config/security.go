package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/security"
)

// Validators builds one credential validator per configured scheme.
//
// Each scheme configures exactly one of keys, scoped_keys, users or
// jwt_secret. Schemes the document does not declare are rejected so that a
// typo cannot silently leave a scheme unguarded.
func (c *Config) Validators(schemes map[string]*models.SecurityScheme) (map[string]security.CredentialValidator, error) {
	validators := make(map[string]security.CredentialValidator)

	declared := make(map[string]string, len(schemes))
	for name := range schemes {
		declared[strings.ToLower(name)] = name
	}

	keys := make([]string, 0, len(c.Security))
	for k := range c.Security {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		name, ok := declared[strings.ToLower(key)]
		if !ok {
			return nil, fmt.Errorf("security.%s: document declares no such security scheme", key)
		}
		v, err := c.Security[key].validator()
		if err != nil {
			return nil, fmt.Errorf("security.%s: %w", key, err)
		}
		validators[name] = v
	}

	return validators, nil
}

func (sc SchemeConfig) validator() (security.CredentialValidator, error) {
	var kinds []string
	if len(sc.Keys) > 0 {
		kinds = append(kinds, "keys")
	}
	if len(sc.ScopedKeys) > 0 {
		kinds = append(kinds, "scoped_keys")
	}
	if len(sc.Users) > 0 {
		kinds = append(kinds, "users")
	}
	if sc.JWTSecret != "" {
		kinds = append(kinds, "jwt_secret")
	}

	switch len(kinds) {
	case 0:
		return nil, fmt.Errorf("no credentials configured")
	case 1:
	default:
		return nil, fmt.Errorf("configure only one of %s", strings.Join(kinds, ", "))
	}

	switch kinds[0] {
	case "keys":
		return security.NewStaticKeys(sc.Keys...), nil
	case "scoped_keys":
		scopes := make(map[string][]string, len(sc.ScopedKeys))
		for _, k := range sc.ScopedKeys {
			scopes[k.Key] = k.Scopes
		}
		return security.NewScopedKeys(scopes), nil
	case "users":
		users := make(map[string]string, len(sc.Users))
		for _, u := range sc.Users {
			name, password, _ := strings.Cut(u, ":")
			users[name] = password
		}
		return security.NewBasicUsers(users), nil
	}

	var opts []security.JWTOption
	if sc.JWTIssuer != "" {
		opts = append(opts, security.WithIssuer(sc.JWTIssuer))
	}
	return security.NewJWTValidator([]byte(sc.JWTSecret), opts...)
}
