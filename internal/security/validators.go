package security

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/moamenhredeen/oasgate/internal/models"
)

// StaticKeys accepts a fixed set of API keys or opaque bearer tokens
type StaticKeys struct {
	keys [][]byte
}

// NewStaticKeys creates a validator accepting exactly the given keys
func NewStaticKeys(keys ...string) *StaticKeys {
	s := &StaticKeys{keys: make([][]byte, len(keys))}
	for i, k := range keys {
		s.keys[i] = []byte(k)
	}
	return s
}

// Check compares against every key so timing does not reveal which one matched
func (s *StaticKeys) Check(_ context.Context, _ *models.SecurityScheme, credential string) (bool, error) {
	given := []byte(credential)
	match := 0
	for _, k := range s.keys {
		match |= subtle.ConstantTimeCompare(given, k)
	}
	return match == 1, nil
}

// ScopedKeys accepts a fixed set of tokens, each granting its own scopes
type ScopedKeys struct {
	scopes map[string][]string
}

// NewScopedKeys creates a validator from token -> granted scopes
func NewScopedKeys(scopes map[string][]string) *ScopedKeys {
	return &ScopedKeys{scopes: scopes}
}

func (s *ScopedKeys) Check(_ context.Context, _ *models.SecurityScheme, credential string) (bool, error) {
	_, ok := s.scopes[credential]
	return ok, nil
}

func (s *ScopedKeys) Scopes(_ context.Context, _ *models.SecurityScheme, credential string) ([]string, error) {
	return s.scopes[credential], nil
}

// BasicUsers checks "user:password" credentials against a user table
type BasicUsers struct {
	users map[string]string
}

// NewBasicUsers creates a validator from user -> password
func NewBasicUsers(users map[string]string) *BasicUsers {
	return &BasicUsers{users: users}
}

func (b *BasicUsers) Check(_ context.Context, _ *models.SecurityScheme, credential string) (bool, error) {
	user, password, ok := strings.Cut(credential, ":")
	if !ok {
		return false, nil
	}
	want, ok := b.users[user]
	if !ok {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(want)) == 1, nil
}

// Identify returns the user name
func (b *BasicUsers) Identify(_ context.Context, _ *models.SecurityScheme, credential string) string {
	user, _, _ := strings.Cut(credential, ":")
	return user
}

// ValidatorFunc adapts a function to CredentialValidator
type ValidatorFunc func(ctx context.Context, scheme *models.SecurityScheme, credential string) (bool, error)

func (f ValidatorFunc) Check(ctx context.Context, scheme *models.SecurityScheme, credential string) (bool, error) {
	return f(ctx, scheme, credential)
}
