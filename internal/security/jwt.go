package security

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/moamenhredeen/oasgate/internal/models"
)

// JWTValidator accepts HMAC-signed JWTs. Granted scopes are read from the
// space separated "scope" claim or the "scp" claim (string or list).
type JWTValidator struct {
	secret []byte
	opts   []jwt.ParserOption
}

// JWTOption configures a JWTValidator
type JWTOption func(*JWTValidator)

// WithIssuer requires the iss claim
func WithIssuer(iss string) JWTOption {
	return func(v *JWTValidator) {
		v.opts = append(v.opts, jwt.WithIssuer(iss))
	}
}

// WithAudience requires the aud claim to contain aud
func WithAudience(aud string) JWTOption {
	return func(v *JWTValidator) {
		v.opts = append(v.opts, jwt.WithAudience(aud))
	}
}

// NewJWTValidator creates a validator for tokens signed with secret
func NewJWTValidator(secret []byte, opts ...JWTOption) (*JWTValidator, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret must not be empty")
	}
	v := &JWTValidator{
		secret: secret,
		opts:   []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *JWTValidator) parse(token string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, v.opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("token is invalid")
	}
	return claims, nil
}

// Check reports whether the token is well signed and currently valid.
// Rejected tokens are denials, not errors.
func (v *JWTValidator) Check(_ context.Context, _ *models.SecurityScheme, credential string) (bool, error) {
	_, err := v.parse(credential)
	return err == nil, nil
}

func (v *JWTValidator) Scopes(_ context.Context, _ *models.SecurityScheme, credential string) ([]string, error) {
	claims, err := v.parse(credential)
	if err != nil {
		return nil, nil
	}
	if scope, ok := claims["scope"].(string); ok {
		return strings.Fields(scope), nil
	}
	switch scp := claims["scp"].(type) {
	case string:
		return strings.Fields(scp), nil
	case []any:
		scopes := make([]string, 0, len(scp))
		for _, s := range scp {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
		return scopes, nil
	}
	return nil, nil
}

// Identify returns the sub claim
func (v *JWTValidator) Identify(_ context.Context, _ *models.SecurityScheme, credential string) string {
	claims, err := v.parse(credential)
	if err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}
