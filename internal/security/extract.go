package security

import (
	"encoding/base64"
	"strings"

	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/validator"
)

// Extract pulls the credential for a scheme out of a request.
//
//	apiKey                 the named header, query parameter or cookie
//	http bearer            the token after "Bearer "
//	http basic             the decoded "user:password"
//	oauth2, openIdConnect  a bearer token
//
// Other http schemes yield everything after the scheme name in the
// Authorization header.
func Extract(scheme *models.SecurityScheme, req *validator.RequestContext) (string, bool) {
	switch scheme.Type {
	case models.SchemeTypeAPIKey:
		return apiKey(scheme, req)
	case models.SchemeTypeHTTP:
		if scheme.Scheme == "basic" {
			return basic(req)
		}
		return authorization(req, scheme.Scheme)
	case models.SchemeTypeOAuth2, models.SchemeTypeOpenIDConnect:
		return authorization(req, "bearer")
	}
	return "", false
}

func usesBearer(scheme *models.SecurityScheme) bool {
	switch scheme.Type {
	case models.SchemeTypeHTTP:
		return scheme.Scheme == "bearer"
	case models.SchemeTypeOAuth2, models.SchemeTypeOpenIDConnect:
		return true
	}
	return false
}

func apiKey(scheme *models.SecurityScheme, req *validator.RequestContext) (string, bool) {
	var value string
	switch scheme.In {
	case models.LocationHeader:
		value = req.Header.Get(scheme.ParamName)
	case models.LocationQuery:
		value = req.Query.Get(scheme.ParamName)
	case models.LocationCookie:
		value, _ = req.Cookie(scheme.ParamName)
	}
	return value, value != ""
}

// authorization returns the credentials of an Authorization header using
// the given auth scheme, compared case-insensitively
func authorization(req *validator.RequestContext, authScheme string) (string, bool) {
	header := req.Header.Get("Authorization")
	name, credentials, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(name, authScheme) {
		return "", false
	}
	credentials = strings.TrimSpace(credentials)
	return credentials, credentials != ""
}

func basic(req *validator.RequestContext) (string, bool) {
	encoded, ok := authorization(req, "basic")
	if !ok {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || !strings.Contains(string(decoded), ":") {
		return "", false
	}
	return string(decoded), true
}
