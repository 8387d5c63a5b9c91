package tester

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/moamenhredeen/oasgate/internal/generator"
	"github.com/moamenhredeen/oasgate/internal/models"
)

// RequestBuilder builds HTTP requests from OpenAPI operations
type RequestBuilder struct {
	generator *generator.Generator
	schemes   map[string]*models.SecurityScheme

	// credentials maps a security scheme name to the raw credential sent for
	// it: an API key, a bearer token or "user:password" for basic auth
	credentials map[string]string
}

// NewRequestBuilder creates a new request builder
func NewRequestBuilder(gen *generator.Generator, schemes map[string]*models.SecurityScheme, credentials map[string]string) *RequestBuilder {
	if gen == nil {
		gen = generator.NewGenerator()
	}
	return &RequestBuilder{generator: gen, schemes: schemes, credentials: credentials}
}

// BuildRequest builds an HTTP request for op against baseURL, which already
// carries any base path
func (rb *RequestBuilder) BuildRequest(ctx context.Context, op *models.OperationSpec, baseURL string) (*http.Request, error) {
	if op == nil {
		return nil, fmt.Errorf("operation is nil")
	}

	// Build URL with path parameters
	path, err := rb.expandPath(op)
	if err != nil {
		return nil, err
	}
	fullURL := strings.TrimSuffix(baseURL, "/") + path

	query := url.Values{}
	for _, param := range op.ParametersIn(models.LocationQuery) {
		values, err := rb.generator.GenerateParameter(param)
		if err != nil {
			return nil, fmt.Errorf("failed to generate query parameter %s: %w", param.Name, err)
		}
		for _, v := range values {
			query.Add(param.Name, v)
		}
	}

	var body []byte
	contentType := ""
	if op.RequestBody != nil && len(op.RequestBody.Content) > 0 {
		body, contentType, err = rb.generator.GenerateRequestBody(op.RequestBody)
		if err != nil {
			return nil, fmt.Errorf("failed to generate request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, fullURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	// Set default headers
	req.Header.Set("Accept", "application/json, */*;q=0.5")
	req.Header.Set("User-Agent", "oasgate-tester/1.0")

	for _, param := range op.ParametersIn(models.LocationHeader) {
		values, err := rb.generator.GenerateParameter(param)
		if err != nil {
			return nil, fmt.Errorf("failed to generate header parameter %s: %w", param.Name, err)
		}
		req.Header.Set(param.Name, values[0])
	}
	for _, param := range op.ParametersIn(models.LocationCookie) {
		values, err := rb.generator.GenerateParameter(param)
		if err != nil {
			return nil, fmt.Errorf("failed to generate cookie parameter %s: %w", param.Name, err)
		}
		req.AddCookie(&http.Cookie{Name: param.Name, Value: values[0]})
	}

	rb.authenticate(req, op, query)
	req.URL.RawQuery = query.Encode()

	return req, nil
}

func (rb *RequestBuilder) expandPath(op *models.OperationSpec) (string, error) {
	path := op.Path
	for _, param := range op.ParametersIn(models.LocationPath) {
		values, err := rb.generator.GenerateParameter(param)
		if err != nil {
			return "", fmt.Errorf("failed to generate path parameter %s: %w", param.Name, err)
		}
		value := url.PathEscape(values[0])
		switch param.Style {
		case "label":
			value = "." + value
		case "matrix":
			value = ";" + param.Name + "=" + value
		}
		path = strings.ReplaceAll(path, "{"+param.Name+"}", value)
	}
	return path, nil
}

// authenticate applies the credentials of the first requirement set that
// can be fully satisfied with the configured ones
func (rb *RequestBuilder) authenticate(req *http.Request, op *models.OperationSpec, query url.Values) {
	for _, set := range op.Security {
		if !rb.canSatisfy(set) {
			continue
		}
		for _, requirement := range set {
			rb.apply(req, rb.schemes[requirement.Scheme], rb.credentials[requirement.Scheme], query)
		}
		return
	}
}

func (rb *RequestBuilder) canSatisfy(set models.SecurityRequirement) bool {
	for _, requirement := range set {
		if _, ok := rb.credentials[requirement.Scheme]; !ok {
			return false
		}
		if rb.schemes[requirement.Scheme] == nil {
			return false
		}
	}
	return true
}

func (rb *RequestBuilder) apply(req *http.Request, scheme *models.SecurityScheme, credential string, query url.Values) {
	switch scheme.Type {
	case models.SchemeTypeAPIKey:
		switch scheme.In {
		case models.LocationHeader:
			req.Header.Set(scheme.ParamName, credential)
		case models.LocationQuery:
			query.Set(scheme.ParamName, credential)
		case models.LocationCookie:
			req.AddCookie(&http.Cookie{Name: scheme.ParamName, Value: credential})
		}
	case models.SchemeTypeHTTP:
		switch scheme.Scheme {
		case "basic":
			user, password, _ := strings.Cut(credential, ":")
			req.SetBasicAuth(user, password)
		case "bearer":
			req.Header.Set("Authorization", "Bearer "+credential)
		default:
			req.Header.Set("Authorization", scheme.Scheme+" "+credential)
		}
	case models.SchemeTypeOAuth2, models.SchemeTypeOpenIDConnect:
		req.Header.Set("Authorization", "Bearer "+credential)
	}
}
