package validator

import (
	"net/http"
	"net/url"

	"github.com/moamenhredeen/oasgate/internal/models"
)

// RequestContext is everything the pipeline knows about one request before
// validation. It is owned by the goroutine serving the request.
type RequestContext struct {
	RequestID string
	Operation *models.OperationSpec

	// PathParams holds the percent-decoded values captured by the router
	PathParams map[string]string

	Query       url.Values
	Header      http.Header
	Cookies     []*http.Cookie
	Body        []byte
	ContentType string
	Accept      string
}

// NewRequestContext captures an incoming request. The body must already be
// read, since validation happens before any handler sees the request.
func NewRequestContext(r *http.Request, requestID string, op *models.OperationSpec, pathParams map[string]string, body []byte) *RequestContext {
	return &RequestContext{
		RequestID:   requestID,
		Operation:   op,
		PathParams:  pathParams,
		Query:       r.URL.Query(),
		Header:      r.Header,
		Cookies:     r.Cookies(),
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
		Accept:      r.Header.Get("Accept"),
	}
}

// Cookie returns the value of the first cookie with the given name
func (c *RequestContext) Cookie(name string) (string, bool) {
	for _, ck := range c.Cookies {
		if ck.Name == name {
			return ck.Value, true
		}
	}
	return "", false
}

// UploadedFile is a file part of a multipart/form-data body
type UploadedFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ValidatedRequest is the typed view of a request that passed validation.
// Parameter values are coerced to string, int64, float64, bool, []any or
// map[string]any following their schemas. JSON numbers in bodies are kept
// as json.Number.
type ValidatedRequest struct {
	RequestID string
	Operation *models.OperationSpec

	Path   map[string]any
	Query  map[string]any
	Header map[string]any
	Cookie map[string]any

	// Body is the parsed payload: a JSON value, or a map[string]any for
	// form, multipart and XML bodies. Multipart file parts appear in it as
	// *UploadedFile.
	Body        any
	RawBody     []byte
	ContentType string

	// Principal and Scheme are filled by the security gate
	Principal string
	Scheme    string
}

// Param returns a validated parameter value
func (r *ValidatedRequest) Param(in models.Location, name string) (any, bool) {
	var m map[string]any
	switch in {
	case models.LocationPath:
		m = r.Path
	case models.LocationQuery:
		m = r.Query
	case models.LocationHeader:
		m = r.Header
	case models.LocationCookie:
		m = r.Cookie
	}
	v, ok := m[name]
	return v, ok
}

// BodyObject returns the body as an object when it is one
func (r *ValidatedRequest) BodyObject() (map[string]any, bool) {
	m, ok := r.Body.(map[string]any)
	return m, ok
}
