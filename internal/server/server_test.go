package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moamenhredeen/oasgate/internal/dispatcher"
	"github.com/moamenhredeen/oasgate/internal/logging"
	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/parser"
	"github.com/moamenhredeen/oasgate/internal/router"
	"github.com/moamenhredeen/oasgate/internal/security"
	"github.com/moamenhredeen/oasgate/internal/validator"
)

type fixture struct {
	doc      *models.Document
	registry *dispatcher.Registry
	handler  http.Handler
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	doc, err := parser.ParseFile("../../testdata/petstore.yaml")
	require.NoError(t, err)

	table, err := router.New(doc.Operations)
	require.NoError(t, err)

	gate := security.NewGate(doc.SecuritySchemes, map[string]security.CredentialValidator{
		"api_key": security.NewStaticKeys("special-key"),
		"petstore_auth": security.NewScopedKeys(map[string][]string{
			"special-key": {"read:pets", "write:pets"},
			"reader":      {"read:pets"},
		}),
	}, logging.Nop())

	reg := dispatcher.NewRegistry()
	f := &fixture{doc: doc, registry: reg}

	opts = append([]Option{WithBasePath(doc.BasePath)}, opts...)
	f.handler = New(table, gate, validator.New(), dispatcher.New(reg, nil), opts...)
	return f
}

func (f *fixture) do(method, target, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func apiKey(key string) http.Header {
	return http.Header{"Api_key": {key}}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestDeletePetInvokesHandlerWithTypedParameter(t *testing.T) {
	f := newFixture(t)

	var petID any
	f.registry.RegisterFunc("deletePet", func(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
		petID, _ = req.Param(models.LocationPath, "petId")
		assert.Equal(t, "petstore_auth", req.Scheme)
		return dispatcher.Result{}, nil
	})

	rec := f.do(http.MethodDelete, "/v2/pet/56", "", bearer("special-key"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(56), petID)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestLiteralPathWinsOverTemplate(t *testing.T) {
	f := newFixture(t)

	var status any
	f.registry.RegisterFunc("findPetsByStatus", func(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
		status, _ = req.Param(models.LocationQuery, "status")
		return dispatcher.Result{Body: []any{}}, nil
	})
	f.registry.RegisterFunc("getPetById", func(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
		t.Error("getPetById must not be invoked for /pet/findByStatus")
		return dispatcher.Result{}, nil
	})

	rec := f.do(http.MethodGet, "/v2/pet/findByStatus?status=available", "", bearer("special-key"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"available"}, status)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestMissingRequiredFieldIsSingleViolation(t *testing.T) {
	f := newFixture(t)
	var called atomic.Bool
	f.registry.RegisterFunc("addPet", func(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
		called.Store(true)
		return dispatcher.Result{}, nil
	})

	header := bearer("special-key")
	header.Set("Content-Type", "application/json")
	rec := f.do(http.MethodPost, "/v2/pet", `{"photoUrls": ["a.png"], "status": "available"}`, header)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called.Load())

	body := decodeError(t, rec)
	assert.Equal(t, CodeValidation, body.Error)
	require.Len(t, body.Violations, 1)
	assert.Equal(t, validator.MissingParameter, body.Violations[0].Kind)
	assert.Equal(t, "name", body.Violations[0].Name)
}

func TestRoutingErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/v2/dogs", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, rec).Error)

	rec = f.do(http.MethodGet, "/v3/pet/1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/v2pet/1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/v2/pet/findByStatus", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, HEAD", rec.Header().Get("Allow"))
	assert.Equal(t, []string{"GET", "HEAD"}, decodeError(t, rec).Allowed)
}

func TestSecurityOutcomes(t *testing.T) {
	f := newFixture(t)
	f.registry.RegisterFunc("deletePet", func(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
		return dispatcher.Result{}, nil
	})

	rec := f.do(http.MethodDelete, "/v2/pet/56", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="petstore_auth"`, rec.Header().Get("WWW-Authenticate"))

	rec = f.do(http.MethodDelete, "/v2/pet/56", "", bearer("nope"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodDelete, "/v2/pet/56", "", bearer("reader"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="insufficient_scope"`)
	assert.Equal(t, CodeForbidden, decodeError(t, rec).Error)
}

func TestSecurityRunsBeforeValidation(t *testing.T) {
	f := newFixture(t)

	// the path parameter is invalid too, but the caller is not authenticated
	rec := f.do(http.MethodDelete, "/v2/pet/not-a-number", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotAcceptable(t *testing.T) {
	f := newFixture(t)
	f.registry.RegisterFunc("getPetById", func(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
		return dispatcher.Result{Body: map[string]any{"name": "doggie", "photoUrls": []any{}}}, nil
	})

	header := apiKey("special-key")
	header.Set("Accept", "text/html")
	rec := f.do(http.MethodGet, "/v2/pet/1", "", header)
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
	assert.Equal(t, []string{"application/json"}, decodeError(t, rec).Allowed)
}

func TestNotAcceptableLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	f.registry.RegisterFunc("addPet", func(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
		calls.Add(1)
		return dispatcher.Result{Body: map[string]any{"name": "doggie"}}, nil
	})

	header := bearer("special-key")
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "text/html")
	rec := f.do(http.MethodPost, "/v2/pet", `{"name":"doggie","photoUrls":["a.png"]}`, header)
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
	assert.Equal(t, []string{"application/json", "application/xml"}, decodeError(t, rec).Allowed)
	assert.Zero(t, calls.Load())
}

func TestHeadOmitsBody(t *testing.T) {
	f := newFixture(t)
	f.registry.RegisterFunc("getPetById", func(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
		return dispatcher.Result{Body: map[string]any{"name": "doggie", "photoUrls": []any{}}}, nil
	})

	rec := f.do(http.MethodHead, "/v2/pet/1", "", apiKey("special-key"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Zero(t, rec.Body.Len())
}

func TestHandlerTimeout(t *testing.T) {
	f := newFixture(t, WithRequestTimeout(20*time.Millisecond))
	f.registry.RegisterFunc("getInventory", func(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
		<-ctx.Done()
		return dispatcher.Result{}, ctx.Err()
	})

	rec := f.do(http.MethodGet, "/v2/store/inventory", "", apiKey("special-key"))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, CodeTimeout, decodeError(t, rec).Error)
}

func TestClientCancellationWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	f.registry.RegisterFunc("getInventory", func(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
		cancel()
		return dispatcher.Result{Body: map[string]any{"available": 1}}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/v2/store/inventory", nil).WithContext(ctx)
	req.Header.Set("api_key", "special-key")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Zero(t, rec.Body.Len())
	assert.Empty(t, rec.Header().Get("Content-Type"))
}

func TestHandlerErrors(t *testing.T) {
	f := newFixture(t)
	f.registry.RegisterFunc("getPetById", func(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
		return dispatcher.Result{}, &dispatcher.HandlerError{Status: http.StatusNotFound, Body: map[string]any{"message": "no such pet"}}
	})
	f.registry.RegisterFunc("getInventory", func(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
		return dispatcher.Result{}, assert.AnError
	})

	rec := f.do(http.MethodGet, "/v2/pet/9", "", apiKey("special-key"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"no such pet"}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/v2/store/inventory", "", apiKey("special-key"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeInternal, decodeError(t, rec).Error)

	// nothing is bound to getOrderById
	rec = f.do(http.MethodGet, "/v2/store/order/3", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServerErrorsFromHandlerAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Output: &buf, Format: logging.FormatJSON})

	f := newFixture(t, WithLogger(logger))
	f.registry.RegisterFunc("getInventory", func(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
		return dispatcher.Result{}, &dispatcher.HandlerError{Status: http.StatusServiceUnavailable, Body: map[string]any{"message": "store closed"}}
	})

	header := apiKey("special-key")
	header.Set(RequestIDHeader, "req-503")
	rec := f.do(http.MethodGet, "/v2/store/inventory", "", header)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var e map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		if e["msg"] == "handler returned server error" {
			entry = e
		}
	}
	require.NotNil(t, entry, "no error entry in %s", buf.String())
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "req-503", entry["request_id"])
	assert.Equal(t, "getInventory", entry["operation_id"])
	assert.Equal(t, float64(http.StatusServiceUnavailable), entry["status"])
}

func TestResponseValidation(t *testing.T) {
	handler := func(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
		return dispatcher.Result{Status: http.StatusTeapot, Body: map[string]any{"available": 1}}, nil
	}

	logged := newFixture(t, WithResponseValidation(ResponsesLog))
	logged.registry.RegisterFunc("getInventory", handler)
	rec := logged.do(http.MethodGet, "/v2/store/inventory", "", apiKey("special-key"))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	enforced := newFixture(t, WithResponseValidation(ResponsesEnforce))
	enforced.registry.RegisterFunc("getInventory", handler)
	rec = enforced.do(http.MethodGet, "/v2/store/inventory", "", apiKey("special-key"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeResponseValidation, decodeError(t, rec).Error)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, WithRateLimit(1, 1))

	first := f.do(http.MethodGet, "/v2/dogs", "", nil)
	assert.Equal(t, http.StatusNotFound, first.Code)

	second := f.do(http.MethodGet, "/v2/dogs", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}

func TestRequestIDPropagates(t *testing.T) {
	f := newFixture(t)
	var seen string
	f.registry.RegisterFunc("getInventory", func(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
		seen = req.RequestID
		return dispatcher.Result{}, nil
	})

	header := apiKey("special-key")
	header.Set(RequestIDHeader, "abc-123")
	rec := f.do(http.MethodGet, "/v2/store/inventory", "", header)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", seen)
}

func TestBodyTooLarge(t *testing.T) {
	doc, err := parser.ParseFile("../../testdata/petstore.yaml")
	require.NoError(t, err)
	table, err := router.New(doc.Operations)
	require.NoError(t, err)
	gate := security.NewGate(doc.SecuritySchemes, map[string]security.CredentialValidator{
		"api_key":       security.NewStaticKeys("special-key"),
		"petstore_auth": security.NewStaticKeys("special-key"),
	}, nil)

	h := New(table, gate, validator.New(validator.WithMaxBodySize(16)), dispatcher.New(dispatcher.NewRegistry(), nil), WithBasePath("/v2"))

	req := httptest.NewRequest(http.MethodPost, "/v2/pet", strings.NewReader(`{"name": "doggie", "photoUrls": []}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer special-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	require.Len(t, body.Violations, 1)
	assert.Equal(t, validator.MalformedBody, body.Violations[0].Kind)
}

func TestParseResponseMode(t *testing.T) {
	for in, want := range map[string]ResponseMode{"": ResponsesOff, "off": ResponsesOff, "LOG": ResponsesLog, "enforce": ResponsesEnforce} {
		got, err := ParseResponseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseResponseMode("sometimes")
	assert.Error(t, err)
}
