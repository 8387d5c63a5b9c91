package tester

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/moamenhredeen/oasgate/internal/generator"
	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/parser"
)

const petstoreURL = "http://petstore.swagger.io/v2"

func loadPetstore(t *testing.T) *models.Document {
	t.Helper()
	doc, err := parser.ParseFile("../../testdata/petstore.yaml")
	if err != nil {
		t.Fatalf("Failed to parse file: %v", err)
	}
	return doc
}

func buildRequest(t *testing.T, rb *RequestBuilder, doc *models.Document, id string) *http.Request {
	t.Helper()
	op := doc.Operation(id)
	if op == nil {
		t.Fatalf("Operation %s not found", id)
	}
	req, err := rb.BuildRequest(context.Background(), op, petstoreURL)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	return req
}

func TestNewRequestBuilder(t *testing.T) {
	rb := NewRequestBuilder(nil, nil, nil)
	if rb == nil {
		t.Fatal("RequestBuilder is nil")
	}
	if rb.generator == nil {
		t.Error("Expected a default generator")
	}
}

func TestBuildRequestNilOperation(t *testing.T) {
	rb := NewRequestBuilder(nil, nil, nil)
	if _, err := rb.BuildRequest(context.Background(), nil, petstoreURL); err == nil {
		t.Error("Expected an error for a nil operation")
	}
}

func TestBuildRequestWithPathParameter(t *testing.T) {
	doc := loadPetstore(t)
	rb := NewRequestBuilder(generator.NewGenerator(generator.WithSeed(1)), doc.SecuritySchemes, nil)

	req := buildRequest(t, rb, doc, "getPetById")

	if req.Method != http.MethodGet {
		t.Errorf("Expected method GET, got %s", req.Method)
	}
	if strings.Contains(req.URL.Path, "{petId}") {
		t.Error("Path parameter {petId} was not replaced")
	}
	if !strings.HasPrefix(req.URL.String(), petstoreURL+"/pet/") {
		t.Errorf("Expected URL to start with %s/pet/, got %s", petstoreURL, req.URL.String())
	}
}

func TestBuildRequestWithQueryParameters(t *testing.T) {
	doc := loadPetstore(t)
	rb := NewRequestBuilder(nil, doc.SecuritySchemes, nil)

	req := buildRequest(t, rb, doc, "findPetsByStatus")

	// the items declare a default, which wins over the enum
	got := req.URL.Query().Get("status")
	if got == "" {
		t.Fatal("Expected the status query parameter")
	}
	for _, v := range strings.Split(got, ",") {
		if v != "available" {
			t.Errorf("Expected every status to be available, got %q", got)
		}
	}
}

func TestBuildRequestPOST(t *testing.T) {
	doc := loadPetstore(t)
	rb := NewRequestBuilder(nil, doc.SecuritySchemes, nil)

	req := buildRequest(t, rb, doc, "addPet")

	if req.Method != http.MethodPost {
		t.Errorf("Expected method POST, got %s", req.Method)
	}
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %q", ct)
	}
	if req.ContentLength == 0 {
		t.Error("Expected a request body")
	}
}

func TestBuildRequestMultipart(t *testing.T) {
	doc := loadPetstore(t)
	rb := NewRequestBuilder(nil, doc.SecuritySchemes, nil)

	req := buildRequest(t, rb, doc, "uploadFile")

	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("Expected a multipart body: %v", err)
	}
	if _, ok := req.MultipartForm.File["file"]; !ok {
		t.Error("Expected the binary property to be sent as a file")
	}
}

func TestBuildRequestHeaders(t *testing.T) {
	doc := loadPetstore(t)
	rb := NewRequestBuilder(nil, doc.SecuritySchemes, nil)

	req := buildRequest(t, rb, doc, "deletePet")

	// Check default headers
	if req.Header.Get("Accept") == "" {
		t.Error("Expected Accept header")
	}
	if req.Header.Get("User-Agent") == "" {
		t.Error("Expected User-Agent header")
	}
	if req.Header.Get("api_key") == "" {
		t.Error("Expected the declared api_key header parameter")
	}
}

func TestBuildRequestCredentials(t *testing.T) {
	doc := loadPetstore(t)

	tests := []struct {
		name        string
		operation   string
		credentials map[string]string
		wantHeader  string
		wantValue   string
	}{
		{
			name:        "api key in header",
			operation:   "getInventory",
			credentials: map[string]string{"api_key": "special-key"},
			wantHeader:  "api_key",
			wantValue:   "special-key",
		},
		{
			name:        "oauth2 as bearer token",
			operation:   "addPet",
			credentials: map[string]string{"petstore_auth": "token"},
			wantHeader:  "Authorization",
			wantValue:   "Bearer token",
		},
		{
			name:        "first satisfiable set is used",
			operation:   "getPetById",
			credentials: map[string]string{"petstore_auth": "token"},
			wantHeader:  "Authorization",
			wantValue:   "Bearer token",
		},
		{
			name:        "no credentials configured",
			operation:   "addPet",
			credentials: nil,
			wantHeader:  "Authorization",
			wantValue:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := NewRequestBuilder(nil, doc.SecuritySchemes, tt.credentials)
			req := buildRequest(t, rb, doc, tt.operation)
			if got := req.Header.Get(tt.wantHeader); got != tt.wantValue {
				t.Errorf("Expected %s %q, got %q", tt.wantHeader, tt.wantValue, got)
			}
		})
	}
}

func TestBuildRequestBasicAndQueryKey(t *testing.T) {
	schemes := map[string]*models.SecurityScheme{
		"basic": {Name: "basic", Type: models.SchemeTypeHTTP, Scheme: "basic"},
		"key":   {Name: "key", Type: models.SchemeTypeAPIKey, In: models.LocationQuery, ParamName: "token"},
	}
	op := &models.OperationSpec{
		ID:     "secured",
		Method: http.MethodGet,
		Path:   "/secured",
		Security: []models.SecurityRequirement{
			{{Scheme: "basic"}, {Scheme: "key"}},
		},
	}
	rb := NewRequestBuilder(nil, schemes, map[string]string{"basic": "alice:secret", "key": "k1"})

	req, err := rb.BuildRequest(context.Background(), op, "http://localhost")
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}

	user, password, ok := req.BasicAuth()
	if !ok || user != "alice" || password != "secret" {
		t.Errorf("Expected basic auth alice:secret, got %q:%q", user, password)
	}
	if got := req.URL.Query().Get("token"); got != "k1" {
		t.Errorf("Expected token=k1, got %q", got)
	}
}
