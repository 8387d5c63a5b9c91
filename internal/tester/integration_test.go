package tester

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/moamenhredeen/oasgate/internal/dispatcher"
	"github.com/moamenhredeen/oasgate/internal/generator"
	"github.com/moamenhredeen/oasgate/internal/mock"
	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/router"
	"github.com/moamenhredeen/oasgate/internal/security"
	"github.com/moamenhredeen/oasgate/internal/server"
	"github.com/moamenhredeen/oasgate/internal/validator"
)

// createMockServer serves the document through the gateway with generated
// responses for every operation
func createMockServer(t *testing.T, doc *models.Document) *httptest.Server {
	t.Helper()

	table, err := router.New(doc.Operations)
	if err != nil {
		t.Fatalf("Failed to build routes: %v", err)
	}
	gate := security.NewGate(doc.SecuritySchemes, map[string]security.CredentialValidator{
		"api_key": security.NewStaticKeys("special-key"),
		"petstore_auth": security.NewScopedKeys(map[string][]string{
			"special-key": {"read:pets", "write:pets"},
		}),
	}, nil)
	registry := mock.NewRegistry(doc, generator.NewGenerator(generator.WithSeed(7)))

	handler := server.New(table, gate, validator.New(), dispatcher.New(registry, nil),
		server.WithBasePath(doc.BasePath),
		server.WithResponseValidation(server.ResponsesEnforce),
	)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newTester(doc *models.Document, credentials map[string]string) *Tester {
	builder := NewRequestBuilder(generator.NewGenerator(generator.WithSeed(42)), doc.SecuritySchemes, credentials)
	return NewTester(5*time.Second, builder, validator.New())
}

var validCredentials = map[string]string{
	"api_key":       "special-key",
	"petstore_auth": "special-key",
}

func TestIntegrationFullFlow(t *testing.T) {
	doc := loadPetstore(t)
	srv := createMockServer(t, doc)
	baseURL := srv.URL + doc.BasePath

	var events []TestEvent
	summary := newTester(doc, validCredentials).TestOperations(context.Background(), doc.Operations, baseURL, func(e TestEvent) {
		events = append(events, e)
	})

	if summary.TotalTests != len(doc.Operations) {
		t.Fatalf("Expected %d tests, got %d", len(doc.Operations), summary.TotalTests)
	}
	if summary.BaseURL != baseURL {
		t.Errorf("Expected base URL %s, got %s", baseURL, summary.BaseURL)
	}
	for _, result := range summary.Results {
		if !result.Passed {
			t.Errorf("%s %s failed with status %d: %s", result.Method, result.Path, result.StatusCode, result.Error)
		}
	}
	if summary.Failed != 0 {
		t.Errorf("Expected no failures, got %d", summary.Failed)
	}

	// one starting and one completed event per operation
	if len(events) != 2*len(doc.Operations) {
		t.Fatalf("Expected %d events, got %d", 2*len(doc.Operations), len(events))
	}
	if events[0].Type != EventStarting || events[0].Result != nil {
		t.Error("Expected the first event to be a starting event without result")
	}
	last := events[len(events)-1]
	if last.Type != EventCompleted || last.Result == nil || last.Index != len(doc.Operations)-1 {
		t.Error("Expected the last event to complete the last operation")
	}
}

func TestIntegrationSingleOperation(t *testing.T) {
	doc := loadPetstore(t)
	srv := createMockServer(t, doc)

	result := newTester(doc, validCredentials).TestOperation(context.Background(), doc.Operation("getPetById"), srv.URL+doc.BasePath)

	if result.Path != "/pet/{petId}" {
		t.Errorf("Expected path /pet/{petId}, got %s", result.Path)
	}
	if result.Method != http.MethodGet {
		t.Errorf("Expected method GET, got %s", result.Method)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", result.StatusCode)
	}
	if !result.Passed {
		t.Errorf("Expected the test to pass: %s", result.Error)
	}
	if result.URL == "" {
		t.Error("Expected the request URL to be recorded")
	}
}

func TestIntegrationMissingCredentials(t *testing.T) {
	doc := loadPetstore(t)
	srv := createMockServer(t, doc)

	result := newTester(doc, nil).TestOperation(context.Background(), doc.Operation("getInventory"), srv.URL+doc.BasePath)

	if result.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", result.StatusCode)
	}
	if result.Passed {
		t.Error("Expected an undeclared 401 to fail the test")
	}
	if len(result.ValidationErrors) != 1 || result.ValidationErrors[0].Field != "response.status" {
		t.Errorf("Expected one response.status violation, got %+v", result.ValidationErrors)
	}
}

func TestIntegrationInvalidResponse(t *testing.T) {
	doc := loadPetstore(t)

	// a pet without its required fields and a mistyped id
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"id": "seven"})
	}))
	defer srv.Close()

	result := newTester(doc, validCredentials).TestOperation(context.Background(), doc.Operation("getPetById"), srv.URL)

	if result.Passed {
		t.Fatal("Expected the test to fail")
	}
	fields := map[string]bool{}
	for _, ve := range result.ValidationErrors {
		fields[ve.Field] = true
	}
	for _, want := range []string{"response.id", "response.name", "response.photoUrls"} {
		if !fields[want] {
			t.Errorf("Expected a violation for %s, got %+v", want, result.ValidationErrors)
		}
	}
}

func TestIntegrationServerUnavailable(t *testing.T) {
	doc := loadPetstore(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	result := newTester(doc, nil).TestOperation(context.Background(), doc.Operation("placeOrder"), url)

	if result.Passed {
		t.Error("Expected the test to fail")
	}
	if result.StatusCode != 0 {
		t.Errorf("Expected no status, got %d", result.StatusCode)
	}
	if result.Error == "" {
		t.Error("Expected an error message")
	}
}

func TestIntegrationCancelledRun(t *testing.T) {
	doc := loadPetstore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := newTester(doc, nil).TestOperations(ctx, doc.Operations, "http://localhost", nil)

	if summary.TotalTests != 0 {
		t.Errorf("Expected no tests after cancellation, got %d", summary.TotalTests)
	}
}
