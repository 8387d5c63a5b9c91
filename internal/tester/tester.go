// Package tester exercises a running API with generated requests and checks
// every response against the document.
package tester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/validator"
)

// maxResponseBytes caps how much of a response body is read for validation
const maxResponseBytes = 10 << 20

// EventType represents the type of test event
type EventType int

const (
	// EventStarting indicates a test is about to start
	EventStarting EventType = iota
	// EventCompleted indicates a test has completed
	EventCompleted
)

// TestEvent represents an event during test execution
type TestEvent struct {
	Type      EventType
	Operation *models.OperationSpec
	Result    *models.TestResult // nil for Starting events
	Index     int                // current test index (0-based)
	Total     int                // total number of tests
}

// OnTestEvent is a callback function for test events
type OnTestEvent func(event TestEvent)

// Tester executes API tests based on OpenAPI specifications
type Tester struct {
	requestBuilder *RequestBuilder
	validator      *validator.Validator
	client         *http.Client
}

// NewTester creates a new tester instance with configurable timeout
func NewTester(timeout time.Duration, builder *RequestBuilder, v *validator.Validator) *Tester {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if builder == nil {
		builder = NewRequestBuilder(nil, nil, nil)
	}
	if v == nil {
		v = validator.New()
	}
	return &Tester{
		requestBuilder: builder,
		validator:      v,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// TestOperation tests a single API operation. Failures are reported in the
// result rather than returned.
func (t *Tester) TestOperation(ctx context.Context, op *models.OperationSpec, baseURL string) models.TestResult {
	result := models.TestResult{
		Path:        op.Path,
		Method:      op.Method,
		OperationID: op.ID,
	}

	// Build request
	req, err := t.requestBuilder.BuildRequest(ctx, op, baseURL)
	if err != nil {
		result.Error = fmt.Sprintf("failed to build request: %v", err)
		return result
	}
	result.URL = req.URL.String()

	// Execute request
	startTime := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		result.ResponseTime = time.Since(startTime)
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	result.ResponseTime = time.Since(startTime)
	if err != nil {
		result.Error = fmt.Sprintf("failed to read response body: %v", err)
		return result
	}

	result.StatusCode = resp.StatusCode
	result.ContentType = resp.Header.Get("Content-Type")

	// Validate response
	var violations []validator.Violation
	for _, err := range []error{
		t.validator.ValidateResponse(resp.StatusCode, result.ContentType, body, op),
		t.validator.ValidateResponseHeaders(resp.StatusCode, resp.Header, op),
	} {
		if err == nil {
			continue
		}
		var vErr *validator.ValidationError
		if !errors.As(err, &vErr) {
			result.Error = fmt.Sprintf("validation error: %v", err)
			return result
		}
		violations = append(violations, vErr.Violations...)
	}

	if len(violations) == 0 {
		result.Passed = true
		return result
	}

	var errorMsgs []string
	for _, v := range violations {
		ve := models.ValidationError{Field: field(v), Message: v.Message}
		result.ValidationErrors = append(result.ValidationErrors, ve)
		errorMsgs = append(errorMsgs, fmt.Sprintf("%s: %s", ve.Field, ve.Message))
	}
	result.Error = fmt.Sprintf("validation failed: %s", strings.Join(errorMsgs, "; "))

	return result
}

func field(v validator.Violation) string {
	if v.Name == "" {
		return v.In
	}
	return v.In + "." + v.Name
}

// TestOperations tests multiple operations with optional live event reporting.
// A cancelled context stops the run after the current operation.
func (t *Tester) TestOperations(ctx context.Context, operations []*models.OperationSpec, baseURL string, onEvent OnTestEvent) models.TestSummary {
	summary := models.TestSummary{
		BaseURL: baseURL,
		Results: make([]models.TestResult, 0, len(operations)),
	}
	total := len(operations)

	for i, op := range operations {
		if ctx.Err() != nil {
			break
		}

		// Report: test is starting
		if onEvent != nil {
			onEvent(TestEvent{Type: EventStarting, Operation: op, Index: i, Total: total})
		}

		result := t.TestOperation(ctx, op, baseURL)
		summary.AddResult(result)

		// Report: test completed
		if onEvent != nil {
			onEvent(TestEvent{Type: EventCompleted, Operation: op, Result: &result, Index: i, Total: total})
		}
	}

	return summary
}
