package models

import "time"

// TestResult represents the result of exercising a single API operation against a live server
type TestResult struct {
	// Operation details
	Path        string `json:"path"`
	Method      string `json:"method"`
	OperationID string `json:"operation_id"`
	URL         string `json:"url"`

	// Test status
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`

	// Response details
	StatusCode   int           `json:"status_code"`
	ContentType  string        `json:"content_type,omitempty"`
	ResponseTime time.Duration `json:"response_time_ns"`

	// Validation details
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
}

// ValidationError represents a specific contract violation found in a response
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// TestSummary represents the overall test results
type TestSummary struct {
	BaseURL    string       `json:"base_url"`
	TotalTests int          `json:"total_tests"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	Results    []TestResult `json:"results"`
}

// AddResult adds a test result to the summary
func (s *TestSummary) AddResult(result TestResult) {
	s.TotalTests++
	s.Results = append(s.Results, result)
	if result.Passed {
		s.Passed++
	} else {
		s.Failed++
	}
}
