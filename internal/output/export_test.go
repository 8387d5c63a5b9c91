package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moamenhredeen/oasgate/internal/models"
)

func sampleSummary() models.TestSummary {
	var s models.TestSummary
	s.BaseURL = "http://localhost:8080/v2"
	s.AddResult(models.TestResult{
		Path:         "/pet/{petId}",
		Method:       "GET",
		OperationID:  "getPetById",
		URL:          "http://localhost:8080/v2/pet/7",
		Passed:       true,
		StatusCode:   200,
		ContentType:  "application/json",
		ResponseTime: 1500 * time.Microsecond,
	})
	s.AddResult(models.TestResult{
		Path:        "/store/inventory",
		Method:      "GET",
		OperationID: "getInventory",
		StatusCode:  401,
		ValidationErrors: []models.ValidationError{
			{Field: "response.status", Message: "status 401 is not declared for getInventory"},
		},
		Error: "validation failed",
	})
	return s
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTestSummary(&buf, sampleSummary(), FormatJSON))

	var got models.TestSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got.TotalTests)
	assert.Equal(t, 1, got.Passed)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, "getInventory", got.Results[1].OperationID)
	assert.Len(t, got.Results[1].ValidationErrors, 1)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTestSummary(&buf, sampleSummary(), FormatCSV))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "operation_id", rows[0][2])
	assert.Equal(t, []string{"GET", "/pet/{petId}", "getPetById", "http://localhost:8080/v2/pet/7", "true", "200", "application/json", "1.50", "", ""}, rows[1])
	assert.Equal(t, "response.status: status 401 is not declared for getInventory", rows[2][8])
	assert.Equal(t, "false", rows[2][4])
}

func TestExportToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, ExportTestSummary(sampleSummary(), FormatJSON, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"operation_id": "getPetById"`)
}

func TestUnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteTestSummary(&buf, sampleSummary(), Format("xml")))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"CSV", FormatCSV, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
