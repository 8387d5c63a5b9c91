/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/moamenhredeen/oasgate/internal/generator"
	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/output"
	"github.com/moamenhredeen/oasgate/internal/tester"
	"github.com/moamenhredeen/oasgate/internal/validator"
)

var (
	serverURL    string
	filter       string
	tags         []string
	verbose      bool
	seed         int64
	outputFormat string
	outputFile   string
)

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test [openapi-file]",
	Short: "Contract test a running API",
	Long: `Send one generated request per operation to a running server and check
each response against the document: the status must be declared and the
body and required headers must match their schemas.

Credentials for secured operations come from the [tester.credentials]
table of config.toml, keyed by security scheme name.

Examples:
  # Test every operation against the first server of the document
  oasgate test petstore.yaml

  # Test the pet operations of a local gateway and export the results
  oasgate test petstore.yaml --server http://localhost:8080/v2 --tags pet -o json --output-file results.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTest,
}

func runTest(cmd *cobra.Command, args []string) error {
	doc, err := loadDocument(args)
	if err != nil {
		return err
	}

	// Use provided server URL or first from the document
	baseURL := serverURL
	if baseURL == "" && len(doc.Servers) > 0 {
		baseURL = doc.Servers[0]
	}
	if baseURL == "" {
		baseURL = "http://localhost"
	}

	// Filter operations
	filteredOps := filterOperations(doc.Operations, filter, tags)
	if len(filteredOps) == 0 {
		fmt.Println("No operations found matching the criteria")
		return nil
	}

	var format output.Format
	if outputFormat != "" {
		if format, err = output.ParseFormat(outputFormat); err != nil {
			return err
		}
	}

	credentials := make(map[string]string)
	for name := range doc.SecuritySchemes {
		if cred, ok := cfg.Credential(name); ok {
			credentials[name] = cred
		}
	}

	var genOpts []generator.Option
	if cmd.Flags().Changed("seed") {
		genOpts = append(genOpts, generator.WithSeed(seed))
	}
	builder := tester.NewRequestBuilder(generator.NewGenerator(genOpts...), doc.SecuritySchemes, credentials)
	testRunner := tester.NewTester(cfg.Tester.Timeout, builder, validator.New(
		validator.WithUnknownFields(cfg.UnknownFields()),
	))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Progress goes to stderr so exported results on stdout stay parseable
	var s *spinner.Spinner
	onEvent := func(event tester.TestEvent) {
		prefix := fmt.Sprintf("[%d/%d]", event.Index+1, event.Total)
		switch event.Type {
		case tester.EventStarting:
			if isTTY {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
				s.Suffix = fmt.Sprintf(" %s %s %s", prefix, event.Operation.Method, event.Operation.Path)
				s.Start()
			}
		case tester.EventCompleted:
			if s != nil {
				s.Stop()
			}
			status := green("✓")
			if !event.Result.Passed {
				status = red("✗")
			}
			fmt.Fprintf(os.Stderr, "%s %s %s %s %s\n", prefix, status, event.Operation.Method, event.Operation.Path,
				yellow(event.Result.ResponseTime.Round(time.Millisecond)))
		}
	}

	summary := testRunner.TestOperations(ctx, filteredOps, baseURL, onEvent)

	if outputFormat != "" {
		if err := output.ExportTestSummary(summary, format, outputFile); err != nil {
			return fmt.Errorf("error exporting results: %w", err)
		}
		if outputFile != "" {
			fmt.Printf("\nResults exported to: %s\n", outputFile)
			displayResults(summary, verbose)
		}
	} else {
		displayResults(summary, verbose)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d tests failed", summary.Failed, summary.TotalTests)
	}
	return nil
}

func filterOperations(operations []*models.OperationSpec, filterStr string, tagFilters []string) []*models.OperationSpec {
	var filtered []*models.OperationSpec

	for _, op := range operations {
		// Filter by path pattern or operation ID
		if filterStr != "" {
			if !strings.Contains(op.Path, filterStr) && !strings.Contains(op.ID, filterStr) {
				continue
			}
		}

		// Filter by tags
		if len(tagFilters) > 0 && !hasAnyTag(op, tagFilters) {
			continue
		}

		filtered = append(filtered, op)
	}

	return filtered
}

func hasAnyTag(op *models.OperationSpec, tagFilters []string) bool {
	for _, filterTag := range tagFilters {
		for _, opTag := range op.Tags {
			if opTag == filterTag {
				return true
			}
		}
	}
	return false
}

func displayResults(summary models.TestSummary, verbose bool) {
	fmt.Printf("\n%s\n", white("=== Test Results ==="))
	fmt.Printf("Server:      %s\n", summary.BaseURL)
	fmt.Printf("Total Tests: %d\n", summary.TotalTests)
	fmt.Printf("Passed:      %s\n", green(summary.Passed))
	if summary.Failed > 0 {
		fmt.Printf("Failed:      %s\n", red(summary.Failed))
	} else {
		fmt.Printf("Failed:      %d\n", summary.Failed)
	}
	fmt.Println()

	for _, result := range summary.Results {
		if result.Passed && !verbose {
			continue
		}
		status := green("PASS")
		if !result.Passed {
			status = red("FAIL")
		}

		fmt.Printf("%s %s %s\n", status, result.Method, result.Path)
		if verbose {
			fmt.Printf("  Operation ID:  %s\n", result.OperationID)
			fmt.Printf("  URL:           %s\n", result.URL)
			fmt.Printf("  Status Code:   %d\n", result.StatusCode)
			fmt.Printf("  Response Time: %v\n", result.ResponseTime)
		}

		if !result.Passed {
			if len(result.ValidationErrors) > 0 {
				fmt.Printf("  Validation Errors:\n")
				for _, ve := range result.ValidationErrors {
					fmt.Printf("    - %s: %s\n", cyan(ve.Field), ve.Message)
				}
			} else if result.Error != "" {
				fmt.Printf("  Error: %s\n", result.Error)
			}
		}
		fmt.Println()
	}
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().StringVar(&serverURL, "server", "", "Override server URL from the document")
	testCmd.Flags().StringVar(&filter, "filter", "", "Filter endpoints by path pattern or operation ID")
	testCmd.Flags().StringSliceVar(&tags, "tags", []string{}, "Filter by OpenAPI tags (can be specified multiple times)")
	testCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed output")
	testCmd.Flags().Int64Var(&seed, "seed", 0, "Seed for generated request data")
	testCmd.Flags().Duration("timeout", 0, "Request timeout (default 30s)")
	testCmd.Flags().Bool("strict", false, "Validate the document structure before loading it")

	// Output flags
	testCmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format: json, csv")
	testCmd.Flags().StringVar(&outputFile, "output-file", "", "Write output to file (default: stdout)")
}
