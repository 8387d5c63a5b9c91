/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moamenhredeen/oasgate/internal/parser"
	"github.com/moamenhredeen/oasgate/internal/router"
	"github.com/moamenhredeen/oasgate/internal/security"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check [openapi-file]",
	Short: "Check a document and its configuration",
	Long: `Check validates the document structure, loads it, builds its route
table and verifies that every security scheme it uses has credentials
configured. It exits non-zero when any check fails.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Document
		if len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			return errors.New("no OpenAPI document given: pass it as an argument, with --document or in config.toml")
		}

		failed := 0
		report := func(name string, err error) bool {
			if err != nil {
				failed++
				fmt.Printf("%s %s\n    %s\n", red("✗"), name, err)
				return false
			}
			fmt.Printf("%s %s\n", green("✓"), name)
			return true
		}

		doc, err := parser.ParseFile(path,
			parser.WithStrictValidation(true),
			parser.WithLogger(logger.With("component", "libopenapi")),
		)
		if !report("document loads and passes structural validation", err) {
			return fmt.Errorf("%s is not a usable OpenAPI 3 document", path)
		}
		fmt.Printf("    %s %s: %d operations, %d schemas, %d security schemes\n",
			doc.Title, doc.Version, len(doc.Operations), len(doc.Schemas), len(doc.SecuritySchemes))

		_, err = router.New(doc.Operations)
		report("every operation has a unique route", err)

		validators, err := cfg.Validators(doc.SecuritySchemes)
		if report("configured credentials match declared schemes", err) {
			gate := security.NewGate(doc.SecuritySchemes, validators, logger)
			report("every security scheme in use has credentials", gate.Verify(doc.Operations))
		}

		if failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
