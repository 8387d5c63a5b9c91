/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moamenhredeen/oasgate/internal/gateway"
	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/router"
)

// routesCmd represents the routes command
var routesCmd = &cobra.Command{
	Use:   "routes [openapi-file]",
	Short: "List the routes of a document",
	Long: `List every operation ordered by path and method, with the security
requirements each one enforces.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadDocument(args)
		if err != nil {
			return err
		}
		table, err := router.New(doc.Operations)
		if err != nil {
			return err
		}

		fmt.Printf("%s %s\n", white(doc.Title), doc.Version)
		if base := gateway.BasePath(cfg, doc); base != "" {
			fmt.Printf("Base path: %s\n", base)
		}
		fmt.Println()

		fmt.Printf("%-8s %-40s %-28s %s\n", "METHOD", "PATH", "OPERATION", "SECURITY")
		fmt.Println(strings.Repeat("-", 100))
		for _, op := range table.Routes() {
			// pad before coloring, escape codes count towards the width
			method := fmt.Sprintf("%-8s", op.Method)
			fmt.Printf("%s %-40s %-28s %s\n",
				strings.Replace(method, op.Method, methodColor(op.Method), 1),
				op.Path, op.ID, describeSecurity(op.Security))
		}
		return nil
	},
}

// describeSecurity renders requirement sets as "a+b[scope] | c"
func describeSecurity(sets []models.SecurityRequirement) string {
	if len(sets) == 0 {
		return "public"
	}
	alternatives := make([]string, len(sets))
	for i, set := range sets {
		if len(set) == 0 {
			alternatives[i] = "anonymous"
			continue
		}
		schemes := make([]string, len(set))
		for j, req := range set {
			schemes[j] = req.Scheme
			if len(req.Scopes) > 0 {
				schemes[j] += "[" + strings.Join(req.Scopes, ",") + "]"
			}
		}
		alternatives[i] = strings.Join(schemes, "+")
	}
	return strings.Join(alternatives, " | ")
}

func init() {
	rootCmd.AddCommand(routesCmd)
}
