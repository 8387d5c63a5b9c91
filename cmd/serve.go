/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/moamenhredeen/oasgate/internal/dispatcher"
	"github.com/moamenhredeen/oasgate/internal/gateway"
	"github.com/moamenhredeen/oasgate/internal/generator"
	"github.com/moamenhredeen/oasgate/internal/mock"
)

const shutdownTimeout = 10 * time.Second

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve [openapi-file]",
	Short: "Serve an OpenAPI document",
	Long: `Serve routes, authorizes and validates requests against the document.

Handlers are bound in Go through the dispatcher registry. With --mock every
operation answers with data generated from its success response instead.

Examples:
  # Mock a document on :8080
  oasgate serve petstore.yaml --mock

  # Reject undeclared body fields and check every response
  oasgate serve petstore.yaml --mock --unknown-fields reject --responses enforce`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	doc, err := loadDocument(args)
	if err != nil {
		return err
	}

	var registry dispatcher.HandlerRegistry = dispatcher.NewRegistry()
	if cfg.Mock {
		registry = mock.NewRegistry(doc, generator.NewGenerator())
	}

	handler, err := gateway.New(cfg, doc, registry, logger)
	if err != nil {
		if errors.Is(err, dispatcher.ErrNoHandler) && !cfg.Mock {
			return fmt.Errorf("%w (run with --mock to answer with generated data)", err)
		}
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("serving",
		"listen", cfg.Listen,
		"document", doc.Title,
		"base_path", gateway.BasePath(cfg, doc),
		"operations", len(doc.Operations),
		"mock", cfg.Mock,
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "Address to listen on (default :8080)")
	serveCmd.Flags().Bool("mock", false, "Answer every operation with generated data")
	serveCmd.Flags().String("base-path", "", "Path prefix stripped before routing (default: path of the first server)")
	serveCmd.Flags().String("responses", "", "Response validation: off, log, enforce")
	serveCmd.Flags().String("unknown-fields", "", "Undeclared body fields: ignore, reject")
	serveCmd.Flags().Bool("strict", false, "Validate the document structure before loading it")
}
