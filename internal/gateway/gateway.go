// Package gateway assembles a server from a loaded document, the resolved
// configuration and a handler registry.
package gateway

import (
	"fmt"
	"log/slog"

	"github.com/moamenhredeen/oasgate/internal/config"
	"github.com/moamenhredeen/oasgate/internal/dispatcher"
	"github.com/moamenhredeen/oasgate/internal/logging"
	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/router"
	"github.com/moamenhredeen/oasgate/internal/security"
	"github.com/moamenhredeen/oasgate/internal/server"
	"github.com/moamenhredeen/oasgate/internal/validator"
)

// New builds the route table, security gate, validator and dispatcher for
// doc and wires them into a server. It fails when an operation has no
// handler or uses a security scheme without configured credentials.
func New(cfg *config.Config, doc *models.Document, registry dispatcher.HandlerRegistry, logger *slog.Logger) (*server.Server, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	table, err := router.New(doc.Operations)
	if err != nil {
		return nil, fmt.Errorf("build routes: %w", err)
	}

	validators, err := cfg.Validators(doc.SecuritySchemes)
	if err != nil {
		return nil, err
	}
	gate := security.NewGate(doc.SecuritySchemes, validators, logger)
	if err := gate.Verify(doc.Operations); err != nil {
		return nil, err
	}

	if err := dispatcher.Verify(registry, doc.Operations); err != nil {
		return nil, err
	}

	mode, err := server.ParseResponseMode(cfg.Validation.Responses)
	if err != nil {
		return nil, err
	}

	v := validator.New(
		validator.WithUnknownFields(cfg.UnknownFields()),
		validator.WithMaxBodySize(cfg.Validation.MaxBodyBytes),
	)

	return server.New(table, gate, v, dispatcher.New(registry, logger),
		server.WithBasePath(BasePath(cfg, doc)),
		server.WithRequestTimeout(cfg.Server.RequestTimeout),
		server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.Burst),
		server.WithResponseValidation(mode),
		server.WithLogger(logger),
	), nil
}

// BasePath is the configured base path, falling back to the path of the
// document's first server
func BasePath(cfg *config.Config, doc *models.Document) string {
	if cfg.BasePath != "" {
		return cfg.BasePath
	}
	return doc.BasePath
}
