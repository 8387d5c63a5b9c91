// Package mock binds every operation of a document to a handler that answers
// with generated data, so a gateway can be served before any business logic
// exists.
package mock

import (
	"context"
	"strings"

	"github.com/moamenhredeen/oasgate/internal/dispatcher"
	"github.com/moamenhredeen/oasgate/internal/generator"
	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/validator"
)

// NewRegistry returns a registry with a mock handler for each operation
func NewRegistry(doc *models.Document, gen *generator.Generator) *dispatcher.Registry {
	reg := dispatcher.NewRegistry()
	for _, op := range doc.Operations {
		reg.Register(op.ID, &Handler{op: op, gen: gen})
	}
	return reg
}

// Handler answers with the lowest declared 2xx response. The body is
// generated from that response's schema for the first JSON or XML type it
// declares; responses without content get an empty body.
type Handler struct {
	op  *models.OperationSpec
	gen *generator.Generator
}

func (h *Handler) Handle(ctx context.Context, req *validator.ValidatedRequest) (dispatcher.Result, error) {
	status := h.op.SuccessStatus()
	result := dispatcher.Result{Status: status}

	resp, _ := h.op.Response(status)
	if resp == nil {
		return result, nil
	}
	schema := pickSchema(resp)
	if schema == nil {
		return result, nil
	}

	body, err := h.gen.GenerateValue(schema, generator.Response)
	if err != nil {
		return dispatcher.Result{}, err
	}
	result.Body = body

	// a mocked create echoes what the client sent over generated fields
	if sent, ok := req.BodyObject(); ok {
		if generated, ok := body.(map[string]any); ok {
			merged := make(map[string]any, len(generated)+len(sent))
			for k, v := range generated {
				merged[k] = v
			}
			for k, v := range sent {
				if prop := schema.Property(k); prop != nil && !prop.WriteOnly {
					merged[k] = v
				}
			}
			result.Body = merged
		}
	}

	return result, nil
}

// pickSchema prefers the schema the dispatcher can encode for any client
func pickSchema(resp *models.ResponseSpec) *models.SchemaNode {
	for _, ct := range resp.ContentTypes() {
		if strings.Contains(ct, "json") || strings.Contains(ct, "xml") {
			return resp.Content[ct]
		}
	}
	return nil
}
