// Package dispatcher invokes the handler bound to an operation and turns its
// outcome into a response in a content type the client accepts.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/moamenhredeen/oasgate/internal/logging"
	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/validator"
)

// Response is a fully encoded handler outcome ready to be written
type Response struct {
	Status      int
	Header      http.Header
	Body        []byte
	ContentType string
}

// Dispatcher resolves handlers from a registry. It holds no per-request state.
type Dispatcher struct {
	registry HandlerRegistry
	logger   *slog.Logger
}

// New creates a dispatcher. A nil logger discards output.
func New(registry HandlerRegistry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch runs the handler for req.Operation.
//
// The Accept header is checked against the success response before the
// handler runs. A HandlerError becomes a response using the declared
// response for its status. When ctx is done by the time the handler
// returns, ctx.Err() is returned and nothing should be written. Any other failure is a
// *DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, req *validator.ValidatedRequest, accept string) (*Response, error) {
	op := req.Operation

	h, ok := d.registry.Resolve(op.ID)
	if !ok {
		return nil, &DispatchError{OperationID: op.ID, Err: ErrNoHandler}
	}

	// a 406 means the request was not processed, so it is decided up front
	if err := acceptable(op, accept); err != nil {
		return nil, err
	}

	result, err := h.Handle(ctx, req)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if err != nil {
		var handlerErr *HandlerError
		if errors.As(err, &handlerErr) {
			return d.handlerError(req, handlerErr, accept)
		}
		d.logger.Error("handler failed",
			"operation_id", op.ID,
			"request_id", req.RequestID,
			"error", err,
		)
		return nil, &DispatchError{OperationID: op.ID, Err: err}
	}

	status := result.Status
	if status == 0 {
		status = op.SuccessStatus()
	}

	resp, err := d.encode(req, status, result.Body, result.ContentType, accept)
	if err != nil {
		return nil, err
	}
	for k, values := range result.Header {
		for _, v := range values {
			resp.Header.Add(k, v)
		}
	}
	return resp, nil
}

func (d *Dispatcher) handlerError(req *validator.ValidatedRequest, e *HandlerError, accept string) (*Response, error) {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	d.logger.Debug("handler returned business error",
		"operation_id", req.Operation.ID,
		"request_id", req.RequestID,
		"status", status,
	)

	resp, err := d.encode(req, status, e.Body, "", accept)
	var negErr *NegotiationError
	if errors.As(err, &negErr) {
		// the client still learns the status; fall back to JSON
		return d.encode(req, status, e.Body, "application/json", "")
	}
	return resp, err
}

// encode picks the content type for status and serializes body with it
func (d *Dispatcher) encode(req *validator.ValidatedRequest, status int, body any, contentType, accept string) (*Response, error) {
	op := req.Operation
	resp := &Response{Status: status, Header: make(http.Header)}

	if body == nil {
		return resp, nil
	}

	declared, _ := op.Response(status)

	if contentType == "" {
		available := []string{"application/json"}
		if declared != nil && len(declared.Content) > 0 {
			available = preferJSON(declared.ContentTypes())
		}
		chosen, err := Negotiate(accept, available)
		if err != nil {
			return nil, err
		}
		contentType = chosen
	}

	schema := lookupSchema(declared, contentType)

	data, err := Encode(body, contentType, schema)
	if err != nil {
		return nil, &DispatchError{OperationID: op.ID, Err: err}
	}

	resp.Body = data
	resp.ContentType = contentType
	resp.Header.Set("Content-Type", contentType)
	return resp, nil
}

// acceptable checks accept against the content of the success response
func acceptable(op *models.OperationSpec, accept string) error {
	declared, _ := op.Response(op.SuccessStatus())
	if declared == nil || len(declared.Content) == 0 {
		return nil
	}
	_, err := Negotiate(accept, preferJSON(declared.ContentTypes()))
	return err
}

// preferJSON moves JSON types to the front so they win ties under */*
func preferJSON(types []string) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		if validator.IsJSON(baseType(t)) {
			out = append(out, t)
		}
	}
	for _, t := range types {
		if !validator.IsJSON(baseType(t)) {
			out = append(out, t)
		}
	}
	return out
}

func lookupSchema(declared *models.ResponseSpec, contentType string) *models.SchemaNode {
	if declared == nil {
		return nil
	}
	if s, ok := declared.Content[contentType]; ok {
		return s
	}
	base := baseType(contentType)
	typ, _, _ := strings.Cut(base, "/")
	var wildcard *models.SchemaNode
	for key, s := range declared.Content {
		k := baseType(key)
		switch k {
		case base:
			return s
		case typ + "/*", "*/*":
			wildcard = s
		}
	}
	return wildcard
}

func baseType(mediaType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(mediaType, ";")[0]))
}
