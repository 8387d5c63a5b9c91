// Package server is the HTTP front of the gateway. Each request goes through
// routing, the security gate, validation and dispatch, in that order, and
// only a request that passed every stage reaches its handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/moamenhredeen/oasgate/internal/dispatcher"
	"github.com/moamenhredeen/oasgate/internal/logging"
	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/router"
	"github.com/moamenhredeen/oasgate/internal/security"
	"github.com/moamenhredeen/oasgate/internal/validator"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-Id"

// Server implements http.Handler. All collaborators are shared read-only
// between requests.
type Server struct {
	table      *router.RouteTable
	gate       *security.Gate
	validator  *validator.Validator
	dispatcher *dispatcher.Dispatcher

	basePath  string
	timeout   time.Duration
	limiter   *rate.Limiter
	responses ResponseMode
	logger    *slog.Logger
}

// New assembles a server from already built components
func New(table *router.RouteTable, gate *security.Gate, v *validator.Validator, d *dispatcher.Dispatcher, opts ...Option) *Server {
	s := &Server{
		table:      table,
		gate:       gate,
		validator:  v,
		dispatcher: d,
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// request is the per-request state threaded through the stages
type request struct {
	id  string
	r   *http.Request
	w   http.ResponseWriter
	op  *models.OperationSpec
	log *slog.Logger
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)

	req := &request{id: id, r: r, w: w, log: s.logger.With("request_id", id)}
	status := s.serve(req)

	req.log.Debug("request served",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"duration", time.Since(start),
	)
}

// serve runs the stages and returns the status written, or 0 when nothing
// was written because the client went away
func (s *Server) serve(req *request) int {
	r := req.r

	if s.limiter != nil && !s.limiter.Allow() {
		req.w.Header().Set("Retry-After", "1")
		return s.fail(req, http.StatusTooManyRequests, CodeRateLimited, "request rate limit exceeded", nil)
	}

	path, ok := s.stripBasePath(r.URL.EscapedPath())
	if !ok {
		return s.fail(req, http.StatusNotFound, CodeNotFound, fmt.Sprintf("%s is outside %s", r.URL.Path, s.basePath), nil)
	}

	// route
	match, err := s.table.Match(r.Method, path)
	if err != nil {
		return s.routeError(req, err)
	}
	req.op = match.Operation
	req.log = req.log.With("operation_id", req.op.ID)

	body, err := s.readBody(r)
	if err != nil {
		return s.fail(req, http.StatusBadRequest, CodeValidation, "request body could not be read", nil)
	}
	rc := validator.NewRequestContext(r, req.id, req.op, match.PathParams, body)

	// authorize
	auth, err := s.gate.Authorize(r.Context(), rc, req.op)
	if err != nil {
		return s.fail(req, http.StatusInternalServerError, CodeInternal, "credentials could not be checked", err)
	}
	switch auth.Outcome {
	case security.Unauthorized:
		if auth.Challenge != "" {
			req.w.Header().Set("WWW-Authenticate", auth.Challenge)
		}
		return s.fail(req, http.StatusUnauthorized, CodeUnauthorized, "no security requirement of "+req.op.ID+" is satisfied", nil)
	case security.Forbidden:
		if auth.Challenge != "" {
			req.w.Header().Set("WWW-Authenticate", auth.Challenge)
		}
		return s.fail(req, http.StatusForbidden, CodeForbidden, "credentials lack the required scopes", nil)
	}

	// validate
	validated, err := s.validator.ValidateRequest(rc)
	if err != nil {
		var vErr *validator.ValidationError
		if errors.As(err, &vErr) {
			writeError(req.w, http.StatusBadRequest, ErrorBody{
				Error:      CodeValidation,
				Message:    fmt.Sprintf("request does not match %s", req.op.ID),
				RequestID:  req.id,
				Violations: vErr.Violations,
			})
			return http.StatusBadRequest
		}
		return s.fail(req, http.StatusInternalServerError, CodeInternal, "request could not be validated", err)
	}
	validated.Principal = auth.Principal
	validated.Scheme = auth.Scheme

	// dispatch
	return s.dispatch(req, validated, rc.Accept)
}

func (s *Server) dispatch(req *request, validated *validator.ValidatedRequest, accept string) int {
	ctx := req.r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.dispatcher.Dispatch(ctx, validated, accept)
	if err != nil {
		var negErr *dispatcher.NegotiationError
		switch {
		case req.r.Context().Err() != nil:
			req.log.Debug("client went away", "error", req.r.Context().Err())
			return 0
		case errors.Is(err, context.DeadlineExceeded):
			return s.fail(req, http.StatusGatewayTimeout, CodeTimeout, fmt.Sprintf("handler did not finish within %s", s.timeout), err)
		case errors.As(err, &negErr):
			writeError(req.w, http.StatusNotAcceptable, ErrorBody{
				Error:     CodeNotAcceptable,
				Message:   negErr.Error(),
				RequestID: req.id,
				Allowed:   negErr.Available,
			})
			return http.StatusNotAcceptable
		}
		return s.fail(req, http.StatusInternalServerError, CodeInternal, "request could not be dispatched", err)
	}

	if s.responses != ResponsesOff {
		if err := s.checkResponse(req.op, resp); err != nil {
			req.log.Warn("response does not match document", "status", resp.Status, "error", err)
			if s.responses == ResponsesEnforce {
				return s.fail(req, http.StatusInternalServerError, CodeResponseValidation, err.Error(), err)
			}
		}
	}

	if resp.Status >= http.StatusInternalServerError {
		req.log.Error("handler returned server error", "status", resp.Status)
	}

	h := req.w.Header()
	for k, values := range resp.Header {
		for _, v := range values {
			h.Add(k, v)
		}
	}
	req.w.WriteHeader(resp.Status)
	if req.r.Method != http.MethodHead && len(resp.Body) > 0 {
		if _, err := req.w.Write(resp.Body); err != nil {
			req.log.Debug("write response", "error", err)
		}
	}
	return resp.Status
}

func (s *Server) checkResponse(op *models.OperationSpec, resp *dispatcher.Response) error {
	if err := s.validator.ValidateResponse(resp.Status, resp.ContentType, resp.Body, op); err != nil {
		return err
	}
	return s.validator.ValidateResponseHeaders(resp.Status, resp.Header, op)
}

func (s *Server) routeError(req *request, err error) int {
	var routeErr *router.RouteError
	if errors.As(err, &routeErr) && errors.Is(err, router.ErrMethodNotAllowed) {
		req.w.Header().Set("Allow", strings.Join(routeErr.Allowed, ", "))
		writeError(req.w, http.StatusMethodNotAllowed, ErrorBody{
			Error:     CodeMethodNotAllowed,
			Message:   err.Error(),
			RequestID: req.id,
			Allowed:   routeErr.Allowed,
		})
		return http.StatusMethodNotAllowed
	}
	return s.fail(req, http.StatusNotFound, CodeNotFound, err.Error(), nil)
}

// fail writes an error body. Server errors are logged with their cause.
func (s *Server) fail(req *request, status int, code, message string, cause error) int {
	if status >= http.StatusInternalServerError {
		req.log.Error(message, "status", status, "error", cause)
	}
	writeError(req.w, status, ErrorBody{Error: code, Message: message, RequestID: req.id})
	return status
}

func (s *Server) stripBasePath(path string) (string, bool) {
	if s.basePath == "" {
		return path, true
	}
	rest, ok := strings.CutPrefix(path, s.basePath)
	if !ok {
		return "", false
	}
	if rest == "" {
		return "/", true
	}
	if !strings.HasPrefix(rest, "/") {
		return "", false
	}
	return rest, true
}

// readBody reads at most one byte past the validator's limit so an oversized
// body is still reported as such
func (s *Server) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, s.validator.MaxBodySize()+1))
}
