package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/validator"
)

// Handler runs the business logic of one operation. It may block on I/O and
// must honour ctx cancellation.
type Handler interface {
	Handle(ctx context.Context, req *validator.ValidatedRequest) (Result, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, req *validator.ValidatedRequest) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, req *validator.ValidatedRequest) (Result, error) {
	return f(ctx, req)
}

// HandlerRegistry binds operation ids to handlers
type HandlerRegistry interface {
	Resolve(operationID string) (Handler, bool)
}

// Result is a successful handler outcome.
//
// A zero Status means the lowest declared 2xx status. A nil Body produces an
// empty response. When ContentType is empty it is negotiated from the
// request's Accept header against the declared content types.
type Result struct {
	Status      int
	Body        any
	Header      http.Header
	ContentType string
}

// HandlerError is a business error returned by a handler. It is passed to
// the client using the declared response for Status; a zero Status uses the
// operation's default response with status 500.
type HandlerError struct {
	Status int
	Body   any
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler error: status %d", e.Status)
}

// ErrNoHandler means the registry has no binding for an operation
var ErrNoHandler = errors.New("no handler bound")

// DispatchError is a server-side failure to produce a response: a missing
// binding, a handler failure other than HandlerError, or a body that cannot
// be serialized
type DispatchError struct {
	OperationID string
	Err         error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.OperationID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Registry is a map backed HandlerRegistry. Bind everything before serving;
// it is not safe for concurrent registration.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to an operation id, replacing any previous one
func (r *Registry) Register(operationID string, h Handler) {
	r.handlers[operationID] = h
}

// RegisterFunc binds a function to an operation id
func (r *Registry) RegisterFunc(operationID string, f func(ctx context.Context, req *validator.ValidatedRequest) (Result, error)) {
	r.Register(operationID, HandlerFunc(f))
}

func (r *Registry) Resolve(operationID string) (Handler, bool) {
	h, ok := r.handlers[operationID]
	return h, ok
}

// Verify returns an error listing every operation without a handler
func (r *Registry) Verify(ops []*models.OperationSpec) error {
	return Verify(r, ops)
}

// Verify checks any registry for unbound operations
func Verify(registry HandlerRegistry, ops []*models.OperationSpec) error {
	var missing []string
	for _, op := range ops {
		if _, ok := registry.Resolve(op.ID); !ok {
			missing = append(missing, op.ID)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w for %d operation(s): %s", ErrNoHandler, len(missing), strings.Join(missing, ", "))
}
