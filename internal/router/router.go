// Package router matches request method and path to a single operation.
//
// Path templates are stored in a segment trie. At each depth a literal child is
// tried before the parameter child, so "/pet/findByStatus" always wins over
// "/pet/{petId}" for the path "/pet/findByStatus". When the literal branch
// cannot complete the path, matching backtracks into the parameter branch.
package router

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/moamenhredeen/oasgate/internal/models"
)

// Sentinel errors for errors.Is checks
var (
	ErrNotFound         = errors.New("no operation matches path")
	ErrMethodNotAllowed = errors.New("method not allowed for path")
)

// RouteError is returned by Match when no operation can serve the request
type RouteError struct {
	Method string
	Path   string

	// Allowed lists the methods the matched template does support.
	// It is only set for ErrMethodNotAllowed.
	Allowed []string

	Err error
}

func (e *RouteError) Error() string {
	if errors.Is(e.Err, ErrMethodNotAllowed) {
		return fmt.Sprintf("%s %s: %v (allowed: %s)", e.Method, e.Path, e.Err, strings.Join(e.Allowed, ", "))
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

// Match is a resolved route
type Match struct {
	Operation *models.OperationSpec

	// PathParams holds the percent-decoded captured values keyed by the
	// operation's own placeholder names
	PathParams map[string]string
}

type node struct {
	literals map[string]*node
	param    *node

	// operations terminating at this node, keyed by method
	operations map[string]*models.OperationSpec

	// placeholder names of each operation, in path order
	params map[string][]string
}

func newNode() *node {
	return &node{literals: make(map[string]*node)}
}

// RouteTable owns every operation. It is built once and is safe for
// concurrent reads.
type RouteTable struct {
	root       *node
	operations []*models.OperationSpec
}

// New builds a route table. Two operations with the same method and the same
// template shape (placeholder names aside) are rejected.
func New(operations []*models.OperationSpec) (*RouteTable, error) {
	table := &RouteTable{root: newNode()}

	for _, op := range operations {
		if err := table.insert(op); err != nil {
			return nil, err
		}
	}

	table.operations = append(table.operations, operations...)
	sort.SliceStable(table.operations, func(i, j int) bool {
		a, b := table.operations[i], table.operations[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Method < b.Method
	})

	return table, nil
}

func (t *RouteTable) insert(op *models.OperationSpec) error {
	segments := op.Segments
	if segments == nil {
		var err error
		segments, err = models.ParseTemplate(op.Path)
		if err != nil {
			return fmt.Errorf("operation %s: %w", op.ID, err)
		}
	}

	n := t.root
	var names []string
	for _, seg := range segments {
		if seg.IsParam() {
			names = append(names, seg.Param)
			if n.param == nil {
				n.param = newNode()
			}
			n = n.param
			continue
		}
		child, ok := n.literals[seg.Literal]
		if !ok {
			child = newNode()
			n.literals[seg.Literal] = child
		}
		n = child
	}

	method := strings.ToUpper(op.Method)
	if n.operations == nil {
		n.operations = make(map[string]*models.OperationSpec)
		n.params = make(map[string][]string)
	}
	if existing, dup := n.operations[method]; dup {
		return fmt.Errorf("operations %s and %s both route %s %s", existing.ID, op.ID, method, op.Path)
	}
	n.operations[method] = op
	n.params[method] = names
	return nil
}

// Routes returns every operation ordered by path then method
func (t *RouteTable) Routes() []*models.OperationSpec {
	return t.operations
}

// Match resolves a request to one operation.
//
// The path is the escaped request path with any base path already removed.
// Path parameter values are percent-decoded after splitting, so an encoded
// slash stays inside its segment.
func (t *RouteTable) Match(method, path string) (*Match, error) {
	method = strings.ToUpper(method)

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	captured := make([]string, 0, len(segments))

	n, captured := t.root.find(segments, captured)
	if n == nil {
		return nil, &RouteError{Method: method, Path: path, Err: ErrNotFound}
	}

	key := method
	op, ok := n.operations[key]
	if !ok && method == http.MethodHead {
		key = http.MethodGet
		op, ok = n.operations[key]
	}
	if !ok {
		return nil, &RouteError{Method: method, Path: path, Allowed: n.allowed(), Err: ErrMethodNotAllowed}
	}

	names := n.params[key]
	params := make(map[string]string, len(names))
	for i, name := range names {
		value, err := url.PathUnescape(captured[i])
		if err != nil {
			value = captured[i]
		}
		params[name] = value
	}

	return &Match{Operation: op, PathParams: params}, nil
}

// find walks the trie depth first, literal before parameter, and returns the
// first node that terminates at least one operation
func (n *node) find(segments []string, captured []string) (*node, []string) {
	if len(segments) == 0 {
		if len(n.operations) > 0 {
			return n, captured
		}
		return nil, captured
	}

	head, rest := segments[0], segments[1:]

	if child, ok := n.literals[head]; ok {
		if found, c := child.find(rest, captured); found != nil {
			return found, c
		}
	}

	if n.param != nil && head != "" {
		if found, c := n.param.find(rest, append(captured, head)); found != nil {
			return found, c
		}
	}

	return nil, captured
}

func (n *node) allowed() []string {
	methods := make([]string, 0, len(n.operations)+1)
	for m := range n.operations {
		methods = append(methods, m)
	}
	if _, hasGet := n.operations[http.MethodGet]; hasGet {
		if _, hasHead := n.operations[http.MethodHead]; !hasHead {
			methods = append(methods, http.MethodHead)
		}
	}
	sort.Strings(methods)
	return methods
}
