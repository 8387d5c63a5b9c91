// Package validator checks requests and responses against the operations of
// a loaded API document.
//
// Validation is total: every violation in a message is reported in one
// ValidationError. Only a body that cannot be parsed at all stops the pass
// early, since nothing below it can be checked.
package validator

import (
	"fmt"
	"mime"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/moamenhredeen/oasgate/internal/models"
)

// Validator is safe for concurrent use. Its only mutable state is the
// compiled pattern cache.
type Validator struct {
	unknownFields UnknownFieldPolicy
	maxBodySize   int64

	// patterns caches compiled schema patterns (string -> *regexp.Regexp)
	patterns sync.Map
}

// New creates a validator
func New(opts ...Option) *Validator {
	v := &Validator{maxBodySize: DefaultMaxBodySize}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// MaxBodySize is the configured body limit in bytes
func (v *Validator) MaxBodySize() int64 {
	return v.maxBodySize
}

// ValidateRequest deserializes and validates every declared parameter and
// the body of a request. On failure the error is a *ValidationError.
func (v *Validator) ValidateRequest(ctx *RequestContext) (*ValidatedRequest, error) {
	op := ctx.Operation
	if op == nil {
		return nil, fmt.Errorf("request %s has no matched operation", ctx.RequestID)
	}

	out := &ValidatedRequest{
		RequestID:   ctx.RequestID,
		Operation:   op,
		Path:        make(map[string]any),
		Query:       make(map[string]any),
		Header:      make(map[string]any),
		Cookie:      make(map[string]any),
		RawBody:     ctx.Body,
		ContentType: ctx.ContentType,
	}

	// the body is parsed first: a malformed body short-circuits
	body, unsupported, err := v.parseRequestBody(ctx, op)
	if err != nil {
		return nil, err
	}

	rep := &report{}
	if unsupported != nil {
		rep.add(*unsupported)
	}

	for _, p := range op.Parameters {
		raw, present := lookup(ctx, p)
		if !present {
			if p.Required {
				rep.missing(string(p.In), p.Name)
			}
			continue
		}
		w := &walker{v: v, in: string(p.In), dir: inbound, rep: rep}
		w.walk(raw, p.Schema, p.Name)

		switch p.In {
		case models.LocationPath:
			out.Path[p.Name] = raw
		case models.LocationQuery:
			out.Query[p.Name] = raw
		case models.LocationHeader:
			out.Header[p.Name] = raw
		case models.LocationCookie:
			out.Cookie[p.Name] = raw
		}
	}

	if body.present {
		out.Body = body.value
		out.ContentType = body.mediaType
		if body.walkable {
			w := &walker{v: v, in: "body", dir: inbound, rep: rep}
			w.walk(body.value, body.schema, "")
		}
	} else if unsupported == nil && op.RequestBody != nil && op.RequestBody.Required {
		rep.add(Violation{
			Kind:    MissingParameter,
			In:      "body",
			Name:    "body",
			Message: "request body is required",
		})
	}

	if err := rep.err(); err != nil {
		return nil, err
	}
	return out, nil
}

// lookup finds and deserializes a parameter in the request
func lookup(ctx *RequestContext, p *models.ParameterSpec) (any, bool) {
	switch p.In {
	case models.LocationPath:
		raw, ok := ctx.PathParams[p.Name]
		if !ok {
			return nil, false
		}
		return deserializePath(raw, p), true
	case models.LocationQuery:
		return deserializeQuery(ctx.Query, p)
	case models.LocationHeader:
		values := ctx.Header.Values(p.Name)
		if len(values) == 0 {
			return nil, false
		}
		return deserializeSimple(strings.Join(values, ","), p.Schema, p.Explode), true
	case models.LocationCookie:
		raw, ok := ctx.Cookie(p.Name)
		if !ok {
			return nil, false
		}
		return deserializeCookie(raw, p), true
	}
	return nil, false
}

// ValidateResponse checks a handler response against the operation's
// declared responses. Status lookup is exact code, then range, then default.
func (v *Validator) ValidateResponse(status int, contentType string, body []byte, op *models.OperationSpec) error {
	rep := &report{}

	resp, key := op.Response(status)
	if resp == nil {
		rep.add(Violation{
			Kind:     UndeclaredStatus,
			In:       "response",
			Name:     "status",
			Actual:   fmt.Sprint(status),
			Expected: strings.Join(op.ResponseKeys(), ", "),
			Message:  fmt.Sprintf("status %d is not declared for %s", status, op.ID),
		})
		return rep.err()
	}

	if len(resp.Content) == 0 || len(body) == 0 {
		return nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	_, schema, ok := matchContent(resp.Content, mediaType)
	if !ok {
		rep.add(Violation{
			Kind:     UnsupportedMediaType,
			In:       "response",
			Name:     "Content-Type",
			Actual:   contentType,
			Expected: strings.Join(resp.ContentTypes(), ", "),
			Message:  fmt.Sprintf("content type %q is not declared for response %s", contentType, key),
		})
		return rep.err()
	}

	value, parsed, err := decodeBody(contentType, body, schema)
	if err != nil {
		rep.add(Violation{Kind: MalformedBody, In: "response", Name: "body", Message: err.Error()})
		return rep.err()
	}
	if parsed {
		w := &walker{v: v, in: "response", dir: outbound, rep: rep}
		w.walk(value, schema, "")
	}
	return rep.err()
}

// ValidateResponseHeaders checks that every required response header
// declared for the status is present and well typed
func (v *Validator) ValidateResponseHeaders(status int, header http.Header, op *models.OperationSpec) error {
	rep := &report{}
	resp, _ := op.Response(status)
	if resp == nil {
		return nil
	}
	names := make([]string, 0, len(resp.Headers))
	for name := range resp.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		h := resp.Headers[name]
		values := header.Values(name)
		if len(values) == 0 {
			if h.Required {
				rep.missing("header", name)
			}
			continue
		}
		w := &walker{v: v, in: "header", dir: outbound, rep: rep}
		w.walk(deserializeSimple(strings.Join(values, ","), h.Schema, false), h.Schema, name)
	}
	return rep.err()
}
