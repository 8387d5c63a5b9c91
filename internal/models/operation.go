package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Location is where a parameter is carried in an HTTP request
type Location string

const (
	LocationPath   Location = "path"
	LocationQuery  Location = "query"
	LocationHeader Location = "header"
	LocationCookie Location = "cookie"
)

// Segment is one slash-separated piece of a path template.
// Exactly one of Literal or Param is set.
type Segment struct {
	Literal string
	Param   string
}

// IsParam reports whether the segment is a {param} placeholder
func (s Segment) IsParam() bool {
	return s.Param != ""
}

// ParseTemplate splits a path template like "/pet/{petId}/uploadImage" into segments.
// A segment must be either fully literal or a single {name} placeholder.
func ParseTemplate(template string) ([]Segment, error) {
	if !strings.HasPrefix(template, "/") {
		return nil, fmt.Errorf("path template %q must start with /", template)
	}

	raw := strings.Split(strings.TrimPrefix(template, "/"), "/")
	segments := make([]Segment, 0, len(raw))
	seen := make(map[string]bool)

	for _, part := range raw {
		open := strings.IndexByte(part, '{')
		end := strings.IndexByte(part, '}')
		if open == -1 && end == -1 {
			segments = append(segments, Segment{Literal: part})
			continue
		}
		if open != 0 || end != len(part)-1 || strings.Count(part, "{") != 1 {
			return nil, fmt.Errorf("path template %q: segment %q mixes literal text and parameters", template, part)
		}
		name := part[1 : len(part)-1]
		if name == "" {
			return nil, fmt.Errorf("path template %q: empty parameter name", template)
		}
		if seen[name] {
			return nil, fmt.Errorf("path template %q: duplicate parameter %q", template, name)
		}
		seen[name] = true
		segments = append(segments, Segment{Param: name})
	}

	return segments, nil
}

// OperationSpec is one method+path endpoint of the API document.
// It is immutable once the document is loaded.
type OperationSpec struct {
	ID       string
	Method   string
	Path     string
	Segments []Segment
	Summary  string
	Tags     []string

	Parameters  []*ParameterSpec
	RequestBody *RequestBodySpec

	// Responses is keyed by "200", "2XX" or "default"
	Responses map[string]*ResponseSpec

	// Security holds alternative requirement sets (OR across, AND within).
	// An empty slice means the operation is public.
	Security []SecurityRequirement
}

// String returns "METHOD /path"
func (o *OperationSpec) String() string {
	return o.Method + " " + o.Path
}

// PathParamNames returns the template parameter names in order of appearance
func (o *OperationSpec) PathParamNames() []string {
	var names []string
	for _, s := range o.Segments {
		if s.IsParam() {
			names = append(names, s.Param)
		}
	}
	return names
}

// Parameter looks up a declared parameter by location and name.
// Header names are compared case-insensitively.
func (o *OperationSpec) Parameter(in Location, name string) *ParameterSpec {
	for _, p := range o.Parameters {
		if p.In != in {
			continue
		}
		if p.Name == name || (in == LocationHeader && strings.EqualFold(p.Name, name)) {
			return p
		}
	}
	return nil
}

// ParametersIn returns every parameter declared for a location
func (o *OperationSpec) ParametersIn(in Location) []*ParameterSpec {
	var params []*ParameterSpec
	for _, p := range o.Parameters {
		if p.In == in {
			params = append(params, p)
		}
	}
	return params
}

// Response finds the response declaration for a status code.
// Lookup order is exact code, then range ("4XX"), then "default".
// The returned key is the one that matched, or "" when nothing did.
func (o *OperationSpec) Response(status int) (*ResponseSpec, string) {
	exact := fmt.Sprintf("%d", status)
	if r, ok := o.Responses[exact]; ok {
		return r, exact
	}
	for _, key := range []string{fmt.Sprintf("%dXX", status/100), fmt.Sprintf("%dxx", status/100)} {
		if r, ok := o.Responses[key]; ok {
			return r, key
		}
	}
	if r, ok := o.Responses["default"]; ok {
		return r, "default"
	}
	return nil, ""
}

// SuccessStatus returns the lowest declared 2xx status, or 200 when none is declared
func (o *OperationSpec) SuccessStatus() int {
	best := 0
	for key := range o.Responses {
		code, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		if code >= 200 && code < 300 && (best == 0 || code < best) {
			best = code
		}
	}
	if best == 0 {
		return 200
	}
	return best
}

// ResponseKeys returns the declared response keys sorted
func (o *OperationSpec) ResponseKeys() []string {
	keys := make([]string, 0, len(o.Responses))
	for k := range o.Responses {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParameterSpec describes a single declared parameter
type ParameterSpec struct {
	Name     string
	In       Location
	Required bool
	Schema   *SchemaNode

	// Style defaults to "simple" for path/header and "form" for query/cookie
	Style   string
	Explode bool
}

// RequestBodySpec describes the accepted request payloads
type RequestBodySpec struct {
	Required bool

	// Content maps a media type (possibly with wildcards) to its schema.
	// A nil schema accepts any payload of that media type.
	Content map[string]*SchemaNode
}

// ContentTypes returns the declared media types sorted
func (b *RequestBodySpec) ContentTypes() []string {
	return sortedKeys(b.Content)
}

// ResponseSpec describes one declared response
type ResponseSpec struct {
	Description string
	Content     map[string]*SchemaNode
	Headers     map[string]*HeaderSpec
}

// ContentTypes returns the declared media types sorted
func (r *ResponseSpec) ContentTypes() []string {
	return sortedKeys(r.Content)
}

// HeaderSpec describes a declared response header
type HeaderSpec struct {
	Required bool
	Schema   *SchemaNode
}

func sortedKeys(m map[string]*SchemaNode) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
