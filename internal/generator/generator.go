// Package generator produces sample values that satisfy a schema. It backs
// the mock handlers and the contract tester's request bodies.
package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"mime/multipart"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moamenhredeen/oasgate/internal/models"
)

// DefaultMaxDepth bounds nesting so recursive schemas terminate
const DefaultMaxDepth = 5

// Direction decides which of readOnly and writeOnly properties are produced
type Direction int

const (
	// Request values omit readOnly properties
	Request Direction = iota
	// Response values omit writeOnly properties
	Response
)

// Generator generates test data from schema nodes. It is safe for
// concurrent use.
type Generator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	maxDepth int
	now      func() time.Time
}

// Option configures a Generator
type Option func(*Generator)

// WithSeed makes generated values reproducible
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewSource(seed))
	}
}

// WithMaxDepth overrides DefaultMaxDepth
func WithMaxDepth(depth int) Option {
	return func(g *Generator) {
		if depth > 0 {
			g.maxDepth = depth
		}
	}
}

// NewGenerator creates a new generator instance
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		maxDepth: DefaultMaxDepth,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateValue generates a value for a schema.
//
// The first of example, default, enum, format and type that the schema
// carries decides the value. Objects and arrays deeper than the depth limit
// are generated empty.
func (g *Generator) GenerateValue(schema *models.SchemaNode, dir Direction) (any, error) {
	if schema == nil {
		return nil, fmt.Errorf("schema is nil")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value(schema, dir, 0), nil
}

func (g *Generator) value(s *models.SchemaNode, dir Direction, depth int) any {
	// document values are shared by every request; callers get copies
	if s.Example != nil {
		return clone(s.Example)
	}
	if s.Default != nil {
		return clone(s.Default)
	}
	if len(s.Enum) > 0 {
		return clone(s.Enum[0])
	}

	if len(s.AllOf) > 0 {
		return g.allOf(s, dir, depth)
	}
	if len(s.OneOf) > 0 {
		return g.value(s.OneOf[0], dir, depth)
	}
	if len(s.AnyOf) > 0 {
		return g.value(s.AnyOf[0], dir, depth)
	}

	switch s.Kind {
	case models.KindString:
		return g.generateString(s)
	case models.KindInteger:
		return g.generateInteger(s)
	case models.KindNumber:
		return g.generateNumber(s)
	case models.KindBoolean:
		return true
	case models.KindArray:
		return g.generateArray(s, dir, depth)
	case models.KindObject:
		return g.generateObject(s, dir, depth)
	}

	if s.Format != "" {
		return g.generateFromFormat(s.Format)
	}
	if len(s.Properties) > 0 {
		return g.generateObject(s, dir, depth)
	}
	return "test-value"
}

// allOf merges the objects generated for every branch
func (g *Generator) allOf(s *models.SchemaNode, dir Direction, depth int) any {
	merged := make(map[string]any)
	if len(s.Properties) > 0 {
		for k, v := range g.generateObject(s, dir, depth) {
			merged[k] = v
		}
	}
	for _, sub := range s.AllOf {
		v := g.value(sub, dir, depth)
		obj, ok := v.(map[string]any)
		if !ok {
			// a non-object allOf is a constrained scalar
			return v
		}
		for k, val := range obj {
			merged[k] = val
		}
	}
	return merged
}

// generateString generates a string value based on schema constraints
func (g *Generator) generateString(s *models.SchemaNode) string {
	if s.Format != "" {
		if str, ok := g.generateFromFormat(s.Format).(string); ok {
			return str
		}
	}

	if s.Pattern != "" {
		// patterns are not inverted; most identifier-like patterns accept this
		return "test-string"
	}

	minLength := 0
	maxLength := 10
	if s.MinLength != nil {
		minLength = *s.MinLength
	}
	if s.MaxLength != nil {
		maxLength = *s.MaxLength
	}
	if maxLength < minLength {
		maxLength = minLength
	}

	length := minLength
	if maxLength > minLength {
		length = minLength + g.rng.Intn(maxLength-minLength+1)
	}
	if length == 0 && maxLength > 0 {
		length = min(5, maxLength)
	}

	return strings.Repeat("a", length)
}

func (g *Generator) bounds(s *models.SchemaNode, lo, hi float64) (float64, float64) {
	if s.Minimum != nil {
		lo = *s.Minimum
		if hi < lo {
			hi = lo + 100
		}
	}
	if s.Maximum != nil {
		hi = *s.Maximum
		if lo > hi {
			lo = hi - 100
		}
	}
	return lo, hi
}

// generateInteger generates an integer within bounds, honouring exclusive
// limits, multipleOf and the int32 range
func (g *Generator) generateInteger(s *models.SchemaNode) int64 {
	lo, hi := g.bounds(s, 0, 100)
	if s.Format == "int32" {
		lo = math.Max(lo, math.MinInt32)
		hi = math.Min(hi, math.MaxInt32)
	}

	low, high := int64(math.Ceil(lo)), int64(math.Floor(hi))
	if s.ExclusiveMinimum && float64(low) == lo {
		low++
	}
	if s.ExclusiveMaximum && float64(high) == hi {
		high--
	}
	if high < low {
		high = low
	}

	value := low + g.rng.Int63n(high-low+1)

	if s.MultipleOf != nil && *s.MultipleOf >= 1 {
		step := int64(*s.MultipleOf)
		if m := value - value%step; m >= low {
			value = m
		} else {
			value = m + step
		}
	}
	return value
}

// generateNumber generates a number value based on schema constraints
func (g *Generator) generateNumber(s *models.SchemaNode) float64 {
	lo, hi := g.bounds(s, 0, 100)

	value := lo + g.rng.Float64()*(hi-lo)
	if s.ExclusiveMinimum && value == lo {
		value = (lo + hi) / 2
	}
	if s.ExclusiveMaximum && value == hi {
		value = (lo + hi) / 2
	}

	if s.MultipleOf != nil && *s.MultipleOf > 0 {
		step := *s.MultipleOf
		value = math.Ceil(value/step) * step
		if value > hi || (s.ExclusiveMaximum && value == hi) {
			value -= step
		}
	}
	return value
}

// generateArray generates an array value
func (g *Generator) generateArray(s *models.SchemaNode, dir Direction, depth int) []any {
	if depth >= g.maxDepth {
		return []any{}
	}

	minItems := 0
	maxItems := 3
	if s.MinItems != nil {
		minItems = *s.MinItems
	}
	if s.MaxItems != nil {
		maxItems = *s.MaxItems
	}
	if maxItems < minItems {
		maxItems = minItems
	}

	count := minItems
	if maxItems > minItems {
		count = minItems + g.rng.Intn(maxItems-minItems+1)
	}
	if count == 0 && maxItems > 0 {
		count = 1
	}

	result := make([]any, 0, count)
	for i := 0; i < count; i++ {
		if s.Items == nil {
			result = append(result, fmt.Sprintf("item%d", i+1))
			continue
		}
		v := g.value(s.Items, dir, depth+1)
		if s.UniqueItems && contains(result, v) {
			// constant values cannot be made unique; stop short
			break
		}
		result = append(result, v)
	}

	return result
}

// generateObject generates every declared property in document order,
// skipping the ones that do not travel in this direction
func (g *Generator) generateObject(s *models.SchemaNode, dir Direction, depth int) map[string]any {
	result := make(map[string]any)
	if depth >= g.maxDepth {
		return result
	}

	names := s.PropertyOrder
	if len(names) == 0 {
		for name := range s.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	for _, name := range names {
		prop := s.Properties[name]
		if prop == nil {
			continue
		}
		if (dir == Request && prop.ReadOnly) || (dir == Response && prop.WriteOnly) {
			continue
		}
		if prop.IsBinary() {
			// files travel as multipart parts, not object members
			result[name] = "binary-content"
			continue
		}
		result[name] = g.value(prop, dir, depth+1)
	}

	if len(s.Properties) == 0 && s.AdditionalProperties != nil {
		result["additionalProp1"] = g.value(s.AdditionalProperties, dir, depth+1)
	}

	return result
}

// generateFromFormat generates a value based on format
func (g *Generator) generateFromFormat(format string) any {
	switch format {
	case "date":
		return g.now().UTC().Format("2006-01-02")
	case "date-time":
		return g.now().UTC().Format(time.RFC3339)
	case "email":
		return "test@example.com"
	case "uri":
		return "https://example.com"
	case "uuid":
		return uuid.NewString()
	case "ipv4":
		return "192.0.2.1"
	case "ipv6":
		return "2001:db8::1"
	case "byte":
		return "dGVzdA=="
	case "binary":
		return "binary-content"
	case "int32":
		return g.rng.Int31n(math.MaxInt16)
	case "int64":
		return g.rng.Int63n(math.MaxInt32)
	case "float", "double":
		return g.rng.Float64() * 100
	default:
		return "test-value"
	}
}

// GenerateParameter renders a parameter value the way its style serializes
// it on the wire. Exploded arrays come back as several values.
func (g *Generator) GenerateParameter(param *models.ParameterSpec) ([]string, error) {
	if param == nil {
		return nil, fmt.Errorf("parameter is nil")
	}
	if param.Schema == nil {
		return []string{"test"}, nil
	}

	v, err := g.GenerateValue(param.Schema, Request)
	if err != nil {
		return nil, err
	}

	switch val := v.(type) {
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = scalar(item)
		}
		if param.Explode && param.In == models.LocationQuery && param.Style == "form" {
			return items, nil
		}
		sep := ","
		switch param.Style {
		case "spaceDelimited":
			sep = " "
		case "pipeDelimited":
			sep = "|"
		}
		return []string{strings.Join(items, sep)}, nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys)*2)
		for _, k := range keys {
			if param.Explode {
				pairs = append(pairs, k+"="+scalar(val[k]))
			} else {
				pairs = append(pairs, k, scalar(val[k]))
			}
		}
		return []string{strings.Join(pairs, ",")}, nil
	}
	return []string{scalar(v)}, nil
}

// GenerateRequestBody generates a request body, preferring JSON and then
// form encodings over anything else
func (g *Generator) GenerateRequestBody(body *models.RequestBodySpec) ([]byte, string, error) {
	if body == nil {
		return nil, "", fmt.Errorf("request body is nil")
	}
	if len(body.Content) == 0 {
		return nil, "", fmt.Errorf("no content defined in request body")
	}

	contentType := pickContentType(body.ContentTypes())
	schema := body.Content[contentType]
	if schema == nil {
		return []byte("test"), contentType, nil
	}

	v, err := g.GenerateValue(schema, Request)
	if err != nil {
		return nil, "", err
	}

	switch {
	case strings.Contains(contentType, "json"):
		data, err := json.Marshal(v)
		return data, contentType, err
	case contentType == "application/x-www-form-urlencoded":
		return []byte(formEncode(v)), contentType, nil
	case contentType == "multipart/form-data":
		return multipartEncode(v, schema)
	}
	return []byte(scalar(v)), contentType, nil
}

// multipartEncode writes one part per property; binary properties become
// file parts
func multipartEncode(v any, schema *models.SchemaNode) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	obj, _ := v.(map[string]any)
	names := make([]string, 0, len(obj))
	for k := range obj {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		if schema.Property(name).IsBinary() {
			part, err := w.CreateFormFile(name, name+".bin")
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write([]byte(scalar(obj[name]))); err != nil {
				return nil, "", err
			}
			continue
		}
		if err := w.WriteField(name, scalar(obj[name])); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// clone deep-copies the maps and slices of a decoded document value
func clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = clone(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = clone(item)
		}
		return out
	}
	return v
}

func pickContentType(types []string) string {
	for _, t := range types {
		if strings.Contains(t, "json") {
			return t
		}
	}
	for _, t := range types {
		if t == "application/x-www-form-urlencoded" {
			return t
		}
	}
	return types[0]
}

func formEncode(v any) string {
	obj, ok := v.(map[string]any)
	if !ok {
		return scalar(v)
	}
	form := url.Values{}
	for k, val := range obj {
		if items, ok := val.([]any); ok {
			for _, item := range items {
				form.Add(k, scalar(item))
			}
			continue
		}
		form.Set(k, scalar(val))
	}
	return form.Encode()
}

func scalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case map[string]any, []any:
		data, _ := json.Marshal(val)
		return string(data)
	}
	return fmt.Sprint(v)
}

func contains(values []any, v any) bool {
	needle, _ := json.Marshal(v)
	for _, existing := range values {
		if data, _ := json.Marshal(existing); string(data) == string(needle) {
			return true
		}
	}
	return false
}
