package validator

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"net/netip"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/moamenhredeen/oasgate/internal/models"
)

type direction int

const (
	inbound direction = iota
	outbound
)

// walker checks one value tree against a schema graph and records every
// violation it finds. Recursion follows the data, so recursive schemas
// terminate.
type walker struct {
	v   *Validator
	in  string
	dir direction
	rep *report
}

func (w *walker) child() *walker {
	return &walker{v: w.v, in: w.in, dir: w.dir, rep: &report{}}
}

func fieldName(path string) string {
	if path == "" {
		return "body"
	}
	return path
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func (w *walker) walk(value any, s *models.SchemaNode, path string) {
	w.node(value, s, path, false)
}

// node validates value against s. composed is set while checking an allOf
// branch, where unknown-field detection belongs to the parent.
func (w *walker) node(value any, s *models.SchemaNode, path string, composed bool) {
	if s == nil {
		return
	}

	if value == nil {
		if s.Nullable || (s.Kind == models.KindAny && len(s.Enum) == 0) {
			return
		}
		w.mismatch(path, s, value)
		return
	}

	if !w.typeMatches(value, s) {
		w.mismatch(path, s, value)
		return
	}

	switch val := value.(type) {
	case string:
		w.str(val, s, path)
	case []any:
		w.array(val, s, path)
	case map[string]any:
		w.object(val, s, path, composed)
	case bool, *UploadedFile:
	default:
		if f, ok := toFloat(value); ok {
			w.number(f, s, path)
		}
	}

	if len(s.Enum) > 0 && !inEnum(value, s.Enum) {
		w.rep.add(Violation{
			Kind:    EnumViolation,
			In:      w.in,
			Name:    fieldName(path),
			Allowed: s.Enum,
			Actual:  fmt.Sprint(value),
			Message: fmt.Sprintf("value %v is not one of %v", value, s.Enum),
		})
	}

	w.composition(value, s, path)
}

func (w *walker) mismatch(path string, s *models.SchemaNode, value any) {
	expected := s.Kind.String()
	if s.Format != "" {
		expected += " (" + s.Format + ")"
	}
	actual := dataType(value)
	w.rep.add(Violation{
		Kind:     TypeMismatch,
		In:       w.in,
		Name:     fieldName(path),
		Expected: expected,
		Actual:   actual,
		Message:  fmt.Sprintf("expected %s, got %s", expected, actual),
	})
}

func (w *walker) typeMatches(value any, s *models.SchemaNode) bool {
	switch s.Kind {
	case models.KindAny:
		return true
	case models.KindString:
		if _, ok := value.(*UploadedFile); ok {
			return s.IsBinary()
		}
		_, ok := value.(string)
		return ok
	case models.KindBoolean:
		_, ok := value.(bool)
		return ok
	case models.KindInteger:
		return isInteger(value)
	case models.KindNumber:
		_, ok := toFloat(value)
		return ok
	case models.KindArray:
		_, ok := value.([]any)
		return ok
	case models.KindObject:
		_, ok := value.(map[string]any)
		return ok
	}
	return false
}

func (w *walker) constraint(path, format string, args ...any) {
	w.rep.add(Violation{
		Kind:    ConstraintViolation,
		In:      w.in,
		Name:    fieldName(path),
		Message: fmt.Sprintf(format, args...),
	})
}

func (w *walker) str(s string, schema *models.SchemaNode, path string) {
	n := utf8.RuneCountInString(s)
	if schema.MinLength != nil && n < *schema.MinLength {
		w.constraint(path, "length %d is less than minimum %d", n, *schema.MinLength)
	}
	if schema.MaxLength != nil && n > *schema.MaxLength {
		w.constraint(path, "length %d exceeds maximum %d", n, *schema.MaxLength)
	}
	if schema.Pattern != "" {
		re, err := w.v.pattern(schema.Pattern)
		if err != nil {
			w.constraint(path, "pattern %q cannot be compiled: %v", schema.Pattern, err)
		} else if !re.MatchString(s) {
			w.constraint(path, "value does not match pattern %q", schema.Pattern)
		}
	}
	if schema.Format != "" && !validFormat(schema.Format, s) {
		w.rep.add(Violation{
			Kind:     TypeMismatch,
			In:       w.in,
			Name:     fieldName(path),
			Expected: "string (" + schema.Format + ")",
			Actual:   strconv.Quote(s),
			Message:  fmt.Sprintf("%q is not a valid %s", s, schema.Format),
		})
	}
}

func (w *walker) number(f float64, s *models.SchemaNode, path string) {
	if s.Minimum != nil {
		if s.ExclusiveMinimum && f <= *s.Minimum {
			w.constraint(path, "value %v must be greater than %v", f, *s.Minimum)
		} else if f < *s.Minimum {
			w.constraint(path, "value %v is less than minimum %v", f, *s.Minimum)
		}
	}
	if s.Maximum != nil {
		if s.ExclusiveMaximum && f >= *s.Maximum {
			w.constraint(path, "value %v must be less than %v", f, *s.Maximum)
		} else if f > *s.Maximum {
			w.constraint(path, "value %v exceeds maximum %v", f, *s.Maximum)
		}
	}
	if s.MultipleOf != nil && *s.MultipleOf != 0 {
		q := f / *s.MultipleOf
		if math.Abs(q-math.Round(q)) > 1e-9 {
			w.constraint(path, "value %v is not a multiple of %v", f, *s.MultipleOf)
		}
	}
	if s.Kind == models.KindInteger && s.Format == "int32" && (f < math.MinInt32 || f > math.MaxInt32) {
		w.constraint(path, "value %v overflows int32", f)
	}
}

func (w *walker) array(items []any, s *models.SchemaNode, path string) {
	if s.MinItems != nil && len(items) < *s.MinItems {
		w.constraint(path, "array has %d items, minimum is %d", len(items), *s.MinItems)
	}
	if s.MaxItems != nil && len(items) > *s.MaxItems {
		w.constraint(path, "array has %d items, maximum is %d", len(items), *s.MaxItems)
	}
	if s.UniqueItems && hasDuplicates(items) {
		w.constraint(path, "array items must be unique")
	}
	for i, item := range items {
		w.walk(item, s.Items, fmt.Sprintf("%s[%d]", path, i))
	}
}

func (w *walker) object(obj map[string]any, s *models.SchemaNode, path string, composed bool) {
	for _, name := range s.Required {
		if _, ok := obj[name]; ok {
			continue
		}
		// readOnly properties are never sent by clients; writeOnly never returned
		if prop := s.Property(name); prop != nil && w.skips(prop) {
			continue
		}
		w.rep.missing(w.in, joinPath(path, name))
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := obj[key]
		if prop, ok := s.Properties[key]; ok {
			w.walk(value, prop, joinPath(path, key))
			continue
		}
		if composed || s.Property(key) != nil {
			continue
		}
		if s.AdditionalProperties != nil {
			w.walk(value, s.AdditionalProperties, joinPath(path, key))
			continue
		}
		if w.unknownAllowed(s) {
			continue
		}
		w.rep.add(Violation{
			Kind:    UnknownField,
			In:      w.in,
			Name:    joinPath(path, key),
			Message: fmt.Sprintf("property %q is not declared", key),
		})
	}
}

func (w *walker) skips(prop *models.SchemaNode) bool {
	return (w.dir == inbound && prop.ReadOnly) || (w.dir == outbound && prop.WriteOnly)
}

// unknownAllowed applies additionalProperties when the schema states it and
// the configured policy otherwise. Free-form objects without declared
// properties always accept extra keys.
func (w *walker) unknownAllowed(s *models.SchemaNode) bool {
	if s.AdditionalAllowed != nil {
		return *s.AdditionalAllowed
	}
	if !declaresProperties(s) {
		return true
	}
	return w.v.unknownFields == Ignore
}

func declaresProperties(s *models.SchemaNode) bool {
	if len(s.Properties) > 0 {
		return true
	}
	for _, sub := range s.AllOf {
		if declaresProperties(sub) {
			return true
		}
	}
	return false
}

func (w *walker) composition(value any, s *models.SchemaNode, path string) {
	for _, sub := range s.AllOf {
		w.node(value, sub, path, true)
	}

	if len(s.AnyOf) > 0 && w.matches(value, s.AnyOf, path) == 0 {
		w.constraint(path, "value does not match any anyOf schema")
	}

	if len(s.OneOf) > 0 {
		if n := w.matches(value, s.OneOf, path); n != 1 {
			w.constraint(path, "value matches %d oneOf schemas, expected exactly 1", n)
		}
	}
}

func (w *walker) matches(value any, schemas []*models.SchemaNode, path string) int {
	n := 0
	for _, sub := range schemas {
		c := w.child()
		c.walk(value, sub, path)
		if len(c.rep.violations) == 0 {
			n++
		}
	}
	return n
}

// Helpers

func dataType(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case *UploadedFile:
		return "file"
	case json.Number:
		if isInteger(val) {
			return "integer"
		}
		return "number"
	case int, int64, int32:
		return "integer"
	case float64:
		if val == math.Trunc(val) {
			return "integer"
		}
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case int, int32, int64:
		return true
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return true
		}
		f, err := n.Float64()
		return err == nil && f == math.Trunc(f) && !math.IsInf(f, 0)
	case float64:
		return n == math.Trunc(n) && !math.IsInf(n, 0)
	}
	return false
}

// normalize maps numbers to float64 so values from the document and from
// requests compare equal regardless of their Go representation
func normalize(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	return v
}

func inEnum(value any, enum []any) bool {
	nv := normalize(value)
	for _, allowed := range enum {
		if fmt.Sprint(normalize(allowed)) == fmt.Sprint(nv) && sameScalarType(normalize(allowed), nv) {
			return true
		}
	}
	return false
}

func sameScalarType(a, b any) bool {
	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

func hasDuplicates(items []any) bool {
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		key := canonical(item)
		if seen[key] {
			return true
		}
		seen[key] = true
	}
	return false
}

func canonical(v any) string {
	b, err := json.Marshal(normalizeDeep(v))
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return string(b)
}

func normalizeDeep(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeDeep(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeDeep(item)
		}
		return out
	case *UploadedFile:
		return val.Filename
	}
	return normalize(v)
}

func validFormat(format, s string) bool {
	switch format {
	case "date-time":
		_, err := time.Parse(time.RFC3339, s)
		return err == nil
	case "date":
		_, err := time.Parse(time.DateOnly, s)
		return err == nil
	case "uuid":
		_, err := uuid.Parse(s)
		return err == nil && len(s) == 36
	case "email":
		addr, err := mail.ParseAddress(s)
		return err == nil && addr.Address == s
	case "uri":
		u, err := url.Parse(s)
		return err == nil && u.Scheme != ""
	case "byte":
		_, err := base64.StdEncoding.DecodeString(s)
		return err == nil
	case "ipv4":
		addr, err := netip.ParseAddr(s)
		return err == nil && addr.Is4()
	case "ipv6":
		addr, err := netip.ParseAddr(s)
		return err == nil && addr.Is6()
	}
	// unknown formats are annotations only
	return true
}

// pattern returns a compiled, cached regular expression
func (v *Validator) pattern(expr string) (*regexp.Regexp, error) {
	if cached, ok := v.patterns.Load(expr); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	v.patterns.Store(expr, re)
	return re, nil
}
