package validator

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/moamenhredeen/oasgate/internal/models"
)

// Parameter deserialization follows the OpenAPI style table:
//
//	path    simple (label, matrix)
//	query   form (spaceDelimited, pipeDelimited, deepObject)
//	header  simple
//	cookie  form
//
// Values that cannot be coerced to their schema type are left as strings so
// the schema walk reports a type mismatch.

func deserializePath(raw string, p *models.ParameterSpec) any {
	switch p.Style {
	case "label":
		return deserializeLabel(raw, p)
	case "matrix":
		return deserializeMatrix(raw, p)
	default:
		return deserializeSimple(raw, p.Schema, p.Explode)
	}
}

func deserializeSimple(raw string, s *models.SchemaNode, explode bool) any {
	switch kindOf(s) {
	case models.KindArray:
		return coerceAll(strings.Split(raw, ","), s.Items)
	case models.KindObject:
		return pairs(strings.Split(raw, ","), s, explode)
	}
	return coerce(raw, s)
}

func deserializeLabel(raw string, p *models.ParameterSpec) any {
	if !strings.HasPrefix(raw, ".") {
		return raw
	}
	raw = raw[1:]
	sep := ","
	if p.Explode {
		sep = "."
	}
	switch kindOf(p.Schema) {
	case models.KindArray:
		return coerceAll(strings.Split(raw, sep), p.Schema.Items)
	case models.KindObject:
		return pairs(strings.Split(raw, sep), p.Schema, p.Explode)
	}
	return coerce(raw, p.Schema)
}

func deserializeMatrix(raw string, p *models.ParameterSpec) any {
	if !strings.HasPrefix(raw, ";") {
		return raw
	}
	raw = raw[1:]
	prefix := p.Name + "="

	switch kindOf(p.Schema) {
	case models.KindArray:
		if p.Explode {
			var values []string
			for _, part := range strings.Split(raw, ";") {
				if v, ok := strings.CutPrefix(part, prefix); ok {
					values = append(values, v)
				}
			}
			return coerceAll(values, p.Schema.Items)
		}
		return coerceAll(strings.Split(strings.TrimPrefix(raw, prefix), ","), p.Schema.Items)
	case models.KindObject:
		if p.Explode {
			return pairs(strings.Split(raw, ";"), p.Schema, true)
		}
		return pairs(strings.Split(strings.TrimPrefix(raw, prefix), ","), p.Schema, false)
	}
	return coerce(strings.TrimPrefix(raw, prefix), p.Schema)
}

// deserializeQuery returns the typed value and whether the parameter was present
func deserializeQuery(query url.Values, p *models.ParameterSpec) (any, bool) {
	s := p.Schema

	if p.Style == "deepObject" {
		obj := make(map[string]any)
		prefix := p.Name + "["
		for key, values := range query {
			rest, ok := strings.CutPrefix(key, prefix)
			if !ok || !strings.HasSuffix(rest, "]") || len(values) == 0 {
				continue
			}
			prop := strings.TrimSuffix(rest, "]")
			obj[prop] = coerce(values[0], s.Property(prop))
		}
		return obj, len(obj) > 0
	}

	// exploded form objects spread their properties over the query string
	if kindOf(s) == models.KindObject && p.Explode && (p.Style == "" || p.Style == "form") {
		obj := make(map[string]any)
		for _, name := range s.PropertyOrder {
			if values, ok := query[name]; ok && len(values) > 0 {
				obj[name] = coerce(values[0], s.Properties[name])
			}
		}
		return obj, len(obj) > 0
	}

	values, ok := query[p.Name]
	if !ok || len(values) == 0 {
		return nil, false
	}

	switch p.Style {
	case "spaceDelimited":
		return delimited(values, " ", s), true
	case "pipeDelimited":
		return delimited(values, "|", s), true
	}

	switch kindOf(s) {
	case models.KindArray:
		if p.Explode {
			return coerceAll(values, s.Items), true
		}
		var parts []string
		for _, v := range values {
			parts = append(parts, strings.Split(v, ",")...)
		}
		return coerceAll(parts, s.Items), true
	case models.KindObject:
		return pairs(strings.Split(values[0], ","), s, false), true
	}
	return coerce(values[0], s), true
}

func delimited(values []string, sep string, s *models.SchemaNode) any {
	parts := strings.Split(strings.Join(values, sep), sep)
	if kindOf(s) == models.KindArray {
		return coerceAll(parts, s.Items)
	}
	return coerce(parts[0], s)
}

func deserializeCookie(raw string, p *models.ParameterSpec) any {
	switch kindOf(p.Schema) {
	case models.KindArray:
		return coerceAll(strings.Split(raw, ","), p.Schema.Items)
	case models.KindObject:
		return pairs(strings.Split(raw, ","), p.Schema, false)
	}
	return coerce(raw, p.Schema)
}

// pairs builds an object from "k=v" parts (explode) or "k,v,k2,v2" parts
func pairs(parts []string, s *models.SchemaNode, explode bool) map[string]any {
	obj := make(map[string]any)
	if explode {
		for _, part := range parts {
			if k, v, ok := strings.Cut(part, "="); ok && k != "" {
				obj[k] = coerce(v, s.Property(k))
			}
		}
		return obj
	}
	for i := 0; i+1 < len(parts); i += 2 {
		obj[parts[i]] = coerce(parts[i+1], s.Property(parts[i]))
	}
	return obj
}

func coerceAll(values []string, item *models.SchemaNode) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = coerce(v, item)
	}
	return out
}

// coerce converts a textual value to its schema's primitive type
func coerce(raw string, s *models.SchemaNode) any {
	switch kindOf(s) {
	case models.KindInteger:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i
		}
	case models.KindNumber:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case models.KindBoolean:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}

func kindOf(s *models.SchemaNode) models.Kind {
	if s == nil {
		return models.KindAny
	}
	return s.Kind
}
