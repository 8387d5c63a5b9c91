package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"sort"
	"strings"

	"github.com/moamenhredeen/oasgate/internal/models"
)

type parsedBody struct {
	present   bool
	walkable  bool
	value     any
	schema    *models.SchemaNode
	mediaType string
}

func malformed(in, format string, args ...any) error {
	return &ValidationError{Violations: []Violation{{
		Kind:    MalformedBody,
		In:      in,
		Name:    "body",
		Message: fmt.Sprintf(format, args...),
	}}}
}

// parseRequestBody decodes the body per its media type. A body that is too
// large or cannot be parsed returns a ValidationError with a single
// MalformedBody violation. An undeclared media type is returned as a
// violation alongside a nil error so parameter checks still run.
func (v *Validator) parseRequestBody(ctx *RequestContext, op *models.OperationSpec) (parsedBody, *Violation, error) {
	if int64(len(ctx.Body)) > v.maxBodySize {
		return parsedBody{}, nil, malformed("body", "body exceeds %d bytes", v.maxBodySize)
	}
	if len(ctx.Body) == 0 || op.RequestBody == nil {
		return parsedBody{}, nil, nil
	}

	mediaType, params, err := mime.ParseMediaType(ctx.ContentType)
	if err != nil {
		return parsedBody{}, &Violation{
			Kind:     UnsupportedMediaType,
			In:       "header",
			Name:     "Content-Type",
			Actual:   ctx.ContentType,
			Expected: strings.Join(op.RequestBody.ContentTypes(), ", "),
			Message:  fmt.Sprintf("content type %q cannot be parsed", ctx.ContentType),
		}, nil
	}

	_, schema, ok := matchContent(op.RequestBody.Content, mediaType)
	if !ok {
		return parsedBody{}, &Violation{
			Kind:     UnsupportedMediaType,
			In:       "header",
			Name:     "Content-Type",
			Actual:   mediaType,
			Expected: strings.Join(op.RequestBody.ContentTypes(), ", "),
			Message:  fmt.Sprintf("content type %q is not accepted by %s", mediaType, op.ID),
		}, nil
	}

	value, walkable, err := decodeBodyParams(mediaType, params, ctx.Body, schema)
	if err != nil {
		return parsedBody{}, nil, malformed("body", "%v", err)
	}
	return parsedBody{present: true, walkable: walkable, value: value, schema: schema, mediaType: mediaType}, nil, nil
}

func decodeBody(contentType string, body []byte, schema *models.SchemaNode) (any, bool, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	return decodeBodyParams(mediaType, params, body, schema)
}

// decodeBodyParams returns the decoded value and whether it can be walked
// against a schema. Opaque payloads are returned as raw bytes.
func decodeBodyParams(mediaType string, params map[string]string, body []byte, schema *models.SchemaNode) (any, bool, error) {
	switch {
	case IsJSON(mediaType):
		value, err := decodeJSON(body)
		return value, true, err
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, false, fmt.Errorf("invalid form body: %w", err)
		}
		return formObject(values, schema), true, nil
	case mediaType == "multipart/form-data":
		value, err := decodeMultipart(body, params["boundary"], schema)
		return value, true, err
	case IsXML(mediaType):
		value, err := decodeXML(body, schema)
		return value, true, err
	case strings.HasPrefix(mediaType, "text/"):
		return string(body), kindOf(schema) == models.KindString, nil
	}
	return body, false, nil
}

// IsJSON reports whether a media type is application/json or a +json suffix type
func IsJSON(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// IsXML reports whether a media type carries XML
func IsXML(mediaType string) bool {
	return mediaType == "application/xml" || mediaType == "text/xml" || strings.HasSuffix(mediaType, "+xml")
}

func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid JSON: unexpected data after the top-level value")
	}
	return value, nil
}

// formObject coerces url-encoded fields per property schema
func formObject(values url.Values, s *models.SchemaNode) map[string]any {
	obj := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		prop := s.Property(key)
		if kindOf(prop) == models.KindArray {
			obj[key] = coerceAll(vals, prop.Items)
			continue
		}
		obj[key] = coerce(vals[0], prop)
	}
	return obj
}

func decodeMultipart(body []byte, boundary string, s *models.SchemaNode) (map[string]any, error) {
	if boundary == "" {
		return nil, errors.New("multipart body without boundary")
	}

	parts := make(map[string][]any)
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid multipart body: %w", err)
		}

		name := part.FormName()
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("invalid multipart part %q: %w", name, err)
		}
		if name == "" {
			continue
		}

		prop := s.Property(name)
		item := prop
		if kindOf(prop) == models.KindArray {
			item = prop.Items
		}

		var value any
		switch {
		case part.FileName() != "":
			value = &UploadedFile{
				Filename:    part.FileName(),
				ContentType: part.Header.Get("Content-Type"),
				Content:     data,
			}
		case IsJSON(part.Header.Get("Content-Type")):
			if value, err = decodeJSON(data); err != nil {
				return nil, fmt.Errorf("multipart part %q: %w", name, err)
			}
		default:
			value = coerce(string(data), item)
		}
		parts[name] = append(parts[name], value)
	}

	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}
	sort.Strings(names)

	obj := make(map[string]any, len(parts))
	for _, name := range names {
		values := parts[name]
		if kindOf(s.Property(name)) == models.KindArray {
			obj[name] = values
		} else {
			obj[name] = values[0]
		}
	}
	return obj, nil
}

// matchContent picks the declared media type for a concrete one: an exact
// match first, then "type/*", then "*/*"
func matchContent(content map[string]*models.SchemaNode, mediaType string) (string, *models.SchemaNode, bool) {
	mediaType = strings.ToLower(mediaType)
	for declared, schema := range content {
		if strings.EqualFold(baseType(declared), mediaType) {
			return declared, schema, true
		}
	}

	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	major, _, _ := strings.Cut(mediaType, "/")
	for _, declared := range keys {
		if strings.EqualFold(baseType(declared), major+"/*") {
			return declared, content[declared], true
		}
	}
	for _, declared := range keys {
		if baseType(declared) == "*/*" {
			return declared, content[declared], true
		}
	}
	return "", nil, false
}

func baseType(declared string) string {
	t, _, _ := strings.Cut(declared, ";")
	return strings.TrimSpace(t)
}
