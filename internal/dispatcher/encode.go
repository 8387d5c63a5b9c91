package dispatcher

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"mime"
	"reflect"
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/validator"
)

// Encode serializes a handler body for a media type. []byte and string
// bodies are written unchanged whatever the media type.
func Encode(body any, contentType string, schema *models.SchemaNode) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}

	switch {
	case validator.IsJSON(mediaType):
		return json.Marshal(body)
	case validator.IsXML(mediaType):
		if s, ok := body.(string); ok {
			return []byte(s), nil
		}
		return encodeXML(body, schema)
	case strings.HasPrefix(mediaType, "text/"):
		switch b := body.(type) {
		case string:
			return []byte(b), nil
		case fmt.Stringer:
			return []byte(b.String()), nil
		}
		return []byte(fmt.Sprint(body)), nil
	}

	if s, ok := body.(string); ok {
		return []byte(s), nil
	}
	return nil, fmt.Errorf("cannot encode %T as %s", body, mediaType)
}

// encodeXML leaves structs to encoding/xml and their tags. Everything else
// is brought to its JSON shape and written element by element with etree,
// named after the schema.
func encodeXML(body any, schema *models.SchemaNode) ([]byte, error) {
	rv := reflect.ValueOf(body)
	if rv.Kind() == reflect.Struct || (rv.Kind() == reflect.Pointer && rv.Elem().Kind() == reflect.Struct) {
		out, err := xml.Marshal(body)
		if err != nil {
			return nil, err
		}
		return append([]byte(xml.Header), out...), nil
	}

	generic, err := toGeneric(body)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(rootName(schema))
	writeXML(root, generic, schema)
	return doc.WriteToBytes()
}

func toGeneric(body any) (any, error) {
	switch body.(type) {
	case map[string]any, []any:
		return body, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func rootName(schema *models.SchemaNode) string {
	if schema != nil && schema.Ref != "" {
		return schema.Ref[strings.LastIndex(schema.Ref, "/")+1:]
	}
	if schema != nil && schema.Kind == models.KindArray && schema.Items != nil && schema.Items.Ref != "" {
		return rootName(schema.Items) + "s"
	}
	return "response"
}

func writeXML(el *etree.Element, value any, schema *models.SchemaNode) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			prop := schema.Property(k)
			if items, ok := v[k].([]any); ok {
				// arrays inside objects repeat the property element
				for _, item := range items {
					writeXML(el.CreateElement(k), item, itemsOf(prop))
				}
				continue
			}
			writeXML(el.CreateElement(k), v[k], prop)
		}
	case []any:
		item := itemsOf(schema)
		name := "item"
		if item != nil && item.Ref != "" {
			name = rootName(item)
		}
		for _, elem := range v {
			writeXML(el.CreateElement(name), elem, item)
		}
	case nil:
	default:
		el.SetText(fmt.Sprint(v))
	}
}

func itemsOf(s *models.SchemaNode) *models.SchemaNode {
	if s == nil {
		return nil
	}
	return s.Items
}
