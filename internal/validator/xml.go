package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/moamenhredeen/oasgate/internal/models"
)

// decodeXML reads an XML payload into the same value shapes a JSON payload
// produces, guided by the schema: the root element is the value itself,
// child elements and attributes become properties, and array properties
// accept both repeated elements and a wrapping element.
func decodeXML(body []byte, s *models.SchemaNode) (any, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("invalid XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New("invalid XML: no root element")
	}
	return xmlValue(root, s), nil
}

func xmlValue(el *etree.Element, s *models.SchemaNode) any {
	switch kindOf(s) {
	case models.KindArray:
		items := make([]any, 0, len(el.ChildElements()))
		for _, child := range el.ChildElements() {
			items = append(items, xmlValue(child, s.Items))
		}
		return items
	case models.KindObject:
		return xmlObject(el, s)
	case models.KindAny:
		if len(el.ChildElements()) > 0 || len(el.Attr) > 0 {
			return xmlObject(el, s)
		}
	}
	return coerce(strings.TrimSpace(el.Text()), s)
}

func xmlObject(el *etree.Element, s *models.SchemaNode) map[string]any {
	obj := make(map[string]any)

	for _, attr := range el.Attr {
		if attr.Space == "xmlns" || attr.Key == "xmlns" {
			continue
		}
		obj[attr.Key] = coerce(attr.Value, s.Property(attr.Key))
	}

	for _, child := range el.ChildElements() {
		prop := s.Property(child.Tag)
		if kindOf(prop) != models.KindArray {
			obj[child.Tag] = xmlValue(child, prop)
			continue
		}

		existing, _ := obj[child.Tag].([]any)
		if wrapped(child, prop) {
			for _, item := range child.ChildElements() {
				existing = append(existing, xmlValue(item, prop.Items))
			}
		} else {
			existing = append(existing, xmlValue(child, prop.Items))
		}
		obj[child.Tag] = existing
	}

	return obj
}

// wrapped reports whether an array element wraps its items rather than
// being one of them. Primitive items never have child elements of their
// own, and object items are recognised by their declared property names.
func wrapped(el *etree.Element, array *models.SchemaNode) bool {
	children := el.ChildElements()
	if len(children) == 0 {
		return false
	}
	if kindOf(array.Items) != models.KindObject {
		return true
	}
	for _, c := range children {
		if array.Items.Property(c.Tag) != nil {
			return false
		}
	}
	return true
}
