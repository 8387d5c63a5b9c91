package parser

import (
	"fmt"

	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/pb33f/libopenapi/datamodel/high/base"
	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"
)

const componentSchemaPrefix = "#/components/schemas/"

// buildComponentSchemas converts every named component schema so that later
// $ref lookups share the same node
func (b *builder) buildComponentSchemas(components *v3.Components) error {
	if components.Schemas == nil {
		return nil
	}
	for pair := components.Schemas.First(); pair != nil; pair = pair.Next() {
		name := pair.Key()
		node, err := b.convert(pair.Value(), componentSchemaPrefix+name, "components.schemas."+name, 0)
		if err != nil {
			return err
		}
		if node != nil {
			b.doc.Schemas[name] = node
		}
	}
	return nil
}

// convert turns a libopenapi schema proxy into a SchemaNode.
//
// ref names the node when the caller already knows it (component schemas);
// otherwise a reference proxy supplies it. Referenced nodes are registered
// before their children are converted, so recursive schemas resolve to the
// node under construction instead of recursing forever.
func (b *builder) convert(proxy *base.SchemaProxy, ref, where string, depth int) (*models.SchemaNode, error) {
	if proxy == nil {
		return nil, nil
	}
	if depth > b.cfg.maxDepth {
		return nil, loadError(where, fmt.Sprintf("schema nesting exceeds depth limit of %d", b.cfg.maxDepth), nil)
	}

	if proxy.IsReference() {
		ref = proxy.GetReference()
	}
	if ref != "" {
		if node, ok := b.refs[ref]; ok {
			return node, nil
		}
	}

	schema := proxy.Schema()
	if schema == nil {
		if ref != "" {
			return nil, loadError(where, fmt.Sprintf("unresolved reference %q", ref), proxy.GetBuildError())
		}
		return nil, loadError(where, "invalid schema", proxy.GetBuildError())
	}

	node := &models.SchemaNode{Ref: ref}
	if ref != "" {
		b.refs[ref] = node
	}

	if err := b.fill(node, schema, where, depth); err != nil {
		return nil, err
	}
	return node, nil
}

func (b *builder) fill(node *models.SchemaNode, s *base.Schema, where string, depth int) error {
	node.Kind = models.KindAny
	for _, t := range s.Type {
		if t == "null" {
			node.Nullable = true
			continue
		}
		if node.Kind == models.KindAny {
			node.Kind = models.KindOf(t)
		}
	}
	if node.Kind == models.KindAny {
		switch {
		case s.Properties != nil && s.Properties.Len() > 0:
			node.Kind = models.KindObject
		case s.Items != nil:
			node.Kind = models.KindArray
		}
	}

	node.Format = s.Format
	node.Nullable = node.Nullable || isTrue(s.Nullable)
	node.ReadOnly = isTrue(s.ReadOnly)
	node.WriteOnly = isTrue(s.WriteOnly)
	node.Pattern = s.Pattern
	node.UniqueItems = isTrue(s.UniqueItems)
	node.Required = append(node.Required, s.Required...)

	for _, e := range s.Enum {
		if e != nil {
			node.Enum = append(node.Enum, decodeNode(e))
		}
	}
	if s.Example != nil {
		node.Example = decodeNode(s.Example)
	}
	if s.Default != nil {
		node.Default = decodeNode(s.Default)
	}

	node.Minimum = s.Minimum
	node.Maximum = s.Maximum
	node.MultipleOf = s.MultipleOf
	if s.ExclusiveMinimum != nil {
		if s.ExclusiveMinimum.IsA() {
			node.ExclusiveMinimum = s.ExclusiveMinimum.A
		} else {
			bound := s.ExclusiveMinimum.B
			node.Minimum = &bound
			node.ExclusiveMinimum = true
		}
	}
	if s.ExclusiveMaximum != nil {
		if s.ExclusiveMaximum.IsA() {
			node.ExclusiveMaximum = s.ExclusiveMaximum.A
		} else {
			bound := s.ExclusiveMaximum.B
			node.Maximum = &bound
			node.ExclusiveMaximum = true
		}
	}

	node.MinLength = intPtr(s.MinLength)
	node.MaxLength = intPtr(s.MaxLength)
	node.MinItems = intPtr(s.MinItems)
	node.MaxItems = intPtr(s.MaxItems)

	if s.Items != nil && s.Items.IsA() {
		items, err := b.convert(s.Items.A, "", where+".items", depth+1)
		if err != nil {
			return err
		}
		node.Items = items
	}

	if s.Properties != nil {
		node.Properties = make(map[string]*models.SchemaNode, s.Properties.Len())
		for pair := s.Properties.First(); pair != nil; pair = pair.Next() {
			prop, err := b.convert(pair.Value(), "", where+".properties."+pair.Key(), depth+1)
			if err != nil {
				return err
			}
			if prop == nil {
				prop = &models.SchemaNode{}
			}
			node.Properties[pair.Key()] = prop
			node.PropertyOrder = append(node.PropertyOrder, pair.Key())
		}
	}

	if ap := s.AdditionalProperties; ap != nil {
		if ap.IsA() {
			extra, err := b.convert(ap.A, "", where+".additionalProperties", depth+1)
			if err != nil {
				return err
			}
			allowed := true
			node.AdditionalAllowed = &allowed
			node.AdditionalProperties = extra
		} else {
			allowed := ap.B
			node.AdditionalAllowed = &allowed
		}
	}

	var err error
	if node.AllOf, err = b.convertAll(s.AllOf, where+".allOf", depth); err != nil {
		return err
	}
	if node.AnyOf, err = b.convertAll(s.AnyOf, where+".anyOf", depth); err != nil {
		return err
	}
	if node.OneOf, err = b.convertAll(s.OneOf, where+".oneOf", depth); err != nil {
		return err
	}

	// a bare allOf of objects is still an object for parameter coercion
	if node.Kind == models.KindAny && len(node.AllOf) > 0 {
		for _, sub := range node.AllOf {
			if sub.Kind == models.KindObject {
				node.Kind = models.KindObject
				break
			}
		}
	}

	return nil
}

func (b *builder) convertAll(proxies []*base.SchemaProxy, where string, depth int) ([]*models.SchemaNode, error) {
	if len(proxies) == 0 {
		return nil, nil
	}
	nodes := make([]*models.SchemaNode, 0, len(proxies))
	for i, p := range proxies {
		node, err := b.convert(p, "", fmt.Sprintf("%s[%d]", where, i), depth+1)
		if err != nil {
			return nil, err
		}
		if node != nil {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}
