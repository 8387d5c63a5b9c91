package models

// Kind is the tag of a SchemaNode
type Kind int

const (
	// KindAny is a free-form schema: any JSON value is accepted
	KindAny Kind = iota
	KindString
	KindNumber
	KindInteger
	KindBoolean
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindBoolean:
		return "boolean"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "any"
	}
}

// KindOf maps an OpenAPI type name to a Kind
func KindOf(typeName string) Kind {
	switch typeName {
	case "string":
		return KindString
	case "number":
		return KindNumber
	case "integer":
		return KindInteger
	case "boolean":
		return KindBoolean
	case "array":
		return KindArray
	case "object":
		return KindObject
	default:
		return KindAny
	}
}

// SchemaNode is the in-memory form of an OpenAPI schema.
//
// Nodes reached through the same $ref are shared, so a recursive schema is a
// graph rather than an infinite tree. Consumers walking a node must be driven
// by data (validation) or bounded by depth (generation).
type SchemaNode struct {
	Kind Kind

	// Ref is the $ref this node was loaded from, if any
	Ref string

	Format   string
	Nullable bool
	Enum     []any
	Example  any
	Default  any

	ReadOnly  bool
	WriteOnly bool

	// Numeric constraints
	Minimum          *float64
	Maximum          *float64
	ExclusiveMinimum bool
	ExclusiveMaximum bool
	MultipleOf       *float64

	// String constraints
	MinLength *int
	MaxLength *int
	Pattern   string

	// Array constraints
	Items       *SchemaNode
	MinItems    *int
	MaxItems    *int
	UniqueItems bool

	// Object constraints. PropertyOrder keeps document order for generation.
	Properties    map[string]*SchemaNode
	PropertyOrder []string
	Required      []string

	// AdditionalAllowed is nil when the document is silent about
	// additionalProperties. AdditionalProperties holds the schema form.
	AdditionalAllowed    *bool
	AdditionalProperties *SchemaNode

	AllOf []*SchemaNode
	AnyOf []*SchemaNode
	OneOf []*SchemaNode
}

// IsRequired reports whether an object property is listed as required
func (s *SchemaNode) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// IsBinary reports whether the schema describes raw file content
func (s *SchemaNode) IsBinary() bool {
	return s != nil && s.Kind == KindString && s.Format == "binary"
}

// Property returns the schema of a named property, looking through allOf
func (s *SchemaNode) Property(name string) *SchemaNode {
	if s == nil {
		return nil
	}
	if p, ok := s.Properties[name]; ok {
		return p
	}
	for _, sub := range s.AllOf {
		if p := sub.Property(name); p != nil {
			return p
		}
	}
	return nil
}
