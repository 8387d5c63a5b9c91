package parser

// yamlDecoder is satisfied by the YAML nodes libopenapi uses for literal values
type yamlDecoder interface {
	Decode(v any) error
}

// decodeNode converts an example, default or enum literal into a plain Go value
func decodeNode(n yamlDecoder) any {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil
	}
	return v
}

// isTrue reads a flag that the document model exposes either as bool or *bool
func isTrue(v any) bool {
	return boolOr(v, false)
}

func boolOr(v any, def bool) bool {
	switch b := v.(type) {
	case bool:
		return b
	case *bool:
		if b != nil {
			return *b
		}
	}
	return def
}

func intPtr(v *int64) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}
