package parser

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// lintDocument performs a structural validation of the raw document:
// required fields, component wiring and schema keywords.
func lintDocument(data []byte) error {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return loadError("", "document failed strict validation", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return loadError("", "document failed strict validation", err)
	}
	return nil
}
