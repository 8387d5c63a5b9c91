package models

import (
	"fmt"
	"strings"
)

// Security scheme types as named by OpenAPI
const (
	SchemeTypeAPIKey        = "apiKey"
	SchemeTypeHTTP          = "http"
	SchemeTypeOAuth2        = "oauth2"
	SchemeTypeOpenIDConnect = "openIdConnect"
)

// SecurityScheme is a named credential mechanism from components.securitySchemes
type SecurityScheme struct {
	Name string
	Type string

	// In and ParamName locate an apiKey credential
	In        Location
	ParamName string

	// Scheme is the http auth scheme ("bearer", "basic"), lower-cased
	Scheme       string
	BearerFormat string

	// Scopes declared across all OAuth2 flows
	Scopes map[string]string
}

// SchemeRequirement names a scheme and the scopes it must grant
type SchemeRequirement struct {
	Scheme string
	Scopes []string
}

// SecurityRequirement is a requirement-set: every scheme in it must be satisfied.
// An empty set allows anonymous access.
type SecurityRequirement []SchemeRequirement

// Document is the loaded API description. It is built once at startup and
// shared read-only by every request.
type Document struct {
	OpenAPI string
	Title   string
	Version string

	Servers []string

	// BasePath is the path prefix stripped from requests before routing
	BasePath string

	Operations      []*OperationSpec
	Schemas         map[string]*SchemaNode
	SecuritySchemes map[string]*SecurityScheme
}

// Operation returns the operation with the given id, or nil
func (d *Document) Operation(id string) *OperationSpec {
	for _, op := range d.Operations {
		if op.ID == id {
			return op
		}
	}
	return nil
}

const componentSchemaPrefix = "#/components/schemas/"

// ResolveReference returns the component schema a local $ref points to
func (d *Document) ResolveReference(ref string) (*SchemaNode, error) {
	if !strings.HasPrefix(ref, componentSchemaPrefix) {
		return nil, fmt.Errorf("unsupported reference %q: only %s<name> can be resolved", ref, componentSchemaPrefix)
	}
	name := strings.TrimPrefix(ref, componentSchemaPrefix)
	node, ok := d.Schemas[name]
	if !ok {
		return nil, fmt.Errorf("unresolved reference %q", ref)
	}
	return node, nil
}
