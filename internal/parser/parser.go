package parser

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/moamenhredeen/oasgate/internal/logging"
	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/pb33f/libopenapi"
	"github.com/pb33f/libopenapi/datamodel"
	"github.com/pb33f/libopenapi/datamodel/high/base"
	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"
)

// DefaultMaxDepth bounds how deeply inline schemas may nest
const DefaultMaxDepth = 64

// SchemaLoadError reports a document that cannot be turned into operations.
// It is fatal at startup.
type SchemaLoadError struct {
	// Path locates the problem inside the document, e.g. "paths./pet.post"
	Path   string
	Reason string
	Err    error
}

func (e *SchemaLoadError) Error() string {
	msg := e.Reason
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "schema load error: " + msg
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Err
}

func loadError(path, reason string, err error) *SchemaLoadError {
	return &SchemaLoadError{Path: path, Reason: reason, Err: err}
}

// Option configures document loading
type Option func(*config)

type config struct {
	maxDepth int
	strict   bool
	logger   *slog.Logger
}

// WithMaxDepth sets the schema nesting limit. Values below 1 keep the default.
func WithMaxDepth(depth int) Option {
	return func(c *config) {
		if depth > 0 {
			c.maxDepth = depth
		}
	}
}

// WithStrictValidation runs a full structural validation of the document
// before it is loaded
func WithStrictValidation(strict bool) Option {
	return func(c *config) {
		c.strict = strict
	}
}

// WithLogger receives what libopenapi reports while indexing and resolving
// references. The default discards it.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func (c *config) documentConfig() *datamodel.DocumentConfiguration {
	return &datamodel.DocumentConfiguration{
		IgnorePolymorphicCircularReferences: true,
		IgnoreArrayCircularReferences:       true,
		Logger:                              c.logger,
	}
}

// ParseFile reads an OpenAPI document from disk and loads it
func ParseFile(filePath string, opts ...Option) (*models.Document, error) {
	specBytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAPI file: %w", err)
	}
	return Load(specBytes, opts...)
}

// Load turns an OpenAPI 3.x document (YAML or JSON) into an immutable models.Document
func Load(data []byte, opts ...Option) (*models.Document, error) {
	cfg := &config{maxDepth: DefaultMaxDepth, logger: logging.Nop()}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.strict {
		if err := lintDocument(data); err != nil {
			return nil, err
		}
	}

	document, err := libopenapi.NewDocumentWithConfiguration(data, cfg.documentConfig())
	if err != nil {
		return nil, loadError("", "failed to parse OpenAPI document", err)
	}

	if version := document.GetVersion(); !strings.HasPrefix(version, "3.") {
		return nil, loadError("openapi", fmt.Sprintf("unsupported OpenAPI version %q, expected 3.x", version), nil)
	}

	model, errs := document.BuildV3Model()
	if errs != nil {
		return nil, loadError("", fmt.Sprintf("failed to build v3 model: %v", errs), nil)
	}

	b := &builder{
		cfg:  cfg,
		refs: make(map[string]*models.SchemaNode),
		doc: &models.Document{
			OpenAPI:         document.GetVersion(),
			Schemas:         make(map[string]*models.SchemaNode),
			SecuritySchemes: make(map[string]*models.SecurityScheme),
		},
	}
	if err := b.build(&model.Model); err != nil {
		return nil, err
	}
	return b.doc, nil
}

type builder struct {
	cfg  *config
	doc  *models.Document
	refs map[string]*models.SchemaNode
}

func (b *builder) build(m *v3.Document) error {
	if m.Info != nil {
		b.doc.Title = m.Info.Title
		b.doc.Version = m.Info.Version
	}

	b.buildServers(m.Servers)

	if m.Components != nil {
		if err := b.buildComponentSchemas(m.Components); err != nil {
			return err
		}
		b.buildSecuritySchemes(m.Components)
	}

	globalSecurity, err := b.buildSecurity("security", m.Security)
	if err != nil {
		return err
	}
	if globalSecurity == nil {
		globalSecurity = []models.SecurityRequirement{}
	}

	if m.Paths == nil || m.Paths.PathItems == nil || m.Paths.PathItems.Len() == 0 {
		return loadError("paths", "document declares no paths", nil)
	}

	seenIDs := make(map[string]string)
	for pair := m.Paths.PathItems.First(); pair != nil; pair = pair.Next() {
		template := pair.Key()
		item := pair.Value()
		if item == nil {
			continue
		}

		segments, err := models.ParseTemplate(template)
		if err != nil {
			return loadError("paths."+template, "invalid path template", err)
		}

		for _, entry := range pathOperations(item) {
			where := fmt.Sprintf("paths.%s.%s", template, strings.ToLower(entry.method))
			op, err := b.buildOperation(where, template, segments, entry.method, item, entry.op, globalSecurity)
			if err != nil {
				return err
			}
			if prev, dup := seenIDs[op.ID]; dup {
				return loadError(where, fmt.Sprintf("operationId %q already used by %s", op.ID, prev), nil)
			}
			seenIDs[op.ID] = op.String()
			b.doc.Operations = append(b.doc.Operations, op)
		}
	}

	return nil
}

type methodOperation struct {
	method string
	op     *v3.Operation
}

// pathOperations lists the operations of a path item in a fixed method order
func pathOperations(item *v3.PathItem) []methodOperation {
	all := []methodOperation{
		{"GET", item.Get},
		{"PUT", item.Put},
		{"POST", item.Post},
		{"DELETE", item.Delete},
		{"OPTIONS", item.Options},
		{"HEAD", item.Head},
		{"PATCH", item.Patch},
		{"TRACE", item.Trace},
	}
	ops := all[:0]
	for _, mo := range all {
		if mo.op != nil {
			ops = append(ops, mo)
		}
	}
	return ops
}

func (b *builder) buildServers(servers []*v3.Server) {
	for _, server := range servers {
		if server == nil || server.URL == "" {
			continue
		}
		b.doc.Servers = append(b.doc.Servers, expandServerURL(server))
	}
	if len(b.doc.Servers) == 0 {
		return
	}

	u, err := url.Parse(b.doc.Servers[0])
	if err != nil {
		return
	}
	b.doc.BasePath = strings.TrimSuffix(u.Path, "/")
}

// expandServerURL substitutes server variables with their defaults
func expandServerURL(server *v3.Server) string {
	serverURL := server.URL
	if server.Variables == nil {
		return serverURL
	}
	for pair := server.Variables.First(); pair != nil; pair = pair.Next() {
		if pair.Value() == nil {
			continue
		}
		serverURL = strings.ReplaceAll(serverURL, "{"+pair.Key()+"}", pair.Value().Default)
	}
	return serverURL
}

func (b *builder) buildOperation(
	where, template string,
	segments []models.Segment,
	method string,
	item *v3.PathItem,
	op *v3.Operation,
	globalSecurity []models.SecurityRequirement,
) (*models.OperationSpec, error) {
	if op.OperationId == "" {
		return nil, loadError(where, "operationId is required", nil)
	}

	spec := &models.OperationSpec{
		ID:        op.OperationId,
		Method:    method,
		Path:      template,
		Segments:  segments,
		Summary:   op.Summary,
		Responses: make(map[string]*models.ResponseSpec),
	}
	if op.Tags != nil {
		spec.Tags = append(spec.Tags, op.Tags...)
	}

	params, err := b.buildParameters(where, item.Parameters, op.Parameters)
	if err != nil {
		return nil, err
	}
	spec.Parameters = params

	if err := checkPathParameters(where, spec); err != nil {
		return nil, err
	}

	if op.RequestBody != nil {
		body, err := b.buildRequestBody(where+".requestBody", op.RequestBody)
		if err != nil {
			return nil, err
		}
		spec.RequestBody = body
	}

	if err := b.buildResponses(where+".responses", op.Responses, spec); err != nil {
		return nil, err
	}

	spec.Security = globalSecurity
	if op.Security != nil || declaresSecurity(op) {
		security, err := b.buildSecurity(where+".security", op.Security)
		if err != nil {
			return nil, err
		}
		if security == nil {
			// "security: []" opts the operation out of document security
			security = []models.SecurityRequirement{}
		}
		spec.Security = security
	}

	return spec, nil
}

// buildParameters merges path-item and operation parameters. An operation
// parameter overrides a path-item parameter with the same name and location.
func (b *builder) buildParameters(where string, shared, own []*v3.Parameter) ([]*models.ParameterSpec, error) {
	type key struct {
		name string
		in   models.Location
	}

	var order []key
	byKey := make(map[key]*models.ParameterSpec)

	for _, list := range [][]*v3.Parameter{shared, own} {
		for _, p := range list {
			if p == nil {
				continue
			}
			param, err := b.buildParameter(where, p)
			if err != nil {
				return nil, err
			}
			k := key{param.Name, param.In}
			if _, exists := byKey[k]; !exists {
				order = append(order, k)
			}
			byKey[k] = param
		}
	}

	params := make([]*models.ParameterSpec, 0, len(order))
	for _, k := range order {
		params = append(params, byKey[k])
	}
	return params, nil
}

func (b *builder) buildParameter(where string, p *v3.Parameter) (*models.ParameterSpec, error) {
	where = fmt.Sprintf("%s.parameters.%s", where, p.Name)
	if p.Name == "" {
		return nil, loadError(where, "parameter name is required", nil)
	}

	in := models.Location(p.In)
	switch in {
	case models.LocationPath, models.LocationQuery, models.LocationHeader, models.LocationCookie:
	default:
		return nil, loadError(where, fmt.Sprintf("unknown parameter location %q", p.In), nil)
	}

	param := &models.ParameterSpec{
		Name:     p.Name,
		In:       in,
		Required: isTrue(p.Required) || in == models.LocationPath,
		Style:    p.Style,
	}
	if param.Style == "" {
		param.Style = defaultStyle(in)
	}
	param.Explode = boolOr(p.Explode, param.Style == "form")

	if p.Schema != nil {
		schema, err := b.convert(p.Schema, "", where+".schema", 0)
		if err != nil {
			return nil, err
		}
		param.Schema = schema
	} else if p.Content != nil {
		// content-encoded parameters carry their schema under a single media type
		for pair := p.Content.First(); pair != nil; pair = pair.Next() {
			if pair.Value() == nil || pair.Value().Schema == nil {
				continue
			}
			schema, err := b.convert(pair.Value().Schema, "", where+".content", 0)
			if err != nil {
				return nil, err
			}
			param.Schema = schema
			break
		}
	}

	return param, nil
}

func defaultStyle(in models.Location) string {
	switch in {
	case models.LocationQuery, models.LocationCookie:
		return "form"
	default:
		return "simple"
	}
}

// checkPathParameters verifies that template placeholders and declared path
// parameters agree in both directions
func checkPathParameters(where string, spec *models.OperationSpec) error {
	inTemplate := make(map[string]bool)
	for _, name := range spec.PathParamNames() {
		inTemplate[name] = true
		if spec.Parameter(models.LocationPath, name) == nil {
			return loadError(where, fmt.Sprintf("path parameter %q is not declared", name), nil)
		}
	}
	for _, p := range spec.ParametersIn(models.LocationPath) {
		if !inTemplate[p.Name] {
			return loadError(where, fmt.Sprintf("path parameter %q does not appear in template %s", p.Name, spec.Path), nil)
		}
	}
	return nil
}

func (b *builder) buildRequestBody(where string, rb *v3.RequestBody) (*models.RequestBodySpec, error) {
	body := &models.RequestBodySpec{
		Required: isTrue(rb.Required),
		Content:  make(map[string]*models.SchemaNode),
	}
	if rb.Content == nil {
		return body, nil
	}
	for pair := rb.Content.First(); pair != nil; pair = pair.Next() {
		mediaType := pair.Key()
		var schema *models.SchemaNode
		if mt := pair.Value(); mt != nil && mt.Schema != nil {
			var err error
			schema, err = b.convert(mt.Schema, "", where+"."+mediaType, 0)
			if err != nil {
				return nil, err
			}
		}
		body.Content[strings.ToLower(mediaType)] = schema
	}
	return body, nil
}

func (b *builder) buildResponses(where string, responses *v3.Responses, spec *models.OperationSpec) error {
	if responses == nil {
		return nil
	}

	if responses.Codes != nil {
		for pair := responses.Codes.First(); pair != nil; pair = pair.Next() {
			if pair.Value() == nil {
				continue
			}
			resp, err := b.buildResponse(where+"."+pair.Key(), pair.Value())
			if err != nil {
				return err
			}
			spec.Responses[strings.ToUpper(pair.Key())] = resp
		}
	}

	if responses.Default != nil {
		resp, err := b.buildResponse(where+".default", responses.Default)
		if err != nil {
			return err
		}
		spec.Responses["default"] = resp
	}

	return nil
}

func (b *builder) buildResponse(where string, r *v3.Response) (*models.ResponseSpec, error) {
	resp := &models.ResponseSpec{
		Description: r.Description,
		Content:     make(map[string]*models.SchemaNode),
		Headers:     make(map[string]*models.HeaderSpec),
	}

	if r.Content != nil {
		for pair := r.Content.First(); pair != nil; pair = pair.Next() {
			var schema *models.SchemaNode
			if mt := pair.Value(); mt != nil && mt.Schema != nil {
				var err error
				schema, err = b.convert(mt.Schema, "", where+"."+pair.Key(), 0)
				if err != nil {
					return nil, err
				}
			}
			resp.Content[strings.ToLower(pair.Key())] = schema
		}
	}

	if r.Headers != nil {
		for pair := r.Headers.First(); pair != nil; pair = pair.Next() {
			h := pair.Value()
			if h == nil {
				continue
			}
			header := &models.HeaderSpec{Required: isTrue(h.Required)}
			if h.Schema != nil {
				schema, err := b.convert(h.Schema, "", where+".headers."+pair.Key(), 0)
				if err != nil {
					return nil, err
				}
				header.Schema = schema
			}
			resp.Headers[pair.Key()] = header
		}
	}

	return resp, nil
}

func (b *builder) buildSecuritySchemes(components *v3.Components) {
	if components.SecuritySchemes == nil {
		return
	}
	for pair := components.SecuritySchemes.First(); pair != nil; pair = pair.Next() {
		ss := pair.Value()
		if ss == nil {
			continue
		}
		scheme := &models.SecurityScheme{
			Name:         pair.Key(),
			Type:         ss.Type,
			In:           models.Location(ss.In),
			ParamName:    ss.Name,
			Scheme:       strings.ToLower(ss.Scheme),
			BearerFormat: ss.BearerFormat,
			Scopes:       make(map[string]string),
		}
		if ss.Flows != nil {
			for _, flow := range []*v3.OAuthFlow{ss.Flows.Implicit, ss.Flows.Password, ss.Flows.ClientCredentials, ss.Flows.AuthorizationCode} {
				if flow == nil || flow.Scopes == nil {
					continue
				}
				for sp := flow.Scopes.First(); sp != nil; sp = sp.Next() {
					scheme.Scopes[sp.Key()] = sp.Value()
				}
			}
		}
		b.doc.SecuritySchemes[scheme.Name] = scheme
	}
}

func (b *builder) buildSecurity(where string, reqs []*base.SecurityRequirement) ([]models.SecurityRequirement, error) {
	if reqs == nil {
		return nil, nil
	}

	security := make([]models.SecurityRequirement, 0, len(reqs))
	for _, req := range reqs {
		set := models.SecurityRequirement{}
		if req != nil && req.Requirements != nil {
			for pair := req.Requirements.First(); pair != nil; pair = pair.Next() {
				name := pair.Key()
				if _, ok := b.doc.SecuritySchemes[name]; !ok {
					return nil, loadError(where, fmt.Sprintf("unknown security scheme %q", name), nil)
				}
				scopes := append([]string(nil), pair.Value()...)
				sort.Strings(scopes)
				set = append(set, models.SchemeRequirement{Scheme: name, Scopes: scopes})
			}
		}
		security = append(security, set)
	}
	return security, nil
}

// declaresSecurity reports whether the operation has its own security key,
// which the high level model cannot tell apart from an empty list
func declaresSecurity(op *v3.Operation) bool {
	low := op.GoLow()
	return low != nil && low.Security.KeyNode != nil
}
