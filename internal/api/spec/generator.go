// Package spec builds the OpenAPI document of the panel API from the command
// registry.
package spec

import (
	"sort"
	"strings"

	"grimm.is/hearth/internal/panel"
)

// OpenAPI Root Object
type OpenAPI struct {
	OpenAPI    string              `json:"openapi" yaml:"openapi"`
	Info       Info                `json:"info" yaml:"info"`
	Paths      map[string]PathItem `json:"paths" yaml:"paths"`
	Components Components          `json:"components" yaml:"components"`
}

type Info struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Version     string `json:"version" yaml:"version"`
}

type PathItem struct {
	Get    *Operation `json:"get,omitempty" yaml:"get,omitempty"`
	Post   *Operation `json:"post,omitempty" yaml:"post,omitempty"`
	Put    *Operation `json:"put,omitempty" yaml:"put,omitempty"`
	Delete *Operation `json:"delete,omitempty" yaml:"delete,omitempty"`
}

type Operation struct {
	OperationID string              `json:"operationId,omitempty" yaml:"operationId,omitempty"`
	Summary     string              `json:"summary" yaml:"summary"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
	Parameters  []Parameter         `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	RequestBody *RequestBody        `json:"requestBody,omitempty" yaml:"requestBody,omitempty"`
	Responses   map[string]Response `json:"responses" yaml:"responses"`
}

type Parameter struct {
	Name        string  `json:"name" yaml:"name"`
	In          string  `json:"in" yaml:"in"`
	Required    bool    `json:"required,omitempty" yaml:"required,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Schema      *Schema `json:"schema,omitempty" yaml:"schema,omitempty"`
}

type RequestBody struct {
	Content map[string]MediaType `json:"content" yaml:"content"`
}

type Response struct {
	Description string               `json:"description" yaml:"description"`
	Content     map[string]MediaType `json:"content,omitempty" yaml:"content,omitempty"`
}

type MediaType struct {
	Schema *Schema `json:"schema,omitempty" yaml:"schema,omitempty"`
}

type Components struct {
	Schemas map[string]Schema `json:"schemas" yaml:"schemas"`
}

type Schema struct {
	Type        string            `json:"type,omitempty" yaml:"type,omitempty"`
	Properties  map[string]Schema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required    []string          `json:"required,omitempty" yaml:"required,omitempty"`
	Items       *Schema           `json:"items,omitempty" yaml:"items,omitempty"`
	Ref         string            `json:"$ref,omitempty" yaml:"$ref,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Format      string            `json:"format,omitempty" yaml:"format,omitempty"`
}

// Route is one REST route backed by a registry command.
type Route struct {
	Method  string
	Path    string
	Command string
}

// Generate builds the document for routes. Routes naming unknown commands
// are skipped. The POST /api command endpoint is always included.
func Generate(info Info, reg *panel.Registry, routes []Route) *OpenAPI {
	doc := &OpenAPI{
		OpenAPI: "3.0.0",
		Info:    info,
		Paths:   make(map[string]PathItem),
		Components: Components{
			Schemas: map[string]Schema{
				"Error": {
					Type: "object",
					Properties: map[string]Schema{
						"error":   {Type: "string", Description: "localized message"},
						"details": {Type: "string", Description: "message key"},
					},
				},
				"Data": {
					Type:       "object",
					Properties: map[string]Schema{"data": {Type: "object"}},
				},
			},
		},
	}

	for _, rt := range routes {
		cmd, ok := reg.Lookup(rt.Command)
		if !ok {
			continue
		}
		addPath(doc, rt.Path, rt.Method, commandOperation(cmd, rt))
	}

	addPath(doc, "/api", "POST", &Operation{
		OperationID: "command",
		Summary:     "execute a command by name",
		Description: "Body: {\"command\": \"Module.function\", \"params\": {...}}. Commands: " +
			strings.Join(commandNames(reg), ", "),
		Tags: []string{"Commands"},
		RequestBody: &RequestBody{Content: map[string]MediaType{
			"application/json": {Schema: &Schema{
				Type: "object",
				Properties: map[string]Schema{
					"command": {Type: "string"},
					"params":  {Type: "object"},
				},
				Required: []string{"command"},
			}},
		}},
		Responses: standardResponses(),
	})
	return doc
}

func commandOperation(cmd *panel.Command, rt Route) *Operation {
	op := &Operation{
		OperationID: cmd.Name(),
		Summary:     cmd.Head,
		Tags:        []string{cmd.Module},
		Responses:   standardResponses(),
	}

	pathParam := strings.Contains(rt.Path, "{id}")
	if pathParam {
		op.Parameters = append(op.Parameters, Parameter{
			Name: "id", In: "path", Required: true, Schema: &Schema{Type: "string"},
		})
	}

	body := Schema{Type: "object", Properties: map[string]Schema{}}
	for _, p := range cmd.Params {
		if pathParam && p.Parameter == "id" {
			continue
		}
		schema := paramSchema(p)
		if rt.Method == "GET" || rt.Method == "DELETE" {
			op.Parameters = append(op.Parameters, Parameter{
				Name:        p.Parameter,
				In:          "query",
				Required:    !p.Optional && p.Type != "bool",
				Description: p.Desc,
				Schema:      &schema,
			})
			continue
		}
		body.Properties[p.Parameter] = schema
	}
	if len(body.Properties) > 0 {
		op.RequestBody = &RequestBody{Content: map[string]MediaType{
			"application/json": {Schema: &body},
		}}
	}
	return op
}

func paramSchema(p panel.ParamDoc) Schema {
	s := Schema{Description: p.Desc}
	switch p.Type {
	case "bool":
		s.Type = "boolean"
	case "int":
		s.Type, s.Format = "integer", "int64"
	case "array":
		s.Type = "array"
		s.Items = &Schema{Type: "integer"}
	case "string":
		s.Type = "string"
	default:
		s.Type = "object"
	}
	return s
}

func standardResponses() map[string]Response {
	errBody := map[string]MediaType{
		"application/json": {Schema: &Schema{Ref: "#/components/schemas/Error"}},
	}
	return map[string]Response{
		"200": {
			Description: "Successful operation",
			Content: map[string]MediaType{
				"application/json": {Schema: &Schema{Ref: "#/components/schemas/Data"}},
			},
		},
		"400": {Description: "Invalid parameters", Content: errBody},
		"401": {Description: "Not authenticated", Content: errBody},
		"403": {Description: "Not allowed", Content: errBody},
		"404": {Description: "Not found", Content: errBody},
	}
}

func commandNames(reg *panel.Registry) []string {
	var names []string
	for _, cmd := range reg.List("") {
		names = append(names, cmd.Name())
	}
	sort.Strings(names)
	return names
}

func addPath(doc *OpenAPI, path, method string, op *Operation) {
	item := doc.Paths[path]
	switch method {
	case "GET":
		item.Get = op
	case "POST":
		item.Post = op
	case "PUT":
		item.Put = op
	case "DELETE":
		item.Delete = op
	}
	doc.Paths[path] = item
}
