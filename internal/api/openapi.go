package api

import (
	"net/http"

	"gopkg.in/yaml.v2"

	"grimm.is/hearth/internal/api/spec"
	"grimm.is/hearth/internal/brand"
	"grimm.is/hearth/internal/panel"
)

// OpenAPIDocument describes the REST routes and the command endpoint.
func OpenAPIDocument(reg *panel.Registry, version string) *spec.OpenAPI {
	routes := make([]spec.Route, 0, len(CommandRoutes))
	for _, rt := range CommandRoutes {
		routes = append(routes, spec.Route{Method: rt.Method, Path: rt.Path, Command: rt.Command})
	}
	b := brand.Get()
	return spec.Generate(spec.Info{
		Title:       b.Name + " API",
		Description: b.Description,
		Version:     version,
	}, reg, routes)
}

func (s *Server) handleOpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, OpenAPIDocument(s.panel.Registry(), s.version))
}

func (s *Server) handleOpenAPIYAML(w http.ResponseWriter, r *http.Request) {
	out, err := yaml.Marshal(OpenAPIDocument(s.panel.Registry(), s.version))
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(out)
}
