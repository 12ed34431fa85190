package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// CommandRoute maps a REST route onto a registry command. Parameters are
// merged from the query string, the JSON body and the {id} path segment.
type CommandRoute struct {
	Method  string
	Path    string
	Command string
	// NameParam receives a non-numeric {id}, e.g. a login name.
	NameParam string
}

// CommandRoutes is the REST surface of the command registry.
var CommandRoutes = []CommandRoute{
	{Method: "GET", Path: "/api/domains", Command: "Domains.list"},
	{Method: "POST", Path: "/api/domains", Command: "Domains.add"},
	{Method: "GET", Path: "/api/domains/{id}", Command: "Domains.get"},
	{Method: "PUT", Path: "/api/domains/{id}", Command: "Domains.update"},
	{Method: "DELETE", Path: "/api/domains/{id}", Command: "Domains.delete"},

	{Method: "GET", Path: "/api/ipsandports", Command: "IpsAndPorts.list"},
	{Method: "POST", Path: "/api/ipsandports", Command: "IpsAndPorts.add"},
	{Method: "GET", Path: "/api/ipsandports/{id}", Command: "IpsAndPorts.get"},
	{Method: "PUT", Path: "/api/ipsandports/{id}", Command: "IpsAndPorts.update"},
	{Method: "DELETE", Path: "/api/ipsandports/{id}", Command: "IpsAndPorts.delete"},

	{Method: "GET", Path: "/api/phpsettings", Command: "PhpSettings.list"},
	{Method: "POST", Path: "/api/phpsettings", Command: "PhpSettings.add"},
	{Method: "GET", Path: "/api/phpsettings/{id}", Command: "PhpSettings.get"},
	{Method: "PUT", Path: "/api/phpsettings/{id}", Command: "PhpSettings.update"},
	{Method: "DELETE", Path: "/api/phpsettings/{id}", Command: "PhpSettings.delete"},

	{Method: "GET", Path: "/api/backups", Command: "Backups.listing"},
	{Method: "GET", Path: "/api/backups/count", Command: "Backups.listingCount"},
	{Method: "POST", Path: "/api/backups", Command: "Backups.add"},
	{Method: "GET", Path: "/api/backups/{id}", Command: "Backups.get"},
	{Method: "PUT", Path: "/api/backups/{id}", Command: "Backups.update"},
	{Method: "DELETE", Path: "/api/backups/{id}", Command: "Backups.delete"},

	{Method: "GET", Path: "/api/customers", Command: "Customers.listing"},
	{Method: "POST", Path: "/api/customers", Command: "Customers.add"},
	{Method: "GET", Path: "/api/customers/{id}", Command: "Customers.get", NameParam: "loginname"},

	{Method: "GET", Path: "/api/admins", Command: "Admins.listing"},
	{Method: "POST", Path: "/api/admins", Command: "Admins.add"},
	{Method: "GET", Path: "/api/admins/{id}", Command: "Admins.get", NameParam: "loginname"},

	{Method: "GET", Path: "/api/system/update", Command: "System.checkUpdate"},
	{Method: "GET", Path: "/api/system/functions", Command: "System.listFunctions"},
}

// CommandRequest is the body of POST /api.
type CommandRequest struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params"`
}

var errInvalidBody = errors.New("invalid request body")

// handleCommand serves POST /api, the command endpoint of the original API.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBodyError(w, r, err)
		return
	}
	if req.Command == "" {
		WriteError(w, r, http.StatusBadRequest, "invalidbody")
		return
	}
	params := []byte(req.Params)
	if len(bytes.TrimSpace(params)) == 0 || string(bytes.TrimSpace(params)) == "null" {
		params = []byte("{}")
	}
	s.runCommand(w, r, req.Command, params)
}

func (s *Server) commandHandler(rt CommandRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := requestParams(r, rt.NameParam)
		if err != nil {
			s.writeBodyError(w, r, err)
			return
		}
		s.runCommand(w, r, rt.Command, params)
	}
}

func (s *Server) runCommand(w http.ResponseWriter, r *http.Request, command string, params []byte) {
	out, err := s.panel.Execute(r.Context(), callerFrom(r.Context()), command, params)
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, DataResponse{Data: out})
}

func (s *Server) writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteError(w, r, http.StatusRequestEntityTooLarge, "invalidbody")
		return
	}
	WriteError(w, r, http.StatusBadRequest, "invalidbody")
}

// requestParams builds the command's JSON parameters. Body fields override
// query values; the path {id} overrides both.
func requestParams(r *http.Request, nameParam string) ([]byte, error) {
	params := make(map[string]json.RawMessage)

	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		params[key] = queryValue(values[len(values)-1])
	}

	if r.Body != nil && r.Method != http.MethodGet {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(body)) > 0 {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(body, &fields); err != nil {
				return nil, errInvalidBody
			}
			for k, v := range fields {
				params[k] = v
			}
		}
	}

	if id := r.PathValue("id"); id != "" {
		if _, err := strconv.ParseInt(id, 10, 64); err == nil || nameParam == "" {
			params["id"] = mustString(id)
		} else {
			params[nameParam] = mustString(id)
		}
	}
	return json.Marshal(params)
}

// queryValue passes JSON objects and arrays through (sql_search=...), and
// sends everything else as a string. Numeric and flag parameters accept
// strings.
func queryValue(v string) json.RawMessage {
	t := strings.TrimSpace(v)
	if (strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[")) && json.Valid([]byte(t)) {
		return json.RawMessage(t)
	}
	return mustString(v)
}

func mustString(v string) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
