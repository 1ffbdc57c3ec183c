package api

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"apphost/manager"
	"apphost/topology"
	"apphost/types"
)

// ResourceHandler handles API requests about the resource graph and its state.
type ResourceHandler struct {
	graph        *topology.ResourceGraph
	stateManager *manager.StateManager
	logger       *slog.Logger
}

// NewResourceHandler creates a new ResourceHandler.
func NewResourceHandler(g *topology.ResourceGraph, sm *manager.StateManager, logger *slog.Logger) *ResourceHandler {
	return &ResourceHandler{graph: g, stateManager: sm, logger: logger.With("component", "api")}
}

var graphContentTypes = map[topology.Format]string{
	topology.FormatJSON:    "application/json",
	topology.FormatYAML:    "application/yaml",
	topology.FormatDOT:     "text/vnd.graphviz",
	topology.FormatMermaid: "text/plain; charset=utf-8",
}

// GetGraph godoc
// @Summary Export the resource graph
// @Description Returns the graph as json (default), yaml, dot or mermaid
// @Tags graph
// @Produce json
// @Param format query string false "json, yaml, dot or mermaid"
// @Success 200 {object} topology.ResourceGraph
// @Failure 400 {object} map[string]string "error: Unknown format"
// @Router /graph [get]
func (h *ResourceHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	format := topology.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = topology.FormatJSON
	}
	contentType, ok := graphContentTypes[format]
	if !ok {
		writeJSON(w, h.logger, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown format %q", format)})
		return
	}

	var buf bytes.Buffer
	if err := h.graph.Encode(&buf, format); err != nil {
		h.logger.Error("failed to encode graph", "format", format, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(buf.Bytes())
}

// resourceResponse joins a graph node with its runtime state.
type resourceResponse struct {
	types.ResourceStatus
	DependsOn []string `json:"depends_on,omitempty"`
}

// ListResources godoc
// @Summary List resources
// @Description Returns every resource of the graph in provisioning order with its state
// @Tags resources
// @Produce json
// @Success 200 {array} resourceResponse
// @Router /resources [get]
func (h *ResourceHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	out := make([]resourceResponse, 0, len(h.graph.TopoOrder))
	for _, name := range h.graph.TopoOrder {
		out = append(out, h.resource(name))
	}
	writeJSON(w, h.logger, http.StatusOK, out)
}

// GetResource godoc
// @Summary Get a resource
// @Tags resources
// @Produce json
// @Param name path string true "Resource name"
// @Success 200 {object} resourceResponse
// @Failure 404 {object} map[string]string "error: Resource not found"
// @Router /resources/{name} [get]
func (h *ResourceHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := h.graph.Node(name); !ok {
		writeJSON(w, h.logger, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("resource '%s' not found", name)})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, h.resource(name))
}

func (h *ResourceHandler) resource(name string) resourceResponse {
	node, _ := h.graph.Node(name)
	status, ok := h.stateManager.GetResource(name)
	if !ok {
		status = types.ResourceStatus{Name: name, Kind: node.Kind, State: types.StateIdle}
	}
	return resourceResponse{ResourceStatus: status, DependsOn: h.graph.DependenciesOf(name)}
}
