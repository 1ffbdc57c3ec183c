package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"apphost/cloudflare"
	"apphost/manager"
	"apphost/types"
)

// DomainHandler handles API requests related to ingress domains.
type DomainHandler struct {
	cloudflareManager *cloudflare.Manager
	stateManager      *manager.StateManager
	logger            *slog.Logger
}

// NewDomainHandler creates a new DomainHandler.
func NewDomainHandler(cm *cloudflare.Manager, sm *manager.StateManager, logger *slog.Logger) *DomainHandler {
	return &DomainHandler{
		cloudflareManager: cm,
		stateManager:      sm,
		logger:            logger.With("component", "api"),
	}
}

// GetDomain godoc
// @Summary Get the ingress domain of a resource
// @Tags domains
// @Produce json
// @Param name path string true "Resource name"
// @Success 200 {object} types.IngressDomain "Domain information"
// @Failure 404 {object} map[string]string "error: Resource or domain not found"
// @Router /domains/{name} [get]
func (h *DomainHandler) GetDomain(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if _, exists := h.stateManager.GetResource(name); !exists {
		writeJSON(w, h.logger, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("resource '%s' not found", name)})
		return
	}

	domain, exists := h.cloudflareManager.GetIngress(name)
	if !exists {
		writeJSON(w, h.logger, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("domain for resource '%s' not found", name)})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, domain)
}

// ListAllDomains godoc
// @Summary List all domains
// @Tags domains
// @Produce json
// @Success 200 {array} types.IngressDomain "List of domains"
// @Router /domains [get]
func (h *DomainHandler) ListAllDomains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, h.cloudflareManager.GetAllIngress())
}

// CreateDomain godoc
// @Summary Create a domain for a running container
// @Tags domains
// @Produce json
// @Param name path string true "Resource name"
// @Success 201 {object} types.IngressDomain "The created domain"
// @Success 200 {object} map[string]string "message: Domain creation skipped"
// @Failure 400 {object} map[string]string "error: Domain exists or resource is not a container"
// @Failure 404 {object} map[string]string "error: Resource not found"
// @Failure 500 {object} map[string]string "error: Failed to create domain"
// @Router /domains/{name} [post]
func (h *DomainHandler) CreateDomain(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	status, exists := h.stateManager.GetResource(name)
	if !exists {
		writeJSON(w, h.logger, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("resource '%s' not found", name)})
		return
	}
	if status.Kind != types.KindContainer {
		writeJSON(w, h.logger, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("resource '%s' is a %s, not a container", name, status.Kind)})
		return
	}
	if _, exists := h.cloudflareManager.GetIngress(name); exists {
		writeJSON(w, h.logger, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("domain for resource '%s' already exists", name)})
		return
	}

	domain, err := h.cloudflareManager.RegisterIngress(r.Context(), name)
	if err != nil {
		h.logger.Error("failed to create domain", "resource", name, "error", err)
		writeJSON(w, h.logger, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to create domain: %v", err)})
		return
	}
	if domain == nil {
		writeJSON(w, h.logger, http.StatusOK, map[string]string{"message": "Domain creation skipped (Cloudflare integration disabled)"})
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, domain)
}

// DeleteDomain godoc
// @Summary Delete the domain of a resource
// @Tags domains
// @Produce json
// @Param name path string true "Resource name"
// @Success 200 {object} map[string]string "message: Domain deleted successfully"
// @Failure 404 {object} map[string]string "error: Domain not found"
// @Failure 500 {object} map[string]string "error: Failed to delete domain"
// @Router /domains/{name} [delete]
func (h *DomainHandler) DeleteDomain(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if _, exists := h.cloudflareManager.GetIngress(name); !exists {
		writeJSON(w, h.logger, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("domain for resource '%s' not found", name)})
		return
	}

	if err := h.cloudflareManager.DeleteIngress(r.Context(), name); err != nil {
		h.logger.Error("failed to delete domain", "resource", name, "error", err)
		writeJSON(w, h.logger, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to delete domain: %v", err)})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"message": "Domain deleted successfully"})
}
