package handler

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/delivery/http/request"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/delivery/http/response"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
)

const maxImportBody = 1 << 20

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// ProxyAdmin is the slice of the proxy pool exposed over HTTP.
type ProxyAdmin interface {
	Stats(ctx context.Context) (entity.ProxyStats, error)
	Import(ctx context.Context, text string) (added, rejected int, err error)
}

// ScopeReporter lists persisted scope state.
type ScopeReporter interface {
	ScopeStates(ctx context.Context) ([]entity.ScopeState, error)
}

type Handler struct {
	checks  map[string]HealthCheck
	proxies ProxyAdmin
	scopes  ScopeReporter
	logger  *zap.Logger
}

// NewHandler creates the admin handler. proxies may be nil when the pool is disabled.
func NewHandler(checks map[string]HealthCheck, proxies ProxyAdmin, scopes ScopeReporter, logger *zap.Logger) *Handler {
	return &Handler{checks: checks, proxies: proxies, scopes: scopes, logger: logger}
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := response.HealthResponse{Status: "healthy", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
			resp.Checks[name] = "unhealthy"
			resp.Status = "unhealthy"
			continue
		}
		resp.Checks[name] = "healthy"
	}

	if resp.Status != "healthy" {
		h.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleProxyStats(w http.ResponseWriter, r *http.Request) {
	if h.proxies == nil {
		h.writeJSONError(w, "Proxy pool is disabled", http.StatusNotFound)
		return
	}
	stats, err := h.proxies.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to count proxies", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.ProxyStatsResponse{Total: stats.Total, Active: stats.Active, Evicted: stats.Evicted})
}

// HandleImportProxies accepts either a plain text body or a JSON
// {"proxies": "..."} document.
func (h *Handler) HandleImportProxies(w http.ResponseWriter, r *http.Request) {
	if h.proxies == nil {
		h.writeJSONError(w, "Proxy pool is disabled", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBody))
	if err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	text := string(body)
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		var req request.ImportProxiesRequest
		if err := json.Unmarshal(body, &req); err != nil {
			h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		text = req.Proxies
	}
	if strings.TrimSpace(text) == "" {
		h.writeJSONError(w, "Proxy list is empty", http.StatusBadRequest)
		return
	}

	added, rejected, err := h.proxies.Import(r.Context(), text)
	if err != nil {
		h.logger.Error("failed to import proxies", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.ImportProxiesResponse{Added: added, Rejected: rejected})
}

func (h *Handler) HandleListSources(w http.ResponseWriter, r *http.Request) {
	states, err := h.scopes.ScopeStates(r.Context())
	if err != nil {
		h.logger.Error("failed to load scope states", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.SourcesResponse{Sources: states})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message})
}
