package http

import (
	"net/http"
	"net/url"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/uibridge/cdpgate/internal/domain/registry"
	"github.com/uibridge/cdpgate/internal/shared/types"
)

// Identity constants advertised on /json/version, following the DevTools
// discovery convention.
const (
	browserName     = "CDPGate/1.0"
	protocolVersion = "1.3"
	v8Version       = "9.0.257.25"
	webKitVersion   = "537.36 (@181352)"
)

// Handlers serves the DevTools discovery surface.
type Handlers struct {
	registry *registry.Manager
	// advertise yields the host:port clients dial back, e.g. "localhost:9222".
	// Resolved per request so documents carry the bound port.
	advertise func() string
}

// NewHandlers creates the discovery handler set. advertise supplies the
// host:port embedded in every returned WebSocket URL.
func NewHandlers(reg *registry.Manager, advertise func() string) *Handlers {
	return &Handlers{
		registry:  reg,
		advertise: advertise,
	}
}

// Version handles GET /json/version with the fixed identity document.
func (h *Handlers) Version(c *gin.Context) {
	c.JSON(http.StatusOK, types.VersionInfo{
		Browser:              browserName,
		ProtocolVersion:      protocolVersion,
		UserAgent:            browserName,
		V8Version:            v8Version,
		WebKitVersion:        webKitVersion,
		WebSocketDebuggerURL: "ws://" + h.advertise() + "/ws",
	})
}

// List handles GET /json/list with a snapshot of all registered pages,
// sorted by title then id for stable listings. An empty registry yields [].
func (h *Handlers) List(c *gin.Context) {
	pages := h.registry.Pages()
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].Title != pages[j].Title {
			return pages[i].Title < pages[j].Title
		}
		return pages[i].ID < pages[j].ID
	})

	entries := make([]types.PageEntry, 0, len(pages))
	advertise := h.advertise()
	for _, page := range pages {
		// Ids like View#1 must survive URL transport.
		socket := advertise + "/ws/" + url.PathEscape(string(page.ID))
		entries = append(entries, types.PageEntry{
			DevtoolsFrontendURL:  "devtools://devtools/bundled/inspector.html?ws=" + socket,
			ID:                   string(page.ID),
			Title:                page.Title,
			Type:                 "page",
			URL:                  page.EffectiveURL(),
			WebSocketDebuggerURL: "ws://" + socket,
		})
	}

	c.JSON(http.StatusOK, entries)
}

// Health handles GET /healthz liveness checks.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  browserName,
		"registry": h.registry.Stats(),
	})
}

// NotFound answers every unmatched path, matching the discovery
// convention's plain-text 404.
func (h *Handlers) NotFound(c *gin.Context) {
	c.String(http.StatusNotFound, "Not Found")
}
