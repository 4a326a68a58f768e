// Package bridge exposes the collaborator surface the host UI drives:
// page lifecycle in, outbound requests out. It owns session construction
// so the host never touches registry or session internals.
package bridge

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/uibridge/cdpgate/internal/domain/registry"
	"github.com/uibridge/cdpgate/internal/domain/session"
	"github.com/uibridge/cdpgate/internal/infrastructure/logging"
	"github.com/uibridge/cdpgate/internal/infrastructure/monitoring"
	"github.com/uibridge/cdpgate/internal/shared/types"
)

// Bridge is the host-facing facade over the registry and its sessions.
type Bridge struct {
	registry *registry.Manager
	ui       session.UIBridge
	interval time.Duration
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// New creates a bridge. Sessions it spawns flush on interval and hand
// inbound commands to ui.
func New(reg *registry.Manager, ui session.UIBridge, interval time.Duration, log *logging.Logger, metrics *monitoring.Metrics) *Bridge {
	return &Bridge{
		registry: reg,
		ui:       ui,
		interval: interval,
		log:      log,
		metrics:  metrics,
	}
}

// PageRegistered announces a new debuggable page. A fresh session is bound
// under its id; re-registration displaces the previous session.
func (b *Bridge) PageRegistered(pageID types.PageID, title, url string) {
	page := types.Page{ID: pageID, Title: title, URL: url}
	s := session.New(pageID, b.interval, b.ui, b.registry, b.log, b.metrics)
	b.registry.Register(page, s)
}

// PageUnregistered tears the page's session down. No-op for unknown ids.
func (b *Bridge) PageUnregistered(pageID types.PageID) {
	b.registry.Unregister(pageID)
}

// SendRequest enqueues a host-originated request on the page's session.
// Unknown pages log and drop; cb, if any, will then never fire.
func (b *Bridge) SendRequest(pageID types.PageID, payload json.RawMessage, cb session.Callback) {
	s, ok := b.registry.Session(pageID)
	if !ok {
		b.log.Warn("Request for unknown page dropped", zap.String("page", string(pageID)))
		b.metrics.RecordFrameDropped(monitoring.DropNoSession)
		return
	}
	s.SendRequest(payload, cb)
}

// Shutdown unregisters every page, closing all sessions. Called after the
// transport has stopped so no new frames race the teardown.
func (b *Bridge) Shutdown() {
	for _, id := range b.registry.PageIDs() {
		b.registry.Unregister(id)
	}
}
