package registry

import (
	"sync"

	"go.uber.org/zap"

	"github.com/uibridge/cdpgate/internal/domain/session"
	"github.com/uibridge/cdpgate/internal/infrastructure/logging"
	"github.com/uibridge/cdpgate/internal/infrastructure/monitoring"
	"github.com/uibridge/cdpgate/internal/shared/types"
)

// Conn is the registry's view of one live client socket.
type Conn interface {
	// WriteText writes one text frame. Safe for concurrent use.
	WriteText(frame []byte) error
	// Close tears the socket down. Safe to call more than once.
	Close() error
}

// Stats reports current registry occupancy.
type Stats struct {
	Pages       int `json:"pages"`
	Connections int `json:"connections"`
}

type entry struct {
	session *session.Session
	page    types.Page
}

// Manager holds the page and connection maps. All methods are safe for
// concurrent use from network and UI goroutines.
type Manager struct {
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	sessions map[types.PageID]entry
	conns    map[types.PageID]Conn
}

// NewManager creates an empty registry.
func NewManager(log *logging.Logger, metrics *monitoring.Metrics) *Manager {
	return &Manager{
		log:      log,
		metrics:  metrics,
		sessions: make(map[types.PageID]entry),
		conns:    make(map[types.PageID]Conn),
	}
}

// Register binds page to s, replacing any prior entry for the same id.
// A displaced session is closed so its timer and pending callbacks cannot
// leak; states are never merged.
func (m *Manager) Register(page types.Page, s *session.Session) {
	m.mu.Lock()
	prior, existed := m.sessions[page.ID]
	m.sessions[page.ID] = entry{session: s, page: page}
	m.mu.Unlock()

	if existed && prior.session != s {
		m.log.Warn("Page re-registered, closing displaced session",
			zap.String("page", string(page.ID)))
		prior.session.Close()
	}
	if !existed {
		m.metrics.IncPages()
	}
	m.log.Info("Page registered",
		zap.String("page", string(page.ID)),
		zap.String("title", page.Title))
}

// Unregister removes the page and closes its session. No-op if absent.
func (m *Manager) Unregister(pageID types.PageID) {
	m.mu.Lock()
	prior, existed := m.sessions[pageID]
	delete(m.sessions, pageID)
	m.mu.Unlock()

	if !existed {
		return
	}
	m.metrics.DecPages()
	m.log.Info("Page unregistered", zap.String("page", string(pageID)))
	prior.session.Close()
}

// ConnectionEstablished binds conn as the page's live socket. The session
// may not exist yet; the binding happens regardless. A displaced socket for
// the same page is closed.
func (m *Manager) ConnectionEstablished(pageID types.PageID, conn Conn) {
	m.mu.Lock()
	displaced := m.conns[pageID]
	m.conns[pageID] = conn
	m.mu.Unlock()

	if displaced != nil && displaced != conn {
		// The old socket's close event will fail the identity check, so the
		// active gauge must not move here.
		m.metrics.ConnectionsTotal.Inc()
		m.log.Warn("Connection replaced", zap.String("page", string(pageID)))
		if err := displaced.Close(); err != nil {
			m.log.Debug("Displaced connection close failed",
				zap.String("page", string(pageID)), zap.Error(err))
		}
	} else {
		m.metrics.IncConnections()
	}
	m.log.Info("Client attached", zap.String("page", string(pageID)))
}

// ConnectionClosed removes conn from the map and tells the session the
// remote side is gone. Identity-checked: a close event for a socket that
// was already displaced by a newer one must not evict the newer binding.
func (m *Manager) ConnectionClosed(pageID types.PageID, conn Conn) {
	m.mu.Lock()
	current, ok := m.conns[pageID]
	if !ok || current != conn {
		m.mu.Unlock()
		return
	}
	delete(m.conns, pageID)
	ent, hasSession := m.sessions[pageID]
	m.mu.Unlock()

	m.metrics.DecConnections()
	m.log.Info("Client detached", zap.String("page", string(pageID)))
	if hasSession {
		ent.session.RemoteDisconnected()
	}
}

// DispatchInbound routes one already-validated frame to the page's session.
// Unknown pages log and drop; the caller's read loop is never disturbed.
func (m *Manager) DispatchInbound(pageID types.PageID, frame []byte) {
	m.mu.Lock()
	ent, ok := m.sessions[pageID]
	m.mu.Unlock()

	if !ok {
		m.log.Warn("Frame for unregistered page dropped",
			zap.String("page", string(pageID)),
			zap.Int("bytes", len(frame)))
		m.metrics.RecordFrameDropped(monitoring.DropNoSession)
		return
	}
	ent.session.HandleFrame(frame)
}

// DispatchOutbound writes one flushed frame to the page's live socket.
// Absent connections and write failures are logged and swallowed; nothing
// propagates back to the UI caller.
func (m *Manager) DispatchOutbound(pageID types.PageID, frame []byte) {
	m.mu.Lock()
	conn, ok := m.conns[pageID]
	m.mu.Unlock()

	if !ok {
		m.log.Debug("Not connected, dropping outbound frame",
			zap.String("page", string(pageID)))
		m.metrics.RecordFrameDropped(monitoring.DropNoConnection)
		return
	}
	if err := conn.WriteText(frame); err != nil {
		m.log.Warn("Outbound write failed",
			zap.String("page", string(pageID)),
			zap.Error(err))
		m.metrics.RecordFrameDropped(monitoring.DropWriteError)
	}
}

// Session returns the live session for pageID, if registered.
func (m *Manager) Session(pageID types.PageID) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ent, ok := m.sessions[pageID]
	if !ok {
		return nil, false
	}
	return ent.session, true
}

// Pages returns a snapshot of all registered pages.
func (m *Manager) Pages() []types.Page {
	m.mu.Lock()
	defer m.mu.Unlock()

	pages := make([]types.Page, 0, len(m.sessions))
	for _, ent := range m.sessions {
		pages = append(pages, ent.page)
	}
	return pages
}

// Stats returns current occupancy, for health reporting.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Pages: len(m.sessions), Connections: len(m.conns)}
}

// CloseConnections closes every live socket and empties the connection
// map. Sessions stay registered; shutdown tears them down separately.
func (m *Manager) CloseConnections() {
	m.mu.Lock()
	conns := make([]Conn, 0, len(m.conns))
	for id, conn := range m.conns {
		conns = append(conns, conn)
		delete(m.conns, id)
	}
	m.mu.Unlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			m.log.Debug("Connection close failed", zap.Error(err))
		}
		m.metrics.DecConnections()
	}
}

// PageIDs returns the ids of all registered pages.
func (m *Manager) PageIDs() []types.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]types.PageID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}
