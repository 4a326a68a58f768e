package ws

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uibridge/cdpgate/internal/domain/registry"
	"github.com/uibridge/cdpgate/internal/infrastructure/logging"
	"github.com/uibridge/cdpgate/internal/infrastructure/monitoring"
	"github.com/uibridge/cdpgate/internal/shared/types"
	"github.com/uibridge/cdpgate/internal/wire"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // DevTools frontends connect from devtools:// origins
	},
}

// Handler terminates WebSocket upgrades on /ws/<PageId> and pumps inbound
// frames into the registry. Unknown page ids are accepted; their frames are
// dropped downstream so a client may attach moments before its page
// registers.
type Handler struct {
	registry  *registry.Manager
	log       *logging.Logger
	metrics   *monitoring.Metrics
	readLimit int64
	writeWait time.Duration

	draining atomic.Bool
	readers  sync.WaitGroup
}

// NewHandler creates a WebSocket handler dispatching into reg.
func NewHandler(reg *registry.Manager, readLimit int64, writeWait time.Duration, log *logging.Logger, metrics *monitoring.Metrics) *Handler {
	return &Handler{
		registry:  reg,
		log:       log,
		metrics:   metrics,
		readLimit: readLimit,
		writeWait: writeWait,
	}
}

// PageIDFromPath extracts the page id from a gin catch-all parameter. The
// id is the exact path suffix after /ws/; net/url has already unescaped
// percent-encoded forms like View%231.
func PageIDFromPath(param string) types.PageID {
	return types.PageID(strings.TrimPrefix(param, "/"))
}

// HandleConnection upgrades the request and runs the read loop until the
// socket dies. Runs on the server's per-request goroutine.
func (h *Handler) HandleConnection(c *gin.Context) {
	pageID := PageIDFromPath(c.Param("page"))

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.log.Warn("WebSocket upgrade failed",
			zap.String("page", string(pageID)),
			zap.Error(err))
		return
	}
	socket.SetReadLimit(h.readLimit)
	conn := newConn(socket, h.writeWait)

	if h.draining.Load() {
		_ = conn.Close()
		return
	}

	h.readers.Add(1)
	defer h.readers.Done()

	h.log.Info("Socket accepted",
		zap.String("page", string(pageID)),
		zap.String("conn", conn.ID().String()),
		zap.String("remote", conn.RemoteAddr().String()))
	h.registry.ConnectionEstablished(pageID, conn)

	// The shutdown sweep may have run between the drain check and the
	// registry binding; close here so the loop below cannot outlive it.
	if h.draining.Load() {
		_ = conn.Close()
	}

	h.readLoop(pageID, conn)
}

// readLoop reads until close or error. Per-connection failures end only
// this connection.
func (h *Handler) readLoop(pageID types.PageID, conn *Conn) {
	defer func() {
		h.registry.ConnectionClosed(pageID, conn)
		_ = conn.Close()
		h.log.Info("Socket closed",
			zap.String("page", string(pageID)),
			zap.String("conn", conn.ID().String()))
	}()

	for {
		msgType, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.log.Warn("Socket read failed",
					zap.String("page", string(pageID)),
					zap.String("conn", conn.ID().String()),
					zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			h.log.Debug("Non-text frame ignored", zap.String("page", string(pageID)))
			continue
		}

		h.metrics.FramesReceived.Inc()
		if !wire.Valid(data) {
			h.log.Warn("Malformed JSON frame dropped",
				zap.String("page", string(pageID)),
				zap.Int("bytes", len(data)))
			h.metrics.RecordFrameDropped(monitoring.DropMalformed)
			continue
		}

		h.registry.DispatchInbound(pageID, data)
	}
}

// Drain makes the handler refuse new sockets. Part of the shutdown order:
// drain, sweep live connections, then Wait.
func (h *Handler) Drain() {
	h.draining.Store(true)
}

// Wait blocks until every read loop has exited.
func (h *Handler) Wait() {
	h.readers.Wait()
}
