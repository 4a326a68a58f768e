package session

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uibridge/cdpgate/internal/infrastructure/logging"
	"github.com/uibridge/cdpgate/internal/infrastructure/monitoring"
	"github.com/uibridge/cdpgate/internal/shared/types"
	"github.com/uibridge/cdpgate/internal/wire"
)

// DisconnectNotice is the synthesized payload delivered to the UI host when
// the remote side is gone. It travels the same path as inbound commands.
var DisconnectNotice = json.RawMessage(`"DISCONNECT"`)

// Callback consumes the result member of a correlated response. It runs on
// whichever goroutine the response arrived on; consumers re-marshal onto
// their own context if they need to.
type Callback func(result json.RawMessage)

// UIBridge is the session's view of the UI host. DeliverInboundCommand must
// not block the calling goroutine.
type UIBridge interface {
	DeliverInboundCommand(pageID types.PageID, payload json.RawMessage)
}

// OutboundSink consumes flushed batch frames. Implementations look up the
// live connection and write; they never block on UI work.
type OutboundSink interface {
	DispatchOutbound(pageID types.PageID, frame []byte)
}

// Session correlates outbound requests with responses and batches outbound
// delivery for one page.
type Session struct {
	pageID   types.PageID
	interval time.Duration
	ui       UIBridge
	sink     OutboundSink
	log      *logging.Logger
	metrics  *monitoring.Metrics

	mu        sync.Mutex
	nextID    types.RequestID
	pending   map[types.RequestID]Callback
	queue     []wire.Request
	scheduled bool
	timer     *time.Timer
	closed    bool
}

// New creates a session for pageID. The flush timer is armed lazily on the
// first enqueue.
func New(pageID types.PageID, interval time.Duration, ui UIBridge, sink OutboundSink, log *logging.Logger, metrics *monitoring.Metrics) *Session {
	return &Session{
		pageID:   pageID,
		interval: interval,
		ui:       ui,
		sink:     sink,
		log:      log,
		metrics:  metrics,
		pending:  make(map[types.RequestID]Callback),
	}
}

// PageID returns the page this session serves.
func (s *Session) PageID() types.PageID {
	return s.pageID
}

// SendRequest enqueues a UI-originated request for batched delivery. The
// next RequestID is allocated unconditionally; cb, when non-nil, is recorded
// before the envelope can reach the wire. A nil cb leaves the wire id null
// since no response will be consumed.
func (s *Session) SendRequest(payload json.RawMessage, cb Callback) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Debug("Request after teardown dropped", zap.String("page", string(s.pageID)))
		return
	}

	s.nextID++
	id := s.nextID
	if cb != nil {
		s.pending[id] = cb
		s.metrics.PendingRequests.Inc()
	}

	s.queue = append(s.queue, wire.NewRequest(int64(id), cb != nil, payload))
	if !s.scheduled {
		s.scheduled = true
		s.timer = time.AfterFunc(s.interval, s.flush)
	}
	s.mu.Unlock()
}

// flush runs on the timer goroutine. It takes the whole queue and emits it
// as one frame; the sink write happens with no lock held.
func (s *Session) flush() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.scheduled = false
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	frame, err := wire.EncodeBatch(batch)
	if err != nil {
		s.log.Error("Batch encode failed",
			zap.String("page", string(s.pageID)),
			zap.Int("payloads", len(batch)),
			zap.Error(err))
		s.metrics.RecordFrameDropped(monitoring.DropMalformed)
		return
	}

	s.sink.DispatchOutbound(s.pageID, frame)
	s.metrics.RecordFrameSent(len(batch))
}

// HandleFrame classifies one inbound frame. Responses pop and invoke their
// pending callback on the arriving goroutine; everything else is handed to
// the UI host as an opaque command.
func (s *Session) HandleFrame(frame []byte) {
	if wire.Classify(frame) != wire.KindResponse {
		s.metrics.CommandsForwarded.Inc()
		s.ui.DeliverInboundCommand(s.pageID, json.RawMessage(frame))
		return
	}

	resp, err := wire.DecodeResponse(frame)
	if err != nil {
		s.log.Warn("Undecodable response frame",
			zap.String("page", string(s.pageID)),
			zap.Error(err))
		s.metrics.RecordFrameDropped(monitoring.DropMalformed)
		return
	}

	id := types.RequestID(resp.ID)
	s.mu.Lock()
	cb, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
		s.metrics.PendingRequests.Dec()
	}
	closed := s.closed
	s.mu.Unlock()

	if !ok {
		if !closed {
			s.log.Warn("Response for unknown request id",
				zap.String("page", string(s.pageID)),
				zap.Int64("id", resp.ID))
		}
		s.metrics.RecordResponse(monitoring.ResponseUnknownID)
		return
	}

	// Invoked outside the lock; a callback may re-enter SendRequest.
	cb(resp.Result)
	s.metrics.RecordResponse(monitoring.ResponseMatched)
}

// RemoteDisconnected handles the client socket going away while the page
// lives on. Queued outbound items are discarded and the UI host is told the
// remote side is gone. Pending callbacks stay: removal is reserved to a
// matching response or teardown.
func (s *Session) RemoteDisconnected() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	discarded := len(s.queue)
	s.queue = nil
	s.mu.Unlock()

	s.log.Info("Client disconnected",
		zap.String("page", string(s.pageID)),
		zap.Int("discarded", discarded))

	s.ui.DeliverInboundCommand(s.pageID, DisconnectNotice)
	s.metrics.DisconnectNotices.Inc()
}

// Close tears the session down: the flush timer stops, pending callbacks
// are dropped uninvoked, the queue is discarded without emitting, and the
// UI host receives exactly one disconnect notice. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	dropped := len(s.pending)
	discarded := len(s.queue)
	s.pending = nil
	s.queue = nil
	s.mu.Unlock()

	if dropped > 0 {
		s.metrics.PendingRequests.Sub(float64(dropped))
	}
	s.log.Info("Session closed",
		zap.String("page", string(s.pageID)),
		zap.Int("dropped_callbacks", dropped),
		zap.Int("discarded_queued", discarded))

	s.ui.DeliverInboundCommand(s.pageID, DisconnectNotice)
	s.metrics.DisconnectNotices.Inc()
}
