package uihost

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/uibridge/cdpgate/internal/domain/session"
	"github.com/uibridge/cdpgate/internal/infrastructure/logging"
	"github.com/uibridge/cdpgate/internal/infrastructure/monitoring"
	"github.com/uibridge/cdpgate/internal/shared/types"
)

// ErrClosed is returned by host operations after Close.
var ErrClosed = errors.New("uihost: closed")

// Gate is the slice of the command bridge the host drives.
type Gate interface {
	PageRegistered(pageID types.PageID, title, url string)
	PageUnregistered(pageID types.PageID)
	SendRequest(pageID types.PageID, payload json.RawMessage, cb session.Callback)
}

type taskKind int

const (
	taskCommand taskKind = iota
	taskControl
)

type task struct {
	kind    taskKind
	pageID  types.PageID
	payload json.RawMessage
	run     func()
}

// Host is the single-threaded UI side of the gate. One loop goroutine owns
// every page VM; commands arrive through a bounded buffer and saturation
// drops them rather than stalling the network side.
type Host struct {
	gate    Gate
	log     *logging.Logger
	metrics *monitoring.Metrics

	tasks chan task
	quit  chan struct{}
	done  chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once

	// Loop-owned. Never touched from other goroutines.
	pages map[types.PageID]*page
	seq   map[string]int
}

// New creates a host and starts its loop. buffer bounds the command queue.
func New(buffer int, log *logging.Logger, metrics *monitoring.Metrics) *Host {
	h := &Host{
		log:     log,
		metrics: metrics,
		tasks:   make(chan task, buffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		pages:   make(map[types.PageID]*page),
		seq:     make(map[string]int),
	}
	go h.loop()
	return h
}

// AttachBridge wires the command bridge. Call once, before the first OpenPage.
func (h *Host) AttachBridge(gate Gate) {
	h.gate = gate
}

// DeliverInboundCommand hands a command to the loop. It never blocks: with
// the buffer full the command is dropped and counted.
func (h *Host) DeliverInboundCommand(pageID types.PageID, payload json.RawMessage) {
	if h.closed.Load() {
		return
	}
	select {
	case h.tasks <- task{kind: taskCommand, pageID: pageID, payload: payload}:
	default:
		h.log.Warn("UI task buffer full, dropping command",
			zap.String("page_id", string(pageID)),
		)
		h.metrics.RecordFrameDropped(monitoring.DropUIBusy)
	}
}

// OpenPage creates a page named "<title>#<n>", runs the optional script in
// its fresh VM, and registers it with the gate.
func (h *Host) OpenPage(title, url, script string) (types.PageID, error) {
	if h.gate == nil {
		return "", errors.New("uihost: no bridge attached")
	}

	type result struct {
		id  types.PageID
		err error
	}
	reply := make(chan result, 1)

	err := h.control(func() {
		h.seq[title]++
		id := types.PageID(fmt.Sprintf("%s#%d", title, h.seq[title]))
		p := newPage(h, id, title, url)
		if script != "" {
			if _, err := p.vm.RunString(script); err != nil {
				reply <- result{err: fmt.Errorf("page script: %w", err)}
				return
			}
		}
		h.pages[id] = p
		h.gate.PageRegistered(id, title, url)
		h.log.Info("Page opened",
			zap.String("page_id", string(id)),
			zap.String("title", title),
		)
		reply <- result{id: id}
	})
	if err != nil {
		return "", err
	}

	select {
	case res := <-reply:
		return res.id, res.err
	case <-h.quit:
		return "", ErrClosed
	}
}

// ClosePage tears a page down and unregisters it from the gate.
func (h *Host) ClosePage(pageID types.PageID) error {
	reply := make(chan error, 1)

	err := h.control(func() {
		if _, ok := h.pages[pageID]; !ok {
			reply <- fmt.Errorf("uihost: unknown page %s", pageID)
			return
		}
		delete(h.pages, pageID)
		h.gate.PageUnregistered(pageID)
		h.log.Info("Page closed", zap.String("page_id", string(pageID)))
		reply <- nil
	})
	if err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-h.quit:
		return ErrClosed
	}
}

// Console returns a copy of the page's captured console output.
func (h *Host) Console(pageID types.PageID) ([]LogEntry, error) {
	type result struct {
		entries []LogEntry
		err     error
	}
	reply := make(chan result, 1)

	err := h.control(func() {
		p, ok := h.pages[pageID]
		if !ok {
			reply <- result{err: fmt.Errorf("uihost: unknown page %s", pageID)}
			return
		}
		reply <- result{entries: p.consoleSnapshot()}
	})
	if err != nil {
		return nil, err
	}

	select {
	case res := <-reply:
		return res.entries, res.err
	case <-h.quit:
		return nil, ErrClosed
	}
}

// Close drains queued work, unregisters every page, and joins the loop.
// Idempotent.
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.quit)
		<-h.done
	})
}

// control enqueues a closure for the loop, blocking until there is room.
func (h *Host) control(run func()) error {
	if h.closed.Load() {
		return ErrClosed
	}
	select {
	case h.tasks <- task{kind: taskControl, run: run}:
		return nil
	case <-h.quit:
		return ErrClosed
	}
}

func (h *Host) loop() {
	for {
		select {
		case <-h.quit:
			// Drain what made it into the buffer, then tear down.
			for {
				select {
				case t := <-h.tasks:
					h.handle(t)
				default:
					h.teardown()
					close(h.done)
					return
				}
			}
		case t := <-h.tasks:
			h.handle(t)
		}
	}
}

func (h *Host) handle(t task) {
	if t.kind == taskControl {
		t.run()
		return
	}
	h.handleCommand(t.pageID, t.payload)
}

func (h *Host) teardown() {
	for id := range h.pages {
		if h.gate != nil {
			h.gate.PageUnregistered(id)
		}
	}
	h.pages = make(map[types.PageID]*page)
}

func (h *Host) handleCommand(pageID types.PageID, payload json.RawMessage) {
	p, ok := h.pages[pageID]
	if !ok {
		h.log.Debug("Command for unknown page", zap.String("page_id", string(pageID)))
		return
	}

	if bytes.Equal(payload, session.DisconnectNotice) {
		p.resetConsole()
		h.log.Info("DevTools detached", zap.String("page_id", string(pageID)))
		return
	}

	method := gjson.GetBytes(payload, "method").Str
	id := gjson.GetBytes(payload, "id")

	switch method {
	case "Runtime.evaluate":
		expr := gjson.GetBytes(payload, "params.expression").Str
		h.reply(pageID, id, p.evaluate(expr))
	case "Page.getTitle":
		h.reply(pageID, id, map[string]interface{}{"title": p.title})
	default:
		h.log.Debug("Unhandled command",
			zap.String("page_id", string(pageID)),
			zap.String("method", method),
		)
	}
}

// reply sends a host-originated message echoing the client's own correlation
// id. It rides the ordinary outbound batch path.
func (h *Host) reply(pageID types.PageID, id gjson.Result, body map[string]interface{}) {
	msg := map[string]interface{}{"result": body}
	if id.Exists() {
		msg["id"] = id.Value()
	}
	payload, err := sonic.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to encode reply", zap.Error(err))
		return
	}
	h.send(pageID, payload, nil)
}

func (h *Host) send(pageID types.PageID, payload json.RawMessage, cb session.Callback) {
	h.gate.SendRequest(pageID, payload, cb)
}

// resultCallback adapts a correlated response into a loop task invoking fn.
// The response arrives on a network goroutine; the VM must not run there.
func (h *Host) resultCallback(pageID types.PageID, fn goja.Callable) session.Callback {
	return func(result json.RawMessage) {
		if h.closed.Load() {
			return
		}
		t := task{kind: taskControl, run: func() {
			p, ok := h.pages[pageID]
			if !ok {
				return
			}
			var v interface{}
			if err := sonic.Unmarshal(result, &v); err != nil {
				h.log.Warn("Undecodable query result", zap.Error(err))
				return
			}
			if _, err := fn(goja.Undefined(), p.vm.ToValue(v)); err != nil {
				h.log.Warn("Query callback failed", zap.Error(err))
			}
		}}
		select {
		case h.tasks <- t:
		default:
			h.log.Warn("UI task buffer full, dropping query result",
				zap.String("page_id", string(pageID)),
			)
			h.metrics.RecordFrameDropped(monitoring.DropUIBusy)
		}
	}
}
