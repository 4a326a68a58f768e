package server

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uibridge/cdpgate/internal/domain/session"
	"github.com/uibridge/cdpgate/internal/infrastructure/config"
	"github.com/uibridge/cdpgate/internal/infrastructure/logging"
	"github.com/uibridge/cdpgate/internal/infrastructure/monitoring"
	"github.com/uibridge/cdpgate/internal/shared/types"
	"github.com/uibridge/cdpgate/internal/wire"
)

type noopUI struct{}

func (noopUI) DeliverInboundCommand(types.PageID, json.RawMessage) {}

type recordingUI struct {
	mu  sync.Mutex
	got []json.RawMessage
}

func (r *recordingUI) DeliverInboundCommand(_ types.PageID, payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, append(json.RawMessage(nil), payload...))
}

func (r *recordingUI) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Port = "0"
	cfg.Bridge.FlushInterval = 100 * time.Millisecond
	cfg.RateLimit.Enabled = false
	return cfg
}

// startServer binds an ephemeral port, serves in the background, and tears
// the gate down through the full shutdown path on cleanup.
func startServer(t *testing.T, cfg *config.Config, ui session.UIBridge) *Server {
	t.Helper()
	metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())
	s := New(cfg, ui, logging.Nop(), metrics)
	require.NoError(t, s.Listen())

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	t.Cleanup(func() {
		assert.NoError(t, s.Close())
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("serve did not return after close")
		}
	})
	return s
}

func TestRoutes(t *testing.T) {
	metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())
	s := New(testConfig(), noopUI{}, logging.Nop(), metrics)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		s.Router().ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, get("/json/version").Code)
	assert.Equal(t, http.StatusOK, get("/json/list").Code)
	assert.Equal(t, http.StatusOK, get("/healthz").Code)

	w := get("/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cdpgate_uptime_seconds")

	w = get("/devtools/page")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not Found", w.Body.String())
}

func TestAdvertise(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = "9222"
	metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())
	s := New(cfg, noopUI{}, logging.Nop(), metrics)

	// Pre-bind the configured address is all there is.
	assert.Equal(t, "127.0.0.1:9222", s.Advertise())

	cfg = testConfig()
	s = startServer(t, cfg, noopUI{})

	// Post-bind the ephemeral port shows up.
	_, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)
	assert.NotEqual(t, "0", port)
	assert.Equal(t, "127.0.0.1:"+port, s.Advertise())
}

func TestVersionOverNetwork(t *testing.T) {
	s := startServer(t, testConfig(), noopUI{})

	resp, err := http.Get("http://" + s.Addr() + "/json/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc types.VersionInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "CDPGate/1.0", doc.Browser)
	assert.Equal(t, "ws://"+s.Advertise()+"/ws", doc.WebSocketDebuggerURL)
}

func TestEndToEnd(t *testing.T) {
	ui := &recordingUI{}
	s := startServer(t, testConfig(), ui)
	s.Bridge().PageRegistered("View#1", "Garage", "coui://garage")

	// Discover the page and dial the advertised socket URL verbatim.
	resp, err := http.Get("http://" + s.Addr() + "/json/list")
	require.NoError(t, err)
	defer resp.Body.Close()

	var entries []types.PageEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].WebSocketDebuggerURL, "/ws/View%231")

	conn, hresp, err := websocket.DefaultDialer.Dial(entries[0].WebSocketDebuggerURL, nil)
	require.NoError(t, err)
	if hresp != nil {
		hresp.Body.Close()
	}
	defer conn.Close()

	// Inbound command reaches the UI bridge.
	err = conn.WriteMessage(websocket.TextMessage, []byte(`{"method":"Runtime.enable"}`))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ui.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Two sends inside one flush window leave as a single ordered frame.
	s.Bridge().SendRequest("View#1", json.RawMessage(`{"m":"A"}`), nil)
	s.Bridge().SendRequest("View#1", json.RawMessage(`{"m":"B"}`), nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)

	var batch []wire.Request
	require.NoError(t, json.Unmarshal(frame, &batch))
	require.Len(t, batch, 2)
	assert.JSONEq(t, `{"m":"A"}`, string(batch[0].Payload))
	assert.JSONEq(t, `{"m":"B"}`, string(batch[1].Payload))
}

func TestListenBindFailure(t *testing.T) {
	s := startServer(t, testConfig(), noopUI{})

	_, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Server.Port = port
	metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())
	other := New(cfg, noopUI{}, logging.Nop(), metrics)
	assert.Error(t, other.Listen())
}

func TestServeBeforeListen(t *testing.T) {
	metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())
	s := New(testConfig(), noopUI{}, logging.Nop(), metrics)
	assert.Error(t, s.Serve())
}
