// Package testutil provides testing utilities and fixtures for gate tests.
package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/uibridge/cdpgate/internal/client"
	"github.com/uibridge/cdpgate/internal/domain/session"
	"github.com/uibridge/cdpgate/internal/infrastructure/config"
	"github.com/uibridge/cdpgate/internal/infrastructure/logging"
	"github.com/uibridge/cdpgate/internal/infrastructure/monitoring"
	"github.com/uibridge/cdpgate/internal/infrastructure/server"
	"github.com/uibridge/cdpgate/internal/shared/types"
	"github.com/uibridge/cdpgate/internal/uihost"
)

// Gate bundles a running server, its UI host, and a client pointed at it.
type Gate struct {
	Server *server.Server
	Host   *uihost.Host
	Client *client.Client
}

// TestConfig returns a configuration suited to integration tests: an
// ephemeral port, a stretched flush window so multi-payload batches land
// in one frame, and no rate limiting.
func TestConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Bridge.FlushInterval = 100 * time.Millisecond
	cfg.RateLimit.Enabled = false
	return cfg
}

// StartGate boots a complete gate with a script host on an ephemeral port
// and registers ordered teardown on the test.
func StartGate(t *testing.T, cfg *config.Config) *Gate {
	t.Helper()

	metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())
	host := uihost.New(cfg.Bridge.CommandBuffer, logging.Nop(), metrics)
	srv := server.New(cfg, host, logging.Nop(), metrics)
	host.AttachBridge(srv.Bridge())

	require.NoError(t, srv.Listen())
	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	c := client.New(srv.Advertise())

	t.Cleanup(func() {
		c.Close()
		assert.NoError(t, srv.Close())
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("serve did not return after close")
		}
		host.Close()
	})

	return &Gate{Server: srv, Host: host, Client: c}
}

// StartGateWith boots a gate against a caller-supplied UI bridge. The
// returned Gate has no Host; pages are registered through Server.Bridge.
func StartGateWith(t *testing.T, cfg *config.Config, ui session.UIBridge) *Gate {
	t.Helper()

	metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())
	srv := server.New(cfg, ui, logging.Nop(), metrics)

	require.NoError(t, srv.Listen())
	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	c := client.New(srv.Advertise())

	t.Cleanup(func() {
		c.Close()
		assert.NoError(t, srv.Close())
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("serve did not return after close")
		}
	})

	return &Gate{Server: srv, Client: c}
}

// MockUIBridge is a mock UI sink for command delivery.
type MockUIBridge struct {
	mock.Mock
}

// DeliverInboundCommand records the delivery.
func (m *MockUIBridge) DeliverInboundCommand(pageID types.PageID, payload json.RawMessage) {
	m.Called(pageID, payload)
}

// NewMockUIBridge creates a mock that accepts any delivery. Tests that
// assert on specific deliveries should construct the struct directly and
// set their own expectations.
func NewMockUIBridge(t *testing.T) *MockUIBridge {
	t.Helper()
	m := new(MockUIBridge)
	m.On("DeliverInboundCommand", mock.Anything, mock.Anything).Maybe()
	return m
}
