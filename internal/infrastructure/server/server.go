package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	apihttp "github.com/uibridge/cdpgate/internal/api/http"
	"github.com/uibridge/cdpgate/internal/api/middleware"
	"github.com/uibridge/cdpgate/internal/api/ws"
	"github.com/uibridge/cdpgate/internal/domain/bridge"
	"github.com/uibridge/cdpgate/internal/domain/registry"
	"github.com/uibridge/cdpgate/internal/domain/session"
	"github.com/uibridge/cdpgate/internal/infrastructure/config"
	"github.com/uibridge/cdpgate/internal/infrastructure/logging"
	"github.com/uibridge/cdpgate/internal/infrastructure/monitoring"
)

// Server wraps the HTTP listener and the gate's dependencies.
type Server struct {
	router   *gin.Engine
	http     *http.Server
	registry *registry.Manager
	bridge   *bridge.Bridge
	sockets  *ws.Handler
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics

	mu       sync.Mutex
	listener net.Listener
}

// New assembles the gate around the supplied UI bridge.
func New(cfg *config.Config, ui session.UIBridge, logger *logging.Logger, metrics *monitoring.Metrics) *Server {
	reg := registry.NewManager(logger, metrics)
	br := bridge.New(reg, ui, cfg.Bridge.FlushInterval, logger, metrics)
	sockets := ws.NewHandler(reg, cfg.Socket.ReadLimit, cfg.Socket.WriteTimeout, logger, metrics)

	s := &Server{
		registry: reg,
		bridge:   br,
		sockets:  sockets,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}

	handlers := apihttp.NewHandlers(reg, s.Advertise)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	discovery := router.Group("/json")
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		discovery.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	discovery.GET("/version", handlers.Version)
	discovery.GET("/list", handlers.List)

	router.GET("/healthz", handlers.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Bare /ws is the browser-level endpoint from /json/version; it accepts
	// the socket and drops traffic the same way an unknown page id does.
	router.GET("/ws", sockets.HandleConnection)
	router.GET("/ws/*page", sockets.HandleConnection)

	router.NoRoute(handlers.NotFound)

	s.router = router
	s.http = &http.Server{Handler: router}
	return s
}

// Bridge returns the command bridge the UI host drives.
func (s *Server) Bridge() *bridge.Bridge {
	return s.bridge
}

// Registry returns the page and connection registry.
func (s *Server) Registry() *registry.Manager {
	return s.registry
}

// Router returns the assembled HTTP handler.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Listen binds the TCP listener. A bind failure is the only fatal
// startup error the gate has.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.config.Server.Addr(), err)
	}
	if max := s.config.Server.MaxConnections; max > 0 {
		ln = netutil.LimitListener(ln, max)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Serve accepts connections until Close. Listen must have succeeded first.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("serve called before listen")
	}

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run binds the listener and serves until Close.
func (s *Server) Run() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Addr returns the bound listener address, or the configured address
// before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Server.Addr()
}

// Advertise returns the host:port embedded in discovery documents. Once the
// listener is bound this carries the real port, so ephemeral binds advertise
// correctly.
func (s *Server) Advertise() string {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return s.config.Server.AdvertiseAddr()
	}

	host := s.config.Server.Host
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		return net.JoinHostPort(host, strconv.Itoa(tcp.Port))
	}
	return s.config.Server.AdvertiseAddr()
}

// Close shuts the gate down in order: refuse new sockets, stop the HTTP
// server, sweep live DevTools connections, wait for their read loops, then
// tear down every session.
func (s *Server) Close() error {
	s.logger.Info("Shutting down gate...")
	s.sockets.Drain()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(ctx)

	// Shutdown does not wait for hijacked WebSocket connections.
	s.registry.CloseConnections()
	s.sockets.Wait()
	s.bridge.Shutdown()

	s.logger.Info("Shutdown complete")
	s.logger.Sync()
	return err
}
