package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/llehouerou/wavesbot/internal/config"
	"github.com/llehouerou/wavesbot/internal/remote"
)

const readHeaderTimeout = 10 * time.Second

// HTTPServer serves the remote-control endpoint.
type HTTPServer struct {
	srv     *http.Server
	remote  *remote.Server
	enabled bool
	logger  *zap.Logger

	mu sync.Mutex
	ln net.Listener
}

func newHTTPServer(cfg *config.Config, rs *remote.Server, logger *zap.Logger) *HTTPServer {
	rcfg := cfg.GetRemoteConfig()
	mux := http.NewServeMux()
	mux.Handle(rcfg.Path, rs)
	return &HTTPServer{
		srv: &http.Server{
			Addr:              rcfg.Listen,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		remote:  rs,
		enabled: *rcfg.Enabled,
		logger:  logger.Named("http"),
	}
}

// Addr returns the bound address, or nil before Start.
func (h *HTTPServer) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln == nil {
		return nil
	}
	return h.ln.Addr()
}

// Start binds the listener and serves in the background.
func (h *HTTPServer) Start(ctx context.Context) error {
	if !h.enabled {
		h.logger.Info("remote control disabled")
		return nil
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", h.srv.Addr)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.ln = ln
	h.mu.Unlock()

	h.logger.Info("remote control listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("remote control server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop closes websocket clients and shuts the server down.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.remote.Close()
	if !h.enabled {
		return nil
	}
	return h.srv.Shutdown(ctx)
}

func registerHTTP(lc fx.Lifecycle, h *HTTPServer) {
	lc.Append(fx.Hook{
		OnStart: h.Start,
		OnStop:  h.Stop,
	})
}
