// Package web serves the rig control surface: a REST API over the mixer
// and a websocket telemetry feed.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-animatronic/internal/log"
	"github.com/teslashibe/go-animatronic/pkg/clip"
	"github.com/teslashibe/go-animatronic/pkg/hub"
	"github.com/teslashibe/go-animatronic/pkg/mixer"
)

// DefaultTelemetryInterval is used when Options leaves it zero.
const DefaultTelemetryInterval = 100 * time.Millisecond

const shutdownTimeout = 5 * time.Second

// Options configures the server.
type Options struct {
	Listen            string
	EnableCORS        bool
	TelemetryInterval time.Duration
}

// Server is the control surface.
type Server struct {
	app    *fiber.App
	opts   Options
	logger *slog.Logger

	mixer *mixer.Controller
	clips *clip.Library

	telemetry *hub.Hub
}

// NewServer creates a server driving ctrl with clips from lib.
func NewServer(ctrl *mixer.Controller, lib *clip.Library, opts Options) *Server {
	if opts.TelemetryInterval <= 0 {
		opts.TelemetryInterval = DefaultTelemetryInterval
	}

	s := &Server{
		opts:      opts,
		logger:    log.Component("web"),
		mixer:     ctrl,
		clips:     lib,
		telemetry: hub.New("telemetry"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-animatronic",
		DisableStartupMessage: true,
	})

	if opts.EnableCORS {
		app.Use(cors.New())
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/clips", s.handleListClips)

	api.Get("/layers", s.handleListLayers)
	api.Post("/layers", s.handleCreateLayer)
	api.Delete("/layers/:name", s.handleRemoveLayer)
	api.Post("/layers/:name/weight", s.handleLayerWeight)
	api.Post("/layers/:name/:action", s.handleLayerAction)

	api.Post("/transport/:action", s.handleTransport)
	api.Put("/transport/rate", s.handleFrameRate)

	api.Get("/playlist", s.handlePlaylistState)
	api.Post("/playlist", s.handleSetPlaylist)
	api.Post("/playlist/next", s.handleAdvancePlaylist)
	api.Delete("/playlist", s.handleResetPlaylist)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/telemetry", websocket.New(s.handleTelemetryWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Telemetry returns the telemetry hub.
func (s *Server) Telemetry() *hub.Hub {
	return s.telemetry
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("control surface listening", "addr", ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.telemetry.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.broadcastTelemetry(ctx)
		return nil
	})
	g.Go(func() error {
		return s.app.Listener(ln)
	})
	g.Go(func() error {
		<-ctx.Done()
		return s.app.ShutdownWithTimeout(shutdownTimeout)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	s.logger.Info("control surface stopped")
	return err
}

func (s *Server) broadcastTelemetry(ctx context.Context) {
	ticker := time.NewTicker(s.opts.TelemetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.telemetry.ClientCount() == 0 {
				continue
			}
			if err := s.telemetry.BroadcastJSON(s.mixer.Status()); err != nil {
				s.logger.Warn("telemetry encode failed", "error", err)
			}
		}
	}
}

func (s *Server) handleTelemetryWS(conn *websocket.Conn) {
	client := hub.NewClient(s.telemetry, conn)
	if client == nil {
		conn.Close()
		return
	}

	// Prime the client before the write pump owns the connection.
	if err := conn.WriteJSON(s.mixer.Status()); err != nil {
		s.logger.Debug("telemetry prime failed", "error", err)
	}
	client.Run()
}
