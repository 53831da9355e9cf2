// Package api exposes the gateway's observability surface: global and
// per-session counters, and an operator-triggered session termination
// endpoint. This is not the JWT-authenticated administrative REST
// surface spec.md places out of scope — it is a read-mostly stats
// endpoint, gated only by an optional shared-secret header.
package api

import (
	"fmt"
	"time"

	"github.com/ewancrowle/hpsdr-gateway/internal/config"
	"github.com/ewancrowle/hpsdr-gateway/internal/gateway"
	"github.com/ewancrowle/hpsdr-gateway/internal/session"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

type Server struct {
	app   *fiber.App
	cfg   *config.Config
	stats *gateway.Stats
	tbl   *session.Table
}

func NewServer(cfg *config.Config, stats *gateway.Stats, tbl *session.Table) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	if cfg.API.LogRequests {
		app.Use(logger.New())
	}

	s := &Server{
		app:   app,
		cfg:   cfg,
		stats: stats,
		tbl:   tbl,
	}

	if cfg.API.SharedSecret != "" {
		app.Use(s.requireSharedSecret)
	}

	s.setupRoutes()
	return s
}

func (s *Server) requireSharedSecret(c *fiber.Ctx) error {
	if c.Get("X-Gateway-Secret") != s.cfg.API.SharedSecret {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or missing shared secret"})
	}
	return c.Next()
}

func (s *Server) setupRoutes() {
	s.app.Get("/stats", s.handleStats)
	s.app.Get("/sessions", s.handleSessions)
	s.app.Post("/sessions/:id/kick", s.handleKick)
}

func (s *Server) Start() error {
	return s.app.Listen(fmt.Sprintf(":%d", s.cfg.API.Port))
}

// Shutdown stops accepting new connections and drains in-flight ones,
// letting the caller's errgroup.Wait return once Start's Listen call
// unblocks.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"global": s.stats.Snapshot(),
		"sessions": fiber.Map{
			"active":           s.tbl.Len(),
			"total_sessions":   s.tbl.Stats.TotalSessions.Load(),
			"expired_sessions": s.tbl.Stats.ExpiredSessions.Load(),
			"idle_timeouts":    s.tbl.Stats.IdleTimeouts.Load(),
		},
	})
}

func (s *Server) handleSessions(c *fiber.Ctx) error {
	snapshots := s.tbl.Snapshots(time.Now())
	return c.JSON(fiber.Map{"sessions": snapshots})
}

// handleKick terminates a session by its client endpoint, looked up by
// path parameter id — the session id is resolved against the session
// table's snapshot so the caller doesn't need a separate lookup-by-id
// index in the hot-path table.
func (s *Server) handleKick(c *fiber.Ctx) error {
	idParam := c.Params("id")

	for _, snap := range s.tbl.Snapshots(time.Now()) {
		if fmt.Sprintf("%d", snap.ID) == idParam {
			s.tbl.Terminate(snap.ClientEndpoint, "operator_kick", time.Now())
			return c.JSON(fiber.Map{"status": "terminated", "session_id": idParam})
		}
	}

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
}
