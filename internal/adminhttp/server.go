// Package adminhttp exposes a small read-only operational surface over
// HTTP: health, version, and a room/member debug dump. It is explicitly
// NOT the gRPC/REST management API spec.md rules out of scope — there is
// no endpoint here that mutates anything. Built with labstack/echo and
// its middleware stack the same way the teacher's internal/httpapi and
// api.go wire their REST surface, and go-humanize for the human-readable
// uptime in /healthz and room count in /debugz/rooms.
package adminhttp

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"relay/internal/manager"
)

const version = "0.1.0"

// Server wraps an echo.Echo configured with the relay's read-only routes.
type Server struct {
	echo      *echo.Echo
	mgr       *manager.Manager
	startedAt time.Time
}

func New(mgr *manager.Manager) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	s := &Server{echo: e, mgr: mgr, startedAt: time.Now()}
	e.GET("/healthz", s.handleHealth)
	e.GET("/version", s.handleVersion)
	e.GET("/debugz/rooms", s.handleRooms)
	e.GET("/debugz/dump", s.handleDump)
	return s
}

func (s *Server) Start(addr string) error { return s.echo.Start(addr) }
func (s *Server) Shutdown() error         { return s.echo.Close() }

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": humanize.RelTime(s.startedAt, time.Now(), "", ""),
	})
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"version": version})
}

func (s *Server) handleRooms(c echo.Context) error {
	ids, err := s.mgr.GetRooms()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count": humanize.Comma(int64(len(ids))),
		"rooms": ids,
	})
}

func (s *Server) handleDump(c echo.Context) error {
	dump, err := s.mgr.Dump()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
	return c.String(http.StatusOK, dump)
}
