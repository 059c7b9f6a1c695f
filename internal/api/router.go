package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/moltbot/moltproxy/internal/auth"
	"github.com/moltbot/moltproxy/internal/backup"
	"github.com/moltbot/moltproxy/internal/gateway"
	"github.com/moltbot/moltproxy/internal/metrics"
	"github.com/moltbot/moltproxy/internal/proxy"
	"github.com/moltbot/moltproxy/internal/runtime"
)

// Server holds the HTTP server dependencies.
type Server struct {
	echo     *echo.Echo
	manager  *gateway.Manager
	rt       runtime.Runtime
	backups  *backup.Scheduler // nil when backups are not configured
	verifier *auth.Verifier    // nil disables auth (dev only)
}

// NewServer creates the HTTP server with all routes configured. Everything
// not matched by the health/metrics/admin surface is forwarded to the
// gateway through the proxy.
func NewServer(mgr *gateway.Manager, rt runtime.Runtime, gwProxy *proxy.GatewayProxy, backups *backup.Scheduler, verifier *auth.Verifier) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		manager:  mgr,
		rt:       rt,
		backups:  backups,
		verifier: verifier,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.EchoMiddleware())

	// Health check and metrics (no auth)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Admin surface
	admin := e.Group("/admin")
	admin.Use(auth.AdminMiddleware(verifier))
	admin.GET("/processes", s.listProcesses)
	admin.GET("/gateway", s.gatewayStatus)
	admin.POST("/gateway/restart", s.restartGateway)
	admin.POST("/backup", s.runBackup)
	admin.POST("/restore", s.restoreBackup)

	// Everything else goes to the gateway.
	forward := gwProxy.Handler()
	e.Any("/*", forward, auth.Middleware(verifier))

	return s
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	return s.echo.Close()
}
