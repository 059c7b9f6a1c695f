package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/moltbot/moltproxy/internal/gateway"
	"github.com/moltbot/moltproxy/pkg/types"
)

func (s *Server) listProcesses(c echo.Context) error {
	procs, err := s.rt.ListProcesses(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "failed to list processes: " + err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"processes": procs,
	})
}

func (s *Server) gatewayStatus(c echo.Context) error {
	status := types.GatewayStatus{Port: gateway.Port}
	if p, ok := s.manager.FindExisting(c.Request().Context()); ok {
		status.Running = true
		status.Process = &p
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) restartGateway(c echo.Context) error {
	h, err := s.manager.Restart(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": err.Error(),
		})
	}
	p := h.Info()
	return c.JSON(http.StatusOK, types.GatewayStatus{
		Running: true,
		Process: &p,
		Port:    gateway.Port,
	})
}

func (s *Server) runBackup(c echo.Context) error {
	if s.backups == nil {
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "backups not configured",
		})
	}
	if err := s.backups.RunOnce(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) restoreBackup(c echo.Context) error {
	if s.backups == nil {
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "backups not configured",
		})
	}
	var req struct {
		Key string `json:"key"` // empty selects the most recent archive
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	if err := s.backups.Restore(c.Request().Context(), req.Key); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
