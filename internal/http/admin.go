package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"scavenger-hunt-api/internal/admin"
	"scavenger-hunt-api/internal/apperr"
	"scavenger-hunt-api/internal/models"
)

// GET /api/admin/users
func (s *Server) listUsers(c *gin.Context, _ *models.Admin) {
	users, err := s.admin.ListUsers(c.Request.Context())
	if err != nil {
		adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GET /api/admin/events
func (s *Server) listEvents(c *gin.Context, _ *models.Admin) {
	filter, err := admin.ParseEventFilter(c.Request.URL.Query())
	if err != nil {
		adminError(c, err)
		return
	}
	events, err := s.admin.ListEvents(c.Request.Context(), filter)
	if err != nil {
		adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// POST /api/admin/user/:id/reset
func (s *Server) resetProgress(c *gin.Context, a *models.Admin) {
	p, err := s.admin.ResetProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		adminError(c, err)
		return
	}
	slog.Info("admin reset participant", "admin_id", a.ID, "participant_id", p.ID)
	c.JSON(http.StatusOK, gin.H{"message": "User progress reset successfully", "user": p})
}

// POST /api/admin/user/:id/skip-step
func (s *Server) skipStep(c *gin.Context, a *models.Admin) {
	p, err := s.admin.SkipStep(c.Request.Context(), c.Param("id"))
	if err != nil {
		adminError(c, err)
		return
	}
	slog.Info("admin skipped step", "admin_id", a.ID, "participant_id", p.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Step skipped successfully", "user": p})
}

// GET /api/admin/steps
func (s *Server) listSteps(c *gin.Context, _ *models.Admin) {
	steps, err := s.admin.ListSteps(c.Request.Context())
	if err != nil {
		adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"steps": steps})
}

// PUT /api/admin/steps/:id
func (s *Server) updateStep(c *gin.Context, _ *models.Admin) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		adminError(c, apperr.InvalidInput("step id must be an integer"))
		return
	}
	var input admin.StepUpdate
	if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
		adminError(c, apperr.InvalidInput(err.Error()))
		return
	}

	step, err := s.admin.UpdateStep(c.Request.Context(), id, input)
	if err != nil {
		adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Step updated successfully", "step": step})
}

// GET /api/admin/stats
func (s *Server) stats(c *gin.Context, _ *models.Admin) {
	st, err := s.admin.Stats(c.Request.Context())
	if err != nil {
		adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// GET /api/admin/notifications/stream
func (s *Server) notificationStream(c *gin.Context, a *models.Admin) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	slog.Info("notification stream opened", "admin_id", a.ID)
	err := s.admin.Heartbeats(c.Request.Context(), func(hb admin.Heartbeat) error {
		if err := sse.Encode(c.Writer, sse.Event{Data: hb}); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		slog.Warn("notification stream write failed", "admin_id", a.ID, "err", err)
	}
	slog.Info("notification stream closed", "admin_id", a.ID)
}
