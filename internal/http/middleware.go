package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"scavenger-hunt-api/internal/apperr"
	"scavenger-hunt-api/internal/models"
)

type participantHandler func(c *gin.Context, p *models.Participant)

type adminHandler func(c *gin.Context, a *models.Admin)

// participantOnly resolves the bearer token to a participant before calling h.
func (s *Server) participantOnly(h participantHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.auth.RequireParticipant(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			participantError(c, err)
			return
		}
		h(c, p)
	}
}

// adminOnly resolves the bearer token to an admin before calling h.
func (s *Server) adminOnly(h adminHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := s.auth.RequireAdmin(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			adminError(c, err)
			return
		}
		h(c, a)
	}
}

// participantError writes err without exposing internal failures.
func participantError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	msg := "internal error"
	if e, ok := apperr.As(err); ok && kind != apperr.KindInternal {
		msg = e.Message
	}
	if kind == apperr.KindInternal {
		slog.Error("request failed", "path", c.Request.URL.Path, "request_id", c.GetString(requestIDKey), "err", err)
	}
	c.AbortWithStatusJSON(apperr.Status(kind), gin.H{"error": msg})
}

// adminError includes the underlying cause for operators.
func adminError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		slog.Error("admin request failed", "path", c.Request.URL.Path, "request_id", c.GetString(requestIDKey), "err", err)
	}
	c.AbortWithStatusJSON(apperr.Status(kind), gin.H{"error": err.Error()})
}
