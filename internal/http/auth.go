package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"scavenger-hunt-api/internal/apperr"
)

// POST /api/auth/login
func (s *Server) login(c *gin.Context) {
	var input struct {
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
		participantError(c, apperr.InvalidInput("invalid request body"))
		return
	}

	res, err := s.auth.LoginParticipant(c.Request.Context(), input.Email, input.Phone)
	if err != nil {
		participantError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/auth/admin-login
func (s *Server) adminLogin(c *gin.Context) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
		participantError(c, apperr.InvalidInput("invalid request body"))
		return
	}

	res, err := s.auth.LoginAdmin(c.Request.Context(), input.Username, input.Password)
	if err != nil {
		participantError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/auth/me
func (s *Server) me(c *gin.Context) {
	id, err := s.auth.Me(c.Request.Context(), c.GetHeader("Authorization"))
	if err != nil {
		participantError(c, err)
		return
	}
	c.JSON(http.StatusOK, id)
}

// POST /api/auth/logout
// Tokens are discarded by the client; nothing is revoked server side.
func (s *Server) logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
