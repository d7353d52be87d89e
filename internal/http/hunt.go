package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"scavenger-hunt-api/internal/apperr"
	"scavenger-hunt-api/internal/models"
)

// GET /api/hunt/current-step
func (s *Server) currentStep(c *gin.Context, p *models.Participant) {
	res, err := s.hunt.CurrentStep(c.Request.Context(), p)
	if err != nil {
		participantError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/hunt/scan-qr
func (s *Server) scanQR(c *gin.Context, p *models.Participant) {
	var input struct {
		QRValue string `json:"qr_value"`
	}
	if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
		participantError(c, apperr.InvalidInput("invalid request body"))
		return
	}

	res, err := s.hunt.ScanQR(c.Request.Context(), p.ID, input.QRValue)
	if err != nil {
		participantError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/hunt/reveal-location
func (s *Server) revealLocation(c *gin.Context, p *models.Participant) {
	res, err := s.hunt.RevealLocation(c.Request.Context(), p.ID)
	if err != nil {
		participantError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/hunt/progress
func (s *Server) progress(c *gin.Context, p *models.Participant) {
	res, err := s.hunt.Progress(c.Request.Context(), p)
	if err != nil {
		participantError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
