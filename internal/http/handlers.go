package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"scavenger-hunt-api/internal/admin"
	"scavenger-hunt-api/internal/auth"
	"scavenger-hunt-api/internal/config"
	"scavenger-hunt-api/internal/hunt"
)

const serviceName = "scavenger-hunt-api"

type Server struct {
	cfg   *config.Config
	auth  *auth.Service
	hunt  *hunt.Service
	admin *admin.Service
}

func NewServer(cfg *config.Config, db *gorm.DB) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(cors(cfg))
	r.Use(logging())

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	s := &Server{
		cfg:   cfg,
		auth:  auth.NewService(db, tokens),
		hunt:  hunt.NewService(db),
		admin: admin.NewService(db, cfg),
	}

	api := r.Group("/api")

	// Auth
	a := api.Group("/auth")
	{
		a.POST("/login", s.login)
		a.POST("/admin-login", s.adminLogin)
		a.GET("/me", s.me)
		a.POST("/logout", s.logout)
	}

	// Hunt (participant token)
	h := api.Group("/hunt")
	{
		h.GET("/current-step", s.participantOnly(s.currentStep))
		h.POST("/scan-qr", s.participantOnly(s.scanQR))
		h.POST("/reveal-location", s.participantOnly(s.revealLocation))
		h.GET("/progress", s.participantOnly(s.progress))
	}

	// Admin (admin token)
	ad := api.Group("/admin")
	{
		ad.GET("/users", s.adminOnly(s.listUsers))
		ad.GET("/events", s.adminOnly(s.listEvents))
		ad.POST("/user/:id/reset", s.adminOnly(s.resetProgress))
		ad.POST("/user/:id/skip-step", s.adminOnly(s.skipStep))
		ad.GET("/steps", s.adminOnly(s.listSteps))
		ad.PUT("/steps/:id", s.adminOnly(s.updateStep))
		ad.GET("/stats", s.adminOnly(s.stats))
		ad.GET("/notifications/stream", s.adminOnly(s.notificationStream))
	}

	api.GET("/health", health)
	r.GET("/health", health)
	return r
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
}

func cors(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", cfg.AllowOrigins)
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, PUT, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

const requestIDKey = "request_id"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

func logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", c.GetString(requestIDKey),
		)
	}
}
