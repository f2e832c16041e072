package api

import (
	"github.com/gin-gonic/gin"

	"github.com/clearsure/certledger/internal/api/handlers"
	"github.com/clearsure/certledger/internal/api/middleware"
	"github.com/clearsure/certledger/internal/certsvc"
	"github.com/clearsure/certledger/internal/config"
	"github.com/clearsure/certledger/internal/db/repository"
)

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	service *certsvc.Service,
	auditRepo *repository.AuditRepository,
) *Server {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	// Create handlers
	certHandler := handlers.NewCertHandler(cfg, service, auditRepo)
	adminHandler := handlers.NewAdminHandler(cfg, service, auditRepo)

	// API v1 routes
	v1 := router.Group("/v1")
	{
		certs := v1.Group("/certs")
		{
			certs.POST("/issue", certHandler.IssueCertificate)
			certs.POST("/verify", certHandler.VerifyCertificate)
			certs.POST("/:id/seal", certHandler.SealCertificate)
			certs.POST("/:id/anchor", certHandler.AnchorCertificate)
			certs.GET("/:id", certHandler.GetCertificate)
			certs.GET("/:id/document", certHandler.DownloadDocument)
			certs.GET("/:id/history", certHandler.CertificateHistory)
			certs.GET("/user/:user_id", certHandler.ListUserCertificates)
		}

		// Admin endpoints (require admin token)
		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(cfg.Admin.Token))
		{
			admin.POST("/certs/:id/revoke", adminHandler.RevokeCertificate)
			admin.GET("/audit", adminHandler.ListAudit)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	return &Server{
		router: router,
		config: cfg,
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	return s.router.Run(s.config.Server.ListenAddr)
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
