package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clearsure/certledger/internal/anomaly"
	"github.com/clearsure/certledger/internal/api"
	"github.com/clearsure/certledger/internal/certsvc"
	"github.com/clearsure/certledger/internal/config"
	"github.com/clearsure/certledger/internal/db"
	"github.com/clearsure/certledger/internal/db/repository"
	"github.com/clearsure/certledger/internal/ledger"
	"github.com/clearsure/certledger/internal/models"
	"github.com/clearsure/certledger/internal/policy"
	"github.com/clearsure/certledger/internal/render"
	"github.com/clearsure/certledger/internal/textanalysis"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "/etc/certledger/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("CertLedger Server\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	log.Printf("Starting CertLedger Server %s (commit: %s)", Version, Commit)

	// Load configuration
	log.Printf("Loading configuration from %s", *configPath)
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	log.Printf("Connecting to database: %s", cfg.Database.Path)
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	log.Printf("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	certRepo := repository.NewCertRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)

	// Ledger anchor over the gateway client
	log.Printf("Using ledger gateway at %s", cfg.Ledger.Endpoint)
	ledgerClient := ledger.NewHTTPClient(cfg.Ledger.Endpoint, cfg.Ledger.APIKey, cfg.GetLedgerTimeout())
	anchor := ledger.NewAnchor(ledgerClient, models.FeeEstimate{
		GasPrice: cfg.Ledger.DefaultGasPrice,
		GasLimit: cfg.Ledger.DefaultGasLimit,
	})

	// Anomaly detector; content checks are skipped when no text-analysis
	// endpoint is configured
	var analyzer anomaly.TextAnalyzer
	if cfg.TextAnalysis.Endpoint != "" {
		analyzer = textanalysis.NewClient(cfg.TextAnalysis.Endpoint, collaboratorTimeout(cfg.TextAnalysis.Timeout))
	}
	detector := anomaly.NewDetector(analyzer)

	// Document renderer is optional as well
	var renderer certsvc.DocumentRenderer
	if cfg.Renderer.Endpoint != "" {
		renderer = render.NewClient(cfg.Renderer.Endpoint, collaboratorTimeout(cfg.Renderer.Timeout))
	}

	// Initialize policy validator and the certificate service
	validator := policy.NewValidator(cfg, certRepo)
	service := certsvc.New(certRepo, anchor, detector, validator, renderer)

	// Create HTTP server
	server := api.NewServer(cfg, service, auditRepo)

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		log.Printf("Starting HTTP server on %s", cfg.Server.ListenAddr)
		if err := server.Run(); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("CertLedger Server is running")

	// Wait for interrupt signal
	<-quit
	log.Printf("Shutting down server...")

	database.Close()

	log.Printf("Server stopped")
}

// collaboratorTimeout parses a collaborator timeout, defaulting to 10s
func collaboratorTimeout(raw string) time.Duration {
	if raw == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
