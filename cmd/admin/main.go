package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clearsure/certledger/internal/anomaly"
	"github.com/clearsure/certledger/internal/auth"
	"github.com/clearsure/certledger/internal/certsvc"
	"github.com/clearsure/certledger/internal/config"
	"github.com/clearsure/certledger/internal/db"
	"github.com/clearsure/certledger/internal/db/repository"
	"github.com/clearsure/certledger/internal/ledger"
	"github.com/clearsure/certledger/internal/models"
	"github.com/clearsure/certledger/internal/policy"
)

var (
	configPath string
	cfg        *config.Config
	database   *db.DB
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "CertLedger administration tool",
	Long:  "Administrative tool for managing CertLedger certificates and audit logs",
}

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Manage certificates",
}

var certListCmd = &cobra.Command{
	Use:   "list",
	Short: "List certificates for a user",
	RunE:  listCerts,
}

var certShowCmd = &cobra.Command{
	Use:   "show <certificate-id>",
	Short: "Show a certificate",
	Args:  cobra.ExactArgs(1),
	RunE:  showCert,
}

var certRevokeCmd = &cobra.Command{
	Use:   "revoke <certificate-id>",
	Short: "Revoke a certificate",
	Args:  cobra.ExactArgs(1),
	RunE:  revokeCert,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect audit logs",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	RunE:  listAudit,
}

var totpCmd = &cobra.Command{
	Use:   "totp",
	Short: "Manage the admin TOTP secret",
}

var totpGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new admin TOTP secret",
	RunE:  generateTOTP,
}

var (
	userID       string
	listLimit    int
	revokeReason string
	auditCertID  string
	auditAction  string
)

func init() {
	// Root flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/certledger/config.yaml", "Config file path")

	certListCmd.Flags().StringVarP(&userID, "user", "u", "", "User id (required)")
	certListCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum number of certificates to list")
	certListCmd.MarkFlagRequired("user")

	certRevokeCmd.Flags().StringVarP(&revokeReason, "reason", "r", "", "Revocation reason (required)")
	certRevokeCmd.MarkFlagRequired("reason")

	auditListCmd.Flags().StringVar(&auditCertID, "certificate-id", "", "Filter by certificate id")
	auditListCmd.Flags().StringVar(&auditAction, "action", "", "Filter by action")
	auditListCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum number of entries to list")

	// Add commands
	certCmd.AddCommand(certListCmd)
	certCmd.AddCommand(certShowCmd)
	certCmd.AddCommand(certRevokeCmd)
	auditCmd.AddCommand(auditListCmd)
	totpCmd.AddCommand(totpGenerateCmd)
	rootCmd.AddCommand(certCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(totpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initDB() error {
	// Load configuration
	var err error
	cfg, err = config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Connect to database
	database, err = db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	return nil
}

// newService wires a certificate service for CLI use
func newService() *certsvc.Service {
	certRepo := repository.NewCertRepository(database.DB)
	ledgerClient := ledger.NewHTTPClient(cfg.Ledger.Endpoint, cfg.Ledger.APIKey, cfg.GetLedgerTimeout())
	anchor := ledger.NewAnchor(ledgerClient, models.FeeEstimate{
		GasPrice: cfg.Ledger.DefaultGasPrice,
		GasLimit: cfg.Ledger.DefaultGasLimit,
	})
	validator := policy.NewValidator(cfg, certRepo)
	return certsvc.New(certRepo, anchor, anomaly.NewDetector(nil), validator, nil)
}

func listCerts(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	certs, err := newService().ListByUser(userID, listLimit)
	if err != nil {
		return fmt.Errorf("failed to list certificates: %w", err)
	}

	if len(certs) == 0 {
		fmt.Println("No certificates found")
		return nil
	}

	fmt.Printf("\nTotal certificates: %d\n\n", len(certs))
	fmt.Printf("%-13s %-12s %-9s %-11s %-11s %s\n", "ID", "Claim", "Status", "Issued", "Expires", "Anchored")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, cert := range certs {
		anchored := "no"
		if cert.LedgerHash != "" {
			anchored = "yes"
		}
		fmt.Printf("%-13s %-12s %-9s %-11s %-11s %s\n",
			cert.ID,
			cert.ClaimID,
			cert.Status,
			cert.IssueDate.Format("2006-01-02"),
			cert.ExpiryDate.Format("2006-01-02"),
			anchored,
		)
	}

	return nil
}

func showCert(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	cert, err := newService().Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}

	fmt.Printf("\nCertificate: %s\n", cert.ID)
	fmt.Printf("Claim:       %s\n", cert.ClaimID)
	fmt.Printf("User:        %s\n", cert.UserID)
	fmt.Printf("Insurer:     %s\n", cert.InsurerID)
	fmt.Printf("Status:      %s\n", cert.Status)
	fmt.Printf("Issued:      %s\n", cert.IssueDate.Format("2006-01-02 15:04:05"))
	fmt.Printf("Expires:     %s\n", cert.ExpiryDate.Format("2006-01-02 15:04:05"))
	if cert.Seal != nil {
		fmt.Printf("Sealed:      %s by %s\n", cert.Seal.Timestamp.Format("2006-01-02 15:04:05"), cert.Seal.VerifiedBy)
	} else {
		fmt.Printf("Sealed:      no\n")
	}
	if cert.LedgerHash != "" {
		fmt.Printf("Ledger hash: %s\n", cert.LedgerHash)
	} else {
		fmt.Printf("Ledger hash: not anchored\n")
	}

	return nil
}

func revokeCert(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	cert, err := newService().Revoke(context.Background(), args[0], revokeReason)
	if err != nil {
		return fmt.Errorf("failed to revoke certificate: %w", err)
	}

	fmt.Printf("Certificate %s revoked\n", cert.ID)
	return nil
}

func listAudit(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	auditRepo := repository.NewAuditRepository(database.DB)
	logs, err := auditRepo.List(auditCertID, auditAction, listLimit)
	if err != nil {
		return fmt.Errorf("failed to list audit logs: %w", err)
	}

	if len(logs) == 0 {
		fmt.Println("No audit logs found")
		return nil
	}

	fmt.Printf("\nTotal entries: %d\n\n", len(logs))
	fmt.Printf("%-20s %-14s %-13s %-9s %s\n", "Timestamp", "Action", "Certificate", "Success", "Error")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, entry := range logs {
		successStr := "no"
		if entry.Success {
			successStr = "yes"
		}
		fmt.Printf("%-20s %-14s %-13s %-9s %s\n",
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.Action,
			entry.CertificateID,
			successStr,
			entry.ErrorMsg,
		)
	}

	return nil
}

func generateTOTP(cmd *cobra.Command, args []string) error {
	secret, err := auth.GenerateTOTPSecret()
	if err != nil {
		return fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	qrURL := auth.GenerateQRCodeURL(secret, "admin", "CertLedger")

	fmt.Printf("\nTOTP Secret: %s\n", secret)
	fmt.Printf("TOTP QR URL: %s\n", qrURL)
	fmt.Printf("\nPut the secret in admin.totp_secret and scan the QR URL with a TOTP app\n")

	return nil
}
