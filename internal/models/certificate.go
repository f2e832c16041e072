package models

import (
	"regexp"
	"time"
)

// Certificate status values
const (
	StatusValid   = "valid"
	StatusExpired = "expired"
	StatusRevoked = "revoked"
)

// CertificateIDPattern is the required certificate id format
var CertificateIDPattern = regexp.MustCompile(`^CERT-\d{6}$`)

// CertificateRecord represents an issued claim certificate
type CertificateRecord struct {
	ID         string    `json:"id"`
	ClaimID    string    `json:"claim_id"`
	UserID     string    `json:"user_id"`
	InsurerID  string    `json:"insurer_id"`
	Status     string    `json:"status"`
	IssueDate  time.Time `json:"issue_date"`
	ExpiryDate time.Time `json:"expiry_date"`
	Seal       *Seal     `json:"seal,omitempty"`
	LedgerHash string    `json:"ledger_hash,omitempty"`
	Version    int64     `json:"-"`
}

// Seal represents the time-bounded ownership payload attached at issuance
type Seal struct {
	CertificateID   string    `json:"certificate_id"`
	Timestamp       time.Time `json:"timestamp"`
	Username        string    `json:"username"`
	VerifiedBy      string    `json:"verified_by"`
	VerificationURL string    `json:"verification_url"`
}

// IsKnownStatus reports whether s is one of the defined status values
func IsKnownStatus(s string) bool {
	return s == StatusValid || s == StatusExpired || s == StatusRevoked
}
