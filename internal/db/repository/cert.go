package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/clearsure/certledger/internal/models"
)

// Sentinel errors shared by all repositories
var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a versioned update lost against a
	// concurrent writer
	ErrConflict = errors.New("version conflict")
)

// CertRepository handles certificate record data access
type CertRepository struct {
	db *sql.DB
}

// NewCertRepository creates a new certificate repository
func NewCertRepository(db *sql.DB) *CertRepository {
	return &CertRepository{db: db}
}

const certColumns = `id, claim_id, user_id, insurer_id, status, issue_date, expiry_date,
	       seal_timestamp, seal_username, seal_verified_by, seal_verification_url,
	       ledger_hash, version`

// Create creates a new certificate record
func (r *CertRepository) Create(cert *models.CertificateRecord) error {
	query := `
		INSERT INTO certificates (
			id, claim_id, user_id, insurer_id, status, issue_date, expiry_date, version
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
	`

	_, err := r.db.Exec(query,
		cert.ID,
		cert.ClaimID,
		cert.UserID,
		cert.InsurerID,
		cert.Status,
		cert.IssueDate,
		cert.ExpiryDate,
	)
	if err != nil {
		return fmt.Errorf("failed to create certificate record: %w", err)
	}

	cert.Version = 1

	return nil
}

// GetByID retrieves a certificate by id
func (r *CertRepository) GetByID(id string) (*models.CertificateRecord, error) {
	query := `
		SELECT ` + certColumns + `
		FROM certificates
		WHERE id = ?
	`

	cert, err := scanCert(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	return cert, nil
}

// Exists reports whether a certificate with the given id exists
func (r *CertRepository) Exists(id string) (bool, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM certificates WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check certificate existence: %w", err)
	}
	return count > 0, nil
}

// ListByUser lists all certificates for a user, most recently issued first
func (r *CertRepository) ListByUser(userID string, limit int) ([]*models.CertificateRecord, error) {
	query := `
		SELECT ` + certColumns + `
		FROM certificates
		WHERE user_id = ?
		ORDER BY issue_date DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	defer rows.Close()

	var certs []*models.CertificateRecord

	for rows.Next() {
		cert, err := scanCert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	return certs, rows.Err()
}

// CountIssuedToday returns the number of certificates issued to a user today
func (r *CertRepository) CountIssuedToday(userID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM certificates
		WHERE user_id = ? AND DATE(issue_date) = DATE('now')
	`

	var count int
	err := r.db.QueryRow(query, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count certificates: %w", err)
	}

	return count, nil
}

// UpdateSeal replaces the seal on a certificate. The version check makes
// concurrent updates lose with ErrConflict instead of silently overwriting.
func (r *CertRepository) UpdateSeal(id string, seal *models.Seal, version int64) error {
	query := `
		UPDATE certificates
		SET seal_timestamp = ?, seal_username = ?, seal_verified_by = ?,
		    seal_verification_url = ?, version = version + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := r.db.Exec(query,
		seal.Timestamp,
		seal.Username,
		seal.VerifiedBy,
		seal.VerificationURL,
		id,
		version,
	)
	if err != nil {
		return fmt.Errorf("failed to update seal: %w", err)
	}

	return checkVersionedUpdate(r.db, result, id)
}

// SetLedgerHash records the ledger hash once anchoring succeeds. A hash that
// is already set is never overwritten.
func (r *CertRepository) SetLedgerHash(id, hash string, version int64) error {
	query := `
		UPDATE certificates
		SET ledger_hash = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ? AND ledger_hash IS NULL
	`

	result, err := r.db.Exec(query, hash, id, version)
	if err != nil {
		return fmt.Errorf("failed to set ledger hash: %w", err)
	}

	return checkVersionedUpdate(r.db, result, id)
}

// UpdateStatus transitions the stored status using a compare-and-swap on the
// version column
func (r *CertRepository) UpdateStatus(id, status string, version int64) error {
	query := `
		UPDATE certificates
		SET status = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := r.db.Exec(query, status, id, version)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	return checkVersionedUpdate(r.db, result, id)
}

// checkVersionedUpdate distinguishes a missing row from a lost CAS race
func checkVersionedUpdate(db *sql.DB, result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM certificates WHERE id = ?`, id).Scan(&count); err != nil {
		return fmt.Errorf("failed to check certificate existence: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanCert scans one certificate row, folding the nullable seal columns into
// a Seal value when present
func scanCert(s scanner) (*models.CertificateRecord, error) {
	cert := &models.CertificateRecord{}
	var sealTimestamp sql.NullTime
	var sealUsername, sealVerifiedBy, sealVerificationURL, ledgerHash sql.NullString

	err := s.Scan(
		&cert.ID,
		&cert.ClaimID,
		&cert.UserID,
		&cert.InsurerID,
		&cert.Status,
		&cert.IssueDate,
		&cert.ExpiryDate,
		&sealTimestamp,
		&sealUsername,
		&sealVerifiedBy,
		&sealVerificationURL,
		&ledgerHash,
		&cert.Version,
	)
	if err != nil {
		return nil, err
	}

	if sealTimestamp.Valid {
		cert.Seal = &models.Seal{
			CertificateID:   cert.ID,
			Timestamp:       sealTimestamp.Time,
			Username:        sealUsername.String,
			VerifiedBy:      sealVerifiedBy.String,
			VerificationURL: sealVerificationURL.String,
		}
	}
	if ledgerHash.Valid {
		cert.LedgerHash = ledgerHash.String
	}

	cert.IssueDate = cert.IssueDate.UTC()
	cert.ExpiryDate = cert.ExpiryDate.UTC()
	if cert.Seal != nil {
		cert.Seal.Timestamp = cert.Seal.Timestamp.UTC()
	}

	return cert, nil
}
