package db

import (
	"database/sql"
	"fmt"
)

// RunMigrations executes all database migrations
func RunMigrations(db *DB) error {
	// Check if schema_version table exists
	var tableExists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}

	if !tableExists {
		// First time initialization
		if err := initializeSchema(db); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		return nil
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow(`
		SELECT version FROM schema_version
		ORDER BY applied_at DESC LIMIT 1
	`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Apply migrations if needed
	// Currently only version 1 exists
	if currentVersion < 1 {
		return fmt.Errorf("invalid schema version: %d", currentVersion)
	}

	return nil
}

// initializeSchema creates all tables for a new database
func initializeSchema(db *DB) error {
	tx, err := db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := execSQL(tx, schemaVersionTable); err != nil {
		return err
	}

	if err := execSQL(tx, certificatesTable); err != nil {
		return err
	}
	if err := execSQL(tx, certificatesIndexes); err != nil {
		return err
	}

	if err := execSQL(tx, auditLogsTable); err != nil {
		return err
	}
	if err := execSQL(tx, auditLogsIndexes); err != nil {
		return err
	}

	// Insert initial schema version
	if err := execSQL(tx, `INSERT INTO schema_version (version) VALUES (1)`); err != nil {
		return err
	}

	return tx.Commit()
}

// execSQL executes a SQL statement
func execSQL(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

// Schema definitions
const (
	schemaVersionTable = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	certificatesTable = `
CREATE TABLE certificates (
    id                    TEXT PRIMARY KEY,
    claim_id              TEXT NOT NULL,
    user_id               TEXT NOT NULL,
    insurer_id            TEXT NOT NULL,
    status                TEXT NOT NULL DEFAULT 'valid',
    issue_date            DATETIME NOT NULL,
    expiry_date           DATETIME NOT NULL,
    seal_timestamp        DATETIME,
    seal_username         TEXT,
    seal_verified_by      TEXT,
    seal_verification_url TEXT,
    ledger_hash           TEXT,
    version               INTEGER NOT NULL DEFAULT 1,
    created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	certificatesIndexes = `
CREATE INDEX idx_certs_claim_id ON certificates(claim_id);
CREATE INDEX idx_certs_user_id ON certificates(user_id);
CREATE INDEX idx_certs_status ON certificates(status);
CREATE INDEX idx_certs_expiry_date ON certificates(expiry_date);
CREATE INDEX idx_certs_ledger_hash ON certificates(ledger_hash)`

	auditLogsTable = `
CREATE TABLE audit_logs (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    action         TEXT NOT NULL,
    certificate_id TEXT,
    request_id     TEXT,
    client_ip      TEXT NOT NULL,
    user_agent     TEXT,
    success        INTEGER NOT NULL,
    error_msg      TEXT,
    details        TEXT
)`

	auditLogsIndexes = `
CREATE INDEX idx_audit_timestamp ON audit_logs(timestamp);
CREATE INDEX idx_audit_action ON audit_logs(action);
CREATE INDEX idx_audit_certificate_id ON audit_logs(certificate_id);
CREATE INDEX idx_audit_success ON audit_logs(success)`
)
