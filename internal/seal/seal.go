// Package seal encodes and validates the time-bounded ownership payload
// attached to a certificate at issuance.
package seal

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clearsure/certledger/internal/models"
)

// FreshnessWindow is how long a seal stays acceptable after it was produced,
// independent of the certificate's own expiry date.
const FreshnessWindow = 24 * time.Hour

var (
	// ErrMalformed is returned when a payload does not parse into a seal
	ErrMalformed = errors.New("malformed seal payload")
	// ErrCertificateIDMismatch is returned when a seal names a different certificate
	ErrCertificateIDMismatch = errors.New("seal certificate id mismatch")
	// ErrExpired is returned when a seal is older than the freshness window
	ErrExpired = errors.New("seal expired")
)

// Produce creates a seal for the given certificate, stamped with the current
// time. Persistence is the caller's job.
func Produce(certificateID, verifierName, verificationURL string) *models.Seal {
	return &models.Seal{
		CertificateID:   certificateID,
		Timestamp:       time.Now().UTC(),
		Username:        verifierName,
		VerifiedBy:      verifierName,
		VerificationURL: verificationURL,
	}
}

// Encode serializes a seal into its transport payload
func Encode(s *models.Seal) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode seal: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Parse decodes a presented payload back into a seal. A payload that does
// not decode, or decodes without the required fields, fails with ErrMalformed.
func Parse(payload string) (*models.Seal, error) {
	data, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var s models.Seal
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if s.CertificateID == "" || s.Timestamp.IsZero() {
		return nil, fmt.Errorf("%w: missing required fields", ErrMalformed)
	}

	return &s, nil
}

// Validate checks a parsed seal against the certificate it is presented for.
// Both checks run regardless of parse success: a syntactically valid seal for
// the wrong certificate, or a stale one, is rejected.
func Validate(s *models.Seal, expectedCertificateID string) error {
	return validateAt(s, expectedCertificateID, time.Now())
}

// validateAt is the clock-injectable core of Validate
func validateAt(s *models.Seal, expectedCertificateID string, now time.Time) error {
	if subtle.ConstantTimeCompare([]byte(s.CertificateID), []byte(expectedCertificateID)) != 1 {
		return ErrCertificateIDMismatch
	}

	// Raw subtraction: clock skew is not compensated, so a future-dated
	// timestamp within the window passes.
	if now.Sub(s.Timestamp) > FreshnessWindow {
		return ErrExpired
	}

	return nil
}
