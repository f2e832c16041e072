// Package certsvc orchestrates the certificate lifecycle: issuance, sealing,
// ledger anchoring, verification, and revocation.
package certsvc

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/clearsure/certledger/internal/db/repository"
	"github.com/clearsure/certledger/internal/ledger"
	"github.com/clearsure/certledger/internal/models"
	"github.com/clearsure/certledger/internal/policy"
	"github.com/clearsure/certledger/internal/seal"
)

// idAllocationAttempts bounds the random id collision retry loop
const idAllocationAttempts = 8

var (
	// ErrAlreadyRevoked is returned when revoking a revoked certificate
	ErrAlreadyRevoked = errors.New("certificate already revoked")
	// ErrIDExhausted is returned when no free certificate id was found
	ErrIDExhausted = errors.New("failed to allocate a certificate id")
	// ErrNotSealed is returned when an operation requires a sealed certificate
	ErrNotSealed = errors.New("certificate is not sealed")
	// ErrRendererUnavailable is returned when no document renderer is configured
	ErrRendererUnavailable = errors.New("document renderer not configured")
)

// Verification verdict values
const (
	VerdictValid   = "valid"
	VerdictInvalid = "invalid"
	VerdictUnknown = "unknown"
)

// Verdict reason codes
const (
	ReasonSeal              = "seal"
	ReasonRevoked           = "revoked"
	ReasonExpired           = "expired"
	ReasonLedgerUnreachable = "ledger_unreachable"
	ReasonLedgerMismatch    = "ledger_mismatch"
)

// Repository is the durable store for certificate records
type Repository interface {
	Create(cert *models.CertificateRecord) error
	GetByID(id string) (*models.CertificateRecord, error)
	Exists(id string) (bool, error)
	ListByUser(userID string, limit int) ([]*models.CertificateRecord, error)
	UpdateSeal(id string, s *models.Seal, version int64) error
	SetLedgerHash(id, hash string, version int64) error
	UpdateStatus(id, status string, version int64) error
}

// LedgerAnchor commits certificate hashes to the external ledger
type LedgerAnchor interface {
	Register(ctx context.Context, cert *models.CertificateRecord) (*models.TransactionRef, error)
	Revoke(ctx context.Context, hash, reason string) error
	Verify(ctx context.Context, hash string) (*models.CommitmentState, error)
	History(ctx context.Context, hash string) ([]models.LedgerEvent, error)
}

// AnomalyDetector scores a certificate and aggregates a risk level
type AnomalyDetector interface {
	Detect(ctx context.Context, cert *models.CertificateRecord, summary string) ([]models.Anomaly, string, error)
}

// DocumentRenderer is the out-of-scope document rendering collaborator
type DocumentRenderer interface {
	Render(ctx context.Context, cert *models.CertificateRecord) ([]byte, string, error)
}

// Verdict is the combined result of a verification request
type Verdict struct {
	CertificateID string           `json:"certificate_id"`
	Result        string           `json:"result"`
	Reason        string           `json:"reason,omitempty"`
	Risk          string           `json:"risk,omitempty"`
	Anomalies     []models.Anomaly `json:"anomalies,omitempty"`
	CheckedAt     time.Time        `json:"checked_at"`
}

// Service orchestrates the certificate lifecycle
type Service struct {
	repo      Repository
	anchor    LedgerAnchor
	detector  AnomalyDetector
	renderer  DocumentRenderer
	validator *policy.Validator

	mu          sync.Mutex
	anchorLocks map[string]*sync.Mutex
}

// New creates a new certificate service. renderer may be nil when document
// rendering is not wired.
func New(repo Repository, anchor LedgerAnchor, detector AnomalyDetector, validator *policy.Validator, renderer DocumentRenderer) *Service {
	return &Service{
		repo:        repo,
		anchor:      anchor,
		detector:    detector,
		renderer:    renderer,
		validator:   validator,
		anchorLocks: make(map[string]*sync.Mutex),
	}
}

// EffectiveStatus derives the certificate's status at read time. Revocation
// wins over expiry, expiry over the stored status. Callers deciding whether a
// certificate can still be used must use this, never the raw stored field.
func EffectiveStatus(cert *models.CertificateRecord, now time.Time) string {
	if cert.Status == models.StatusRevoked {
		return models.StatusRevoked
	}
	if now.After(cert.ExpiryDate) {
		return models.StatusExpired
	}
	return cert.Status
}

// Issue creates a new certificate for a verified claim
func (s *Service) Issue(claimID, userID, insurerID string, requestedValidity time.Duration) (*models.CertificateRecord, error) {
	validity, err := s.validator.ValidateIssueRequest(claimID, userID, insurerID, requestedValidity)
	if err != nil {
		return nil, fmt.Errorf("issue request rejected: %w", err)
	}

	id, err := s.allocateID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cert := &models.CertificateRecord{
		ID:         id,
		ClaimID:    claimID,
		UserID:     userID,
		InsurerID:  insurerID,
		Status:     models.StatusValid,
		IssueDate:  now,
		ExpiryDate: now.Add(validity),
	}

	if err := s.repo.Create(cert); err != nil {
		return nil, fmt.Errorf("failed to persist certificate: %w", err)
	}

	return cert, nil
}

// allocateID picks a free random CERT-###### id
func (s *Service) allocateID() (string, error) {
	for i := 0; i < idAllocationAttempts; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(1000000))
		if err != nil {
			return "", fmt.Errorf("failed to generate certificate id: %w", err)
		}
		id := fmt.Sprintf("CERT-%06d", n.Int64())

		exists, err := s.repo.Exists(id)
		if err != nil {
			return "", fmt.Errorf("failed to check certificate id: %w", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

// Seal attaches a fresh seal to the certificate. Idempotent: resealing
// replaces the seal and its timestamp.
func (s *Service) Seal(id, verifierName, verificationURL string) (*models.CertificateRecord, error) {
	cert, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	newSeal := seal.Produce(cert.ID, verifierName, verificationURL)
	if err := s.repo.UpdateSeal(cert.ID, newSeal, cert.Version); err != nil {
		return nil, fmt.Errorf("failed to store seal: %w", err)
	}

	return s.repo.GetByID(id)
}

// Anchor registers the certificate's content hash on the ledger. Best-effort:
// a ledger outage leaves the certificate valid but unanchored, signalled by
// an empty LedgerHash on the returned record. Concurrent calls for the same
// id are serialized and anchoring is skipped once a hash is set.
func (s *Service) Anchor(ctx context.Context, id string) (*models.CertificateRecord, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	cert, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	// Idempotency: already anchored
	if cert.LedgerHash != "" {
		return cert, nil
	}

	ref, err := s.anchor.Register(ctx, cert)
	if err != nil {
		log.Printf("Anchoring %s failed, certificate remains unanchored: %v", id, err)
		return cert, nil
	}

	if err := s.repo.SetLedgerHash(cert.ID, ref.Hash, cert.Version); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return s.repo.GetByID(id)
		}
		return nil, fmt.Errorf("failed to store ledger hash: %w", err)
	}

	return s.repo.GetByID(id)
}

// lockFor returns the per-certificate anchoring mutex
func (s *Service) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.anchorLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.anchorLocks[id] = lock
	}
	return lock
}

// Verify checks a presented seal payload against the certificate, confirms
// on-ledger validity when anchored, and attaches the anomaly risk level. The
// risk level is informational: a high risk does not by itself invalidate a
// certificate whose seal and ledger state check out.
func (s *Service) Verify(ctx context.Context, id, sealPayload, summary string) (*Verdict, error) {
	cert, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	verdict := &Verdict{
		CertificateID: cert.ID,
		CheckedAt:     time.Now().UTC(),
	}

	anomalies, risk, detectErr := s.detector.Detect(ctx, cert, summary)
	if detectErr != nil {
		log.Printf("Content anomaly check for %s degraded: %v", id, detectErr)
	}
	verdict.Anomalies = anomalies
	verdict.Risk = risk

	// Seal checks come first: a bad or stale seal fails verification
	// regardless of everything else.
	presented, err := seal.Parse(sealPayload)
	if err != nil {
		verdict.Result = VerdictInvalid
		verdict.Reason = ReasonSeal
		return verdict, nil
	}
	if err := seal.Validate(presented, cert.ID); err != nil {
		verdict.Result = VerdictInvalid
		verdict.Reason = ReasonSeal
		return verdict, nil
	}

	switch EffectiveStatus(cert, time.Now()) {
	case models.StatusRevoked:
		verdict.Result = VerdictInvalid
		verdict.Reason = ReasonRevoked
		return verdict, nil
	case models.StatusExpired:
		verdict.Result = VerdictInvalid
		verdict.Reason = ReasonExpired
		return verdict, nil
	}

	if cert.LedgerHash != "" {
		state, err := s.anchor.Verify(ctx, cert.LedgerHash)
		switch {
		case errors.Is(err, ledger.ErrUnknownHash):
			// The record claims an anchor the ledger has never seen
			verdict.Result = VerdictInvalid
			verdict.Reason = ReasonLedgerMismatch
			return verdict, nil
		case err != nil:
			// An unreachable ledger yields an explicit unknown verdict,
			// never a default to valid or invalid.
			verdict.Result = VerdictUnknown
			verdict.Reason = ReasonLedgerUnreachable
			return verdict, nil
		case !state.IsValid:
			verdict.Result = VerdictInvalid
			verdict.Reason = ReasonRevoked
			return verdict, nil
		}
	}

	verdict.Result = VerdictValid
	return verdict, nil
}

// Revoke transitions the certificate to revoked. Terminal and irreversible.
// Concurrent revokes are serialized by the repository's version check; the
// loser observes ErrAlreadyRevoked.
func (s *Service) Revoke(ctx context.Context, id, reason string) (*models.CertificateRecord, error) {
	cert, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	if cert.Status == models.StatusRevoked {
		return nil, ErrAlreadyRevoked
	}

	if err := s.repo.UpdateStatus(cert.ID, models.StatusRevoked, cert.Version); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			current, gerr := s.repo.GetByID(id)
			if gerr == nil && current.Status == models.StatusRevoked {
				return nil, ErrAlreadyRevoked
			}
		}
		return nil, fmt.Errorf("failed to revoke certificate: %w", err)
	}

	// Revoke the ledger commitment as well. Best-effort: the local
	// revocation already decides the certificate's fate.
	if cert.LedgerHash != "" {
		if err := s.anchor.Revoke(ctx, cert.LedgerHash, reason); err != nil && !errors.Is(err, ledger.ErrAlreadyRevoked) {
			log.Printf("Ledger revocation for %s failed: %v", id, err)
		}
	}

	return s.repo.GetByID(id)
}

// Download renders the sealed certificate through the document renderer
func (s *Service) Download(ctx context.Context, id string) ([]byte, string, error) {
	if s.renderer == nil {
		return nil, "", ErrRendererUnavailable
	}

	cert, err := s.repo.GetByID(id)
	if err != nil {
		return nil, "", err
	}
	if cert.Seal == nil {
		return nil, "", ErrNotSealed
	}

	return s.renderer.Render(ctx, cert)
}

// Get returns the certificate with its effective status applied
func (s *Service) Get(id string) (*models.CertificateRecord, error) {
	cert, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	cert.Status = EffectiveStatus(cert, time.Now())
	return cert, nil
}

// ListByUser returns a user's certificates with effective statuses applied
func (s *Service) ListByUser(userID string, limit int) ([]*models.CertificateRecord, error) {
	certs, err := s.repo.ListByUser(userID, limit)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, cert := range certs {
		cert.Status = EffectiveStatus(cert, now)
	}
	return certs, nil
}

// History returns the ledger event history for an anchored certificate
func (s *Service) History(ctx context.Context, id string) ([]models.LedgerEvent, error) {
	cert, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if cert.LedgerHash == "" {
		return nil, nil
	}
	return s.anchor.History(ctx, cert.LedgerHash)
}
