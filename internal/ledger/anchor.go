package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/clearsure/certledger/internal/models"
)

// feeMarginPercent is the safety margin applied to the estimated gas limit
const feeMarginPercent = 20

// Anchor registers certificate commitments on the ledger through a Client
type Anchor struct {
	client     Client
	defaultFee models.FeeEstimate
}

// NewAnchor creates a new anchor adapter. defaultFee is used when fee
// estimation fails: anchoring degrades to configured limits instead of
// aborting.
func NewAnchor(client Client, defaultFee models.FeeEstimate) *Anchor {
	return &Anchor{
		client:     client,
		defaultFee: defaultFee,
	}
}

// commitmentPayload is the canonical serialization hashed for the ledger.
// Field order is fixed; any change to these fields changes the hash.
type commitmentPayload struct {
	ID        string       `json:"id"`
	ClaimID   string       `json:"claim_id"`
	UserID    string       `json:"user_id"`
	Timestamp int64        `json:"timestamp"`
	Seal      *models.Seal `json:"seal,omitempty"`
}

// HashOf computes the deterministic Keccak-256 content hash of a certificate
func HashOf(cert *models.CertificateRecord) string {
	payload := commitmentPayload{
		ID:        cert.ID,
		ClaimID:   cert.ClaimID,
		UserID:    cert.UserID,
		Timestamp: cert.IssueDate.UTC().UnixNano(),
		Seal:      cert.Seal,
	}

	// json.Marshal emits struct fields in declaration order, so the
	// serialization is canonical.
	data, _ := json.Marshal(payload)

	digest := sha3.NewLegacyKeccak256()
	digest.Write(data)
	return "0x" + hex.EncodeToString(digest.Sum(nil))
}

// Register commits a single certificate's hash to the ledger
func (a *Anchor) Register(ctx context.Context, cert *models.CertificateRecord) (*models.TransactionRef, error) {
	refs, err := a.RegisterBatch(ctx, []*models.CertificateRecord{cert})
	if err != nil {
		return nil, err
	}
	return refs[0], nil
}

// RegisterBatch commits N certificates in one transaction. The returned refs
// correspond to the input records in order.
func (a *Anchor) RegisterBatch(ctx context.Context, certs []*models.CertificateRecord) ([]*models.TransactionRef, error) {
	if len(certs) == 0 {
		return nil, nil
	}

	hashes := make([]string, len(certs))
	for i, cert := range certs {
		hashes[i] = HashOf(cert)
	}

	fee := a.estimateWithMargin(ctx)

	tx := &models.Transaction{
		Kind:      models.TxRegister,
		Hashes:    hashes,
		Owner:     certs[0].UserID,
		Timestamp: time.Now().UTC(),
		GasPrice:  fee.GasPrice,
		GasLimit:  fee.GasLimit,
	}

	ref, err := a.client.Submit(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to register commitment: %w", err)
	}

	refs := make([]*models.TransactionRef, len(certs))
	for i, hash := range hashes {
		refs[i] = &models.TransactionRef{
			TxID:        ref.TxID,
			Hash:        hash,
			SubmittedAt: ref.SubmittedAt,
		}
	}

	return refs, nil
}

// Revoke submits a revocation transaction for a hash. Terminal: a revoked
// hash never verifies as valid again.
func (a *Anchor) Revoke(ctx context.Context, hash, reason string) error {
	fee := a.estimateWithMargin(ctx)

	tx := &models.Transaction{
		Kind:      models.TxRevoke,
		Hashes:    []string{hash},
		Timestamp: time.Now().UTC(),
		Reason:    reason,
		GasPrice:  fee.GasPrice,
		GasLimit:  fee.GasLimit,
	}

	if _, err := a.client.Submit(ctx, tx); err != nil {
		return fmt.Errorf("failed to revoke commitment: %w", err)
	}

	return nil
}

// Verify reads the current on-ledger state for a hash
func (a *Anchor) Verify(ctx context.Context, hash string) (*models.CommitmentState, error) {
	state, err := a.client.Query(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to query commitment: %w", err)
	}
	return state, nil
}

// History reconstructs the event history for a hash, most recent first
func (a *Anchor) History(ctx context.Context, hash string) ([]models.LedgerEvent, error) {
	events, err := a.client.QueryEvents(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})

	return events, nil
}

// estimateWithMargin returns the current fee estimate with the safety margin
// applied to the gas limit, falling back to configured defaults when the
// estimate is unavailable
func (a *Anchor) estimateWithMargin(ctx context.Context) models.FeeEstimate {
	estimate, err := a.client.EstimateFee(ctx)
	if err != nil {
		log.Printf("Fee estimation failed, using default limits: %v", err)
		return a.defaultFee
	}

	return models.FeeEstimate{
		GasPrice: estimate.GasPrice,
		GasLimit: estimate.GasLimit * (100 + feeMarginPercent) / 100,
	}
}
