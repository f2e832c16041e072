// Package ledger commits certificate content hashes to an external
// append-only ledger and answers validity queries against it.
package ledger

import (
	"context"
	"errors"

	"github.com/clearsure/certledger/internal/models"
)

var (
	// ErrUnavailable is returned when the ledger cannot be reached.
	// Retryable.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrUnknownHash is returned when a hash was never registered.
	// Not retryable.
	ErrUnknownHash = errors.New("unknown ledger hash")
	// ErrAlreadyRevoked is returned when revoking a hash that is already
	// revoked. Not retryable.
	ErrAlreadyRevoked = errors.New("commitment already revoked")
)

// Client is the external ledger collaborator. Implementations must map
// transport failures to ErrUnavailable and unregistered hashes to
// ErrUnknownHash so callers can tell "try again later" from "never anchored".
type Client interface {
	EstimateFee(ctx context.Context) (*models.FeeEstimate, error)
	Submit(ctx context.Context, tx *models.Transaction) (*models.TransactionRef, error)
	Query(ctx context.Context, hash string) (*models.CommitmentState, error)
	QueryEvents(ctx context.Context, hash string) ([]models.LedgerEvent, error)
}
