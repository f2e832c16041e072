package certsvc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clearsure/certledger/internal/anomaly"
	"github.com/clearsure/certledger/internal/config"
	"github.com/clearsure/certledger/internal/db/repository"
	"github.com/clearsure/certledger/internal/ledger"
	"github.com/clearsure/certledger/internal/models"
	"github.com/clearsure/certledger/internal/policy"
	"github.com/clearsure/certledger/internal/seal"
)

// memRepo is an in-memory Repository with the same versioning semantics as
// the SQLite implementation
type memRepo struct {
	mu    sync.Mutex
	certs map[string]*models.CertificateRecord
}

func newMemRepo() *memRepo {
	return &memRepo{certs: make(map[string]*models.CertificateRecord)}
}

func (r *memRepo) Create(cert *models.CertificateRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cert.Version = 1
	clone := *cert
	r.certs[cert.ID] = &clone
	return nil
}

func (r *memRepo) GetByID(id string) (*models.CertificateRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cert, ok := r.certs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *cert
	if cert.Seal != nil {
		s := *cert.Seal
		clone.Seal = &s
	}
	return &clone, nil
}

func (r *memRepo) Exists(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.certs[id]
	return ok, nil
}

func (r *memRepo) ListByUser(userID string, limit int) ([]*models.CertificateRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CertificateRecord
	for _, cert := range r.certs {
		if cert.UserID == userID {
			clone := *cert
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memRepo) CountIssuedToday(userID string) (int, error) {
	certs, _ := r.ListByUser(userID, 0)
	return len(certs), nil
}

func (r *memRepo) UpdateSeal(id string, s *models.Seal, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cert, ok := r.certs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if cert.Version != version {
		return repository.ErrConflict
	}
	clone := *s
	cert.Seal = &clone
	cert.Version++
	return nil
}

func (r *memRepo) SetLedgerHash(id, hash string, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cert, ok := r.certs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if cert.Version != version || cert.LedgerHash != "" {
		return repository.ErrConflict
	}
	cert.LedgerHash = hash
	cert.Version++
	return nil
}

func (r *memRepo) UpdateStatus(id, status string, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cert, ok := r.certs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if cert.Version != version {
		return repository.ErrConflict
	}
	cert.Status = status
	cert.Version++
	return nil
}

// fakeLedgerClient backs a real ledger.Anchor in tests
type fakeLedgerClient struct {
	mu        sync.Mutex
	submitted []*models.Transaction
	submitErr error
	states    map[string]*models.CommitmentState
	queryErr  error
}

func newFakeLedgerClient() *fakeLedgerClient {
	return &fakeLedgerClient{states: make(map[string]*models.CommitmentState)}
}

func (f *fakeLedgerClient) EstimateFee(ctx context.Context) (*models.FeeEstimate, error) {
	return &models.FeeEstimate{GasPrice: 2, GasLimit: 50000}, nil
}

func (f *fakeLedgerClient) Submit(ctx context.Context, tx *models.Transaction) (*models.TransactionRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, tx)
	for _, hash := range tx.Hashes {
		if tx.Kind == models.TxRegister {
			f.states[hash] = &models.CommitmentState{
				Hash:         hash,
				Owner:        tx.Owner,
				RegisteredAt: tx.Timestamp,
				IsValid:      true,
			}
		} else if state, ok := f.states[hash]; ok {
			state.IsValid = false
		}
	}
	return &models.TransactionRef{TxID: "tx-100", SubmittedAt: time.Now()}, nil
}

func (f *fakeLedgerClient) Query(ctx context.Context, hash string) (*models.CommitmentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	state, ok := f.states[hash]
	if !ok {
		return nil, ledger.ErrUnknownHash
	}
	clone := *state
	return &clone, nil
}

func (f *fakeLedgerClient) QueryEvents(ctx context.Context, hash string) ([]models.LedgerEvent, error) {
	return nil, nil
}

func (f *fakeLedgerClient) registerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, tx := range f.submitted {
		if tx.Kind == models.TxRegister {
			n++
		}
	}
	return n
}

func newTestService(client *fakeLedgerClient) (*Service, *memRepo) {
	repo := newMemRepo()
	cfg := &config.Config{
		Policy: config.PolicyConfig{
			DefaultValidity: "30d",
			MaxValidity:     "1825d",
			MaxCertsPerDay:  100,
		},
	}
	validator := policy.NewValidator(cfg, repo)
	anchor := ledger.NewAnchor(client, models.FeeEstimate{GasPrice: 1, GasLimit: 10000})
	detector := anomaly.NewDetector(nil)
	return New(repo, anchor, detector, validator, nil), repo
}

func TestEffectiveStatusPrecedence(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		status string
		expiry time.Time
		want   string
	}{
		{"valid and unexpired", models.StatusValid, now.Add(time.Hour), models.StatusValid},
		{"stored valid but past expiry", models.StatusValid, now.Add(-time.Hour), models.StatusExpired},
		{"revoked before expiry", models.StatusRevoked, now.Add(time.Hour), models.StatusRevoked},
		{"revoked wins over expiry", models.StatusRevoked, now.Add(-time.Hour), models.StatusRevoked},
		{"stored expired", models.StatusExpired, now.Add(-time.Hour), models.StatusExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cert := &models.CertificateRecord{Status: tc.status, ExpiryDate: tc.expiry}
			if got := EffectiveStatus(cert, now); got != tc.want {
				t.Errorf("EffectiveStatus = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestIssue(t *testing.T) {
	svc, _ := newTestService(newFakeLedgerClient())

	cert, err := svc.Issue("claim-1", "user-1", "insurer-1", 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if !models.CertificateIDPattern.MatchString(cert.ID) {
		t.Errorf("id %q does not match CERT-######", cert.ID)
	}
	if cert.Status != models.StatusValid {
		t.Errorf("status = %s, want valid", cert.Status)
	}
	if cert.Seal != nil {
		t.Error("a freshly issued certificate must not carry a seal")
	}
	if got := cert.ExpiryDate.Sub(cert.IssueDate); got != 30*24*time.Hour {
		t.Errorf("validity window = %v, want 30d default", got)
	}
}

func TestIssueRejectsMissingIDs(t *testing.T) {
	svc, _ := newTestService(newFakeLedgerClient())

	if _, err := svc.Issue("", "user-1", "insurer-1", 0); err == nil {
		t.Error("expected issue without claim id to fail")
	}
}

func TestSealIdempotent(t *testing.T) {
	svc, _ := newTestService(newFakeLedgerClient())

	cert, err := svc.Issue("claim-1", "user-1", "insurer-1", 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	sealed, err := svc.Seal(cert.ID, "Jane Auditor", "https://certs.example.com/verify/"+cert.ID)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed.Seal == nil || sealed.Seal.CertificateID != cert.ID {
		t.Fatalf("seal = %+v", sealed.Seal)
	}
	first := sealed.Seal.Timestamp

	time.Sleep(5 * time.Millisecond)

	resealed, err := svc.Seal(cert.ID, "Jane Auditor", "https://certs.example.com/verify/"+cert.ID)
	if err != nil {
		t.Fatalf("reseal: %v", err)
	}
	if !resealed.Seal.Timestamp.After(first) {
		t.Error("resealing should replace the seal timestamp")
	}
}

func TestAnchorSetsHashAndIsIdempotent(t *testing.T) {
	client := newFakeLedgerClient()
	svc, _ := newTestService(client)
	ctx := context.Background()

	cert, _ := svc.Issue("claim-1", "user-1", "insurer-1", 0)
	svc.Seal(cert.ID, "Jane Auditor", "https://certs.example.com/verify/"+cert.ID)

	anchored, err := svc.Anchor(ctx, cert.ID)
	if err != nil {
		t.Fatalf("Anchor: %v", err)
	}
	if anchored.LedgerHash == "" {
		t.Fatal("ledger hash not set after anchoring")
	}

	// Second anchor call must not double-register
	again, err := svc.Anchor(ctx, cert.ID)
	if err != nil {
		t.Fatalf("second Anchor: %v", err)
	}
	if again.LedgerHash != anchored.LedgerHash {
		t.Errorf("ledger hash changed on re-anchor: %s -> %s", anchored.LedgerHash, again.LedgerHash)
	}
	if n := client.registerCount(); n != 1 {
		t.Errorf("register transactions = %d, want 1", n)
	}
}

func TestAnchorBestEffortOnOutage(t *testing.T) {
	client := newFakeLedgerClient()
	client.submitErr = ledger.ErrUnavailable
	svc, _ := newTestService(client)

	cert, _ := svc.Issue("claim-1", "user-1", "insurer-1", 0)

	anchored, err := svc.Anchor(context.Background(), cert.ID)
	if err != nil {
		t.Fatalf("Anchor must not fail on ledger outage: %v", err)
	}
	if anchored.LedgerHash != "" {
		t.Error("certificate must stay unanchored when the ledger is down")
	}
	if anchored.Status != models.StatusValid {
		t.Errorf("status = %s, certificate must remain valid", anchored.Status)
	}
}

func TestVerifyEndToEnd(t *testing.T) {
	client := newFakeLedgerClient()
	svc, _ := newTestService(client)
	ctx := context.Background()

	cert, err := svc.Issue("claim-1", "user-1", "insurer-1", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	sealed, err := svc.Seal(cert.ID, "Jane Auditor", "https://certs.example.com/verify/"+cert.ID)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	anchored, err := svc.Anchor(ctx, cert.ID)
	if err != nil {
		t.Fatalf("Anchor: %v", err)
	}
	if anchored.LedgerHash == "" {
		t.Fatal("expected ledger hash after anchoring")
	}

	payload, err := seal.Encode(sealed.Seal)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	verdict, err := svc.Verify(ctx, cert.ID, payload, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verdict.Result != VerdictValid {
		t.Fatalf("verdict = %s (%s), want valid", verdict.Result, verdict.Reason)
	}
	if verdict.Risk != models.RiskLow {
		t.Errorf("risk = %s, want low", verdict.Risk)
	}

	// Ledger now reports the commitment invalid: the verdict flips even
	// though the stored status is untouched and the expiry is in the future.
	client.mu.Lock()
	client.states[anchored.LedgerHash].IsValid = false
	client.mu.Unlock()

	verdict, err = svc.Verify(ctx, cert.ID, payload, "")
	if err != nil {
		t.Fatalf("Verify after ledger revocation: %v", err)
	}
	if verdict.Result != VerdictInvalid || verdict.Reason != ReasonRevoked {
		t.Errorf("verdict = %s/%s, want invalid/revoked", verdict.Result, verdict.Reason)
	}

	stored, _ := svc.repo.GetByID(cert.ID)
	if stored.Status != models.StatusValid {
		t.Errorf("stored status mutated to %s by verification", stored.Status)
	}
}

func TestVerifyBadSeal(t *testing.T) {
	client := newFakeLedgerClient()
	svc, _ := newTestService(client)
	ctx := context.Background()

	cert, _ := svc.Issue("claim-1", "user-1", "insurer-1", 0)
	svc.Seal(cert.ID, "Jane Auditor", "https://certs.example.com/verify/"+cert.ID)

	other, _ := svc.Issue("claim-2", "user-1", "insurer-1", 0)
	otherSealed, _ := svc.Seal(other.ID, "Jane Auditor", "https://certs.example.com/verify/"+other.ID)
	wrongPayload, _ := seal.Encode(otherSealed.Seal)

	cases := []struct {
		name    string
		payload string
	}{
		{"garbage payload", "@@@@"},
		{"seal for another certificate", wrongPayload},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verdict, err := svc.Verify(ctx, cert.ID, tc.payload, "")
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if verdict.Result != VerdictInvalid || verdict.Reason != ReasonSeal {
				t.Errorf("verdict = %s/%s, want invalid/seal", verdict.Result, verdict.Reason)
			}
		})
	}
}

func TestVerifyLedgerOutageYieldsUnknown(t *testing.T) {
	client := newFakeLedgerClient()
	svc, _ := newTestService(client)
	ctx := context.Background()

	cert, _ := svc.Issue("claim-1", "user-1", "insurer-1", 0)
	sealed, _ := svc.Seal(cert.ID, "Jane Auditor", "https://certs.example.com/verify/"+cert.ID)
	svc.Anchor(ctx, cert.ID)

	payload, _ := seal.Encode(sealed.Seal)

	client.mu.Lock()
	client.queryErr = ledger.ErrUnavailable
	client.mu.Unlock()

	verdict, err := svc.Verify(ctx, cert.ID, payload, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verdict.Result != VerdictUnknown || verdict.Reason != ReasonLedgerUnreachable {
		t.Errorf("verdict = %s/%s, want unknown/ledger_unreachable", verdict.Result, verdict.Reason)
	}
}

func TestVerifyUnanchoredSkipsLedger(t *testing.T) {
	client := newFakeLedgerClient()
	client.queryErr = ledger.ErrUnavailable
	svc, _ := newTestService(client)

	cert, _ := svc.Issue("claim-1", "user-1", "insurer-1", 0)
	sealed, _ := svc.Seal(cert.ID, "Jane Auditor", "https://certs.example.com/verify/"+cert.ID)
	payload, _ := seal.Encode(sealed.Seal)

	verdict, err := svc.Verify(context.Background(), cert.ID, payload, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verdict.Result != VerdictValid {
		t.Errorf("verdict = %s/%s, want valid for an unanchored certificate", verdict.Result, verdict.Reason)
	}
}

func TestRevoke(t *testing.T) {
	client := newFakeLedgerClient()
	svc, repo := newTestService(client)
	ctx := context.Background()

	cert, _ := svc.Issue("claim-1", "user-1", "insurer-1", 0)
	svc.Seal(cert.ID, "Jane Auditor", "https://certs.example.com/verify/"+cert.ID)
	anchored, _ := svc.Anchor(ctx, cert.ID)

	revoked, err := svc.Revoke(ctx, cert.ID, "fraudulent claim")
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if revoked.Status != models.StatusRevoked {
		t.Errorf("status = %s, want revoked", revoked.Status)
	}

	// Revocation is permanent: a later expiry change does not revert it
	repo.mu.Lock()
	repo.certs[cert.ID].ExpiryDate = time.Now().Add(100 * 24 * time.Hour)
	repo.mu.Unlock()

	current, _ := svc.Get(cert.ID)
	if current.Status != models.StatusRevoked {
		t.Errorf("effective status = %s after expiry change, want revoked", current.Status)
	}

	// The ledger commitment was revoked too
	state, err := client.Query(ctx, anchored.LedgerHash)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if state.IsValid {
		t.Error("ledger commitment still valid after revoke")
	}

	// Double revoke is an error, not a silent no-op
	if _, err := svc.Revoke(ctx, cert.ID, "again"); !errors.Is(err, ErrAlreadyRevoked) {
		t.Errorf("second Revoke = %v, want ErrAlreadyRevoked", err)
	}
}

func TestDownloadRequiresSealAndRenderer(t *testing.T) {
	svc, _ := newTestService(newFakeLedgerClient())
	ctx := context.Background()

	cert, _ := svc.Issue("claim-1", "user-1", "insurer-1", 0)

	if _, _, err := svc.Download(ctx, cert.ID); !errors.Is(err, ErrRendererUnavailable) {
		t.Errorf("Download without renderer = %v, want ErrRendererUnavailable", err)
	}
}

func TestGetNotFound(t *testing.T) {
	svc, _ := newTestService(newFakeLedgerClient())

	if _, err := svc.Get("CERT-999999"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}
