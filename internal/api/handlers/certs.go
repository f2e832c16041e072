package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clearsure/certledger/internal/certsvc"
	"github.com/clearsure/certledger/internal/config"
	"github.com/clearsure/certledger/internal/db/repository"
	"github.com/clearsure/certledger/internal/models"
)

// CertHandler handles certificate lifecycle requests
type CertHandler struct {
	config    *config.Config
	service   *certsvc.Service
	auditRepo *repository.AuditRepository
}

// NewCertHandler creates a new certificate handler
func NewCertHandler(cfg *config.Config, service *certsvc.Service, auditRepo *repository.AuditRepository) *CertHandler {
	return &CertHandler{
		config:    cfg,
		service:   service,
		auditRepo: auditRepo,
	}
}

// IssueRequest represents a certificate issue request
type IssueRequest struct {
	ClaimID           string `json:"claim_id" binding:"required"`
	UserID            string `json:"user_id" binding:"required"`
	InsurerID         string `json:"insurer_id" binding:"required"`
	RequestedValidity string `json:"requested_validity"`
}

// IssueCertificate handles certificate issuance
// POST /v1/certs/issue
func (h *CertHandler) IssueCertificate(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	// Parse requested validity
	var requestedValidity time.Duration
	if req.RequestedValidity != "" {
		var err error
		requestedValidity, err = time.ParseDuration(req.RequestedValidity)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_validity", "Invalid validity format")
			return
		}
	}

	cert, err := h.service.Issue(req.ClaimID, req.UserID, req.InsurerID, requestedValidity)
	if err != nil {
		h.audit(c, models.ActionCertIssue, "", false, err.Error())
		RespondError(c, http.StatusForbidden, "issue_rejected", err.Error())
		return
	}

	h.audit(c, models.ActionCertIssue, cert.ID, true, "")
	c.JSON(http.StatusCreated, cert)
}

// SealRequest represents a seal request
type SealRequest struct {
	VerifierName    string `json:"verifier_name" binding:"required"`
	VerificationURL string `json:"verification_url"`
}

// SealCertificate attaches a seal to a certificate
// POST /v1/certs/:id/seal
func (h *CertHandler) SealCertificate(c *gin.Context) {
	id := c.Param("id")

	var req SealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	verificationURL := req.VerificationURL
	if verificationURL == "" {
		verificationURL = h.config.Verification.BaseURL + "/verify/" + id
	}

	cert, err := h.service.Seal(id, req.VerifierName, verificationURL)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", "Certificate not found")
			return
		}
		log.Printf("Error sealing certificate %s: %v", id, err)
		h.audit(c, models.ActionCertSeal, id, false, err.Error())
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to seal certificate")
		return
	}

	h.audit(c, models.ActionCertSeal, id, true, "")
	RespondSuccess(c, cert)
}

// AnchorResponse represents an anchor attempt result
type AnchorResponse struct {
	Certificate *models.CertificateRecord `json:"certificate"`
	Anchored    bool                      `json:"anchored"`
}

// AnchorCertificate registers the certificate hash on the ledger
// POST /v1/certs/:id/anchor
func (h *CertHandler) AnchorCertificate(c *gin.Context) {
	id := c.Param("id")

	cert, err := h.service.Anchor(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", "Certificate not found")
			return
		}
		log.Printf("Error anchoring certificate %s: %v", id, err)
		h.audit(c, models.ActionCertAnchor, id, false, err.Error())
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to anchor certificate")
		return
	}

	anchored := cert.LedgerHash != ""
	h.audit(c, models.ActionCertAnchor, id, anchored, "")
	RespondSuccess(c, AnchorResponse{
		Certificate: cert,
		Anchored:    anchored,
	})
}

// VerifyRequest represents a verification request
type VerifyRequest struct {
	CertificateID string `json:"certificate_id" binding:"required"`
	SealPayload   string `json:"seal_payload" binding:"required"`
	Summary       string `json:"summary"`
}

// VerifyCertificate checks a presented seal and the ledger state
// POST /v1/certs/verify
func (h *CertHandler) VerifyCertificate(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	verdict, err := h.service.Verify(c.Request.Context(), req.CertificateID, req.SealPayload, req.Summary)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", "Certificate not found")
			return
		}
		log.Printf("Error verifying certificate %s: %v", req.CertificateID, err)
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to verify certificate")
		return
	}

	h.audit(c, models.ActionCertVerify, req.CertificateID, verdict.Result == certsvc.VerdictValid, verdict.Reason)
	RespondSuccess(c, verdict)
}

// GetCertificate returns a certificate with its effective status
// GET /v1/certs/:id
func (h *CertHandler) GetCertificate(c *gin.Context) {
	cert, err := h.service.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", "Certificate not found")
			return
		}
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to load certificate")
		return
	}

	RespondSuccess(c, cert)
}

// ListUserCertificates lists a user's certificates
// GET /v1/certs/user/:user_id
func (h *CertHandler) ListUserCertificates(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", "Invalid limit")
			return
		}
		limit = parsed
	}

	certs, err := h.service.ListByUser(c.Param("user_id"), limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to list certificates")
		return
	}

	RespondSuccess(c, gin.H{"certificates": certs})
}

// DownloadDocument returns the rendered certificate document
// GET /v1/certs/:id/document
func (h *CertHandler) DownloadDocument(c *gin.Context) {
	id := c.Param("id")

	doc, contentType, err := h.service.Download(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			RespondError(c, http.StatusNotFound, "not_found", "Certificate not found")
		case errors.Is(err, certsvc.ErrNotSealed):
			RespondError(c, http.StatusConflict, "not_sealed", "Certificate has no seal yet")
		case errors.Is(err, certsvc.ErrRendererUnavailable):
			RespondError(c, http.StatusServiceUnavailable, "renderer_unavailable", "Document rendering is not available")
		default:
			log.Printf("Error rendering certificate %s: %v", id, err)
			RespondError(c, http.StatusBadGateway, "render_failed", "Failed to render document")
		}
		return
	}

	c.Data(http.StatusOK, contentType, doc)
}

// CertificateHistory returns the ledger event history for a certificate
// GET /v1/certs/:id/history
func (h *CertHandler) CertificateHistory(c *gin.Context) {
	id := c.Param("id")

	events, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", "Certificate not found")
			return
		}
		log.Printf("Error loading history for %s: %v", id, err)
		RespondError(c, http.StatusBadGateway, "ledger_unavailable", "Failed to load ledger history")
		return
	}

	RespondSuccess(c, gin.H{"events": events})
}

// audit records an audit log entry for the request
func (h *CertHandler) audit(c *gin.Context, action, certID string, success bool, errMsg string) {
	entry := &models.AuditLog{
		Action:        action,
		CertificateID: certID,
		RequestID:     uuid.NewString(),
		ClientIP:      GetClientIP(c),
		UserAgent:     c.GetHeader("User-Agent"),
		Success:       success,
		ErrorMsg:      errMsg,
	}
	if err := h.auditRepo.Create(entry); err != nil {
		log.Printf("Error writing audit log: %v", err)
	}
}
