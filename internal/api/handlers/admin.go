package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clearsure/certledger/internal/auth"
	"github.com/clearsure/certledger/internal/certsvc"
	"github.com/clearsure/certledger/internal/config"
	"github.com/clearsure/certledger/internal/db/repository"
	"github.com/clearsure/certledger/internal/models"
)

// AdminHandler handles administrative operations
type AdminHandler struct {
	config    *config.Config
	service   *certsvc.Service
	auditRepo *repository.AuditRepository
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(cfg *config.Config, service *certsvc.Service, auditRepo *repository.AuditRepository) *AdminHandler {
	return &AdminHandler{
		config:    cfg,
		service:   service,
		auditRepo: auditRepo,
	}
}

// RevokeRequest represents a certificate revocation request
type RevokeRequest struct {
	Reason string `json:"reason" binding:"required"`
	TOTP   string `json:"totp" binding:"required"`
}

// RevokeCertificate revokes a certificate. Revocation is terminal, so it
// requires the TOTP second factor on top of the admin token.
// POST /v1/admin/certs/:id/revoke
func (h *AdminHandler) RevokeCertificate(c *gin.Context) {
	id := c.Param("id")

	var req RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if !auth.ValidateTOTP(h.config.Admin.TOTPSecret, req.TOTP) {
		h.audit(c, models.ActionAuthFailed, id, false, "Invalid TOTP")
		RespondError(c, http.StatusUnauthorized, "invalid_totp", "Invalid TOTP code")
		return
	}

	cert, err := h.service.Revoke(c.Request.Context(), id, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			RespondError(c, http.StatusNotFound, "not_found", "Certificate not found")
		case errors.Is(err, certsvc.ErrAlreadyRevoked):
			h.audit(c, models.ActionCertRevoke, id, false, "already revoked")
			RespondError(c, http.StatusConflict, "already_revoked", "Certificate is already revoked")
		default:
			log.Printf("Error revoking certificate %s: %v", id, err)
			h.audit(c, models.ActionCertRevoke, id, false, err.Error())
			RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to revoke certificate")
		}
		return
	}

	h.audit(c, models.ActionCertRevoke, id, true, "")
	RespondSuccess(c, cert)
}

// ListAudit lists audit log entries
// GET /v1/admin/audit
func (h *AdminHandler) ListAudit(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", "Invalid limit")
			return
		}
		limit = parsed
	}

	logs, err := h.auditRepo.List(c.Query("certificate_id"), c.Query("action"), limit)
	if err != nil {
		log.Printf("Error listing audit logs: %v", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to list audit logs")
		return
	}

	RespondSuccess(c, gin.H{"audit_logs": logs})
}

// audit records an audit log entry for the request
func (h *AdminHandler) audit(c *gin.Context, action, certID string, success bool, errMsg string) {
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
