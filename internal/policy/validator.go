package policy

import (
	"fmt"
	"time"

	"github.com/clearsure/certledger/internal/config"
)

// IssueCounter reports how many certificates a user received today
type IssueCounter interface {
	CountIssuedToday(userID string) (int, error)
}

// Validator validates certificate issue requests against policy
type Validator struct {
	config  *config.Config
	counter IssueCounter
}

// NewValidator creates a new policy validator
func NewValidator(cfg *config.Config, counter IssueCounter) *Validator {
	return &Validator{
		config:  cfg,
		counter: counter,
	}
}

// ValidateIssueRequest validates an issue request and returns the validity
// period to apply
func (v *Validator) ValidateIssueRequest(claimID, userID, insurerID string, requestedValidity time.Duration) (time.Duration, error) {
	if claimID == "" {
		return 0, fmt.Errorf("claim id is required")
	}
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}
	if insurerID == "" {
		return 0, fmt.Errorf("insurer id is required")
	}

	// Check daily issuance limit
	count, err := v.counter.CountIssuedToday(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to check daily limit: %w", err)
	}

	if count >= v.config.Policy.MaxCertsPerDay {
		return 0, fmt.Errorf("daily certificate limit exceeded (%d/%d)", count, v.config.Policy.MaxCertsPerDay)
	}

	return v.adjustValidity(requestedValidity), nil
}

// adjustValidity adjusts the requested validity to comply with policy
func (v *Validator) adjustValidity(requested time.Duration) time.Duration {
	maxValidity := v.config.GetMaxValidityDuration()

	// If requested is zero or negative, use default
	if requested <= 0 {
		return v.config.GetDefaultValidityDuration()
	}

	// If requested exceeds max, cap at max
	if requested > maxValidity {
		return maxValidity
	}

	return requested
}

// GetDefaultValidity returns the default validity period
func (v *Validator) GetDefaultValidity() time.Duration {
	return v.config.GetDefaultValidityDuration()
}

// GetMaxValidity returns the maximum allowed validity period
func (v *Validator) GetMaxValidity() time.Duration {
	return v.config.GetMaxValidityDuration()
}
