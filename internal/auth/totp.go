package auth

import (
	"fmt"
	"net/url"

	"github.com/pquerna/otp/totp"
)

const (
	totpIssuer = "CertLedger"
)

// GenerateTOTPSecret generates a new TOTP secret
func GenerateTOTPSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: "admin",
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	return key.Secret(), nil
}

// GenerateQRCodeURL generates a QR code URL for TOTP setup
func GenerateQRCodeURL(secret, account, issuer string) string {
	if issuer == "" {
		issuer = totpIssuer
	}

	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.QueryEscape(issuer),
		url.QueryEscape(account),
		secret,
		url.QueryEscape(issuer))
}

// ValidateTOTP validates a TOTP code against a secret
func ValidateTOTP(secret, code string) bool {
	return totp.Validate(code, secret)
}
