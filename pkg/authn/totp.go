package authn

import (
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// GenerateTOTPSecret returns a new base32-encoded 160-bit TOTP secret.
// pquerna/otp is an out-of-pack dependency: nothing in the retrieved corpus
// implements RFC 6238, so this is named here rather than grounded on an
// example.
func GenerateTOTPSecret(accountName, issuer string) (secret string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		SecretSize:  20, // 160 bits
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generating totp secret: %w", err)
	}
	return key.Secret(), nil
}

// CheckOTP verifies a 6-digit TOTP code against a base32 secret using the
// standard 30-second step window.
func CheckOTP(code, secret string) bool {
	return totp.Validate(code, secret)
}
