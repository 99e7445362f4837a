package authn

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// HashPassword bcrypt-hashes a plaintext password or code.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CompareHash reports whether plain matches the given bcrypt hash.
func CompareHash(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// VerifyPasswordComplexity requires at least 8 characters with one upper,
// one lower, and one digit.
func VerifyPasswordComplexity(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasUpper && hasLower && hasDigit
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
var ipPattern = regexp.MustCompile(`^(?:[0-9]{1,3}\.){3}[0-9]{1,3}$`)

// VerifyEmail reports whether s looks like a valid email address.
func VerifyEmail(s string) bool { return emailPattern.MatchString(s) }

// VerifyIP reports whether s looks like a valid IPv4 address literal.
func VerifyIP(s string) bool { return ipPattern.MatchString(s) }

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GeneratePassword returns a random alphanumeric string of the given length,
// used for CLI-provisioned accounts (e.g. the bootstrap super admin).
func GeneratePassword(length int) (string, error) {
	return randomString(length, alphanumeric)
}

// GenerateResetCode returns a random 6-digit numeric string, used for email
// validation and password reset codes.
func GenerateResetCode() (string, error) {
	return randomString(6, "0123456789")
}

func randomString(length int, alphabet string) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating random string: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
