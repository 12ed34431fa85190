package auth

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// isLegacyMD5 reports whether hash is a bare 32 character md5 hex digest.
func isLegacyMD5(hash string) bool {
	if len(hash) != 32 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

// CheckPassword compares password with a stored hash. rehash is true when
// the password matched but the hash should be replaced: legacy md5 digests
// and bcrypt hashes below the current cost.
func CheckPassword(hash, password string) (ok, rehash bool) {
	if isLegacyMD5(hash) {
		sum := md5.Sum([]byte(password))
		ok = subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(strings.ToLower(hash))) == 1
		return ok, ok
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return false, false
	}
	cost, err := bcrypt.Cost([]byte(hash))
	return true, err == nil && cost < bcrypt.DefaultCost
}
