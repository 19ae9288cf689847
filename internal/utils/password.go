package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the number of random bytes prepended to every secret.
	SaltSize = 16

	// PBKDF2Iterations is the work factor for administrator credentials.
	// Stored records carry their own count, so raising this only affects new hashes.
	PBKDF2Iterations = 100_000

	// pbkdf2KeyLen matches the SHA-256 output size.
	pbkdf2KeyLen = 32

	// maxPBKDF2Iterations rejects records crafted to burn CPU during verification.
	maxPBKDF2Iterations = 10_000_000

	pbkdf2Tag = "pbkdf2-sha256"
)

// HashPassword hashes a member secret with a fresh random salt.
// The record is "<salt-hex>$<sha256(salt||secret)-hex>".
// Only fails when the system entropy source does.
func HashPassword(secret string) (string, error) {
	salt, err := newSalt()
	if err != nil {
		return "", err
	}
	digest := saltedDigest(salt, secret)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(digest), nil
}

// HashAdminPassword hashes an administrator secret with PBKDF2-HMAC-SHA256.
// The record is "pbkdf2-sha256$<iterations>$<salt-hex>$<key-hex>".
func HashAdminPassword(secret string) (string, error) {
	salt, err := newSalt()
	if err != nil {
		return "", err
	}
	key := pbkdf2.Key([]byte(secret), salt, PBKDF2Iterations, pbkdf2KeyLen, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s", pbkdf2Tag, PBKDF2Iterations, hex.EncodeToString(salt), hex.EncodeToString(key)), nil
}

// VerifyPassword checks a plain text secret against an encoded record.
// Malformed records never match; no error is reported so callers cannot
// tell a corrupt record from a wrong secret.
func VerifyPassword(encoded, secret string) bool {
	switch {
	case encoded == "":
		return false
	case strings.HasPrefix(encoded, "$2"):
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(secret)) == nil
	case strings.HasPrefix(encoded, pbkdf2Tag+"$"):
		return verifyPBKDF2(encoded, secret)
	default:
		return verifySalted(encoded, secret)
	}
}

// NeedsRehash reports whether a stored administrator record should be
// replaced with a fresh HashAdminPassword record.
func NeedsRehash(encoded string) bool {
	if strings.HasPrefix(encoded, "$2") {
		return true
	}
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != pbkdf2Tag {
		return true
	}
	iter, err := strconv.Atoi(parts[1])
	return err != nil || iter < PBKDF2Iterations
}

func verifySalted(encoded, secret string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 2 {
		return false
	}
	salt, want, ok := decodeSaltAndDigest(parts[0], parts[1])
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare(saltedDigest(salt, secret), want) == 1
}

func verifyPBKDF2(encoded, secret string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 {
		return false
	}
	iter, err := strconv.Atoi(parts[1])
	if err != nil || iter <= 0 || iter > maxPBKDF2Iterations {
		return false
	}
	salt, want, ok := decodeSaltAndDigest(parts[2], parts[3])
	if !ok {
		return false
	}
	got := pbkdf2.Key([]byte(secret), salt, iter, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func decodeSaltAndDigest(saltHex, digestHex string) (salt, digest []byte, ok bool) {
	if saltHex == "" || digestHex == "" {
		return nil, nil, false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, nil, false
	}
	digest, err = hex.DecodeString(digestHex)
	if err != nil {
		return nil, nil, false
	}
	return salt, digest, true
}

func saltedDigest(salt []byte, secret string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(secret))
	return h.Sum(nil)
}

func newSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}
