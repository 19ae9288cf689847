package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// TestHashPassword tests member password hashing
func TestHashPassword(t *testing.T) {
	password := "mySecurePassword123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 2 {
		t.Fatalf("HashPassword() = %q, want salt$digest", hash)
	}
	if len(parts[0]) != SaltSize*2 {
		t.Errorf("salt hex length = %d, want %d", len(parts[0]), SaltSize*2)
	}
	if len(parts[1]) != 64 {
		t.Errorf("digest hex length = %d, want 64", len(parts[1]))
	}
	if strings.Contains(hash, password) {
		t.Error("HashPassword() leaked plaintext into the record")
	}
}

// TestHashPassword_Unique tests that same password produces different hashes
func TestHashPassword_Unique(t *testing.T) {
	hash1, err := HashPassword("testPassword")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	hash2, err := HashPassword("testPassword")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if hash1 == hash2 {
		t.Error("HashPassword() should generate different hashes for same password (salted)")
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correctpassword")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}

	if !VerifyPassword(hash, "correctpassword") {
		t.Error("VerifyPassword() rejected the correct password")
	}
	if VerifyPassword(hash, "wrongpassword") {
		t.Error("VerifyPassword() accepted a wrong password")
	}
	if VerifyPassword(hash, "") {
		t.Error("VerifyPassword() accepted an empty password")
	}
}

func TestHashAdminPassword(t *testing.T) {
	hash, err := HashAdminPassword("admin-secret")
	if err != nil {
		t.Fatalf("HashAdminPassword() error: %v", err)
	}

	if !strings.HasPrefix(hash, "pbkdf2-sha256$100000$") {
		t.Errorf("HashAdminPassword() = %q, want pbkdf2-sha256$100000$ prefix", hash)
	}
	if !VerifyPassword(hash, "admin-secret") {
		t.Error("VerifyPassword() rejected the correct admin password")
	}
	if VerifyPassword(hash, "admin-secreT") {
		t.Error("VerifyPassword() accepted a wrong admin password")
	}
	if NeedsRehash(hash) {
		t.Error("NeedsRehash() = true for a current record")
	}
}

// Records carry their iteration count so older work factors still verify.
func TestVerifyPassword_EmbeddedIterationCount(t *testing.T) {
	hash, err := HashAdminPassword("rotate-me")
	if err != nil {
		t.Fatalf("HashAdminPassword() error: %v", err)
	}
	parts := strings.Split(hash, "$")

	// Rebuild the record at 1000 iterations with the same salt.
	low := lowIterationRecord(t, "rotate-me", parts[2], 1000)
	if !VerifyPassword(low, "rotate-me") {
		t.Error("VerifyPassword() rejected a valid low-iteration record")
	}
	if !NeedsRehash(low) {
		t.Error("NeedsRehash() = false for a low-iteration record")
	}
}

func TestVerifyPassword_LegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("old-admin"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}

	if !VerifyPassword(string(legacy), "old-admin") {
		t.Error("VerifyPassword() rejected a valid bcrypt record")
	}
	if VerifyPassword(string(legacy), "new-admin") {
		t.Error("VerifyPassword() accepted a wrong bcrypt password")
	}
	if !NeedsRehash(string(legacy)) {
		t.Error("NeedsRehash() = false for bcrypt")
	}
}

func TestVerifyPassword_Malformed(t *testing.T) {
	valid, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	parts := strings.Split(valid, "$")

	tests := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"no separator", parts[0] + parts[1]},
		{"too many parts", valid + "$extra"},
		{"empty salt", "$" + parts[1]},
		{"empty digest", parts[0] + "$"},
		{"bad salt hex", "zz" + parts[0][2:] + "$" + parts[1]},
		{"bad digest hex", parts[0] + "$" + "zz" + parts[1][2:]},
		{"truncated digest", parts[0] + "$" + parts[1][:10]},
		{"pbkdf2 wrong parts", "pbkdf2-sha256$100000$abcd"},
		{"pbkdf2 zero iterations", "pbkdf2-sha256$0$" + parts[0] + "$" + parts[1]},
		{"pbkdf2 negative iterations", "pbkdf2-sha256$-5$" + parts[0] + "$" + parts[1]},
		{"pbkdf2 absurd iterations", "pbkdf2-sha256$999999999$" + parts[0] + "$" + parts[1]},
		{"pbkdf2 non-numeric iterations", "pbkdf2-sha256$lots$" + parts[0] + "$" + parts[1]},
		{"pbkdf2 empty salt", "pbkdf2-sha256$1000$$" + parts[1]},
		{"bcrypt garbage", "$2a$10$notarealhash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifyPassword(tt.encoded, "secret") {
				t.Errorf("VerifyPassword(%q) = true, want false", tt.encoded)
			}
		})
	}
}

func TestNeedsRehash_Malformed(t *testing.T) {
	for _, encoded := range []string{"", "abc$def", "pbkdf2-sha256$x$a$b"} {
		if !NeedsRehash(encoded) {
			t.Errorf("NeedsRehash(%q) = false, want true", encoded)
		}
	}
}

func lowIterationRecord(t *testing.T, secret, saltHex string, iter int) string {
	t.Helper()
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		t.Fatalf("decode salt: %v", err)
	}
	key := pbkdf2.Key([]byte(secret), salt, iter, 32, sha256.New)
	return fmt.Sprintf("pbkdf2-sha256$%d$%s$%s", iter, saltHex, hex.EncodeToString(key))
}
