// Package pat generates and verifies tenant API keys ("personal access
// tokens"). Keys are persisted only as a short lookup prefix plus an
// argon2id hash; verification also accepts a legacy hex SHA-256 scheme for
// keys issued by older frontends.
package pat

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// TokenPrefix marks a plaintext as a gateway access key, distinguishing it
// from raw Meta bearer tokens on the wire.
const TokenPrefix = "pat_"

// PrefixLen is the length of the stored lookup prefix.
const PrefixLen = 12

// Params configures the argon2id key derivation.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

// Default matches the cost profile used for stored keys.
var Default = Params{Memory: 64 * 1024, Time: 3, Parallelism: 1, KeyLen: 32}

// Generate creates a new key. It returns the full plaintext (revealed to the
// user exactly once), the lookup prefix and the argon2id PHC hash to store.
func Generate() (plaintext, prefix, hash string, err error) {
	raw := make([]byte, 32)
	if _, err = rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("generating key material: %w", err)
	}

	plaintext = TokenPrefix + base64.RawURLEncoding.EncodeToString(raw)
	prefix = ExtractPrefix(plaintext)

	hash, err = hashArgon2id(Default, plaintext)
	if err != nil {
		return "", "", "", err
	}
	return plaintext, prefix, hash, nil
}

// ExtractPrefix returns the non-secret leading slice of a plaintext used for
// candidate lookup.
func ExtractPrefix(plaintext string) string {
	if len(plaintext) < PrefixLen {
		return plaintext
	}
	return plaintext[:PrefixLen]
}

// Verify checks a presented plaintext against a stored hash. The scheme is
// detected from the hash's structural marker: "$argon2" selects argon2id,
// anything else is treated as legacy hex SHA-256.
func Verify(plaintext, storedHash string) bool {
	if plaintext == "" || storedHash == "" {
		return false
	}
	if strings.HasPrefix(storedHash, "$argon2") {
		return verifyArgon2id(plaintext, storedHash)
	}
	sum := sha256.Sum256([]byte(plaintext))
	computed := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// hashArgon2id returns a PHC string:
// $argon2id$v=19$m=...,t=...,p=...$<saltB64>$<dkB64>
func hashArgon2id(p Params, plaintext string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	dk := argon2.IDKey([]byte(plaintext), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk),
	), nil
}

func verifyArgon2id(plaintext, phc string) bool {
	// $argon2id$v=19$m=...,t=...,p=...$salt$dk
	parts := strings.Split(phc, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var v int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &v); err != nil || v != 19 {
		return false
	}
	var m, t, p int
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false
	}
	saltB64, dkB64 := parts[4], parts[5]
	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}
	dkStored, err := base64.RawStdEncoding.DecodeString(dkB64)
	if err != nil {
		return false
	}
	key := argon2.IDKey([]byte(plaintext), salt, uint32(t), uint32(m), uint8(p), uint32(len(dkStored)))
	return subtle.ConstantTimeCompare(key, dkStored) == 1
}
