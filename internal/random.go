package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

const tokenRawSize = 32

// BackupCodeAlphabet excludes ambiguous characters (0/O, 1/I) so codes
// survive being read aloud or retyped.
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewToken generates an opaque single-use token. The plaintext is the hex
// encoding of 32 random bytes and is returned alongside its SHA-256 hash;
// only the hash may be persisted.
func NewToken() (string, [32]byte, error) {
	var raw [tokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", [32]byte{}, err
	}

	plain := hex.EncodeToString(raw[:])
	return plain, HashToken(plain), nil
}

// HashToken hashes the plaintext token exactly as presented. Lookups must
// compare hashes, never plaintexts.
func HashToken(plain string) [32]byte {
	return sha256.Sum256([]byte(plain))
}

// NewOpaqueID returns a compact random identifier for cookie-bound state
// such as CSRF sessions and two-factor login challenges.
func NewOpaqueID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// FingerprintToken returns the hex SHA-256 fingerprint of a refresh token.
// The account record stores this fingerprint, never the token itself.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func NewBackupCode(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("invalid backup code length")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(BackupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n.Int64()])
	}

	return b.String(), nil
}

// FormatBackupCode inserts a mid-point dash for readability. The dash is
// stripped again by CanonicalizeBackupCode before comparison.
func FormatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// BackupCodeHash binds the code to its owner so identical codes issued to
// different accounts never share a stored hash.
func BackupCodeHash(accountID, canonicalCode string) [32]byte {
	data := make([]byte, 0, len(accountID)+1+len(canonicalCode))
	data = append(data, accountID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	return sha256.Sum256(data)
}
