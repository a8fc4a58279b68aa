package protocol

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// commitmentPrefix is the domain separation tag hashed into every
// commitment. It must match the vault contract exactly.
const commitmentPrefix = "coinflip_v1"

const secretLen = 32

type Side string

const (
	SideHeads Side = "heads"
	SideTails Side = "tails"
)

func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case string(SideHeads):
		return SideHeads, nil
	case string(SideTails):
		return SideTails, nil
	}
	return "", fmt.Errorf("invalid side %q", s)
}

// GenerateSecret returns 32 cryptographically random bytes, hex encoded.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// IsHex64 reports whether s is exactly 64 hex characters.
func IsHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// ComputeCommitment returns the hex-encoded
// SHA256(prefix || address || side || secret), where secret is the raw
// 32 bytes behind the hex encoding.
func ComputeCommitment(address string, side Side, secretHex string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("address must not be empty")
	}
	if side != SideHeads && side != SideTails {
		return "", fmt.Errorf("invalid side %q", side)
	}
	if !IsHex64(secretHex) {
		return "", fmt.Errorf("secret must be 64 hex characters")
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(commitmentPrefix))
	h.Write([]byte(address))
	h.Write([]byte(side))
	h.Write(secret)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyReveal recomputes the commitment from the revealed inputs and
// compares case-insensitively. Malformed input yields false, never an
// error; format checks run before any hashing.
func VerifyReveal(commitment string, address string, side Side, secretHex string) bool {
	if !IsHex64(commitment) || !IsHex64(secretHex) {
		return false
	}
	computed, err := ComputeCommitment(address, side, secretHex)
	if err != nil {
		return false
	}
	return strings.EqualFold(computed, commitment)
}

// NormalizeCommitment converts a commitment to its canonical lowercase hex
// form. The chain reports contract Binary fields base64 encoded while the
// store keys by hex, so lookups must accept either.
func NormalizeCommitment(s string) (string, error) {
	if IsHex64(s) {
		return strings.ToLower(s), nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("commitment is neither 64-char hex nor base64: %w", err)
	}
	if len(raw) != sha256.Size {
		return "", fmt.Errorf("decoded commitment is %d bytes, want %d", len(raw), sha256.Size)
	}
	return hex.EncodeToString(raw), nil
}
