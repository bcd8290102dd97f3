// Package otp generates and hashes short numeric one-time codes.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// Digits is the length of every issued code.
const Digits = 6

var space = big.NewInt(1_000_000)

// Generate returns a uniformly random zero-padded 6-digit code.
func Generate() (string, error) {
	return generate(rand.Reader)
}

func generate(r io.Reader) (string, error) {
	n, err := rand.Int(r, space)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", Digits, n.Int64()), nil
}

// Hash is a deterministic unkeyed digest of a code. It keeps the plaintext
// off disk; it is not meant to resist someone holding the database.
func Hash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Matches compares the hash of a submitted code against a stored hash over
// the full digest length.
func Matches(submitted, storedHash string) bool {
	got := Hash(Normalize(submitted))
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}

// Normalize strips surrounding whitespace from user input.
func Normalize(code string) string {
	return strings.TrimSpace(code)
}

// WellFormed reports whether code is exactly Digits decimal digits.
func WellFormed(code string) bool {
	if len(code) != Digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
