// Package otp stores one-time passcode challenges keyed by phone number. Codes are never
// stored in clear: entries hold an HMAC digest bound to the phone they were issued for.
package otp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Entry is the stored state of an outstanding challenge.
type Entry struct {
	ChallengeID string    `json:"challenge_id"`
	Digest      string    `json:"digest"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Attempts    int       `json:"attempts"`
}

// Challenge is the handle returned to the caller after issuance.
type Challenge struct {
	ID        string    `json:"challenge_id"`
	Phone     string    `json:"-"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Result is the outcome of checking a submitted code.
type Result int

const (
	// ResultMissing means no challenge is outstanding (never issued, consumed, burned or evicted).
	ResultMissing Result = iota
	// ResultMatch means the code was correct; the challenge is consumed.
	ResultMatch
	// ResultMismatch means the code was wrong; the attempt was counted.
	ResultMismatch
	// ResultExpired means the challenge lapsed; it has been removed.
	ResultExpired
	// ResultLocked means this wrong attempt exhausted the budget; the challenge is burned.
	ResultLocked
)

func (r Result) String() string {
	switch r {
	case ResultMatch:
		return "verified"
	case ResultMismatch:
		return "mismatch"
	case ResultExpired:
		return "expired"
	case ResultLocked:
		return "locked"
	default:
		return "missing"
	}
}

// Store holds at most one challenge per phone. Operations on the same phone are
// linearizable; operations on different phones do not contend.
type Store interface {
	// Put replaces any outstanding challenge for phone.
	Put(ctx context.Context, phone string, e Entry) error
	// Check compares digest against the outstanding challenge and applies the outcome
	// (consume, count, burn or evict) atomically.
	Check(ctx context.Context, phone, digest string, now time.Time, maxAttempts int) (Result, error)
	// Delete drops any outstanding challenge for phone.
	Delete(ctx context.Context, phone string) error
}

// evaluate applies one verification attempt to e. It returns the outcome and the entry
// to keep, or nil when the challenge must be removed.
func evaluate(e *Entry, digest string, now time.Time, maxAttempts int) (Result, *Entry) {
	if e == nil {
		return ResultMissing, nil
	}
	if !now.Before(e.ExpiresAt) {
		return ResultExpired, nil
	}
	if hmac.Equal([]byte(e.Digest), []byte(digest)) {
		return ResultMatch, nil
	}
	next := *e
	next.Attempts++
	if next.Attempts >= maxAttempts {
		return ResultLocked, nil
	}
	return ResultMismatch, &next
}

// Hasher derives code digests from a server secret.
type Hasher struct {
	key []byte
}

// NewHasher derives a dedicated 32-byte HMAC key from secret with HKDF-SHA256, so the
// token signing key is never used directly for passcodes.
func NewHasher(secret string) (*Hasher, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), []byte("atrium-otp-salt"), []byte("otp digest v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return &Hasher{key: key}, nil
}

// Digest returns the hex HMAC-SHA256 of phone and code.
func (h *Hasher) Digest(phone, code string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(phone))
	mac.Write([]byte{0})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}
