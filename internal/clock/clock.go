// Package clock supplies time and randomness to the authorization core so both can be
// replaced in tests.
package clock

import (
	"crypto/rand"
	"errors"
	"math/big"
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// RandomSource yields cryptographically strong integers.
type RandomSource interface {
	// Between returns a uniformly distributed integer in [min, max].
	Between(min, max int64) (int64, error)
}

// System is the wall clock.
type System struct{}

// Now returns time.Now in UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// CryptoRandom draws from crypto/rand.
type CryptoRandom struct{}

// Between returns a uniform value in [min, max] using rejection-free big.Int sampling.
func (CryptoRandom) Between(min, max int64) (int64, error) {
	if max < min {
		return 0, errors.New("clock: max must not be less than min")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max-min+1))
	if err != nil {
		return 0, err
	}
	return min + n.Int64(), nil
}

// Fixed is a manually advanced clock for tests.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixed returns a Fixed clock set to t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t}
}

// Now returns the current fixed time.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Sequence replays a fixed list of values, then repeats the last one. Tests only.
type Sequence struct {
	mu     sync.Mutex
	values []int64
}

// NewSequence returns a Sequence yielding values in order.
func NewSequence(values ...int64) *Sequence {
	return &Sequence{values: values}
}

// Between returns the next queued value, clamped to [min, max].
func (s *Sequence) Between(min, max int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return min, nil
	}
	v := s.values[0]
	if len(s.values) > 1 {
		s.values = s.values[1:]
	}
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return v, nil
}
