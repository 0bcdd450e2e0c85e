package otp

import (
	"context"
	"sync"
	"time"
)

type slot struct {
	mu    sync.Mutex
	entry *Entry

	// removed is set under mu once Sweep has dropped the slot from the map.
	removed bool
}

// MemoryStore is a process-local Store with one lock per phone. Used when Redis is
// unavailable and in tests.
type MemoryStore struct {
	slots sync.Map // phone -> *slot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) slot(phone string) *slot {
	v, _ := s.slots.LoadOrStore(phone, &slot{})
	return v.(*slot)
}

func (s *MemoryStore) Put(_ context.Context, phone string, e Entry) error {
	for {
		sl := s.slot(phone)
		sl.mu.Lock()
		if sl.removed {
			// Swept between lookup and lock; retry on a fresh slot.
			sl.mu.Unlock()
			continue
		}
		sl.entry = &e
		sl.mu.Unlock()
		return nil
	}
}

func (s *MemoryStore) Check(_ context.Context, phone, digest string, now time.Time, maxAttempts int) (Result, error) {
	for {
		v, ok := s.slots.Load(phone)
		if !ok {
			return ResultMissing, nil
		}
		sl := v.(*slot)
		sl.mu.Lock()
		if sl.removed {
			sl.mu.Unlock()
			continue
		}
		res, next := evaluate(sl.entry, digest, now, maxAttempts)
		sl.entry = next
		sl.mu.Unlock()
		return res, nil
	}
}

func (s *MemoryStore) Delete(_ context.Context, phone string) error {
	if v, ok := s.slots.Load(phone); ok {
		sl := v.(*slot)
		sl.mu.Lock()
		sl.entry = nil
		sl.mu.Unlock()
	}
	return nil
}

// Sweep clears entries that expired before now and drops slots left empty, so phones
// that never verify do not pin memory. It returns the number of expired entries.
func (s *MemoryStore) Sweep(now time.Time) int {
	n := 0
	s.slots.Range(func(k, v any) bool {
		sl := v.(*slot)
		sl.mu.Lock()
		if sl.entry != nil && !now.Before(sl.entry.ExpiresAt) {
			sl.entry = nil
			n++
		}
		if sl.entry == nil && !sl.removed {
			sl.removed = true
			s.slots.CompareAndDelete(k, sl)
		}
		sl.mu.Unlock()
		return true
	})
	return n
}

// Len returns the number of phones currently holding a slot.
func (s *MemoryStore) Len() int {
	n := 0
	s.slots.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
