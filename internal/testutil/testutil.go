// Package testutil provides shared test doubles and fixtures for package tests.
package testutil

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"atrium/internal/database"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewTestDB opens a migrated in-memory sqlite database. The pool is pinned to one
// connection so every query sees the same database.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Open(sqlite.Open(":memory:"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// SentMessage is one message captured by SenderStub.
type SentMessage struct {
	Phone string
	Body  string
}

// SenderStub is an in-memory sms.Sender. It records every message and fails with
// Err when set.
type SenderStub struct {
	mu   sync.Mutex
	sent []SentMessage
	Err  error
}

// Send records the message.
func (s *SenderStub) Send(_ context.Context, phone, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, SentMessage{Phone: phone, Body: message})
	if s.Err != nil {
		return "", s.Err
	}
	return "msg-1", nil
}

// Messages returns a copy of everything sent so far.
func (s *SenderStub) Messages() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentMessage(nil), s.sent...)
}

// LastCode returns the passcode in the most recent message.
func (s *SenderStub) LastCode(t testing.TB) string {
	t.Helper()
	msgs := s.Messages()
	require.NotEmpty(t, msgs, "no message sent")
	return CodeFrom(t, msgs[len(msgs)-1])
}

var sixDigits = regexp.MustCompile(`\b[0-9]{6}\b`)

// CodeFrom extracts the six digit passcode from m.
func CodeFrom(t testing.TB, m SentMessage) string {
	t.Helper()
	code := sixDigits.FindString(m.Body)
	require.NotEmpty(t, code, "no code in %q", m.Body)
	return code
}
