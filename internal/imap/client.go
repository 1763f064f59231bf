package imap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

const defaultMailbox = "INBOX"

// Session wraps one authenticated IMAP client with a mutex.
// The protocol session runs one command at a time, and most operations are a
// SELECT followed by SEARCH/FETCH/STORE, so every exported method holds the
// lock for its whole command sequence.
type Session struct {
	client   *client.Client
	username string
	mu       sync.Mutex
	lastUsed time.Time
}

// NewSession takes ownership of an authenticated client.
func NewSession(c *client.Client, username string) *Session {
	return &Session{
		client:   c,
		username: username,
		lastUsed: time.Now(),
	}
}

// Username returns the identity the session authenticated with.
func (s *Session) Username() string {
	return s.username
}

// GetLastUsed returns when the session last ran a command.
func (s *Session) GetLastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Logout ends the session. It returns once the server has answered LOGOUT.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client.State() == imap.LogoutState {
		return nil
	}
	if err := s.client.Logout(); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// withMailbox selects the mailbox and runs fn while holding the session lock.
// readOnly maps to EXAMINE, which leaves \Seen untouched.
func (s *Session) withMailbox(ctx context.Context, name string, readOnly bool, fn func(*client.Client, *imap.MailboxStatus) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()

	mbox, err := s.client.Select(mailboxOrDefault(name), readOnly)
	if err != nil {
		return fmt.Errorf("failed to open mailbox %s: %w", mailboxOrDefault(name), err)
	}

	return fn(s.client, mbox)
}

// withClient runs fn while holding the session lock, without selecting a mailbox.
func (s *Session) withClient(ctx context.Context, fn func(*client.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()

	return fn(s.client)
}

func mailboxOrDefault(name string) string {
	if name == "" {
		return defaultMailbox
	}
	return name
}
