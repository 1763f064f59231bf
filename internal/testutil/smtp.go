package testutil

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"testing"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// ReceivedMessage is one message accepted by the test SMTP server.
type ReceivedMessage struct {
	From string
	To   []string
	Data []byte
}

// MemoryBackend is a simple in-memory SMTP backend for testing.
type MemoryBackend struct {
	mu       sync.Mutex
	messages []*ReceivedMessage
	username string
	password string
}

// NewMemoryBackend creates a new in-memory SMTP backend that accepts the
// given credentials only.
func NewMemoryBackend(username, password string) *MemoryBackend {
	return &MemoryBackend{
		messages: make([]*ReceivedMessage, 0),
		username: username,
		password: password,
	}
}

// NewSession creates a new SMTP session.
func (b *MemoryBackend) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &memorySession{backend: b}, nil
}

// GetMessages returns all received messages.
func (b *MemoryBackend) GetMessages() []*ReceivedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*ReceivedMessage(nil), b.messages...)
}

// ClearMessages clears all stored messages.
func (b *MemoryBackend) ClearMessages() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = make([]*ReceivedMessage, 0)
}

type memorySession struct {
	backend *MemoryBackend
	authed  bool
	from    string
	to      []string
}

var _ smtp.AuthSession = (*memorySession)(nil)

func (s *memorySession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *memorySession) Auth(string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != s.backend.username || password != s.backend.password {
			return smtp.ErrAuthFailed
		}
		s.authed = true
		return nil
	}), nil
}

func (s *memorySession) Mail(from string, _ *smtp.MailOptions) error {
	if !s.authed {
		return smtp.ErrAuthRequired
	}
	s.from = from
	return nil
}

func (s *memorySession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *memorySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	s.backend.messages = append(s.backend.messages, &ReceivedMessage{
		From: s.from,
		To:   s.to,
		Data: data,
	})

	return nil
}

func (s *memorySession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *memorySession) Logout() error {
	return nil
}

// TestSMTPServer represents a test SMTP server instance.
type TestSMTPServer struct {
	Server   *smtp.Server
	Address  string
	Backend  *MemoryBackend
	cleanup  func()
	username string
	password string
}

// NewTestSMTPServer creates a new test SMTP server with an in-memory backend.
// It accepts "test-user" / "test-pass" over plain text auth.
func NewTestSMTPServer(t *testing.T) *TestSMTPServer {
	t.Helper()
	return NewTestSMTPServerWithCredentials(t, "test-user", "test-pass")
}

// NewTestSMTPServerWithCredentials is NewTestSMTPServer with caller-chosen credentials.
func NewTestSMTPServerWithCredentials(t *testing.T, username, password string) *TestSMTPServer {
	t.Helper()

	ts, err := StartSMTPServer("127.0.0.1:0", username, password)
	if err != nil {
		t.Fatalf("Failed to start SMTP server: %v", err)
	}
	t.Cleanup(ts.Close)

	return ts
}

// StartSMTPServer starts an in-memory SMTP server outside of a test, for the
// local test server. It allows AUTH without TLS.
func StartSMTPServer(address, username, password string) (*TestSMTPServer, error) {
	be := NewMemoryBackend(username, password)

	s := smtp.NewServer(be)
	s.AllowInsecureAuth = true
	s.Domain = "localhost"

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	go func() {
		if err := s.Serve(listener); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			log.Printf("SMTP server stopped: %v", err)
		}
	}()

	return &TestSMTPServer{
		Server:   s,
		Address:  listener.Addr().String(),
		Backend:  be,
		cleanup:  func() { _ = s.Close() },
		username: username,
		password: password,
	}, nil
}

// Close shuts down the test SMTP server.
func (s *TestSMTPServer) Close() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

// Username returns the test username.
func (s *TestSMTPServer) Username() string {
	return s.username
}

// Password returns the test password.
func (s *TestSMTPServer) Password() string {
	return s.password
}

// GetMessages returns all messages received by the server.
func (s *TestSMTPServer) GetMessages() []*ReceivedMessage {
	return s.Backend.GetMessages()
}
