package testutil

import (
	"fmt"
	"log"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// TestIMAPServer represents a test IMAP server instance.
type TestIMAPServer struct {
	Server   *server.Server
	Address  string
	Backend  *memory.Backend
	cleanup  func()
	username string
	password string
}

// NewTestIMAPServer creates a new test IMAP server with an in-memory backend.
// The memory backend creates a default user with username "username" and password "password",
// and seeds INBOX with one message.
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()

	ts, err := StartIMAPServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start IMAP server: %v", err)
	}
	t.Cleanup(ts.Close)

	return ts
}

// StartIMAPServer starts an in-memory IMAP server outside of a test, for the
// local test server. Pass port 0 to pick a free port.
func StartIMAPServer(address string) (*TestIMAPServer, error) {
	be := memory.New()

	s := server.New(movingBackend{be})
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	go func() {
		if err := s.Serve(listener); err != nil {
			log.Printf("IMAP server stopped: %v", err)
		}
	}()

	return &TestIMAPServer{
		Server:   s,
		Address:  listener.Addr().String(),
		Backend:  be,
		cleanup:  func() { _ = s.Close() },
		username: "username",
		password: "password",
	}, nil
}

// movingBackend adds MOVE support to the memory backend, whose mailboxes
// only implement COPY. The server advertises MOVE either way.
type movingBackend struct {
	*memory.Backend
}

func (b movingBackend) Login(connInfo *imap.ConnInfo, username, password string) (backend.User, error) {
	user, err := b.Backend.Login(connInfo, username, password)
	if err != nil {
		return nil, err
	}
	return movingUser{user}, nil
}

type movingUser struct {
	backend.User
}

func (u movingUser) GetMailbox(name string) (backend.Mailbox, error) {
	mbox, err := u.User.GetMailbox(name)
	if err != nil {
		return nil, err
	}
	return movingMailbox{mbox}, nil
}

type movingMailbox struct {
	backend.Mailbox
}

var _ backend.MoveMailbox = movingMailbox{}

// MoveMessages copies the messages, flags the originals \Deleted and
// expunges them.
func (m movingMailbox) MoveMessages(uid bool, seqSet *imap.SeqSet, dest string) error {
	if err := m.CopyMessages(uid, seqSet, dest); err != nil {
		return err
	}
	if err := m.UpdateMessagesFlags(uid, seqSet, imap.AddFlags, []string{imap.DeletedFlag}); err != nil {
		return err
	}
	return m.Expunge()
}

// Close shuts down the test IMAP server.
func (s *TestIMAPServer) Close() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

// Username returns the default test username.
func (s *TestIMAPServer) Username() string {
	return s.username
}

// Password returns the default test password.
func (s *TestIMAPServer) Password() string {
	return s.password
}

// Connect creates a new IMAP client connection to the test server.
func (s *TestIMAPServer) Connect(t *testing.T) (*imapclient.Client, func()) {
	t.Helper()

	client, err := s.dial()
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}

	cleanup := func() {
		_ = client.Logout()
	}

	return client, cleanup
}

func (s *TestIMAPServer) dial() (*imapclient.Client, error) {
	client, err := imapclient.Dial(s.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := client.Login(s.username, s.password); err != nil {
		_ = client.Logout()
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	return client, nil
}

// ClearMailbox expunges every message in the folder, including the one the
// memory backend seeds INBOX with.
func (s *TestIMAPServer) ClearMailbox(t *testing.T, folderName string) {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	mbox, err := client.Select(folderName, false)
	if err != nil {
		t.Fatalf("Failed to select folder %s: %v", folderName, err)
	}
	if mbox.Messages == 0 {
		return
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(1, mbox.Messages)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := client.Store(seqSet, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		t.Fatalf("Failed to flag messages: %v", err)
	}
	if err := client.Expunge(nil); err != nil {
		t.Fatalf("Failed to expunge: %v", err)
	}
}

// CreateMailbox creates a folder for the default user.
func (s *TestIMAPServer) CreateMailbox(t *testing.T, name string) {
	t.Helper()

	if err := s.Create(name); err != nil {
		t.Fatalf("Failed to create mailbox %s: %v", name, err)
	}
}

// Create creates a folder for the default user over a fresh connection.
func (s *TestIMAPServer) Create(name string) error {
	client, err := s.dial()
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout() }()

	return client.Create(name)
}

// AddRawMessage appends an RFC 822 message to the folder.
func (s *TestIMAPServer) AddRawMessage(t *testing.T, folderName, raw string, flags ...string) {
	t.Helper()

	if err := s.Append(folderName, raw, flags...); err != nil {
		t.Fatalf("Failed to append message: %v", err)
	}
}

// Append appends an RFC 822 message to the folder over a fresh connection.
// Bare LF line endings are converted to CRLF.
func (s *TestIMAPServer) Append(folderName, raw string, flags ...string) error {
	client, err := s.dial()
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout() }()

	raw = strings.ReplaceAll(strings.ReplaceAll(raw, "\r\n", "\n"), "\n", "\r\n")
	return client.Append(folderName, flags, time.Now(), strings.NewReader(raw))
}

// AddMessage adds a plain text test message to the specified folder.
// An empty messageID produces a message without a Message-ID header.
func (s *TestIMAPServer) AddMessage(t *testing.T, folderName, messageID, subject, from, to string, sentAt time.Time, flags ...string) {
	t.Helper()

	var b strings.Builder
	if messageID != "" {
		fmt.Fprintf(&b, "Message-ID: %s\n", messageID)
	}
	fmt.Fprintf(&b, "Date: %s\nFrom: %s\nTo: %s\nSubject: %s\n", sentAt.Format(time.RFC1123Z), from, to, subject)
	b.WriteString("Content-Type: text/plain; charset=utf-8\n\nTest message body.\n")

	s.AddRawMessage(t, folderName, b.String(), flags...)
}

// MessageCount returns the number of messages in the folder.
func (s *TestIMAPServer) MessageCount(t *testing.T, folderName string) uint32 {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	mbox, err := client.Select(folderName, true)
	if err != nil {
		t.Fatalf("Failed to select folder %s: %v", folderName, err)
	}
	return mbox.Messages
}

// Flags returns the flags of the message with the given sequence number.
func (s *TestIMAPServer) Flags(t *testing.T, folderName string, seqNum uint32) []string {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	if _, err := client.Select(folderName, true); err != nil {
		t.Fatalf("Failed to select folder %s: %v", folderName, err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNum)
	messages := make(chan *imap.Message, 1)
	if err := client.Fetch(seqSet, []imap.FetchItem{imap.FetchFlags}, messages); err != nil {
		t.Fatalf("Failed to fetch flags: %v", err)
	}
	msg := <-messages
	if msg == nil {
		t.Fatalf("Message %d not found in %s", seqNum, folderName)
	}
	return msg.Flags
}
