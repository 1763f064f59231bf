package account

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/emersion/go-imap/client"
	"github.com/vdavid/icloud-mail-mcp/internal/config"
	"github.com/vdavid/icloud-mail-mcp/internal/imap"
	"github.com/vdavid/icloud-mail-mcp/internal/models"
	"github.com/vdavid/icloud-mail-mcp/internal/smtp"
)

const (
	stepOK      = "ok"
	stepFailed  = "failed"
	stepSkipped = "skipped"
)

// Session is one live account session: an authenticated IMAP connection and
// an SMTP sender for the same account.
type Session struct {
	IMAP *imap.Session
	SMTP *smtp.Sender
}

// Close logs the IMAP connection out.
func (s *Session) Close() error {
	if s == nil || s.IMAP == nil {
		return nil
	}
	return s.IMAP.Logout()
}

// Manager opens and tests account sessions from the configuration.
type Manager struct {
	cfg  *config.Config
	dial func(server string, useTLS bool) (*client.Client, error)
}

// NewManager creates a manager. It does not connect.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{cfg: cfg, dial: imap.ConnectToIMAP}
}

// Config returns the configuration the manager connects with.
func (m *Manager) Config() *config.Config {
	return m.cfg
}

// Connect logs in to IMAP and prepares the SMTP sender.
// The local part of the email is tried first; if the server rejects the
// credentials, the full address is tried once on a fresh connection.
func (m *Manager) Connect(ctx context.Context) (*Session, error) {
	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}

	var authed *client.Client
	username, err := loginWithFallback(ctx, m.cfg.LoginIdentities(), func(username string) error {
		c, err := m.dial(m.cfg.IMAPAddress(), !m.cfg.TestMode)
		if err != nil {
			return err
		}
		if err := imap.Login(c, username, m.cfg.AppPassword); err != nil {
			_ = c.Logout()
			return err
		}
		authed = c
		return nil
	})
	if err != nil {
		return nil, classify("IMAP login", err)
	}

	log.Printf("Connected to IMAP server %s as %s", m.cfg.IMAPAddress(), username)

	return &Session{
		IMAP: imap.NewSession(authed, username),
		SMTP: smtp.NewSender(smtp.Options{
			Address:  m.cfg.SMTPAddress(),
			Username: m.cfg.Email,
			Password: m.cfg.AppPassword,
			From:     m.cfg.Email,
			StartTLS: !m.cfg.TestMode,
		}),
	}, nil
}

// Disconnect logs the session out and returns once the server confirms.
func (m *Manager) Disconnect(session *Session) error {
	if err := session.Close(); err != nil {
		return classify("IMAP logout", err)
	}
	return nil
}

// TestConnection connects and disconnects over IMAP, then verifies the SMTP
// credentials with a fixed 30-second timeout. Failures are reported in the
// result, never returned.
func (m *Manager) TestConnection(ctx context.Context) models.ConnectionTestResult {
	result := models.ConnectionTestResult{IMAP: stepSkipped, SMTP: stepSkipped}

	session, err := m.Connect(ctx)
	if err != nil {
		result.IMAP = stepFailed
		return failedTest(result, "IMAP login", err)
	}
	result.Username = session.IMAP.Username()

	if err := m.Disconnect(session); err != nil {
		result.IMAP = stepFailed
		return failedTest(result, "IMAP logout", err)
	}
	result.IMAP = stepOK

	if err := session.SMTP.Verify(ctx); err != nil {
		result.SMTP = stepFailed
		return failedTest(result, "SMTP verification", err)
	}
	result.SMTP = stepOK

	result.OperationResult = models.Success(fmt.Sprintf("IMAP and SMTP connections to %s are working", m.cfg.Email))
	return result
}

func failedTest(result models.ConnectionTestResult, op string, err error) models.ConnectionTestResult {
	connErr := classify(op, err)
	log.Printf("Warning: Connection test failed: %s: %v", op, connErr.Err)

	result.OperationResult = models.Failure(fmt.Sprintf("%s failed: %v", op, connErr.Err))
	result.Category = string(connErr.Category)
	result.Hints = connErr.Hints()
	return result
}

// loginWithFallback tries each identity in order. Only a credential
// rejection moves on to the next identity; any other error stops at once.
func loginWithFallback(ctx context.Context, identities []string, attempt func(username string) error) (string, error) {
	if len(identities) == 0 {
		return "", errors.New("no login identity configured")
	}

	var lastErr error
	for i, username := range identities {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		err := attempt(username)
		if err == nil {
			return username, nil
		}
		lastErr = err

		if !imap.IsCredentialFailure(err) {
			return "", err
		}
		if i+1 < len(identities) {
			log.Printf("IMAP login as %s was rejected, retrying with %s", username, identities[i+1])
		}
	}

	return "", lastErr
}
