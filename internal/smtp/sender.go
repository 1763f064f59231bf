package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

const (
	// DialTimeout bounds the TCP dial to the SMTP server.
	DialTimeout = 30 * time.Second
	// VerifyTimeout bounds a whole Verify call.
	VerifyTimeout = 30 * time.Second
)

// ErrAuthentication marks an AUTH the server rejected because of the credentials.
var ErrAuthentication = errors.New("SMTP authentication rejected")

// credentialFailureCodes are the AUTH reply codes that mean the username or
// password is wrong.
var credentialFailureCodes = map[int]bool{
	535: true,
	534: true,
}

// IsCredentialFailure reports whether err is a rejected SMTP login.
func IsCredentialFailure(err error) bool {
	if errors.Is(err, ErrAuthentication) {
		return true
	}
	var smtpErr *smtp.SMTPError
	return errors.As(err, &smtpErr) && credentialFailureCodes[smtpErr.Code]
}

// Options configures a Sender.
type Options struct {
	// Address is host:port of the submission server.
	Address  string
	Username string
	Password string
	// From is the envelope and header sender.
	From string
	// StartTLS upgrades the connection before AUTH. Only tests turn it off.
	StartTLS bool
}

// OutgoingMessage is what send_email hands to the sender.
type OutgoingMessage struct {
	// To is a comma separated address list.
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender submits mail over SMTP. Every call opens its own connection, so a
// Sender is safe for concurrent use.
type Sender struct {
	opts          Options
	verifyTimeout time.Duration
}

// NewSender creates a sender. It does not connect.
func NewSender(opts Options) *Sender {
	return &Sender{opts: opts, verifyTimeout: VerifyTimeout}
}

// From returns the configured sender address.
func (s *Sender) From() string {
	return s.opts.From
}

// connect dials, upgrades with STARTTLS when configured and authenticates.
// The connection is closed as soon as ctx is done, which unblocks a
// handshake the server never answers.
func (s *Sender) connect(ctx context.Context) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.opts.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", s.opts.Address, err)
	}
	context.AfterFunc(ctx, func() { _ = conn.Close() })

	var c *smtp.Client
	if s.opts.StartTLS {
		host, _, _ := net.SplitHostPort(s.opts.Address)
		c, err = smtp.NewClientStartTLS(conn, &tls.Config{ServerName: host})
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	} else {
		c = smtp.NewClient(conn)
	}

	if err := c.Auth(sasl.NewPlainClient("", s.opts.Username, s.opts.Password)); err != nil {
		_ = c.Close()
		if IsCredentialFailure(err) {
			return nil, fmt.Errorf("%w for %s: %w", ErrAuthentication, s.opts.Username, err)
		}
		return nil, fmt.Errorf("SMTP AUTH did not complete: %w", err)
	}

	return c, nil
}

// Verify checks that the server accepts the credentials. It gives up after
// a fixed 30 seconds regardless of ctx.
func (s *Sender) Verify(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		c, err := s.connect(ctx)
		if err != nil {
			done <- err
			return
		}
		done <- c.Quit()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("SMTP verification timed out after %s: %w", s.verifyTimeout, ctx.Err())
	}
}

// Send builds the message and submits it. It returns the generated
// Message-ID and the parsed recipients.
func (s *Sender) Send(ctx context.Context, msg OutgoingMessage) (string, []string, error) {
	recipients, err := mail.ParseAddressList(msg.To)
	if err != nil {
		return "", nil, fmt.Errorf("invalid recipient list %q: %w", msg.To, err)
	}
	if len(recipients) == 0 {
		return "", nil, fmt.Errorf("at least one recipient is required")
	}

	raw, messageID, err := s.compose(recipients, msg)
	if err != nil {
		return "", nil, err
	}

	to := make([]string, 0, len(recipients))
	for _, r := range recipients {
		to = append(to, r.Address)
	}

	c, err := s.connect(ctx)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = c.Close() }()

	if err := c.SendMail(s.opts.From, to, bytes.NewReader(raw)); err != nil {
		return "", nil, fmt.Errorf("failed to send message: %w", err)
	}
	if err := c.Quit(); err != nil {
		return "", nil, fmt.Errorf("failed to close SMTP session: %w", err)
	}

	return messageID, to, nil
}

// compose renders the message: multipart/alternative when both bodies are
// set, a single part otherwise.
func (s *Sender) compose(recipients []*mail.Address, msg OutgoingMessage) ([]byte, string, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: s.opts.From}})
	h.SetAddressList("To", recipients)
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, "", fmt.Errorf("failed to generate Message-ID: %w", err)
	}
	id, err := h.MessageID()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read Message-ID: %w", err)
	}

	var buf bytes.Buffer
	if msg.Text != "" && msg.HTML != "" {
		if err := writeAlternative(&buf, h, msg.Text, msg.HTML); err != nil {
			return nil, "", err
		}
	} else {
		contentType, body := "text/plain", msg.Text
		if msg.Text == "" && msg.HTML != "" {
			contentType, body = "text/html", msg.HTML
		}
		h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create message writer: %w", err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			return nil, "", fmt.Errorf("failed to write message body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("failed to finish message: %w", err)
		}
	}

	return buf.Bytes(), "<" + id + ">", nil
}

func writeAlternative(buf *bytes.Buffer, h mail.Header, text, html string) error {
	w, err := mail.CreateWriter(buf, h)
	if err != nil {
		return fmt.Errorf("failed to create message writer: %w", err)
	}

	inline, err := w.CreateInline()
	if err != nil {
		return fmt.Errorf("failed to create alternative part: %w", err)
	}

	for _, part := range []struct{ contentType, body string }{
		{"text/plain", text},
		{"text/html", html},
	} {
		var ph mail.InlineHeader
		ph.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		pw, err := inline.CreatePart(ph)
		if err != nil {
			return fmt.Errorf("failed to create %s part: %w", part.contentType, err)
		}
		if _, err := io.WriteString(pw, part.body); err != nil {
			return fmt.Errorf("failed to write %s part: %w", part.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return fmt.Errorf("failed to finish %s part: %w", part.contentType, err)
		}
	}

	if err := inline.Close(); err != nil {
		return fmt.Errorf("failed to finish alternative part: %w", err)
	}
	return w.Close()
}
