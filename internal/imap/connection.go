package imap

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap/client"
)

const (
	// ConnectTimeout bounds the TCP dial plus TLS handshake.
	ConnectTimeout = 30 * time.Second
	// LoginTimeout bounds the LOGIN command.
	LoginTimeout = 30 * time.Second
)

// ErrAuthentication marks a LOGIN rejected because of the credentials.
var ErrAuthentication = errors.New("authentication failed")

// credentialFailureSignatures are lowercase fragments servers put in a NO
// response to LOGIN when the username or password is wrong.
var credentialFailureSignatures = []string{
	"authenticationfailed",
	"authentication failed",
	"invalid credentials",
	"bad username or password",
	"login failed",
	"[auth]",
}

// ConnectToIMAP connects to the IMAP server with a 30-second timeout.
// useTLS: true for production (implicit TLS), false for tests (non-TLS).
func ConnectToIMAP(server string, useTLS bool) (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout: ConnectTimeout,
	}

	if useTLS {
		host, _, err := net.SplitHostPort(server)
		if err != nil {
			return nil, fmt.Errorf("invalid IMAP address %q: %w", server, err)
		}
		c, err := client.DialWithDialerTLS(dialer, server, &tls.Config{ServerName: host})
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
		return c, nil
	}

	// Non-TLS connection for testing
	c, err := client.DialWithDialer(dialer, server)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	return c, nil
}

// Login authenticates with the IMAP server. Credential rejections are wrapped
// with ErrAuthentication. Other failures, such as a connection dropped during
// LOGIN, carry no authentication marker.
func Login(c *client.Client, username, password string) error {
	c.Timeout = LoginTimeout
	defer func() { c.Timeout = 0 }()

	if err := c.Login(username, password); err != nil {
		if IsCredentialFailure(err) {
			return fmt.Errorf("%w for %s: %v", ErrAuthentication, username, err)
		}
		return fmt.Errorf("LOGIN as %s did not complete: %w", username, err)
	}

	return nil
}

// IsCredentialFailure reports whether err looks like a rejected username or password.
func IsCredentialFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthentication) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, signature := range credentialFailureSignatures {
		if strings.Contains(msg, signature) {
			return true
		}
	}
	return false
}
