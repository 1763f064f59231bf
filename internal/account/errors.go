package account

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/vdavid/icloud-mail-mcp/internal/imap"
	"github.com/vdavid/icloud-mail-mcp/internal/smtp"
)

// Category groups connection failures by what the user can do about them.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryNetwork        Category = "network"
	CategoryTimeout        Category = "timeout"
)

var hints = map[Category][]string{
	CategoryAuthentication: {
		"Use an app-specific password from appleid.apple.com, not your Apple ID password",
		"Check that ICLOUD_EMAIL is your full iCloud address",
		"Make sure iCloud Mail is enabled for this Apple ID",
	},
	CategoryNetwork: {
		"Check your internet connection",
		"Check IMAP_HOST/IMAP_PORT (default imap.mail.me.com:993) and SMTP_HOST/SMTP_PORT (default smtp.mail.me.com:587)",
		"A firewall or VPN may be blocking ports 993 and 587",
	},
	CategoryTimeout: {
		"The server did not answer within 30 seconds",
		"Check your internet connection and try again",
	},
}

// ConnectionError is a session-establishment failure with recovery hints.
type ConnectionError struct {
	Category Category
	// Op names the step that failed, e.g. "IMAP login".
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s failed: %v\n\nTroubleshooting:\n- %s", e.Op, e.Err, strings.Join(e.Hints(), "\n- "))
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Hints returns the recovery hints for the error's category.
func (e *ConnectionError) Hints() []string {
	return hints[e.Category]
}

// classify wraps err in a ConnectionError. Existing ConnectionErrors pass through.
func classify(op string, err error) *ConnectionError {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr
	}

	category := CategoryNetwork
	var netErr net.Error
	switch {
	case imap.IsCredentialFailure(err), smtp.IsCredentialFailure(err):
		category = CategoryAuthentication
	case errors.Is(err, os.ErrDeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout(),
		strings.Contains(strings.ToLower(err.Error()), "timed out"):
		category = CategoryTimeout
	}

	return &ConnectionError{Category: category, Op: op, Err: err}
}
