package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// configReport never carries the password, only whether it is set.
type configReport struct {
	Configured     bool   `json:"configured"`
	SessionActive  bool   `json:"sessionActive"`
	Email          string `json:"email,omitempty"`
	EmailSet       bool   `json:"emailSet"`
	AppPasswordSet bool   `json:"appPasswordSet"`
	IMAPHost       string `json:"imapHost"`
	IMAPPort       string `json:"imapPort"`
	SMTPHost       string `json:"smtpHost"`
	SMTPPort       string `json:"smtpPort"`
	Environment    string `json:"environment"`
	Problem        string `json:"problem,omitempty"`
}

// CheckConfig reports the effective configuration. It works without a session.
func (h *Handler) CheckConfig(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report := configReport{
		Configured:     h.cfg.IsConfigured(),
		SessionActive:  h.requireSession() == nil,
		Email:          h.cfg.Email,
		EmailSet:       h.cfg.Email != "",
		AppPasswordSet: h.cfg.AppPassword != "",
		IMAPHost:       h.cfg.IMAPHost,
		IMAPPort:       h.cfg.IMAPPort,
		SMTPHost:       h.cfg.SMTPHost,
		SMTPPort:       h.cfg.SMTPPort,
		Environment:    h.cfg.Environment,
	}
	if err := h.cfg.Validate(); err != nil {
		report.Problem = err.Error()
	}

	return jsonResult(report)
}

// TestConnection connects to both servers with the configured credentials.
// It does not use the running session, so it also works after a failed
// startup connection.
func (h *Handler) TestConnection(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !h.cfg.IsConfigured() || h.tester == nil {
		return nil, ErrNotConfigured
	}

	return jsonResult(h.tester.TestConnection(ctx))
}
