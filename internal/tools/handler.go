// Package tools exposes the mail operations as MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/vdavid/icloud-mail-mcp/internal/config"
	"github.com/vdavid/icloud-mail-mcp/internal/imap"
	"github.com/vdavid/icloud-mail-mcp/internal/models"
	"github.com/vdavid/icloud-mail-mcp/internal/smtp"
)

// ErrNotConfigured is returned by every tool that needs a session when none
// was established. It is passed to the client unchanged.
var ErrNotConfigured = errors.New("iCloud Mail is not configured: set ICLOUD_EMAIL and ICLOUD_APP_PASSWORD and restart the server")

// Sender submits outgoing mail.
type Sender interface {
	Send(ctx context.Context, msg smtp.OutgoingMessage) (messageID string, recipients []string, err error)
}

// ConnectionTester checks that both protocols accept the configured credentials.
type ConnectionTester interface {
	TestConnection(ctx context.Context) models.ConnectionTestResult
}

// Handler serves the tool calls. mailbox and sender are nil when the server
// started without a session.
type Handler struct {
	cfg     *config.Config
	mailbox imap.IMAPService
	sender  Sender
	tester  ConnectionTester
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg *config.Config, mailbox imap.IMAPService, sender Sender, tester ConnectionTester) *Handler {
	return &Handler{
		cfg:     cfg,
		mailbox: mailbox,
		sender:  sender,
		tester:  tester,
	}
}

// Register adds every tool to s.
func (h *Handler) Register(s *server.MCPServer) {
	s.AddTool(getMessagesTool(), guard(h.GetMessages))
	s.AddTool(searchMessagesTool(), guard(h.SearchMessages))
	s.AddTool(sendEmailTool(), guard(h.SendEmail))
	s.AddTool(markAsReadTool(), guard(h.MarkAsRead))
	s.AddTool(getMailboxesTool(), guard(h.GetMailboxes))
	s.AddTool(createMailboxTool(), guard(h.CreateMailbox))
	s.AddTool(deleteMailboxTool(), guard(h.DeleteMailbox))
	s.AddTool(moveMessagesTool(), guard(h.MoveMessages))
	s.AddTool(deleteMessagesTool(), guard(h.DeleteMessages))
	s.AddTool(setFlagsTool(), guard(h.SetFlags))
	s.AddTool(downloadAttachmentTool(), guard(h.DownloadAttachment))
	s.AddTool(autoOrganizeTool(), guard(h.AutoOrganize))
	s.AddTool(testConnectionTool(), guard(h.TestConnection))
	s.AddTool(checkConfigTool(), guard(h.CheckConfig))
}

// guard turns panics and errors into tool error results so that one failed
// call never ends the process. ErrNotConfigured is passed through.
func guard(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Warning: Tool %s panicked: %v", req.Params.Name, r)
				result, err = mcp.NewToolResultError(fmt.Sprintf("Tool execution failed: %v", r)), nil
			}
		}()

		result, err = next(ctx, req)
		if err == nil || errors.Is(err, ErrNotConfigured) {
			return result, err
		}

		log.Printf("Warning: Tool %s failed: %v", req.Params.Name, err)
		return mcp.NewToolResultError(fmt.Sprintf("Tool execution failed: %v", err)), nil
	}
}

// requireSession reports ErrNotConfigured when no session was established.
func (h *Handler) requireSession() error {
	if h.mailbox == nil || h.sender == nil {
		return ErrNotConfigured
	}
	return nil
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// bind decodes the call arguments into v.
func bind(req mcp.CallToolRequest, v any) error {
	if err := req.BindArguments(v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
