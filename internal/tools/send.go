package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/vdavid/icloud-mail-mcp/internal/models"
	"github.com/vdavid/icloud-mail-mcp/internal/smtp"
)

type sendEmailArgs struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// SendEmail submits a message over SMTP.
func (h *Handler) SendEmail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	var args sendEmailArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.To) == "" {
		return nil, fmt.Errorf("to is required")
	}

	messageID, recipients, err := h.sender.Send(ctx, smtp.OutgoingMessage{
		To:      args.To,
		Subject: args.Subject,
		Text:    args.Text,
		HTML:    args.HTML,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	return jsonResult(models.SendResult{
		OperationResult: models.Success(fmt.Sprintf("Email sent to %s", strings.Join(recipients, ", "))),
		MessageID:       messageID,
		Recipients:      recipients,
	})
}
