package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/vdavid/icloud-mail-mcp/internal/models"
)

type mailboxList struct {
	Count     int             `json:"count"`
	Mailboxes []models.Folder `json:"mailboxes"`
}

// GetMailboxes lists the mailboxes of the account.
func (h *Handler) GetMailboxes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	folders, err := h.mailbox.ListMailboxes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}

	return jsonResult(mailboxList{Count: len(folders), Mailboxes: folders})
}

type mailboxNameArgs struct {
	Name string `json:"name"`
}

// CreateMailbox creates a mailbox.
func (h *Handler) CreateMailbox(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	var args mailboxNameArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}

	return jsonResult(h.mailbox.CreateMailbox(ctx, args.Name))
}

// DeleteMailbox deletes a mailbox that is not a system mailbox.
func (h *Handler) DeleteMailbox(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	var args mailboxNameArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}

	return jsonResult(h.mailbox.DeleteMailbox(ctx, args.Name))
}
