package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/vdavid/icloud-mail-mcp/internal/models"
)

const (
	defaultMailbox     = "INBOX"
	defaultGetLimit    = 10
	defaultSearchLimit = 20
)

// messageList is the payload of get_messages and search_messages.
type messageList struct {
	Mailbox  string           `json:"mailbox"`
	Count    int              `json:"count"`
	Messages []models.Message `json:"messages"`
}

type getMessagesArgs struct {
	Mailbox    string `json:"mailbox"`
	Limit      int    `json:"limit"`
	UnreadOnly bool   `json:"unreadOnly"`
}

// GetMessages returns the most recent messages of a mailbox.
func (h *Handler) GetMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	var args getMessagesArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}

	return h.fetch(ctx, models.SearchFilter{
		Mailbox:    orDefault(args.Mailbox, defaultMailbox),
		Limit:      positiveOrDefault(args.Limit, defaultGetLimit),
		UnreadOnly: args.UnreadOnly,
	})
}

// SearchMessages runs a filtered search.
func (h *Handler) SearchMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	var filter models.SearchFilter
	if err := bind(req, &filter); err != nil {
		return nil, err
	}
	filter.Mailbox = orDefault(filter.Mailbox, defaultMailbox)
	filter.Limit = positiveOrDefault(filter.Limit, defaultSearchLimit)

	return h.fetch(ctx, filter)
}

func (h *Handler) fetch(ctx context.Context, filter models.SearchFilter) (*mcp.CallToolResult, error) {
	messages, err := h.mailbox.FetchMessages(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages from %s: %w", filter.Mailbox, err)
	}

	return jsonResult(messageList{
		Mailbox:  filter.Mailbox,
		Count:    len(messages),
		Messages: messages,
	})
}

type downloadAttachmentArgs struct {
	MessageID       string `json:"messageId"`
	AttachmentIndex int    `json:"attachmentIndex"`
	Mailbox         string `json:"mailbox"`
}

// DownloadAttachment returns one attachment as base64.
func (h *Handler) DownloadAttachment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	var args downloadAttachmentArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}

	return jsonResult(h.mailbox.DownloadAttachment(ctx, args.MessageID, args.AttachmentIndex, orDefault(args.Mailbox, defaultMailbox)))
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func positiveOrDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
