package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/vdavid/icloud-mail-mcp/internal/imap"
)

type messageIDsArgs struct {
	MessageIDs []string `json:"messageIds"`
	Mailbox    string   `json:"mailbox"`
}

// MarkAsRead adds \Seen to the given messages.
func (h *Handler) MarkAsRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	var args messageIDsArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}

	return jsonResult(h.mailbox.MarkAsRead(ctx, args.MessageIDs, orDefault(args.Mailbox, defaultMailbox)))
}

type moveMessagesArgs struct {
	MessageIDs         []string `json:"messageIds"`
	SourceMailbox      string   `json:"sourceMailbox"`
	DestinationMailbox string   `json:"destinationMailbox"`
}

// MoveMessages moves the given messages between mailboxes.
func (h *Handler) MoveMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	var args moveMessagesArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}

	return jsonResult(h.mailbox.MoveMessages(ctx, args.MessageIDs, orDefault(args.SourceMailbox, defaultMailbox), args.DestinationMailbox))
}

// DeleteMessages deletes the given messages and expunges the mailbox.
func (h *Handler) DeleteMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	var args messageIDsArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}

	return jsonResult(h.mailbox.DeleteMessages(ctx, args.MessageIDs, orDefault(args.Mailbox, defaultMailbox)))
}

type setFlagsArgs struct {
	MessageIDs []string `json:"messageIds"`
	Flags      []string `json:"flags"`
	Mailbox    string   `json:"mailbox"`
	Action     string   `json:"action"`
}

// SetFlags adds or removes flags on the given messages.
func (h *Handler) SetFlags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	var args setFlagsArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}

	return jsonResult(h.mailbox.SetFlags(ctx, args.MessageIDs, args.Flags, orDefault(args.Mailbox, defaultMailbox), orDefault(args.Action, imap.FlagActionAdd)))
}
