package imap

import (
	"context"

	"github.com/vdavid/icloud-mail-mcp/internal/models"
)

// IMAPService defines the mailbox operations the tool handlers use.
// This interface allows handlers and the organizer to be tested with mock implementations.
// Note: The stutter in the naming is intentional because go-imap already has a client.Client.
//
//goland:noinspection GoNameStartsWithPackageName
type IMAPService interface {
	// FetchMessages runs the search-fetch-parse pipeline for a filter.
	FetchMessages(ctx context.Context, filter models.SearchFilter) ([]models.Message, error)

	// ListMailboxes lists every mailbox of the account.
	ListMailboxes(ctx context.Context) ([]models.Folder, error)

	CreateMailbox(ctx context.Context, name string) models.OperationResult
	DeleteMailbox(ctx context.Context, name string) models.OperationResult

	// MoveMessages, DeleteMessages, SetFlags and MarkAsRead act on the given
	// ids, or on every message in the mailbox when ids is empty.
	MoveMessages(ctx context.Context, ids []string, src, dst string) models.MutationResult
	MoveUIDs(ctx context.Context, uids []uint32, src, dst string) models.MutationResult
	DeleteMessages(ctx context.Context, ids []string, mailbox string) models.MutationResult
	SetFlags(ctx context.Context, ids []string, flags []string, mailbox, action string) models.MutationResult
	MarkAsRead(ctx context.Context, ids []string, mailbox string) models.MutationResult

	// DownloadAttachment returns the attachment at index, base64 encoded.
	DownloadAttachment(ctx context.Context, messageID string, index int, mailbox string) models.AttachmentResult

	// Logout ends the session.
	Logout() error
}

// Ensure Session implements IMAPService interface
var _ IMAPService = (*Session)(nil)
