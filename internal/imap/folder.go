package imap

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/vdavid/icloud-mail-mcp/internal/models"
)

// protectedMailboxes can never be deleted through this server.
var protectedMailboxes = map[string]bool{
	"INBOX":  true,
	"Sent":   true,
	"Trash":  true,
	"Drafts": true,
	"Junk":   true,
}

// ListFolders lists all folders on the IMAP server.
func ListFolders(c *client.Client) ([]models.Folder, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	folders := make([]models.Folder, 0)
	for m := range mailboxes {
		folders = append(folders, models.Folder{
			Name:       m.Name,
			Delimiter:  m.Delimiter,
			Attributes: m.Attributes,
		})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	return folders, nil
}

// ListMailboxes lists every mailbox of the account.
func (s *Session) ListMailboxes(ctx context.Context) ([]models.Folder, error) {
	var folders []models.Folder
	err := s.withClient(ctx, func(c *client.Client) error {
		var err error
		folders, err = ListFolders(c)
		return err
	})
	return folders, err
}

// CreateMailbox creates a mailbox. There is no existence check; the server's
// refusal is reported as an error result.
func (s *Session) CreateMailbox(ctx context.Context, name string) models.OperationResult {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Failure("Mailbox name cannot be empty")
	}

	err := s.withClient(ctx, func(c *client.Client) error {
		return c.Create(name)
	})
	if err != nil {
		log.Printf("Warning: Failed to create mailbox %s: %v", name, err)
		return models.Failure(fmt.Sprintf("Failed to create mailbox %q: %v", name, err))
	}

	return models.Success(fmt.Sprintf("Mailbox %q created successfully", name))
}

// ValidateMailboxDeletion rejects blank and protected names.
func ValidateMailboxDeletion(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("mailbox name cannot be empty")
	}
	if protectedMailboxes[trimmed] {
		return fmt.Errorf("cannot delete system mailbox %q", trimmed)
	}
	return nil
}

// DeleteMailbox deletes a mailbox after checking it is not a system mailbox.
func (s *Session) DeleteMailbox(ctx context.Context, name string) models.OperationResult {
	if err := ValidateMailboxDeletion(name); err != nil {
		return models.Failure(capitalize(err.Error()))
	}
	name = strings.TrimSpace(name)

	err := s.withClient(ctx, func(c *client.Client) error {
		return c.Delete(name)
	})
	if err != nil {
		log.Printf("Warning: Failed to delete mailbox %s: %v", name, err)
		return models.Failure(describeDeleteError(name, err))
	}

	return models.Success(fmt.Sprintf("Mailbox %q deleted successfully", name))
}

func describeDeleteError(name string, err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "does not exist"), strings.Contains(msg, "no such mailbox"), strings.Contains(msg, "nonexistent"):
		return fmt.Sprintf("Mailbox %q does not exist", name)
	case strings.Contains(msg, "not empty"), strings.Contains(msg, "has children"):
		return fmt.Sprintf("Mailbox %q is not empty; move or delete its messages first", name)
	case strings.Contains(msg, "permission"):
		return fmt.Sprintf("Permission denied: mailbox %q cannot be deleted", name)
	default:
		return fmt.Sprintf("Failed to delete mailbox %q: %v", name, err)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
