package imap

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/vdavid/icloud-mail-mcp/internal/models"
)

// attachmentScanLimit is how many recent messages are parsed when the
// message id cannot be resolved by search.
const attachmentScanLimit = 100

// DownloadAttachment returns one attachment of one message, base64 encoded.
// Out-of-range indexes and unknown messages come back as error results.
func (s *Session) DownloadAttachment(ctx context.Context, messageID string, index int, mailbox string) models.AttachmentResult {
	mailbox = mailboxOrDefault(mailbox)
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return attachmentFailure("Message ID is required")
	}
	if index < 0 {
		return attachmentFailure(fmt.Sprintf("Attachment index %d is out of range", index))
	}

	var candidates []models.Message
	err := s.withMailbox(ctx, mailbox, true, func(c *client.Client, mbox *imap.MailboxStatus) error {
		seqNums, err := resolveTargets(c, mbox, []string{messageID})
		if err != nil {
			return err
		}
		if len(seqNums) == 0 {
			// Some servers index Message-ID poorly; scan the recent messages instead.
			all, err := c.Search(BuildCriteria([]SearchTerm{{Kind: TermAll}}))
			if err != nil {
				return fmt.Errorf("failed to search messages: %w", err)
			}
			seqNums = lastN(all, attachmentScanLimit)
		}

		candidates, err = fetchAndParse(ctx, c, seqNums)
		return err
	})
	if err != nil {
		log.Printf("Warning: Failed to fetch message %s for attachment download: %v", messageID, err)
		return attachmentFailure(fmt.Sprintf("Failed to fetch message: %v", err))
	}

	msg := findMessage(candidates, messageID)
	if msg == nil {
		return attachmentFailure(fmt.Sprintf("Message %s not found in %s", messageID, mailbox))
	}

	return encodeAttachment(msg, index)
}

// findMessage matches on the Message-ID header or on the fallback id.
func findMessage(messages []models.Message, id string) *models.Message {
	for i := range messages {
		if messages[i].ID == id || (messages[i].SeqNum != 0 && FallbackID(messages[i].SeqNum) == id) {
			return &messages[i]
		}
	}
	return nil
}

func encodeAttachment(msg *models.Message, index int) models.AttachmentResult {
	if index < 0 || index >= len(msg.Attachments) {
		return attachmentFailure(fmt.Sprintf(
			"Attachment index %d is out of range: message %s has %d attachment(s)",
			index, msg.ID, len(msg.Attachments)))
	}

	attachment := msg.Attachments[index]
	return models.AttachmentResult{
		OperationResult: models.Success(fmt.Sprintf("Downloaded attachment %q", attachment.Filename)),
		Filename:        attachment.Filename,
		ContentType:     attachment.ContentType,
		Size:            attachment.Size,
		Data:            base64.StdEncoding.EncodeToString(attachment.Data),
	}
}

func attachmentFailure(message string) models.AttachmentResult {
	return models.AttachmentResult{OperationResult: models.Failure(message)}
}
