package imap

import (
	"fmt"
	"io"
	"net/mail"
	"strconv"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/vdavid/icloud-mail-mcp/internal/models"
)

const (
	fallbackIDPrefix      = "msg-"
	defaultFilename       = "unknown"
	defaultAttachmentMIME = "application/octet-stream"
	plainTextContentType  = "text/plain"
	attachmentDisposition = "attachment"
)

// FallbackID is the id given to a message without a Message-ID header.
// Sequence numbers shift when messages are expunged, so these ids are only
// valid until the mailbox changes.
func FallbackID(seqNum uint32) string {
	return fmt.Sprintf("%s%d", fallbackIDPrefix, seqNum)
}

// parseFallbackID extracts the sequence number from a FallbackID.
func parseFallbackID(id string) (uint32, bool) {
	rest, ok := strings.CutPrefix(id, fallbackIDPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	seqNum, err := strconv.ParseUint(rest, 10, 32)
	if err != nil || seqNum == 0 {
		return 0, false
	}
	return uint32(seqNum), true
}

// ParseMessage parses raw RFC 822 bytes into a Message.
// seqNum is used for the fallback id when the message has no Message-ID.
func ParseMessage(r io.Reader, seqNum uint32) (*models.Message, error) {
	if r == nil {
		return nil, fmt.Errorf("message body is nil")
	}

	envelope, err := enmime.ReadEnvelope(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email body: %w", err)
	}

	msg := &models.Message{
		ID:          strings.TrimSpace(envelope.GetHeader("Message-ID")),
		From:        formatAddressHeader(envelope, "From"),
		To:          addressList(envelope, "To"),
		Subject:     envelope.GetHeader("Subject"),
		Body:        selectBody(envelope),
		Flags:       []string{},
		Attachments: collectAttachments(envelope),
	}
	if msg.ID == "" {
		msg.ID = FallbackID(seqNum)
	}
	if date, err := envelope.Date(); err == nil {
		msg.Date = date
	}

	return msg, nil
}

// selectBody prefers the plain text part. HTML is used only when the message
// has no text/plain part at all, because enmime fills Text with a conversion
// of the HTML in that case.
func selectBody(envelope *enmime.Envelope) string {
	if hasPlainTextPart(envelope.Root) {
		return envelope.Text
	}
	if envelope.HTML != "" {
		return envelope.HTML
	}
	return envelope.Text
}

func hasPlainTextPart(root *enmime.Part) bool {
	if root == nil {
		return false
	}
	match := root.BreadthMatchFirst(func(p *enmime.Part) bool {
		return p.ContentType == plainTextContentType && p.Disposition != attachmentDisposition
	})
	return match != nil
}

func collectAttachments(envelope *enmime.Envelope) []models.Attachment {
	parts := make([]*enmime.Part, 0, len(envelope.Attachments)+len(envelope.Inlines))
	parts = append(parts, envelope.Attachments...)
	parts = append(parts, envelope.Inlines...)
	if len(parts) == 0 {
		return nil
	}

	attachments := make([]models.Attachment, 0, len(parts))
	for _, part := range parts {
		attachment := models.Attachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Size:        len(part.Content),
			Data:        part.Content,
		}
		if attachment.Filename == "" {
			attachment.Filename = defaultFilename
		}
		if attachment.ContentType == "" {
			attachment.ContentType = defaultAttachmentMIME
		}
		attachments = append(attachments, attachment)
	}
	return attachments
}

// formatAddressHeader formats the first address of a header, falling back to
// the raw header text when it does not parse as an address list.
func formatAddressHeader(envelope *enmime.Envelope, key string) string {
	addresses, err := envelope.AddressList(key)
	if err != nil || len(addresses) == 0 {
		return strings.TrimSpace(envelope.GetHeader(key))
	}
	return formatAddress(addresses[0])
}

func addressList(envelope *enmime.Envelope, key string) []string {
	addresses, err := envelope.AddressList(key)
	if err != nil {
		if raw := strings.TrimSpace(envelope.GetHeader(key)); raw != "" {
			return []string{raw}
		}
		return []string{}
	}
	return formatAddressList(addresses)
}

// formatAddress formats an address to a string.
func formatAddress(address *mail.Address) string {
	if address == nil || address.Address == "" {
		return ""
	}

	if address.Name != "" {
		return fmt.Sprintf("%s <%s>", address.Name, address.Address)
	}

	return address.Address
}

// formatAddressList formats a list of addresses.
func formatAddressList(addresses []*mail.Address) []string {
	result := make([]string, 0, len(addresses))
	for _, address := range addresses {
		formatted := formatAddress(address)
		if formatted != "" {
			result = append(result, formatted)
		}
	}
	return result
}
