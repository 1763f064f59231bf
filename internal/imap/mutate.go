package imap

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/vdavid/icloud-mail-mcp/internal/models"
)

const (
	FlagActionAdd    = "add"
	FlagActionRemove = "remove"
)

// systemFlags maps lowercase flag names, with or without the backslash, to
// their canonical IMAP form.
var systemFlags = map[string]string{
	"seen":     imap.SeenFlag,
	"answered": imap.AnsweredFlag,
	"flagged":  imap.FlaggedFlag,
	"deleted":  imap.DeletedFlag,
	"draft":    imap.DraftFlag,
}

// searcher is the part of the go-imap client target resolution needs.
type searcher interface {
	Search(criteria *imap.SearchCriteria) ([]uint32, error)
}

// resolveTargets turns message ids into sequence numbers in the selected
// mailbox. An empty id list selects every message, which is what the tools
// did before ids were honored. Fallback ids map to their sequence number;
// anything else is looked up by Message-ID header.
func resolveTargets(c searcher, mbox *imap.MailboxStatus, ids []string) ([]uint32, error) {
	if len(ids) == 0 {
		seqNums, err := c.Search(BuildCriteria([]SearchTerm{{Kind: TermAll}}))
		if err != nil {
			return nil, fmt.Errorf("failed to search messages: %w", err)
		}
		return seqNums, nil
	}

	found := make(map[uint32]bool)
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}

		if seqNum, ok := parseFallbackID(id); ok {
			if mbox == nil || seqNum <= mbox.Messages {
				found[seqNum] = true
			}
			continue
		}

		criteria := imap.NewSearchCriteria()
		criteria.Header.Add("Message-Id", id)
		seqNums, err := c.Search(criteria)
		if err != nil {
			return nil, fmt.Errorf("failed to search for message %s: %w", id, err)
		}
		for _, seqNum := range seqNums {
			found[seqNum] = true
		}
	}

	result := make([]uint32, 0, len(found))
	for seqNum := range found {
		result = append(result, seqNum)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

func toSeqSet(seqNums []uint32) *imap.SeqSet {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)
	return seqSet
}

func mutationFailure(mailbox, message string) models.MutationResult {
	return models.MutationResult{OperationResult: models.Failure(message), Mailbox: mailbox}
}

// MoveMessages moves the messages with the given ids from src to dst in one
// MOVE. go-imap falls back to COPY, STORE and EXPUNGE when the server lacks
// the MOVE extension.
func (s *Session) MoveMessages(ctx context.Context, ids []string, src, dst string) models.MutationResult {
	src = mailboxOrDefault(src)
	if strings.TrimSpace(dst) == "" {
		return mutationFailure(src, "Destination mailbox is required")
	}

	var moved int
	var failure string
	err := s.withMailbox(ctx, src, false, func(c *client.Client, mbox *imap.MailboxStatus) error {
		seqNums, err := resolveTargets(c, mbox, ids)
		if err != nil {
			return err
		}
		if len(seqNums) == 0 {
			failure = fmt.Sprintf("No matching messages found in %s", src)
			return nil
		}

		if err := c.Move(toSeqSet(seqNums), dst); err != nil {
			return fmt.Errorf("failed to move messages to %s: %w", dst, err)
		}
		moved = len(seqNums)
		return nil
	})
	if err != nil {
		log.Printf("Warning: Move from %s to %s failed: %v", src, dst, err)
		return mutationFailure(src, fmt.Sprintf("Failed to move messages: %v", err))
	}
	if failure != "" {
		return mutationFailure(src, failure)
	}

	return models.MutationResult{
		OperationResult: models.Success(fmt.Sprintf("Moved %d message(s) from %s to %s", moved, src, dst)),
		Mailbox:         src,
		Affected:        moved,
	}
}

// MoveUIDs moves messages by UID. Unlike sequence numbers, UIDs stay valid
// while earlier moves expunge messages from src, so callers that fetched a
// batch once and move from it repeatedly should use this.
func (s *Session) MoveUIDs(ctx context.Context, uids []uint32, src, dst string) models.MutationResult {
	src = mailboxOrDefault(src)
	if strings.TrimSpace(dst) == "" {
		return mutationFailure(src, "Destination mailbox is required")
	}
	if len(uids) == 0 {
		return mutationFailure(src, fmt.Sprintf("No matching messages found in %s", src))
	}

	err := s.withMailbox(ctx, src, false, func(c *client.Client, _ *imap.MailboxStatus) error {
		if err := c.UidMove(toSeqSet(uids), dst); err != nil {
			return fmt.Errorf("failed to move messages to %s: %w", dst, err)
		}
		return nil
	})
	if err != nil {
		log.Printf("Warning: Move from %s to %s failed: %v", src, dst, err)
		return mutationFailure(src, fmt.Sprintf("Failed to move messages: %v", err))
	}

	return models.MutationResult{
		OperationResult: models.Success(fmt.Sprintf("Moved %d message(s) from %s to %s", len(uids), src, dst)),
		Mailbox:         src,
		Affected:        len(uids),
	}
}

// DeleteMessages marks the messages \Deleted and then expunges the mailbox.
// The two phases report their failures separately.
func (s *Session) DeleteMessages(ctx context.Context, ids []string, mailbox string) models.MutationResult {
	mailbox = mailboxOrDefault(mailbox)

	var deleted int
	var failure string
	err := s.withMailbox(ctx, mailbox, false, func(c *client.Client, mbox *imap.MailboxStatus) error {
		seqNums, err := resolveTargets(c, mbox, ids)
		if err != nil {
			return err
		}
		if len(seqNums) == 0 {
			failure = fmt.Sprintf("No matching messages found in %s", mailbox)
			return nil
		}

		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.Store(toSeqSet(seqNums), item, []interface{}{imap.DeletedFlag}, nil); err != nil {
			failure = fmt.Sprintf("Failed to mark messages as deleted: %v", err)
			return nil
		}

		if err := c.Expunge(nil); err != nil {
			failure = fmt.Sprintf("Messages were marked as deleted but expunge failed: %v", err)
			return nil
		}
		deleted = len(seqNums)
		return nil
	})
	if err != nil {
		log.Printf("Warning: Delete in %s failed: %v", mailbox, err)
		return mutationFailure(mailbox, fmt.Sprintf("Failed to delete messages: %v", err))
	}
	if failure != "" {
		log.Printf("Warning: Delete in %s failed: %s", mailbox, failure)
		return mutationFailure(mailbox, failure)
	}

	return models.MutationResult{
		OperationResult: models.Success(fmt.Sprintf("Deleted %d message(s) from %s", deleted, mailbox)),
		Mailbox:         mailbox,
		Affected:        deleted,
	}
}

// SetFlags adds or removes flags on the messages with the given ids.
func (s *Session) SetFlags(ctx context.Context, ids []string, flags []string, mailbox, action string) models.MutationResult {
	mailbox = mailboxOrDefault(mailbox)

	op, err := flagsOp(action)
	if err != nil {
		return mutationFailure(mailbox, capitalize(err.Error()))
	}

	normalized := NormalizeFlags(flags)
	if len(normalized) == 0 {
		return mutationFailure(mailbox, "At least one flag is required")
	}

	var updated int
	var failure string
	err = s.withMailbox(ctx, mailbox, false, func(c *client.Client, mbox *imap.MailboxStatus) error {
		seqNums, err := resolveTargets(c, mbox, ids)
		if err != nil {
			return err
		}
		if len(seqNums) == 0 {
			failure = fmt.Sprintf("No matching messages found in %s", mailbox)
			return nil
		}

		values := make([]interface{}, 0, len(normalized))
		for _, flag := range normalized {
			values = append(values, flag)
		}
		if err := c.Store(toSeqSet(seqNums), imap.FormatFlagsOp(op, true), values, nil); err != nil {
			return fmt.Errorf("failed to store flags: %w", err)
		}
		updated = len(seqNums)
		return nil
	})
	if err != nil {
		log.Printf("Warning: Setting flags in %s failed: %v", mailbox, err)
		return mutationFailure(mailbox, fmt.Sprintf("Failed to update flags: %v", err))
	}
	if failure != "" {
		return mutationFailure(mailbox, failure)
	}

	verb := "Added"
	if op == imap.RemoveFlags {
		verb = "Removed"
	}
	return models.MutationResult{
		OperationResult: models.Success(fmt.Sprintf("%s flags %s on %d message(s) in %s", verb, strings.Join(normalized, " "), updated, mailbox)),
		Mailbox:         mailbox,
		Affected:        updated,
	}
}

// MarkAsRead adds \Seen to the messages with the given ids.
func (s *Session) MarkAsRead(ctx context.Context, ids []string, mailbox string) models.MutationResult {
	return s.SetFlags(ctx, ids, []string{imap.SeenFlag}, mailbox, FlagActionAdd)
}

func flagsOp(action string) (imap.FlagsOp, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "", FlagActionAdd:
		return imap.AddFlags, nil
	case FlagActionRemove:
		return imap.RemoveFlags, nil
	default:
		return "", fmt.Errorf("unknown flag action %q, expected %q or %q", action, FlagActionAdd, FlagActionRemove)
	}
}

// NormalizeFlags maps "Seen", "seen" and "\Seen" to imap.SeenFlag (and so on
// for the other system flags). Other names are kept as keywords.
func NormalizeFlags(flags []string) []string {
	result := make([]string, 0, len(flags))
	for _, flag := range flags {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}
		if canonical, ok := systemFlags[strings.ToLower(strings.TrimPrefix(flag, `\`))]; ok {
			flag = canonical
		}
		if !containsFlag(result, flag) {
			result = append(result, flag)
		}
	}
	return result
}
