// Package organize moves messages into mailboxes according to simple
// sender and subject rules.
package organize

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/vdavid/icloud-mail-mcp/internal/models"
)

// ScanLimit is how many of the most recent source messages a run looks at.
const ScanLimit = 100

// Mailbox is the part of the IMAP session the engine needs.
type Mailbox interface {
	FetchMessages(ctx context.Context, filter models.SearchFilter) ([]models.Message, error)
	MoveMessages(ctx context.Context, ids []string, src, dst string) models.MutationResult
	MoveUIDs(ctx context.Context, uids []uint32, src, dst string) models.MutationResult
}

// Engine evaluates organization rules against one mailbox.
type Engine struct {
	mailbox Mailbox
}

func NewEngine(mailbox Mailbox) *Engine {
	return &Engine{mailbox: mailbox}
}

// Run evaluates every rule against the same fetched batch. Rules are
// independent: a message may match several of them, and a failed move only
// marks that rule as not moved.
func (e *Engine) Run(ctx context.Context, rules []models.OrganizationRule, source string, dryRun bool) models.OrganizeResult {
	if source == "" {
		source = "INBOX"
	}

	messages, err := e.mailbox.FetchMessages(ctx, models.SearchFilter{Mailbox: source, Limit: ScanLimit})
	if err != nil {
		log.Printf("Warning: Auto-organize could not fetch %s: %v", source, err)
		return models.OrganizeResult{
			OperationResult: models.Failure(fmt.Sprintf("Failed to fetch messages from %s: %v", source, err)),
			DryRun:          dryRun,
			Results:         []models.RuleResult{},
		}
	}

	results := make([]models.RuleResult, 0, len(rules))
	total := 0
	for _, rule := range rules {
		result := e.apply(ctx, rule, messages, source, dryRun)
		total += result.MatchedMessages
		results = append(results, result)
	}

	summary := fmt.Sprintf("Processed %d rule(s) against %d message(s) in %s: %d match(es)", len(rules), len(messages), source, total)
	if dryRun {
		summary += " (dry run, nothing moved)"
	}

	return models.OrganizeResult{
		OperationResult: models.Success(summary),
		DryRun:          dryRun,
		TotalMatched:    total,
		Results:         results,
	}
}

func (e *Engine) apply(ctx context.Context, rule models.OrganizationRule, messages []models.Message, source string, dryRun bool) models.RuleResult {
	result := models.RuleResult{Rule: rule.Name}

	var ids []string
	var uids []uint32
	for _, msg := range messages {
		if !Matches(rule.Condition, msg) {
			continue
		}
		ids = append(ids, msg.ID)
		if msg.UID != 0 {
			uids = append(uids, msg.UID)
		}
		result.Messages = append(result.Messages, models.MatchedMessage{
			ID:          msg.ID,
			From:        msg.From,
			Subject:     msg.Subject,
			Destination: rule.Action.MoveToMailbox,
		})
	}
	result.MatchedMessages = len(ids)

	if dryRun || len(ids) == 0 {
		return result
	}

	// Earlier rules may already have expunged messages from source, which
	// shifts sequence numbers and with them any msg-N ids. UIDs do not shift.
	var moved models.MutationResult
	if len(uids) == len(ids) {
		moved = e.mailbox.MoveUIDs(ctx, uids, source, rule.Action.MoveToMailbox)
	} else {
		moved = e.mailbox.MoveMessages(ctx, ids, source, rule.Action.MoveToMailbox)
	}
	if !moved.OK() {
		log.Printf("Warning: Rule %q could not move %d message(s) to %s: %s", rule.Name, len(ids), rule.Action.MoveToMailbox, moved.Message)
		return result
	}
	result.Moved = true
	return result
}

// Matches reports whether msg satisfies either condition. Each condition is
// a case-insensitive substring test and is ignored when empty; a condition
// with both fields empty matches nothing.
func Matches(cond models.RuleCondition, msg models.Message) bool {
	if from := strings.ToLower(cond.FromContains); from != "" && strings.Contains(strings.ToLower(msg.From), from) {
		return true
	}
	if subject := strings.ToLower(cond.SubjectContains); subject != "" && strings.Contains(strings.ToLower(msg.Subject), subject) {
		return true
	}
	return false
}
