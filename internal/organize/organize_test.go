package organize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/icloud-mail-mcp/internal/imap"
	"github.com/vdavid/icloud-mail-mcp/internal/models"
	"github.com/vdavid/icloud-mail-mcp/internal/testutil"
)

type moveCall struct {
	ids      []string
	uids     []uint32
	src, dst string
}

type fakeMailbox struct {
	messages []models.Message
	fetchErr error
	failMove map[string]bool
	filters  []models.SearchFilter
	moves    []moveCall
}

func (f *fakeMailbox) FetchMessages(_ context.Context, filter models.SearchFilter) ([]models.Message, error) {
	f.filters = append(f.filters, filter)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.messages, nil
}

func (f *fakeMailbox) MoveMessages(_ context.Context, ids []string, src, dst string) models.MutationResult {
	f.moves = append(f.moves, moveCall{ids: ids, src: src, dst: dst})
	if f.failMove[dst] {
		return models.MutationResult{OperationResult: models.Failure("destination missing")}
	}
	return models.MutationResult{OperationResult: models.Success("moved"), Affected: len(ids)}
}

func (f *fakeMailbox) MoveUIDs(_ context.Context, uids []uint32, src, dst string) models.MutationResult {
	f.moves = append(f.moves, moveCall{uids: uids, src: src, dst: dst})
	if f.failMove[dst] {
		return models.MutationResult{OperationResult: models.Failure("destination missing")}
	}
	return models.MutationResult{OperationResult: models.Success("moved"), Affected: len(uids)}
}

func sampleMessages() []models.Message {
	return []models.Message{
		{ID: "<1@x>", From: "Billing <billing@shop.com>", Subject: "Your invoice"},
		{ID: "<2@x>", From: "friend@example.com", Subject: "Lunch?"},
		{ID: "<3@x>", From: "news@shop.com", Subject: "Weekly INVOICE digest"},
	}
}

func rule(name, from, subject, dst string) models.OrganizationRule {
	return models.OrganizationRule{
		Name:      name,
		Condition: models.RuleCondition{FromContains: from, SubjectContains: subject},
		Action:    models.RuleAction{MoveToMailbox: dst},
	}
}

func TestMatches(t *testing.T) {
	msg := models.Message{From: "Billing <BILLING@Shop.com>", Subject: "Invoice 42"}

	tests := []struct {
		name string
		cond models.RuleCondition
		want bool
	}{
		{"from only", models.RuleCondition{FromContains: "billing@shop"}, true},
		{"subject only", models.RuleCondition{SubjectContains: "INVOICE"}, true},
		{"either field is enough", models.RuleCondition{FromContains: "nobody", SubjectContains: "invoice"}, true},
		{"neither matches", models.RuleCondition{FromContains: "nobody", SubjectContains: "receipt"}, false},
		{"empty condition matches nothing", models.RuleCondition{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.cond, msg))
		})
	}
}

func TestEngine_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("dry run with overlapping rules", func(t *testing.T) {
		mailbox := &fakeMailbox{messages: sampleMessages()}
		rules := []models.OrganizationRule{
			rule("shop", "shop.com", "", "Shopping"),
			rule("invoices", "", "invoice", "Finance"),
		}

		result := NewEngine(mailbox).Run(ctx, rules, "INBOX", true)

		require.True(t, result.OK(), result.Message)
		assert.True(t, result.DryRun)
		require.Len(t, result.Results, 2)
		assert.Equal(t, 2, result.Results[0].MatchedMessages)
		assert.Equal(t, 2, result.Results[1].MatchedMessages)
		assert.False(t, result.Results[0].Moved)
		assert.False(t, result.Results[1].Moved)
		assert.Equal(t, 4, result.TotalMatched)
		assert.Empty(t, mailbox.moves)

		assert.Equal(t, "Finance", result.Results[1].Messages[0].Destination)
		assert.Equal(t, []models.SearchFilter{{Mailbox: "INBOX", Limit: ScanLimit}}, mailbox.filters)
	})

	t.Run("moves matches per rule", func(t *testing.T) {
		mailbox := &fakeMailbox{messages: sampleMessages()}
		rules := []models.OrganizationRule{
			rule("friends", "friend@", "", "Friends"),
			rule("nothing", "nobody", "", "Void"),
		}

		result := NewEngine(mailbox).Run(ctx, rules, "", false)

		require.True(t, result.OK())
		require.Len(t, mailbox.moves, 1)
		assert.Equal(t, moveCall{ids: []string{"<2@x>"}, src: "INBOX", dst: "Friends"}, mailbox.moves[0])
		assert.True(t, result.Results[0].Moved)
		assert.False(t, result.Results[1].Moved)
		assert.Zero(t, result.Results[1].MatchedMessages)
		assert.Empty(t, result.Results[1].Messages)
		assert.Equal(t, 1, result.TotalMatched)
	})

	t.Run("moves by UID when every match has one", func(t *testing.T) {
		messages := sampleMessages()
		messages[0].UID, messages[2].UID = 11, 13
		mailbox := &fakeMailbox{messages: messages}

		result := NewEngine(mailbox).Run(ctx, []models.OrganizationRule{rule("shop", "shop.com", "", "Shopping")}, "INBOX", false)

		require.True(t, result.OK())
		require.Len(t, mailbox.moves, 1)
		assert.Equal(t, moveCall{uids: []uint32{11, 13}, src: "INBOX", dst: "Shopping"}, mailbox.moves[0])
		assert.True(t, result.Results[0].Moved)
	})

	t.Run("a failed move does not stop later rules", func(t *testing.T) {
		mailbox := &fakeMailbox{messages: sampleMessages(), failMove: map[string]bool{"Missing": true}}
		rules := []models.OrganizationRule{
			rule("broken", "", "invoice", "Missing"),
			rule("friends", "friend@", "", "Friends"),
		}

		result := NewEngine(mailbox).Run(ctx, rules, "INBOX", false)

		require.True(t, result.OK())
		assert.Len(t, mailbox.moves, 2)
		assert.False(t, result.Results[0].Moved)
		assert.Equal(t, 2, result.Results[0].MatchedMessages)
		assert.True(t, result.Results[1].Moved)
	})

	t.Run("fetch failure is the only overall error", func(t *testing.T) {
		mailbox := &fakeMailbox{fetchErr: errors.New("mailbox gone")}

		result := NewEngine(mailbox).Run(ctx, []models.OrganizationRule{rule("r", "a", "", "B")}, "Old", false)

		assert.False(t, result.OK())
		assert.Contains(t, result.Message, "mailbox gone")
		assert.Empty(t, result.Results)
		assert.Empty(t, mailbox.moves)
	})

	t.Run("no rules", func(t *testing.T) {
		mailbox := &fakeMailbox{messages: sampleMessages()}

		result := NewEngine(mailbox).Run(ctx, nil, "INBOX", false)

		assert.True(t, result.OK())
		assert.NotNil(t, result.Results)
		assert.Zero(t, result.TotalMatched)
	})
}

func subjects(t *testing.T, session *imap.Session, mailbox string) []string {
	t.Helper()

	messages, err := session.FetchMessages(context.Background(), models.SearchFilter{Mailbox: mailbox, Limit: ScanLimit})
	require.NoError(t, err)

	result := make([]string, 0, len(messages))
	for _, msg := range messages {
		result = append(result, msg.Subject)
	}
	return result
}

func TestEngine_RunOnSession(t *testing.T) {
	server := testutil.NewTestIMAPServer(t)
	server.ClearMailbox(t, "INBOX")
	server.CreateMailbox(t, "Alpha")
	server.CreateMailbox(t, "Gamma")

	// No Message-ID, so every message only has a msg-N id.
	now := time.Now()
	for _, subject := range []string{"alpha", "beta", "gamma", "delta"} {
		server.AddMessage(t, "INBOX", "", subject, "sender@example.com", "me@example.com", now)
	}

	c, err := imap.ConnectToIMAP(server.Address, false)
	require.NoError(t, err)
	require.NoError(t, imap.Login(c, server.Username(), server.Password()))
	session := imap.NewSession(c, server.Username())
	t.Cleanup(func() { _ = session.Logout() })

	rules := []models.OrganizationRule{
		rule("a", "", "alpha", "Alpha"),
		rule("g", "", "gamma", "Gamma"),
	}

	result := NewEngine(session).Run(context.Background(), rules, "INBOX", false)

	require.True(t, result.OK(), result.Message)
	require.Len(t, result.Results, 2)
	assert.True(t, result.Results[0].Moved)
	assert.True(t, result.Results[1].Moved)
	assert.Equal(t, "msg-3", result.Results[1].Messages[0].ID)

	assert.Equal(t, []string{"alpha"}, subjects(t, session, "Alpha"))
	assert.Equal(t, []string{"gamma"}, subjects(t, session, "Gamma"))
	assert.Equal(t, []string{"beta", "delta"}, subjects(t, session, "INBOX"))
}
