package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/icloud-mail-mcp/internal/config"
	"github.com/vdavid/icloud-mail-mcp/internal/imap"
	"github.com/vdavid/icloud-mail-mcp/internal/models"
	"github.com/vdavid/icloud-mail-mcp/internal/smtp"
)

// mockIMAPService records the arguments of each call.
type mockIMAPService struct {
	messages   []models.Message
	folders    []models.Folder
	fetchErr   error
	filters    []models.SearchFilter
	lastIDs    []string
	lastBox    string
	lastDst    string
	lastFlags  []string
	lastAction string
	lastIndex  int
	moves      int
	attachment models.AttachmentResult
}

var _ imap.IMAPService = (*mockIMAPService)(nil)

func (m *mockIMAPService) FetchMessages(_ context.Context, filter models.SearchFilter) ([]models.Message, error) {
	m.filters = append(m.filters, filter)
	return m.messages, m.fetchErr
}

func (m *mockIMAPService) ListMailboxes(context.Context) ([]models.Folder, error) {
	return m.folders, nil
}

func (m *mockIMAPService) CreateMailbox(_ context.Context, name string) models.OperationResult {
	m.lastBox = name
	return models.Success("created " + name)
}

func (m *mockIMAPService) DeleteMailbox(_ context.Context, name string) models.OperationResult {
	m.lastBox = name
	if err := imap.ValidateMailboxDeletion(name); err != nil {
		return models.Failure(err.Error())
	}
	return models.Success("deleted " + name)
}

func (m *mockIMAPService) MoveMessages(_ context.Context, ids []string, src, dst string) models.MutationResult {
	m.moves++
	m.lastIDs, m.lastBox, m.lastDst = ids, src, dst
	return models.MutationResult{OperationResult: models.Success("moved"), Mailbox: src, Affected: len(ids)}
}

func (m *mockIMAPService) MoveUIDs(_ context.Context, uids []uint32, src, dst string) models.MutationResult {
	m.moves++
	m.lastBox, m.lastDst = src, dst
	return models.MutationResult{OperationResult: models.Success("moved"), Mailbox: src, Affected: len(uids)}
}

func (m *mockIMAPService) DeleteMessages(_ context.Context, ids []string, mailbox string) models.MutationResult {
	m.lastIDs, m.lastBox = ids, mailbox
	return models.MutationResult{OperationResult: models.Success("deleted"), Mailbox: mailbox, Affected: len(ids)}
}

func (m *mockIMAPService) SetFlags(_ context.Context, ids []string, flags []string, mailbox, action string) models.MutationResult {
	m.lastIDs, m.lastFlags, m.lastBox, m.lastAction = ids, flags, mailbox, action
	return models.MutationResult{OperationResult: models.Success("flags"), Mailbox: mailbox, Affected: len(ids)}
}

func (m *mockIMAPService) MarkAsRead(_ context.Context, ids []string, mailbox string) models.MutationResult {
	m.lastIDs, m.lastBox = ids, mailbox
	return models.MutationResult{OperationResult: models.Success("read"), Mailbox: mailbox, Affected: len(ids)}
}

func (m *mockIMAPService) DownloadAttachment(_ context.Context, messageID string, index int, mailbox string) models.AttachmentResult {
	m.lastIDs, m.lastIndex, m.lastBox = []string{messageID}, index, mailbox
	return m.attachment
}

func (m *mockIMAPService) Logout() error {
	return nil
}

type mockSender struct {
	sent []smtp.OutgoingMessage
	err  error
}

func (m *mockSender) Send(_ context.Context, msg smtp.OutgoingMessage) (string, []string, error) {
	if m.err != nil {
		return "", nil, m.err
	}
	m.sent = append(m.sent, msg)
	return "<generated@example.com>", []string{"a@example.com", "b@example.com"}, nil
}

type mockTester struct {
	calls int
}

func (m *mockTester) TestConnection(context.Context) models.ConnectionTestResult {
	m.calls++
	return models.ConnectionTestResult{OperationResult: models.Success("ok"), IMAP: "ok", SMTP: "ok"}
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Email:       "john@icloud.com",
		AppPassword: "abcd-efgh-ijkl-mnop",
		IMAPHost:    "imap.mail.me.com",
		IMAPPort:    "993",
		SMTPHost:    "smtp.mail.me.com",
		SMTPPort:    "587",
	}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func decodeResult(t *testing.T, result *mcp.CallToolResult, v any) {
	t.Helper()
	require.False(t, result.IsError, resultText(t, result))
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), v))
}

func TestGuard(t *testing.T) {
	req := callRequest("boom", nil)

	t.Run("panic becomes a tool error", func(t *testing.T) {
		handler := guard(func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			panic("nil map")
		})

		result, err := handler(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Equal(t, "Tool execution failed: nil map", resultText(t, result))
	})

	t.Run("error becomes a tool error", func(t *testing.T) {
		handler := guard(func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, errors.New("server went away")
		})

		result, err := handler(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "Tool execution failed: server went away")
	})

	t.Run("not configured is passed through", func(t *testing.T) {
		handler := guard(func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, ErrNotConfigured
		})

		result, err := handler(context.Background(), req)
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.Nil(t, result)
	})

	t.Run("success is untouched", func(t *testing.T) {
		want := mcp.NewToolResultText("fine")
		handler := guard(func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return want, nil
		})

		result, err := handler(context.Background(), req)
		require.NoError(t, err)
		assert.Same(t, want, result)
	})
}

func TestHandler_NotConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.AppPassword = ""
	h := NewHandler(cfg, nil, nil, nil)
	ctx := context.Background()

	calls := map[string]server.ToolHandlerFunc{
		"get_messages":        h.GetMessages,
		"search_messages":     h.SearchMessages,
		"send_email":          h.SendEmail,
		"mark_as_read":        h.MarkAsRead,
		"get_mailboxes":       h.GetMailboxes,
		"create_mailbox":      h.CreateMailbox,
		"delete_mailbox":      h.DeleteMailbox,
		"move_messages":       h.MoveMessages,
		"delete_messages":     h.DeleteMessages,
		"set_flags":           h.SetFlags,
		"download_attachment": h.DownloadAttachment,
		"auto_organize":       h.AutoOrganize,
		"test_connection":     h.TestConnection,
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			_, err := guard(call)(ctx, callRequest(name, nil))
			assert.ErrorIs(t, err, ErrNotConfigured)
		})
	}

	t.Run("check_config still works", func(t *testing.T) {
		result, err := h.CheckConfig(ctx, callRequest("check_config", nil))
		require.NoError(t, err)

		var report configReport
		decodeResult(t, result, &report)
		assert.False(t, report.Configured)
		assert.False(t, report.SessionActive)
		assert.True(t, report.EmailSet)
		assert.False(t, report.AppPasswordSet)
		assert.Equal(t, "ICLOUD_APP_PASSWORD is required", report.Problem)
	})
}

func TestHandler_Messages(t *testing.T) {
	ctx := context.Background()

	t.Run("get_messages applies defaults", func(t *testing.T) {
		mailbox := &mockIMAPService{messages: []models.Message{{ID: "<1@x>", Subject: "Hi", Flags: []string{}}}}
		h := NewHandler(testConfig(), mailbox, &mockSender{}, nil)

		result, err := h.GetMessages(ctx, callRequest("get_messages", nil))
		require.NoError(t, err)

		var list messageList
		decodeResult(t, result, &list)
		assert.Equal(t, 1, list.Count)
		assert.Equal(t, "INBOX", list.Mailbox)
		assert.Equal(t, []models.SearchFilter{{Mailbox: "INBOX", Limit: 10}}, mailbox.filters)
	})

	t.Run("get_messages passes arguments", func(t *testing.T) {
		mailbox := &mockIMAPService{}
		h := NewHandler(testConfig(), mailbox, &mockSender{}, nil)

		_, err := h.GetMessages(ctx, callRequest("get_messages", map[string]any{
			"mailbox": "Archive", "limit": 3, "unreadOnly": true,
		}))
		require.NoError(t, err)
		assert.Equal(t, []models.SearchFilter{{Mailbox: "Archive", Limit: 3, UnreadOnly: true}}, mailbox.filters)
	})

	t.Run("search_messages defaults to 20", func(t *testing.T) {
		mailbox := &mockIMAPService{}
		h := NewHandler(testConfig(), mailbox, &mockSender{}, nil)

		_, err := h.SearchMessages(ctx, callRequest("search_messages", map[string]any{
			"query": "invoice", "dateFrom": "2024-01-01", "fromEmail": "billing@example.com",
		}))
		require.NoError(t, err)
		assert.Equal(t, []models.SearchFilter{{
			Query: "invoice", Mailbox: "INBOX", Limit: 20, DateFrom: "2024-01-01", FromEmail: "billing@example.com",
		}}, mailbox.filters)
	})

	t.Run("fetch error becomes a tool error", func(t *testing.T) {
		mailbox := &mockIMAPService{fetchErr: errors.New("connection reset")}
		h := NewHandler(testConfig(), mailbox, &mockSender{}, nil)

		result, err := guard(h.GetMessages)(ctx, callRequest("get_messages", nil))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "connection reset")
	})

	t.Run("download_attachment defaults", func(t *testing.T) {
		mailbox := &mockIMAPService{attachment: models.AttachmentResult{
			OperationResult: models.Failure("Attachment index 0 is out of range"),
		}}
		h := NewHandler(testConfig(), mailbox, &mockSender{}, nil)

		result, err := h.DownloadAttachment(ctx, callRequest("download_attachment", map[string]any{"messageId": "<1@x>"}))
		require.NoError(t, err)

		var payload models.AttachmentResult
		decodeResult(t, result, &payload)
		assert.Equal(t, models.StatusError, payload.Status)
		assert.Equal(t, 0, mailbox.lastIndex)
		assert.Equal(t, "INBOX", mailbox.lastBox)
	})
}

func TestHandler_Mutations(t *testing.T) {
	ctx := context.Background()
	mailbox := &mockIMAPService{}
	h := NewHandler(testConfig(), mailbox, &mockSender{}, nil)

	t.Run("mark_as_read", func(t *testing.T) {
		result, err := h.MarkAsRead(ctx, callRequest("mark_as_read", map[string]any{"messageIds": []any{"<1@x>", "msg-4"}}))
		require.NoError(t, err)

		var payload models.MutationResult
		decodeResult(t, result, &payload)
		assert.Equal(t, 2, payload.Affected)
		assert.Equal(t, []string{"<1@x>", "msg-4"}, mailbox.lastIDs)
		assert.Equal(t, "INBOX", mailbox.lastBox)
	})

	t.Run("move_messages", func(t *testing.T) {
		_, err := h.MoveMessages(ctx, callRequest("move_messages", map[string]any{
			"messageIds": []any{"<1@x>"}, "sourceMailbox": "INBOX", "destinationMailbox": "Archive",
		}))
		require.NoError(t, err)
		assert.Equal(t, "Archive", mailbox.lastDst)
	})

	t.Run("set_flags defaults to add", func(t *testing.T) {
		_, err := h.SetFlags(ctx, callRequest("set_flags", map[string]any{
			"messageIds": []any{"<1@x>"}, "flags": []any{"Flagged"},
		}))
		require.NoError(t, err)
		assert.Equal(t, "add", mailbox.lastAction)
		assert.Equal(t, []string{"Flagged"}, mailbox.lastFlags)
	})

	t.Run("delete_messages", func(t *testing.T) {
		_, err := h.DeleteMessages(ctx, callRequest("delete_messages", map[string]any{
			"messageIds": []any{"<1@x>"}, "mailbox": "Junk",
		}))
		require.NoError(t, err)
		assert.Equal(t, "Junk", mailbox.lastBox)
	})

	t.Run("delete_mailbox reports the refusal as a result", func(t *testing.T) {
		result, err := h.DeleteMailbox(ctx, callRequest("delete_mailbox", map[string]any{"name": "INBOX"}))
		require.NoError(t, err)

		var payload models.OperationResult
		decodeResult(t, result, &payload)
		assert.Equal(t, models.StatusError, payload.Status)
	})

	t.Run("bad argument types are tool errors", func(t *testing.T) {
		result, err := guard(h.MarkAsRead)(ctx, callRequest("mark_as_read", map[string]any{"messageIds": "not-a-list"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "invalid arguments")
	})
}

func TestHandler_SendEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("sends and returns the Message-ID", func(t *testing.T) {
		sender := &mockSender{}
		h := NewHandler(testConfig(), &mockIMAPService{}, sender, nil)

		result, err := h.SendEmail(ctx, callRequest("send_email", map[string]any{
			"to": "a@example.com, b@example.com", "subject": "Hello", "text": "Hi", "html": "<p>Hi</p>",
		}))
		require.NoError(t, err)

		var payload models.SendResult
		decodeResult(t, result, &payload)
		assert.Equal(t, "<generated@example.com>", payload.MessageID)
		assert.Equal(t, []string{"a@example.com", "b@example.com"}, payload.Recipients)
		require.Len(t, sender.sent, 1)
		assert.Equal(t, smtp.OutgoingMessage{To: "a@example.com, b@example.com", Subject: "Hello", Text: "Hi", HTML: "<p>Hi</p>"}, sender.sent[0])
	})

	t.Run("missing recipient", func(t *testing.T) {
		sender := &mockSender{}
		h := NewHandler(testConfig(), &mockIMAPService{}, sender, nil)

		result, err := guard(h.SendEmail)(ctx, callRequest("send_email", map[string]any{"subject": "x"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Empty(t, sender.sent)
	})

	t.Run("send failure", func(t *testing.T) {
		h := NewHandler(testConfig(), &mockIMAPService{}, &mockSender{err: errors.New("552 message too big")}, nil)

		result, err := guard(h.SendEmail)(ctx, callRequest("send_email", map[string]any{"to": "a@example.com", "subject": "x"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "552 message too big")
	})
}

func TestHandler_AutoOrganize(t *testing.T) {
	ctx := context.Background()
	mailbox := &mockIMAPService{messages: []models.Message{
		{ID: "<1@x>", From: "billing@shop.com", Subject: "Invoice"},
		{ID: "<2@x>", From: "friend@example.com", Subject: "Lunch"},
	}}
	h := NewHandler(testConfig(), mailbox, &mockSender{}, nil)

	result, err := h.AutoOrganize(ctx, callRequest("auto_organize", map[string]any{
		"rules": []any{
			map[string]any{
				"name":      "shop",
				"condition": map[string]any{"fromContains": "SHOP"},
				"action":    map[string]any{"moveToMailbox": "Shopping"},
			},
			map[string]any{
				"name":      "invoices",
				"condition": map[string]any{"subjectContains": "invoice"},
				"action":    map[string]any{"moveToMailbox": "Finance"},
			},
		},
		"dryRun": true,
	}))
	require.NoError(t, err)

	var payload models.OrganizeResult
	decodeResult(t, result, &payload)
	assert.Equal(t, models.StatusSuccess, payload.Status)
	assert.True(t, payload.DryRun)
	assert.Equal(t, 2, payload.TotalMatched)
	require.Len(t, payload.Results, 2)
	assert.Equal(t, "shop", payload.Results[0].Rule)
	assert.Equal(t, 1, payload.Results[0].MatchedMessages)
	assert.Equal(t, 1, payload.Results[1].MatchedMessages)
	assert.Zero(t, mailbox.moves)
	assert.Equal(t, "INBOX", mailbox.filters[0].Mailbox)
}

func TestHandler_CheckConfigAndTestConnection(t *testing.T) {
	ctx := context.Background()
	tester := &mockTester{}
	cfg := testConfig()
	h := NewHandler(cfg, &mockIMAPService{}, &mockSender{}, tester)

	result, err := h.CheckConfig(ctx, callRequest("check_config", nil))
	require.NoError(t, err)
	assert.NotContains(t, resultText(t, result), cfg.AppPassword)

	var report configReport
	decodeResult(t, result, &report)
	assert.True(t, report.Configured)
	assert.True(t, report.SessionActive)
	assert.True(t, report.AppPasswordSet)
	assert.Equal(t, "imap.mail.me.com", report.IMAPHost)
	assert.Empty(t, report.Problem)

	result, err = h.TestConnection(ctx, callRequest("test_connection", nil))
	require.NoError(t, err)

	var test models.ConnectionTestResult
	decodeResult(t, result, &test)
	assert.Equal(t, "ok", test.IMAP)
	assert.Equal(t, 1, tester.calls)
}

func TestHandler_Register(t *testing.T) {
	s := server.NewMCPServer("test", "0.0.0", server.WithToolCapabilities(false))
	h := NewHandler(testConfig(), nil, nil, nil)
	h.Register(s)

	response := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(response)
	require.NoError(t, err)

	var decoded struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	names := make([]string, 0, len(decoded.Result.Tools))
	for _, tool := range decoded.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"get_messages", "search_messages", "send_email", "mark_as_read", "get_mailboxes",
		"create_mailbox", "delete_mailbox", "move_messages", "delete_messages", "set_flags",
		"download_attachment", "auto_organize", "test_connection", "check_config",
	}, names)
}
