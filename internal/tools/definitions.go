package tools

import "github.com/mark3labs/mcp-go/mcp"

var stringItems = map[string]any{"type": "string"}

func mailboxParam(description string) mcp.ToolOption {
	return mcp.WithString("mailbox", mcp.Description(description))
}

func messageIDsParam(description string) mcp.ToolOption {
	return mcp.WithArray("messageIds",
		mcp.Required(),
		mcp.Description(description),
		mcp.Items(stringItems),
	)
}

func getMessagesTool() mcp.Tool {
	return mcp.NewTool("get_messages",
		mcp.WithDescription("Get the most recent messages from a mailbox."),
		mcp.WithReadOnlyHintAnnotation(true),
		mailboxParam("Mailbox to read (default INBOX)"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of messages to return (default 10)"),
		),
		mcp.WithBoolean("unreadOnly",
			mcp.Description("Only return unread messages"),
		),
	)
}

func searchMessagesTool() mcp.Tool {
	return mcp.NewTool("search_messages",
		mcp.WithDescription("Search messages by text, date range, sender and read state. All given criteria must match."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Description("Text to find in the subject or body"),
		),
		mailboxParam("Mailbox to search (default INBOX)"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of messages to return (default 20)"),
		),
		mcp.WithString("dateFrom",
			mcp.Description("Only messages on or after this date (YYYY-MM-DD)"),
		),
		mcp.WithString("dateTo",
			mcp.Description("Only messages before this date (YYYY-MM-DD)"),
		),
		mcp.WithString("fromEmail",
			mcp.Description("Only messages whose sender contains this text"),
		),
		mcp.WithBoolean("unreadOnly",
			mcp.Description("Only return unread messages"),
		),
	)
}

func sendEmailTool() mcp.Tool {
	return mcp.NewTool("send_email",
		mcp.WithDescription("Send an email from the configured iCloud address."),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient address, or several separated by commas"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Subject line"),
		),
		mcp.WithString("text",
			mcp.Description("Plain text body"),
		),
		mcp.WithString("html",
			mcp.Description("HTML body"),
		),
	)
}

func markAsReadTool() mcp.Tool {
	return mcp.NewTool("mark_as_read",
		mcp.WithDescription("Mark messages as read."),
		messageIDsParam("Ids of the messages to mark (as returned by get_messages)"),
		mailboxParam("Mailbox holding the messages (default INBOX)"),
	)
}

func getMailboxesTool() mcp.Tool {
	return mcp.NewTool("get_mailboxes",
		mcp.WithDescription("List all mailboxes of the account."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func createMailboxTool() mcp.Tool {
	return mcp.NewTool("create_mailbox",
		mcp.WithDescription("Create a new mailbox."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the mailbox to create"),
		),
	)
}

func deleteMailboxTool() mcp.Tool {
	return mcp.NewTool("delete_mailbox",
		mcp.WithDescription("Delete a mailbox. INBOX, Sent, Trash, Drafts and Junk cannot be deleted."),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the mailbox to delete"),
		),
	)
}

func moveMessagesTool() mcp.Tool {
	return mcp.NewTool("move_messages",
		mcp.WithDescription("Move messages to another mailbox."),
		messageIDsParam("Ids of the messages to move"),
		mcp.WithString("sourceMailbox",
			mcp.Required(),
			mcp.Description("Mailbox the messages are in"),
		),
		mcp.WithString("destinationMailbox",
			mcp.Required(),
			mcp.Description("Mailbox to move the messages to"),
		),
	)
}

func deleteMessagesTool() mcp.Tool {
	return mcp.NewTool("delete_messages",
		mcp.WithDescription("Permanently delete messages."),
		mcp.WithDestructiveHintAnnotation(true),
		messageIDsParam("Ids of the messages to delete"),
		mailboxParam("Mailbox holding the messages (default INBOX)"),
	)
}

func setFlagsTool() mcp.Tool {
	return mcp.NewTool("set_flags",
		mcp.WithDescription("Add or remove flags such as Seen, Flagged or Answered."),
		messageIDsParam("Ids of the messages to update"),
		mcp.WithArray("flags",
			mcp.Required(),
			mcp.Description("Flags to add or remove, e.g. [\"Flagged\"]"),
			mcp.Items(stringItems),
		),
		mailboxParam("Mailbox holding the messages (default INBOX)"),
		mcp.WithString("action",
			mcp.Description("Whether to add or remove the flags (default add)"),
			mcp.Enum("add", "remove"),
		),
	)
}

func downloadAttachmentTool() mcp.Tool {
	return mcp.NewTool("download_attachment",
		mcp.WithDescription("Download one attachment of a message as base64."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("Id of the message (as returned by get_messages)"),
		),
		mcp.WithNumber("attachmentIndex",
			mcp.Description("Zero-based index of the attachment (default 0)"),
		),
		mailboxParam("Mailbox holding the message (default INBOX)"),
	)
}

func autoOrganizeTool() mcp.Tool {
	return mcp.NewTool("auto_organize",
		mcp.WithDescription("Move the 100 most recent messages of a mailbox according to rules. "+
			"A message matches a rule when its sender contains fromContains OR its subject contains subjectContains."),
		mcp.WithArray("rules",
			mcp.Required(),
			mcp.Description("Rules to apply; every rule is evaluated independently"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{"type": "string"},
					"condition": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"fromContains":    map[string]any{"type": "string"},
							"subjectContains": map[string]any{"type": "string"},
						},
					},
					"action": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"moveToMailbox": map[string]any{"type": "string"},
						},
						"required": []string{"moveToMailbox"},
					},
				},
				"required": []string{"name", "condition", "action"},
			}),
		),
		mcp.WithString("sourceMailbox",
			mcp.Description("Mailbox to organize (default INBOX)"),
		),
		mcp.WithBoolean("dryRun",
			mcp.Description("Report matches without moving anything (default false)"),
		),
	)
}

func testConnectionTool() mcp.Tool {
	return mcp.NewTool("test_connection",
		mcp.WithDescription("Check that the IMAP and SMTP servers accept the configured credentials."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func checkConfigTool() mcp.Tool {
	return mcp.NewTool("check_config",
		mcp.WithDescription("Show which settings are present and whether a mail session is active. Never shows the password."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}
