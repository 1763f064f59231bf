package models

import "time"

// Folder is one mailbox as reported by LIST.
type Folder struct {
	Name       string   `json:"name"`
	Delimiter  string   `json:"delimiter,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
}

// Message is a fully parsed message. ID is the Message-ID header when the
// message has one; otherwise it is "msg-<sequence number>", which is only
// meaningful within the current session and mailbox state.
type Message struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Date        time.Time    `json:"date"`
	Flags       []string     `json:"flags"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// SeqNum and UID locate the message in the mailbox it was fetched from.
	SeqNum uint32 `json:"-"`
	UID    uint32 `json:"-"`
}

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Data        []byte `json:"-"`
}

// SearchFilter is the declarative form of a search. It is translated into
// IMAP search terms and never executed directly.
type SearchFilter struct {
	Query      string `json:"query,omitempty"`
	Mailbox    string `json:"mailbox"`
	Limit      int    `json:"limit"`
	DateFrom   string `json:"dateFrom,omitempty"`
	DateTo     string `json:"dateTo,omitempty"`
	FromEmail  string `json:"fromEmail,omitempty"`
	UnreadOnly bool   `json:"unreadOnly"`
}

type RuleCondition struct {
	FromContains    string `json:"fromContains,omitempty"`
	SubjectContains string `json:"subjectContains,omitempty"`
}

type RuleAction struct {
	MoveToMailbox string `json:"moveToMailbox"`
}

type OrganizationRule struct {
	Name      string        `json:"name"`
	Condition RuleCondition `json:"condition"`
	Action    RuleAction    `json:"action"`
}
