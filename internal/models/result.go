package models

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// OperationResult is the envelope every mutation returns instead of an error.
// Operation-specific results embed it so the fields stay flat in JSON.
type OperationResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func Success(message string) OperationResult {
	return OperationResult{Status: StatusSuccess, Message: message}
}

func Failure(message string) OperationResult {
	return OperationResult{Status: StatusError, Message: message}
}

func (r OperationResult) OK() bool {
	return r.Status == StatusSuccess
}

// MutationResult reports how many messages a flag, move or delete touched.
type MutationResult struct {
	OperationResult
	Mailbox  string `json:"mailbox,omitempty"`
	Affected int    `json:"affected"`
}

type AttachmentResult struct {
	OperationResult
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Size        int    `json:"size"`
	// Data is the base64 encoding of the attachment bytes.
	Data string `json:"data,omitempty"`
}

type MatchedMessage struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	Subject     string `json:"subject"`
	Destination string `json:"destination"`
}

type RuleResult struct {
	Rule            string           `json:"rule"`
	MatchedMessages int              `json:"matchedMessages"`
	Moved           bool             `json:"moved"`
	Messages        []MatchedMessage `json:"messages,omitempty"`
}

type OrganizeResult struct {
	OperationResult
	DryRun       bool         `json:"dryRun"`
	TotalMatched int          `json:"totalMatched"`
	Results      []RuleResult `json:"results"`
}

// SendResult is returned by send_email.
type SendResult struct {
	OperationResult
	MessageID  string   `json:"messageId,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
}

// ConnectionTestResult is returned by test_connection. IMAP and SMTP are
// "ok", "failed" or "skipped".
type ConnectionTestResult struct {
	OperationResult
	IMAP     string   `json:"imap"`
	SMTP     string   `json:"smtp"`
	Username string   `json:"username,omitempty"`
	Category string   `json:"category,omitempty"`
	Hints    []string `json:"hints,omitempty"`
}
