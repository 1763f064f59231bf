// Command test-server runs in-memory IMAP and SMTP servers seeded with sample
// mail, so the MCP server can be tried locally without an iCloud account.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vdavid/icloud-mail-mcp/internal/testutil"
)

const (
	defaultIMAPAddress = "127.0.0.1:1143"
	defaultSMTPAddress = "127.0.0.1:1587"
	testEmail          = "username@example.com"
)

func main() {
	imapServer, smtpServer, err := startMailServers()
	if err != nil {
		log.Fatalf("Failed to start mail servers: %v", err)
	}
	defer imapServer.Close()
	defer smtpServer.Close()

	if err := seedTestData(imapServer); err != nil {
		log.Fatalf("Failed to seed test data: %v", err)
	}

	printEnvironment(imapServer, smtpServer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Printf("Shutting down test mail servers (%d message(s) were sent)", len(smtpServer.GetMessages()))
}

func startMailServers() (*testutil.TestIMAPServer, *testutil.TestSMTPServer, error) {
	imapServer, err := testutil.StartIMAPServer(getEnvOrDefault("TEST_IMAP_ADDRESS", defaultIMAPAddress))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start IMAP server: %w", err)
	}

	// The memory IMAP backend knows a single user; the SMTP server accepts
	// the full address with the same password, like iCloud does.
	smtpServer, err := testutil.StartSMTPServer(getEnvOrDefault("TEST_SMTP_ADDRESS", defaultSMTPAddress), testEmail, imapServer.Password())
	if err != nil {
		imapServer.Close()
		return nil, nil, fmt.Errorf("failed to start SMTP server: %w", err)
	}

	return imapServer, smtpServer, nil
}

type sampleMessage struct {
	folder  string
	id      string
	from    string
	subject string
	body    string
	flags   []string
}

var sampleMessages = []sampleMessage{
	{"INBOX", "<welcome@example.com>", "Team <team@example.com>", "Welcome to the test account", "This account runs in memory.", []string{`\Seen`}},
	{"INBOX", "<invoice-1@shop.example.com>", "Billing <billing@shop.example.com>", "Your invoice for March", "Amount due: 42 EUR.", nil},
	{"INBOX", "<news-7@news.example.com>", "Newsletter <news@news.example.com>", "Weekly digest", "Top stories of the week.", nil},
	{"INBOX", "<lunch@example.org>", "Alice <alice@example.org>", "Lunch on Friday?", "Are you free at noon?", []string{`\Flagged`}},
	{"Archive", "<old@example.org>", "Bob <bob@example.org>", "Old thread", "Archived conversation.", []string{`\Seen`}},
}

const attachmentMessage = `Message-ID: <report@example.com>
Date: %s
From: Carol <carol@example.com>
To: username@example.com
Subject: Report with attachment
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="sample"

--sample
Content-Type: text/plain; charset=utf-8

The report is attached.
--sample
Content-Type: text/csv; name="report.csv"
Content-Disposition: attachment; filename="report.csv"

month,total
march,42
--sample--
`

func seedTestData(imapServer *testutil.TestIMAPServer) error {
	for _, name := range []string{"Archive", "Receipts", "Newsletters"} {
		if err := imapServer.Create(name); err != nil {
			return err
		}
	}

	now := time.Now()
	for i, msg := range sampleMessages {
		sentAt := now.Add(time.Duration(i-len(sampleMessages)) * time.Hour)
		raw := fmt.Sprintf("Message-ID: %s\nDate: %s\nFrom: %s\nTo: %s\nSubject: %s\nContent-Type: text/plain; charset=utf-8\n\n%s\n",
			msg.id, sentAt.Format(time.RFC1123Z), msg.from, testEmail, msg.subject, msg.body)
		if err := imapServer.Append(msg.folder, raw, msg.flags...); err != nil {
			return fmt.Errorf("failed to seed %s: %w", msg.id, err)
		}
	}

	if err := imapServer.Append("INBOX", fmt.Sprintf(attachmentMessage, now.Format(time.RFC1123Z))); err != nil {
		return fmt.Errorf("failed to seed attachment message: %w", err)
	}

	log.Printf("Seeded %d message(s)", len(sampleMessages)+1)
	return nil
}

func printEnvironment(imapServer *testutil.TestIMAPServer, smtpServer *testutil.TestSMTPServer) {
	imapHost, imapPort := splitAddress(imapServer.Address)
	smtpHost, smtpPort := splitAddress(smtpServer.Address)

	// stderr, like the rest of the logging; stdout stays free.
	fmt.Fprintf(os.Stderr, `Test mail servers are running. Start the MCP server with:

  ICLOUD_EMAIL=%s \
  ICLOUD_APP_PASSWORD=%s \
  IMAP_HOST=%s IMAP_PORT=%s \
  SMTP_HOST=%s SMTP_PORT=%s \
  MAIL_MCP_TEST_MODE=true \
  go run ./cmd/server

Press Ctrl+C to stop.
`, testEmail, imapServer.Password(), imapHost, imapPort, smtpHost, smtpPort)
}

func splitAddress(address string) (string, string) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return address, ""
	}
	return host, port
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
