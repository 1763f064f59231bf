package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/vdavid/icloud-mail-mcp/internal/account"
	"github.com/vdavid/icloud-mail-mcp/internal/config"
	"github.com/vdavid/icloud-mail-mcp/internal/imap"
	"github.com/vdavid/icloud-mail-mcp/internal/tools"
)

const (
	serverName    = "icloud-mail"
	serverVersion = "1.0.0"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := account.NewManager(cfg)
	session := connect(ctx, manager)

	mcpServer := NewServer(cfg, manager, session)

	log.Printf("iCloud Mail MCP server starting on stdio (environment: %s)", cfg.Environment)
	err = server.NewStdioServer(mcpServer).Listen(ctx, os.Stdin, os.Stdout)

	if session != nil {
		if logoutErr := manager.Disconnect(session); logoutErr != nil {
			log.Printf("Warning: Failed to log out: %v", logoutErr)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Printf("iCloud Mail MCP server stopped")
}

// connect opens the account session when credentials are configured.
// A failed connection is logged, not fatal: the server still starts so that
// check_config and test_connection can be used to find the problem.
func connect(ctx context.Context, manager *account.Manager) *account.Session {
	if err := manager.Config().Validate(); err != nil {
		log.Printf("Warning: %v; mail tools are disabled until the server is restarted with credentials", err)
		return nil
	}

	session, err := manager.Connect(ctx)
	if err != nil {
		log.Printf("Warning: Failed to connect to iCloud Mail: %v", err)
		return nil
	}

	return session
}

// NewServer creates the MCP server with every tool registered. session may
// be nil, in which case the mail tools report that the server is not configured.
func NewServer(cfg *config.Config, manager *account.Manager, session *account.Session) *server.MCPServer {
	var mailbox imap.IMAPService
	var sender tools.Sender
	if session != nil {
		mailbox = session.IMAP
		sender = session.SMTP
	}

	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))
	tools.NewHandler(cfg, mailbox, sender, manager).Register(s)
	return s
}
