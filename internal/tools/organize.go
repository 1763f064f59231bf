package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/vdavid/icloud-mail-mcp/internal/models"
	"github.com/vdavid/icloud-mail-mcp/internal/organize"
)

type autoOrganizeArgs struct {
	Rules         []models.OrganizationRule `json:"rules"`
	SourceMailbox string                    `json:"sourceMailbox"`
	DryRun        bool                      `json:"dryRun"`
}

// AutoOrganize applies the rules to the most recent messages of a mailbox.
func (h *Handler) AutoOrganize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	var args autoOrganizeArgs
	if err := bind(req, &args); err != nil {
		return nil, err
	}

	engine := organize.NewEngine(h.mailbox)
	return jsonResult(engine.Run(ctx, args.Rules, orDefault(args.SourceMailbox, defaultMailbox), args.DryRun))
}
