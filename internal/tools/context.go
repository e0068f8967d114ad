package tools

import (
	"context"

	"github.com/effect-patterns/mcp-gateway/internal/client"
	"github.com/rs/zerolog"
)

// PatternsAPI is the slice of the upstream client the handlers need.
// Tests substitute a stub.
type PatternsAPI interface {
	Get(ctx context.Context, endpoint string) (*client.Result, error)
	Post(ctx context.Context, endpoint string, body any) (*client.Result, error)
}

// ToolContext provides shared resources for tool handlers
type ToolContext struct {
	Logger    *zerolog.Logger
	SessionID string
	Client    PatternsAPI
}

// NewToolContext creates a per-call context bound to a session
func NewToolContext(logger *zerolog.Logger, sessionID string, api PatternsAPI) *ToolContext {
	return &ToolContext{
		Logger:    logger,
		SessionID: sessionID,
		Client:    api,
	}
}
