package domain

import (
	"context"

	"go.uber.org/zap"

	"github.com/shilvister/devochat/internal/observability"
)

// MCP resolution error messages.
const (
	ErrMsgMCPForbidden = "invalid access"
)

// MCPServer is one external tool-invocation endpoint a model may call.
type MCPServer struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	URL                string `json:"url"`
	AuthorizationToken string `json:"authorization_token"`
	Admin              bool   `json:"admin"`
}

// MCPDirectory is the static registry of selectable MCP servers, keyed by id.
type MCPDirectory map[string]MCPServer

// Resolve maps requested server ids to their configurations. Unknown ids are
// skipped with a warning; an admin-only server requested by a non-admin
// aborts resolution with a user-facing error message.
func (d MCPDirectory) Resolve(ctx context.Context, ids []string, user User) ([]MCPServer, string) {
	logger := observability.FromContext(ctx)
	servers := make([]MCPServer, 0, len(ids))

	for _, id := range ids {
		server, ok := d[id]
		if !ok {
			logger.Warn("unknown MCP server requested",
				zap.String("server_id", id),
				zap.String("username", user.Name))
			continue
		}

		if server.Admin && !user.Admin {
			logger.Warn("MCP server permission denied",
				zap.String("server_id", id),
				zap.String("username", user.Name))
			return nil, ErrMsgMCPForbidden
		}

		servers = append(servers, server)
	}

	return servers, ""
}
