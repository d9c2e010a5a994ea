package domain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shilvister/devochat/internal/domain"
)

func TestMCPDirectoryResolve(t *testing.T) {
	ctx := context.Background()
	directory := domain.MCPDirectory{
		"fetch": {ID: "fetch", Name: "fetch", URL: "https://mcp.example/fetch"},
		"ops":   {ID: "ops", Name: "ops", URL: "https://mcp.example/ops", Admin: true},
	}

	t.Run("should resolve known ids in order", func(t *testing.T) {
		servers, errMsg := directory.Resolve(ctx, []string{"fetch"}, domain.User{UserID: "u1"})
		require.Empty(t, errMsg)
		require.Len(t, servers, 1)
		require.Equal(t, "https://mcp.example/fetch", servers[0].URL)
	})

	t.Run("should skip unknown ids", func(t *testing.T) {
		servers, errMsg := directory.Resolve(ctx, []string{"ghost", "fetch"}, domain.User{UserID: "u1"})
		require.Empty(t, errMsg)
		require.Len(t, servers, 1)
		require.Equal(t, "fetch", servers[0].ID)
	})

	t.Run("should refuse an admin-only server for a non-admin", func(t *testing.T) {
		servers, errMsg := directory.Resolve(ctx, []string{"ops"}, domain.User{UserID: "u1"})
		require.Nil(t, servers)
		require.Equal(t, domain.ErrMsgMCPForbidden, errMsg)
	})

	t.Run("should allow an admin-only server for an admin", func(t *testing.T) {
		servers, errMsg := directory.Resolve(ctx, []string{"ops", "fetch"}, domain.User{UserID: "u1", Admin: true})
		require.Empty(t, errMsg)
		require.Len(t, servers, 2)
	})
}
