package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shilvister/devochat/internal/config"
	"github.com/shilvister/devochat/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadBillingTable(t *testing.T) {
	t.Run("should index models by name", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "chat_models.json", `{
			"models": [
				{"model_name": "cheap-model", "billing": {"in_billing": 1, "out_billing": 2}},
				{"model_name": "premium-model", "billing": {"in_billing": 15, "out_billing": 75}}
			]
		}`)

		table, err := config.LoadBillingTable(path)
		require.NoError(t, err)
		require.Len(t, table, 2)

		rate, ok := table.Rate("premium-model")
		require.True(t, ok)
		require.Equal(t, domain.BillingRate{InBilling: 15, OutBilling: 75}, rate)

		_, ok = table.Rate("no-such-model")
		require.False(t, ok)
	})

	t.Run("should fail on a missing catalog", func(t *testing.T) {
		_, err := config.LoadBillingTable(filepath.Join(t.TempDir(), "absent.json"))
		require.Error(t, err)
	})

	t.Run("should fail on malformed JSON", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "chat_models.json", `{"models": [`)
		_, err := config.LoadBillingTable(path)
		require.Error(t, err)
	})
}

func TestLoadMCPDirectory(t *testing.T) {
	t.Run("should key servers by id", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "mcp_servers.json", `{
			"fetch": {"name": "fetch", "url": "https://mcp.example/fetch", "authorization_token": "tok"},
			"ops": {"name": "ops", "url": "https://mcp.example/ops", "admin": true}
		}`)

		directory, err := config.LoadMCPDirectory(path)
		require.NoError(t, err)
		require.Len(t, directory, 2)
		require.Equal(t, "fetch", directory["fetch"].ID)
		require.Equal(t, "tok", directory["fetch"].AuthorizationToken)
		require.True(t, directory["ops"].Admin)
	})

	t.Run("should treat a missing registry as empty", func(t *testing.T) {
		directory, err := config.LoadMCPDirectory(filepath.Join(t.TempDir(), "absent.json"))
		require.NoError(t, err)
		require.Empty(t, directory)
	})
}

func TestLoadPrompts(t *testing.T) {
	t.Run("should load and trim the prompt files", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "default_prompt.txt", "you are helpful\n")
		writeFile(t, dir, "chat_alias_prompt.txt", "  produce a short title  ")

		prompts := config.LoadPrompts(dir)
		require.Equal(t, "you are helpful", prompts.Default)
		require.Equal(t, "produce a short title", prompts.ChatAlias)
		require.Empty(t, prompts.DAN)
	})

	t.Run("should yield empty prompts for an empty directory", func(t *testing.T) {
		prompts := config.LoadPrompts(t.TempDir())
		require.Empty(t, prompts.Default)
		require.Empty(t, prompts.DAN)
		require.Empty(t, prompts.ChatAlias)
	})
}
