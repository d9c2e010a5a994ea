package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shilvister/devochat/internal/domain"
)

type modelsFile struct {
	Models []struct {
		ModelName string `json:"model_name"`
		Billing   struct {
			InBilling  float64 `json:"in_billing"`
			OutBilling float64 `json:"out_billing"`
		} `json:"billing"`
	} `json:"models"`
}

// LoadBillingTable reads the model catalog and returns the per-model billing rates.
func LoadBillingTable(path string) (domain.BillingTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model catalog: %w", err)
	}

	var file modelsFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing model catalog: %w", err)
	}

	table := make(domain.BillingTable, len(file.Models))
	for _, m := range file.Models {
		table[m.ModelName] = domain.BillingRate{
			InBilling:  m.Billing.InBilling,
			OutBilling: m.Billing.OutBilling,
		}
	}

	return table, nil
}

type mcpServerEntry struct {
	Name               string `json:"name"`
	URL                string `json:"url"`
	AuthorizationToken string `json:"authorization_token"`
	Admin              bool   `json:"admin"`
}

// LoadMCPDirectory reads the MCP server registry. A missing file yields an
// empty directory rather than an error.
func LoadMCPDirectory(path string) (domain.MCPDirectory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.MCPDirectory{}, nil
		}
		return nil, fmt.Errorf("reading MCP registry: %w", err)
	}

	var entries map[string]mcpServerEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing MCP registry: %w", err)
	}

	directory := make(domain.MCPDirectory, len(entries))
	for id, e := range entries {
		directory[id] = domain.MCPServer{
			ID:                 id,
			Name:               e.Name,
			URL:                e.URL,
			AuthorizationToken: e.AuthorizationToken,
			Admin:              e.Admin,
		}
	}

	return directory, nil
}

// LoadPrompts reads the prompt files from dir. Missing files resolve to empty
// prompts so deployments can omit the ones they do not use.
func LoadPrompts(dir string) domain.Prompts {
	return domain.Prompts{
		Default:   readPrompt(filepath.Join(dir, "default_prompt.txt")),
		DAN:       readPrompt(filepath.Join(dir, "dan_prompt.txt")),
		ChatAlias: readPrompt(filepath.Join(dir, "chat_alias_prompt.txt")),
	}
}

func readPrompt(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
