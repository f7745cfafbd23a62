package providers_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentoven/psymarket/internal/providers"
	"github.com/agentoven/psymarket/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable_Lookup(t *testing.T) {
	reg, err := providers.New(providers.DefaultTable())
	require.NoError(t, err)

	primary, backups, err := reg.Lookup(models.ServiceChat)
	require.NoError(t, err)
	assert.Equal(t, "OpenAI GPT-4o", primary.Name)
	require.Len(t, backups, 2)
	assert.Equal(t, "Groq Llama3", backups[0].Name)
	assert.Equal(t, "HuggingFace Transformers", backups[1].Name)

	primary, backups, err = reg.Lookup(models.ServiceSearch)
	require.NoError(t, err)
	assert.Equal(t, "Google Custom Search", primary.Name)
	assert.Equal(t, []string{"GOOGLE_API_KEY", "GOOGLE_CSE_ID"}, primary.RequiredCredentials)
	require.Len(t, backups, 2)
	assert.Equal(t, "DuckDuckGo Search", backups[0].Name)
	assert.True(t, backups[0].IsFree)

	assert.ElementsMatch(t, []string{"OpenAI GPT-4o", "Google Gemini", "Google Custom Search"}, reg.Primaries())
	assert.True(t, reg.IsPrimary("Google Gemini"))
	assert.False(t, reg.IsPrimary("Groq Mixtral"))
}

func TestLookup_UnknownClass(t *testing.T) {
	reg, err := providers.New(providers.DefaultTable())
	require.NoError(t, err)

	_, _, err = reg.Lookup(models.ServiceClass("translation"))
	var cfgErr *providers.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "Lookup() error = %v, want *ConfigurationError", err)
	assert.Equal(t, models.ServiceClass("translation"), cfgErr.Class)
}

func TestNew_OrdersBackupsByRank(t *testing.T) {
	reg, err := providers.New([]models.ProviderDescriptor{
		{Name: "p", Class: models.ServiceChat, Kind: "openai", Role: models.RolePrimary},
		{Name: "third", Class: models.ServiceChat, Kind: "openai", Role: models.RoleBackup, Rank: 9},
		{Name: "first", Class: models.ServiceChat, Kind: "openai", Role: models.RoleBackup, Rank: 1},
		{Name: "second", Class: models.ServiceChat, Kind: "openai", Role: models.RoleBackup, Rank: 4},
	})
	require.NoError(t, err)

	_, backups, err := reg.Lookup(models.ServiceChat)
	require.NoError(t, err)
	names := []string{backups[0].Name, backups[1].Name, backups[2].Name}
	assert.Equal(t, []string{"first", "second", "third"}, names)
}

func TestLookup_ReturnsCopy(t *testing.T) {
	reg, err := providers.New(providers.DefaultTable())
	require.NoError(t, err)

	_, backups, _ := reg.Lookup(models.ServiceChat)
	backups[0].Name = "mutated"

	_, again, _ := reg.Lookup(models.ServiceChat)
	assert.Equal(t, "Groq Llama3", again[0].Name)
}

func TestNew_RejectsMalformedTables(t *testing.T) {
	tests := []struct {
		name  string
		table []models.ProviderDescriptor
	}{
		{
			name: "two primaries",
			table: []models.ProviderDescriptor{
				{Name: "a", Class: models.ServiceChat, Kind: "openai", Role: models.RolePrimary},
				{Name: "b", Class: models.ServiceChat, Kind: "openai", Role: models.RolePrimary},
			},
		},
		{
			name: "backup without primary",
			table: []models.ProviderDescriptor{
				{Name: "a", Class: models.ServiceSearch, Kind: "duckduckgo", Role: models.RoleBackup, Rank: 1},
			},
		},
		{
			name: "duplicate rank",
			table: []models.ProviderDescriptor{
				{Name: "p", Class: models.ServiceChat, Kind: "openai", Role: models.RolePrimary},
				{Name: "a", Class: models.ServiceChat, Kind: "groq", Role: models.RoleBackup, Rank: 1},
				{Name: "b", Class: models.ServiceChat, Kind: "groq", Role: models.RoleBackup, Rank: 1},
			},
		},
		{
			name: "duplicate name",
			table: []models.ProviderDescriptor{
				{Name: "p", Class: models.ServiceChat, Kind: "openai", Role: models.RolePrimary},
				{Name: "p", Class: models.ServiceAnalysis, Kind: "gemini", Role: models.RolePrimary},
			},
		},
		{
			name: "unknown class",
			table: []models.ProviderDescriptor{
				{Name: "p", Class: "video", Kind: "openai", Role: models.RolePrimary},
			},
		},
		{
			name:  "empty",
			table: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := providers.New(tt.table)
			var cfgErr *providers.ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "New() error = %v, want *ConfigurationError", err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	yml := `providers:
  - name: Local Chat
    class: chat
    kind: openai
    model: llama3
    endpoint: http://localhost:11434/v1
    role: primary
    required_credentials: [LOCAL_KEY]
  - name: Free Search
    class: search
    kind: duckduckgo
    role: primary
    is_free: true
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	reg, err := providers.Load(path)
	require.NoError(t, err)

	primary, backups, err := reg.Lookup(models.ServiceChat)
	require.NoError(t, err)
	assert.Equal(t, "Local Chat", primary.Name)
	assert.Equal(t, "http://localhost:11434/v1", primary.Endpoint)
	assert.Equal(t, []string{"LOCAL_KEY"}, primary.RequiredCredentials)
	assert.Empty(t, backups)

	_, _, err = reg.Lookup(models.ServiceAnalysis)
	assert.Error(t, err, "analysis is not configured in the file")
}
