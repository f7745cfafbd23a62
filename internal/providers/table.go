package providers

import (
	"fmt"
	"os"

	"github.com/agentoven/psymarket/pkg/models"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Driver kinds understood by internal/drivers.
const (
	KindOpenAI      = "openai"
	KindGroq        = "groq"
	KindGemini      = "gemini"
	KindAnthropic   = "anthropic"
	KindHuggingFace = "huggingface"
	KindGoogleCSE   = "google_cse"
	KindDuckDuckGo  = "duckduckgo"
	KindSerpAPI     = "serpapi"
)

// Credential names read from the environment.
const (
	CredOpenAI      = "OPENAI_API_KEY"
	CredGroq        = "GROQ_API_KEY"
	CredGemini      = "GEMINI_API_KEY"
	CredAnthropic   = "ANTHROPIC_API_KEY"
	CredHuggingFace = "HUGGINGFACE_API_KEY"
	CredGoogleAPI   = "GOOGLE_API_KEY"
	CredGoogleCSE   = "GOOGLE_CSE_ID"
	CredSerpAPI     = "SERPAPI_KEY"
)

// DefaultTable returns the production provider table.
func DefaultTable() []models.ProviderDescriptor {
	return []models.ProviderDescriptor{
		// chat
		{
			Name: "OpenAI GPT-4o", Class: models.ServiceChat, Kind: KindOpenAI, Model: "gpt-4o",
			RequiredCredentials: []string{CredOpenAI}, Role: models.RolePrimary,
		},
		{
			Name: "Groq Llama3", Class: models.ServiceChat, Kind: KindGroq, Model: "llama3-70b-8192",
			RequiredCredentials: []string{CredGroq}, IsFree: true, Role: models.RoleBackup, Rank: 1,
		},
		{
			Name: "HuggingFace Transformers", Class: models.ServiceChat, Kind: KindHuggingFace, Model: "mistralai/Mistral-7B-Instruct-v0.3",
			OptionalCredentials: []string{CredHuggingFace}, IsFree: true, Role: models.RoleBackup, Rank: 2,
		},

		// analysis
		{
			Name: "Google Gemini", Class: models.ServiceAnalysis, Kind: KindGemini, Model: "gemini-2.5-flash",
			RequiredCredentials: []string{CredGemini}, Role: models.RolePrimary,
		},
		{
			Name: "Groq Mixtral", Class: models.ServiceAnalysis, Kind: KindGroq, Model: "mixtral-8x7b-32768",
			RequiredCredentials: []string{CredGroq}, IsFree: true, Role: models.RoleBackup, Rank: 1,
		},
		{
			Name: "OpenAI GPT-4o Mini", Class: models.ServiceAnalysis, Kind: KindOpenAI, Model: "gpt-4o-mini",
			RequiredCredentials: []string{CredOpenAI}, Role: models.RoleBackup, Rank: 2,
		},
		{
			Name: "Anthropic Claude", Class: models.ServiceAnalysis, Kind: KindAnthropic, Model: "claude-sonnet-4-5",
			RequiredCredentials: []string{CredAnthropic}, Role: models.RoleBackup, Rank: 3,
		},

		// search
		{
			Name: "Google Custom Search", Class: models.ServiceSearch, Kind: KindGoogleCSE,
			RequiredCredentials: []string{CredGoogleAPI, CredGoogleCSE}, Role: models.RolePrimary,
		},
		{
			Name: "DuckDuckGo Search", Class: models.ServiceSearch, Kind: KindDuckDuckGo,
			IsFree: true, Role: models.RoleBackup, Rank: 1,
		},
		{
			Name: "SerpAPI", Class: models.ServiceSearch, Kind: KindSerpAPI,
			RequiredCredentials: []string{CredSerpAPI}, Role: models.RoleBackup, Rank: 2,
		},
	}
}

// fileTable is the on-disk shape of a provider table.
type fileTable struct {
	Providers []models.ProviderDescriptor `yaml:"providers"`
}

// LoadFile reads a provider table from a YAML file.
//
//	providers:
//	  - name: OpenAI GPT-4o
//	    class: chat
//	    kind: openai
//	    model: gpt-4o
//	    role: primary
//	    required_credentials: [OPENAI_API_KEY]
func LoadFile(path string) ([]models.ProviderDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider table: %w", err)
	}
	var ft fileTable
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return nil, fmt.Errorf("parse provider table %s: %w", path, err)
	}
	if len(ft.Providers) == 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("%s lists no providers", path)}
	}
	return ft.Providers, nil
}

// Load builds the registry from path when set, otherwise from DefaultTable.
func Load(path string) (*Registry, error) {
	table := DefaultTable()
	if path != "" {
		t, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		table = t
		log.Info().Str("path", path).Int("providers", len(table)).Msg("📋 Provider table loaded from file")
	}
	return New(table)
}
