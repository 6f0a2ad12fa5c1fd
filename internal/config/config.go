package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// appName names the data and config directories, the defaults domain
// suffix and the secret-store service.
const appName = "mirror"

const openAIKeyAccount = "openai_api_key"

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Log        LogConfig
	LLM        LLMConfig
	Enrichment EnrichmentConfig
	Memory     MemoryConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// LLMConfig selects the text generator used by narrative enrichment.
// Embeddings always come from Ollama.
type LLMConfig struct {
	Provider      string
	OllamaURL     string
	Model         string
	EmbedModel    string
	OpenAIBaseURL string
	OpenAIAPIKey  string
}

type EnrichmentConfig struct {
	Parallel         bool
	NarrativeEnabled bool
	NarrativeTimeout time.Duration
	LinkCandidates   int
}

type MemoryConfig struct {
	TopK int
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		LLM: LLMConfig{
			Provider:   ProviderOllama,
			OllamaURL:  "http://localhost:11434",
			Model:      "llama3.2",
			EmbedModel: "nomic-embed-text",
		},
		Enrichment: EnrichmentConfig{
			Parallel:         true,
			NarrativeTimeout: 5 * time.Second,
			LinkCandidates:   20,
		},
		Memory: MemoryConfig{
			TopK: 5,
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.kalambet.mirror) and the
// OpenAI key falls back to the macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/mirror/config.json
// and the key falls back to a secrets file in the data directory.
//
// Environment variables (MIRROR_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	switch cfg.LLM.Provider {
	case ProviderOllama:
	case ProviderOpenAI:
		if cfg.LLM.OpenAIAPIKey == "" {
			if key, err := kc.Get(appName, openAIKeyAccount); err == nil && key != "" {
				cfg.LLM.OpenAIAPIKey = key
			}
		}
		// The key is only needed when something will call the generator.
		if cfg.LLM.OpenAIAPIKey == "" && cfg.Enrichment.NarrativeEnabled {
			return Config{}, fmt.Errorf("missing required config: OpenAI API key. "+
				"Set it via environment variable MIRROR_OPENAI_API_KEY or %s", secretLocation())
		}
	default:
		return Config{}, fmt.Errorf("invalid llm.provider %q: want %s or %s", cfg.LLM.Provider, ProviderOllama, ProviderOpenAI)
	}

	if cfg.Enrichment.NarrativeTimeout <= 0 {
		return Config{}, fmt.Errorf("enrichment.narrative_timeout must be positive, got %s", cfg.Enrichment.NarrativeTimeout)
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
