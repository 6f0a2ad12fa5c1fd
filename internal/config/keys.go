package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "MIRROR_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "MIRROR_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "MIRROR_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "llm.provider", typ: kString, env: "MIRROR_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.ollama_url", typ: kString, env: "MIRROR_LLM_OLLAMA_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.OllamaURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.OllamaURL },
	},
	{
		key: "llm.model", typ: kString, env: "MIRROR_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.embed_model", typ: kString, env: "MIRROR_LLM_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.EmbedModel },
	},
	{
		key: "llm.openai_base_url", typ: kString, env: "MIRROR_LLM_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.OpenAIBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.OpenAIBaseURL },
	},
	{
		key: "llm.openai_api_key", typ: kString, env: "MIRROR_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.OpenAIAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.OpenAIAPIKey },
	},
	{
		key: "enrichment.parallel", typ: kBool, env: "MIRROR_ENRICHMENT_PARALLEL",
		apply:   func(cfg *Config, v any) { cfg.Enrichment.Parallel = v.(bool) },
		extract: func(cfg Config) any { return cfg.Enrichment.Parallel },
	},
	{
		key: "enrichment.narrative_enabled", typ: kBool, env: "MIRROR_ENRICHMENT_NARRATIVE_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Enrichment.NarrativeEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Enrichment.NarrativeEnabled },
	},
	{
		key: "enrichment.narrative_timeout", typ: kDuration, env: "MIRROR_ENRICHMENT_NARRATIVE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Enrichment.NarrativeTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Enrichment.NarrativeTimeout },
	},
	{
		key: "enrichment.link_candidates", typ: kInt, env: "MIRROR_ENRICHMENT_LINK_CANDIDATES",
		apply:   func(cfg *Config, v any) { cfg.Enrichment.LinkCandidates = v.(int) },
		extract: func(cfg Config) any { return cfg.Enrichment.LinkCandidates },
	},
	{
		key: "memory.top_k", typ: kInt, env: "MIRROR_MEMORY_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Memory.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Memory.TopK },
	},
}

// parse converts a raw string for s. Ints are handled by the backends'
// GetInt and only reach here from the environment.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool, kDuration:
			raw, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok || raw == "" {
				continue
			}
			if v, err := s.parse(raw); err == nil {
				s.apply(cfg, v)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		if v, err := s.parse(raw); err == nil {
			s.apply(cfg, v)
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
		}
	}
}
