// Package importer parses exported AI-assistant conversations into ordered
// user and assistant segments.
package importer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported conversation provider")
	ErrUnsupportedFormat   = errors.New("unsupported conversation format")
	ErrMalformed           = errors.New("malformed conversation export")
)

const (
	ProviderChatGPT = "chatgpt"
	ProviderClaude  = "claude"
	ProviderGemini  = "gemini"

	FormatMarkdown = "markdown"
	FormatJSON     = "json"

	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Providers lists the supported export sources.
var Providers = []string{ProviderChatGPT, ProviderClaude, ProviderGemini}

// Formats lists the supported export formats.
var Formats = []string{FormatMarkdown, FormatJSON}

// Segment is one message of a conversation.
type Segment struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is a parsed export.
type Conversation struct {
	Provider string         `json:"provider"`
	Format   string         `json:"format"`
	Metadata map[string]any `json:"metadata"`
	Segments []Segment      `json:"segments"`
}

type parseFunc func(data []byte, now func() time.Time) ([]Segment, error)

var parsers = map[string]map[string]parseFunc{
	ProviderChatGPT: {FormatMarkdown: chatgptMarkdown, FormatJSON: chatgptJSON},
	ProviderClaude:  {FormatMarkdown: claudeMarkdown, FormatJSON: claudeJSON},
	ProviderGemini:  {FormatMarkdown: geminiMarkdown, FormatJSON: geminiJSON},
}

// Parse reads an export of provider in format. Segments with blank content
// are dropped; roles are normalized to user and assistant.
func Parse(provider, format string, data []byte) (Conversation, error) {
	return parse(provider, format, data, time.Now)
}

func parse(provider, format string, data []byte, now func() time.Time) (Conversation, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	format = normalizeFormat(format)

	byFormat, ok := parsers[provider]
	if !ok {
		return Conversation{}, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
	fn, ok := byFormat[format]
	if !ok {
		return Conversation{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	segs, err := fn(data, func() time.Time { return now().UTC() })
	if err != nil {
		return Conversation{}, err
	}

	kept := segs[:0]
	for _, s := range segs {
		s.Content = strings.TrimSpace(s.Content)
		if s.Content == "" {
			continue
		}
		kept = append(kept, s)
	}

	return Conversation{
		Provider: provider,
		Format:   format,
		Metadata: map[string]any{"source": provider, "format": format, "message_count": len(kept)},
		Segments: kept,
	}, nil
}

func normalizeFormat(f string) string {
	switch f = strings.ToLower(strings.TrimSpace(f)); f {
	case "md":
		return FormatMarkdown
	}
	return f
}

// normalizeRole folds provider role names onto user and assistant.
func normalizeRole(role string) string {
	switch strings.ToLower(role) {
	case "user", "human":
		return RoleUser
	}
	return RoleAssistant
}
