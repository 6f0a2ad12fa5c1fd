package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// listMessage is the plain message-list layout shared by all providers.
type listMessage struct {
	Role      string `json:"role"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type chatgptNode struct {
	Message *struct {
		Author struct {
			Role string `json:"role"`
		} `json:"author"`
		Content struct {
			Parts []any `json:"parts"`
		} `json:"content"`
		CreateTime *float64 `json:"create_time"`
	} `json:"message"`
}

type chatgptExport struct {
	// Node order in the export is the conversation order.
	Mapping *orderedmap.OrderedMap[string, chatgptNode] `json:"mapping"`
}

func chatgptJSON(data []byte, now func() time.Time) ([]Segment, error) {
	if isArray(data) {
		return parseList(data, now, func(m listMessage) (string, string) { return m.Role, m.Content })
	}

	var export chatgptExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if export.Mapping == nil {
		return nil, nil
	}

	var out []Segment
	for pair := export.Mapping.Oldest(); pair != nil; pair = pair.Next() {
		msg := pair.Value.Message
		if msg == nil || len(msg.Content.Parts) == 0 {
			continue
		}
		var parts []string
		for _, p := range msg.Content.Parts {
			if s, ok := p.(string); ok {
				parts = append(parts, s)
			}
		}
		ts := now()
		if msg.CreateTime != nil && *msg.CreateTime > 0 {
			sec, frac := math.Modf(*msg.CreateTime)
			ts = time.Unix(int64(sec), int64(frac*1e9)).UTC()
		}
		out = append(out, Segment{
			Role:      normalizeRole(msg.Author.Role),
			Content:   strings.Join(parts, "\n"),
			Timestamp: ts,
		})
	}
	return out, nil
}

type claudeExport struct {
	Conversations []struct {
		Messages []listMessage `json:"messages"`
	} `json:"conversations"`
}

func claudeRole(m listMessage) (string, string) {
	if m.Type == "human" {
		return RoleUser, m.Text
	}
	return RoleAssistant, m.Text
}

func claudeJSON(data []byte, now func() time.Time) ([]Segment, error) {
	if isArray(data) {
		return parseList(data, now, claudeRole)
	}

	var export claudeExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	var out []Segment
	for _, c := range export.Conversations {
		segs, err := toSegments(c.Messages, now, claudeRole)
		if err != nil {
			return nil, err
		}
		out = append(out, segs...)
	}
	return out, nil
}

type geminiExport struct {
	Messages []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
		Timestamp string `json:"timestamp"`
	} `json:"messages"`
}

func geminiJSON(data []byte, now func() time.Time) ([]Segment, error) {
	if isArray(data) {
		return parseList(data, now, func(m listMessage) (string, string) { return m.Role, m.Content })
	}

	var export geminiExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	out := make([]Segment, 0, len(export.Messages))
	for _, m := range export.Messages {
		ts, err := parseTimestamp(m.Timestamp, now)
		if err != nil {
			return nil, err
		}
		var text string
		if len(m.Parts) > 0 {
			text = m.Parts[0].Text
		}
		out = append(out, Segment{Role: normalizeRole(m.Role), Content: text, Timestamp: ts})
	}
	return out, nil
}

func parseList(data []byte, now func() time.Time, pick func(listMessage) (role, content string)) ([]Segment, error) {
	var msgs []listMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return toSegments(msgs, now, pick)
}

func toSegments(msgs []listMessage, now func() time.Time, pick func(listMessage) (string, string)) ([]Segment, error) {
	out := make([]Segment, 0, len(msgs))
	for _, m := range msgs {
		ts, err := parseTimestamp(m.Timestamp, now)
		if err != nil {
			return nil, err
		}
		role, content := pick(m)
		out = append(out, Segment{Role: normalizeRole(role), Content: content, Timestamp: ts})
	}
	return out, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseTimestamp accepts ISO-8601 forms; an empty value means now.
func parseTimestamp(v string, now func() time.Time) (time.Time, error) {
	if v == "" {
		return now(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrMalformed, v)
}

func isArray(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}
