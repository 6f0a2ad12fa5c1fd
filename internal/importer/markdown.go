package importer

import (
	"regexp"
	"strings"
	"time"
)

// turnMarkers delimit user and assistant turns in a markdown export. A turn
// runs from its marker to the next marker of the other role.
type turnMarkers struct {
	user, assistant *regexp.Regexp
}

var (
	chatgptMarkers = turnMarkers{
		user:      regexp.MustCompile(`#{1,6}\s*You:\s*`),
		assistant: regexp.MustCompile(`#{1,6}\s*ChatGPT:\s*`),
	}
	claudeMarkers = turnMarkers{
		user:      regexp.MustCompile(`Human:\s*`),
		assistant: regexp.MustCompile(`Assistant:\s*`),
	}
	geminiMarkers = turnMarkers{
		user:      regexp.MustCompile(`User:\s*`),
		assistant: regexp.MustCompile(`Model:\s*`),
	}

	// Claude and Gemini turns only end at a marker that starts a line.
	claudeEnds = turnMarkers{
		user:      regexp.MustCompile(`\nHuman:`),
		assistant: regexp.MustCompile(`\nAssistant:`),
	}
	geminiEnds = turnMarkers{
		user:      regexp.MustCompile(`\nUser:`),
		assistant: regexp.MustCompile(`\nModel:`),
	}
)

func chatgptMarkdown(data []byte, now func() time.Time) ([]Segment, error) {
	return interleave(string(data), chatgptMarkers, chatgptMarkers, now), nil
}

func claudeMarkdown(data []byte, now func() time.Time) ([]Segment, error) {
	return interleave(string(data), claudeMarkers, claudeEnds, now), nil
}

func geminiMarkdown(data []byte, now func() time.Time) ([]Segment, error) {
	return interleave(string(data), geminiMarkers, geminiEnds, now), nil
}

// interleave collects user and assistant turns separately and emits them
// pairwise, user first.
func interleave(content string, starts, ends turnMarkers, now func() time.Time) []Segment {
	users := turns(content, starts.user, ends.assistant)
	assistants := turns(content, starts.assistant, ends.user)

	ts := now()
	var out []Segment
	for i := range max(len(users), len(assistants)) {
		if i < len(users) {
			out = append(out, Segment{Role: RoleUser, Content: users[i], Timestamp: ts})
		}
		if i < len(assistants) {
			out = append(out, Segment{Role: RoleAssistant, Content: assistants[i], Timestamp: ts})
		}
	}
	return out
}

func turns(content string, start, end *regexp.Regexp) []string {
	var out []string
	pos := 0
	for pos < len(content) {
		loc := start.FindStringIndex(content[pos:])
		if loc == nil {
			break
		}
		from := pos + loc[1]
		to := len(content)
		if e := end.FindStringIndex(content[from:]); e != nil {
			to = from + e[0]
		}
		out = append(out, strings.TrimSpace(content[from:to]))
		pos = to
	}
	return out
}
