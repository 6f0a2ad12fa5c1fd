// Package actions extracts actionable items (with priority and a free-text
// due-date phrase) from raw thought text.
package actions

import (
	"regexp"
	"strings"

	"github.com/kalambet/mirror/internal/lexicon"
)

const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Draft is an action proposal that has not been persisted yet.
type Draft struct {
	Content  string  `json:"content"`
	Priority string  `json:"priority"`
	DueDate  *string `json:"due_date"`
}

// templates are applied independently and their matches concatenated in
// this order. Overlapping captures are not merged.
var templates = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:need to|should|must|will|going to) ([^.!?]+)[.!?]`),
	regexp.MustCompile(`(?i)(?:todo|to-do|to do):? ([^.!?]+)[.!?]`),
	regexp.MustCompile(`(?i)(?:task|action item):? ([^.!?]+)[.!?]`),
}

var (
	highRe = regexp.MustCompile(`(?i)\b(urgent|important|critical|asap|immediately)\b`)
	lowRe  = regexp.MustCompile(`(?i)\b(later|eventually|sometime|low priority)\b`)
	dueRe  = regexp.MustCompile(`(?i)\b(today|tomorrow|next week|by ([a-zA-Z]+ \d+))\b`)
)

var priorityRules = lexicon.Table[string]{
	Rules: []lexicon.Rule[string]{
		{Name: PriorityHigh, Match: highRe.MatchString, Value: lexicon.Const(PriorityHigh)},
		{Name: PriorityLow, Match: lowRe.MatchString, Value: lexicon.Const(PriorityLow)},
	},
	Fallback: lexicon.Const(PriorityMedium),
}

// ValidPriority reports whether p is high, medium or low.
func ValidPriority(p string) bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Priority classifies a clause as high, low or medium.
func Priority(clause string) string {
	p, _ := priorityRules.Eval(clause)
	return p
}

// DueDate returns the first due-date phrase in clause, or nil.
func DueDate(clause string) *string {
	m := dueRe.FindStringSubmatch(clause)
	if m == nil {
		return nil
	}
	due := m[1]
	return &due
}

// Extract returns every action clause found in content. Repeated captures
// from different templates are all emitted.
func Extract(content string) []Draft {
	var out []Draft
	for _, re := range templates {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			clause := strings.TrimSpace(m[1])
			out = append(out, Draft{
				Content:  clause,
				Priority: Priority(clause),
				DueDate:  DueDate(clause),
			})
		}
	}
	return out
}

var agentTemplates = []*regexp.Regexp{
	regexp.MustCompile(`Action: ([^,]+), Priority: ([^,]+), Due Date: ([^\n]+)`),
	regexp.MustCompile(`- ([^:]+): Priority: ([^,]+), Due: ([^\n]+)`),
	regexp.MustCompile(`- ([^:]+): ([^,]+) priority(?:, due ([^\n]+))?`),
}

var (
	listItemRe   = regexp.MustCompile(`^\d+\.`)
	listPrefixRe = regexp.MustCompile(`^[-*\d.]+\s*`)
	highPhraseRe = regexp.MustCompile(`(?i)high priority`)
	lowPhraseRe  = regexp.MustCompile(`(?i)low priority`)
)

// ExtractFromAgentText recovers actions from a narrative text-generation
// response. When no template matches it falls back to bullet and numbered
// lines, stripping priority and due-date phrases out of the content.
func ExtractFromAgentText(text string) []Draft {
	var out []Draft
	for _, re := range agentTemplates {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			d := Draft{Content: strings.TrimSpace(m[1]), Priority: PriorityMedium}
			if p := strings.ToLower(strings.TrimSpace(m[2])); ValidPriority(p) {
				d.Priority = p
			}
			if due := strings.TrimSpace(m[3]); due != "" && !strings.EqualFold(due, "none") {
				d.DueDate = &due
			}
			out = append(out, d)
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "*") && !listItemRe.MatchString(line) {
			continue
		}
		content := strings.TrimSpace(listPrefixRe.ReplaceAllString(line, ""))
		if content == "" {
			continue
		}

		d := Draft{Priority: PriorityMedium}
		lower := strings.ToLower(content)
		switch {
		case strings.Contains(lower, "high priority"):
			d.Priority = PriorityHigh
			content = strings.TrimSpace(highPhraseRe.ReplaceAllString(content, ""))
		case strings.Contains(lower, "low priority"):
			d.Priority = PriorityLow
			content = strings.TrimSpace(lowPhraseRe.ReplaceAllString(content, ""))
		}

		if m := dueRe.FindStringSubmatch(content); m != nil {
			due := m[1]
			d.DueDate = &due
			content = strings.TrimSpace(strings.ReplaceAll(content, m[0], ""))
		}

		d.Content = content
		out = append(out, d)
	}
	return out
}

// Prompt is the narrative request used to recover actions for content.
func Prompt(content string) string {
	return "Extract actionable items from the following thought:\n\n" + content
}
