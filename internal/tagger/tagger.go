// Package tagger derives topical and emotional tags from raw thought text.
package tagger

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/mirror/internal/lexicon"
)

const (
	// DefaultConfidence is assigned to every heuristically extracted tag.
	DefaultConfidence = 0.8
	// FallbackConfidence is assigned to tags recovered from unstructured lines.
	FallbackConfidence = 0.7

	TypeAuto   = "auto"
	TypeCustom = "custom"

	maxFallbackLineLen = 30
)

// Draft is a tag proposal that has not been persisted yet.
type Draft struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Type       string  `json:"type"`
}

var (
	hashtagRe     = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
	capitalizedRe = regexp.MustCompile(`^[A-Z][a-z]+$`)
	projectRe     = regexp.MustCompile(`^(project|task|goal|objective)s?$`)
)

// source yields candidate tag names from content.
type source func(content string) []string

// sources are unioned; the order only affects the order of the output slice.
var sources = []source{
	hashtags,
	func(c string) []string { return wholeWords(capitalizedRe, c, false) },
	func(c string) []string { return wholeWords(projectRe, c, true) },
	lexicon.MatchEmotions,
}

func hashtags(content string) []string {
	var out []string
	for _, m := range hashtagRe.FindAllStringSubmatch(content, -1) {
		out = append(out, m[1])
	}
	return out
}

// wholeWords returns the words of content that re matches entirely. With
// lower set, words are lower-cased first and the first submatch is kept.
func wholeWords(re *regexp.Regexp, content string, lower bool) []string {
	var out []string
	for _, w := range lexicon.Words(content) {
		if lower {
			w = strings.ToLower(w)
		}
		m := re.FindStringSubmatch(w)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			w = m[1]
		}
		out = append(out, w)
	}
	return out
}

// Extract returns the set of auto tags found in content. Duplicates collapse
// by exact name; the slice is in first-seen order.
func Extract(content string) []Draft {
	seen := make(map[string]struct{})
	var tags []Draft
	for _, src := range sources {
		for _, name := range src(content) {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			tags = append(tags, Draft{Name: name, Confidence: DefaultConfidence, Type: TypeAuto})
		}
	}
	return tags
}

// agentTemplates are tried in order and all their matches are collected.
var agentTemplates = []*regexp.Regexp{
	regexp.MustCompile(`Tag: ([^,]+), Confidence: (0\.\d+)`),
	regexp.MustCompile(`- ([^:]+): (0\.\d+)`),
	regexp.MustCompile(`"([^"]+)"\s*:\s*(0\.\d+)`),
}

// ExtractFromAgentText recovers tags from a narrative text-generation
// response. When no template matches, every short line that is not a
// markdown heading becomes a tag with FallbackConfidence.
func ExtractFromAgentText(text string) []Draft {
	var tags []Draft
	for _, re := range agentTemplates {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			conf, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			tags = append(tags, Draft{Name: strings.TrimSpace(m[1]), Confidence: conf, Type: TypeAuto})
		}
	}
	if len(tags) > 0 {
		return tags
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || utf8.RuneCountInString(line) >= maxFallbackLineLen {
			continue
		}
		tags = append(tags, Draft{Name: line, Confidence: FallbackConfidence, Type: TypeAuto})
	}
	return tags
}

// Names returns the tag names in order.
func Names(tags []Draft) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}

// Prompt is the narrative request used to recover tags for content.
func Prompt(content string) string {
	return "Generate tags for the following thought: " + content
}
