// Package linker scores existing thoughts against new content by key-term
// overlap and classifies the relationship of each match.
package linker

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"

	"github.com/kalambet/mirror/internal/lexicon"
)

const (
	RelSimilar       = "similar"
	RelContinuation  = "continuation"
	RelContradiction = "contradiction"
	RelInspiration   = "inspiration"

	// MaxStrength caps heuristic link strength.
	MaxStrength = 0.9
	// MaxLinks is the number of links Resolve returns at most.
	MaxLinks = 5

	minTermLen = 4
	// agentDefaultStrength is used when a narrative line names no strength.
	agentDefaultStrength = 0.7
)

// Candidate is an existing thought that new content may link to.
type Candidate struct {
	ID      string `json:"id" validate:"required"`
	Content string `json:"content"`
}

// Draft is a proposed link from the new thought to an existing one.
type Draft struct {
	ThoughtID    string  `json:"thought_id"`
	Relationship string  `json:"relationship"`
	Strength     float64 `json:"strength"`
}

// Relationships lists the accepted relationship values.
var Relationships = []string{RelSimilar, RelContinuation, RelContradiction, RelInspiration}

// ValidRelationship reports whether r is one of Relationships.
func ValidRelationship(r string) bool {
	return slices.Contains(Relationships, r)
}

// containsAnyOf builds a substring predicate backed by one Aho-Corasick
// automaton. Patterns must be lower-case; callers lower the input. It panics
// if the automaton cannot be built, like regexp.MustCompile.
func containsAnyOf(patterns ...string) func(string) bool {
	ac, err := ahocorasick.NewBuilder().AddStrings(patterns).Build()
	if err != nil {
		panic("linker: building trigger automaton: " + err.Error())
	}
	return func(s string) bool {
		return ac.IsMatch([]byte(s))
	}
}

var relationshipRules = lexicon.Table[string]{
	Rules: []lexicon.Rule[string]{
		{Name: RelContinuation, Match: containsAnyOf("follow", "next", "continue"), Value: lexicon.Const(RelContinuation)},
		{Name: RelContradiction, Match: containsAnyOf("disagree", "however", "but"), Value: lexicon.Const(RelContradiction)},
		{Name: RelInspiration, Match: containsAnyOf("inspire", "based on", "from"), Value: lexicon.Const(RelInspiration)},
	},
	Fallback: lexicon.Const(RelSimilar),
}

// Classify returns the relationship implied by a candidate's content.
// Trigger words are matched as substrings.
func Classify(candidate string) string {
	rel, _ := relationshipRules.Eval(strings.ToLower(candidate))
	return rel
}

// KeyTerms returns the deduplicated lower-cased words of at least four
// characters in content, in first-seen order.
func KeyTerms(content string) []string {
	words := lexicon.Words(strings.ToLower(content))
	seen := make(map[string]struct{}, len(words))
	var terms []string
	for _, w := range words {
		if utf8.RuneCountInString(w) < minTermLen {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return terms
}

// Resolve scores every candidate by the fraction of content's key terms it
// contains as substrings and returns at most MaxLinks links ordered by
// strength. Ties keep candidate order.
func Resolve(content string, candidates []Candidate) []Draft {
	terms := KeyTerms(content)
	if len(terms) == 0 {
		return nil
	}

	var links []Draft
	for _, c := range candidates {
		lower := strings.ToLower(c.Content)
		matches := 0
		for _, term := range terms {
			if strings.Contains(lower, term) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		links = append(links, Draft{
			ThoughtID:    c.ID,
			Relationship: Classify(lower),
			Strength:     min(float64(matches)/float64(len(terms)), MaxStrength),
		})
	}

	slices.SortStableFunc(links, func(a, b Draft) int {
		switch {
		case a.Strength > b.Strength:
			return -1
		case a.Strength < b.Strength:
			return 1
		}
		return 0
	})
	if len(links) > MaxLinks {
		links = links[:MaxLinks]
	}
	return links
}

// agentTemplate describes where the id, relationship and strength sit in a
// narrative link pattern. A zero group index means the value is absent.
type agentTemplate struct {
	re                     *regexp.Regexp
	id, relation, strength int
}

var agentTemplates = []agentTemplate{
	{re: regexp.MustCompile(`(?s)Thought (\d+) \(ID: ([^)]+)\).*?Relationship: ([^,]+), Strength: (0\.\d+)`), id: 2, relation: 3, strength: 4},
	{re: regexp.MustCompile(`- Thought (\d+): ([^,]+), ([^,]+), (0\.\d+)`), id: 2, relation: 3, strength: 4},
	{re: regexp.MustCompile(`"([^"]+)"\s*:\s*\{\s*"relationship"\s*:\s*"([^"]+)"\s*,\s*"strength"\s*:\s*(0\.\d+)`), id: 1, relation: 2, strength: 3},
}

// ExtractFromAgentText recovers links from a narrative text-generation
// response. Ids that are not among candidates are dropped.
func ExtractFromAgentText(text string, candidates []Candidate) []Draft {
	known := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		known[c.ID] = struct{}{}
	}

	var links []Draft
	for _, t := range agentTemplates {
		for _, m := range t.re.FindAllStringSubmatch(text, -1) {
			id := strings.TrimSpace(m[t.id])
			if _, ok := known[id]; !ok {
				continue
			}
			rel := RelSimilar
			if t.relation > 0 {
				if r := strings.ToLower(strings.TrimSpace(m[t.relation])); ValidRelationship(r) {
					rel = r
				}
			}
			strength := agentDefaultStrength
			if t.strength > 0 {
				if s, err := strconv.ParseFloat(m[t.strength], 64); err == nil {
					strength = s
				}
			}
			links = append(links, Draft{ThoughtID: id, Relationship: rel, Strength: strength})
		}
	}
	return links
}

// Prompt formats candidates for a narrative link request.
func Prompt(content string, candidates []Candidate) string {
	parts := make([]string, len(candidates))
	for i, c := range candidates {
		parts[i] = "Thought " + strconv.Itoa(i+1) + " (ID: " + c.ID + "):\n" + c.Content
	}
	return "Find thoughts related to the following thought:\n\nNew Thought:\n" +
		content + "\n\nExisting Thoughts:\n" + strings.Join(parts, "\n\n")
}
