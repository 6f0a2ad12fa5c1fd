package linker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_BeachVacation(t *testing.T) {
	content := "happy beach vacation plan"
	require.ElementsMatch(t, []string{"happy", "beach", "vacation", "plan"}, KeyTerms(content))

	links := Resolve(content, []Candidate{{ID: "a", Content: "Planning a beach vacation this summer"}})

	require.Len(t, links, 1)
	assert.Equal(t, "a", links[0].ThoughtID)
	assert.Equal(t, RelSimilar, links[0].Relationship)
	assert.InDelta(t, 0.75, links[0].Strength, 1e-9)
}

func TestResolve_TriggerWordsAreSubstrings(t *testing.T) {
	links := Resolve("happy beach vacation plan", []Candidate{{ID: "a", Content: "planning a beach vacation next month"}})

	require.Len(t, links, 1)
	assert.Equal(t, RelContinuation, links[0].Relationship)
	assert.InDelta(t, 0.75, links[0].Strength, 1e-9)
}

func TestResolve_StrengthCapped(t *testing.T) {
	links := Resolve("beach", []Candidate{{ID: "a", Content: "Beach day"}})

	require.Len(t, links, 1)
	assert.Equal(t, MaxStrength, links[0].Strength)
}

func TestResolve_ExcludesZeroMatches(t *testing.T) {
	links := Resolve("quarterly budget review", []Candidate{
		{ID: "a", Content: "walk the dog"},
		{ID: "b", Content: "budget meeting"},
	})

	require.Len(t, links, 1)
	assert.Equal(t, "b", links[0].ThoughtID)
}

func TestResolve_NoKeyTerms(t *testing.T) {
	assert.Empty(t, Resolve("a an the of", []Candidate{{ID: "a", Content: "a an the of"}}))
	assert.Empty(t, Resolve("anything here", nil))
}

func TestResolve_SubstringMatching(t *testing.T) {
	links := Resolve("plan", []Candidate{{ID: "a", Content: "airplane"}})
	require.Len(t, links, 1)
}

func TestResolve_OrderingAndLimit(t *testing.T) {
	var candidates []Candidate
	for i := 0; i < 7; i++ {
		candidates = append(candidates, Candidate{ID: fmt.Sprintf("c%d", i), Content: "garden"})
	}
	candidates = append(candidates, Candidate{ID: "best", Content: "garden tomatoes"})

	links := Resolve("garden tomatoes weekend", candidates)

	require.Len(t, links, MaxLinks)
	assert.Equal(t, "best", links[0].ThoughtID)
	assert.InDelta(t, 2.0/3.0, links[0].Strength, 1e-9)
	for i, l := range links[1:] {
		assert.Equal(t, fmt.Sprintf("c%d", i), l.ThoughtID, "ties keep input order")
		assert.InDelta(t, 1.0/3.0, l.Strength, 1e-9)
	}
	for _, l := range links {
		assert.GreaterOrEqual(t, l.Strength, 0.0)
		assert.LessOrEqual(t, l.Strength, MaxStrength)
	}
}

func TestClassify_FirstRuleWins(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"I disagree with this", RelContradiction},
		{"but I will follow up", RelContinuation},
		{"Continue the draft", RelContinuation},
		{"buttered toast", RelContradiction},
		{"based on last week", RelInspiration},
		{"Inspired by the talk", RelInspiration},
		{"a letter from home", RelInspiration},
		{"quiet evening", RelSimilar},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.content), tt.content)
	}
}

func TestContainsAnyOf(t *testing.T) {
	match := containsAnyOf("follow", "next", "based on")

	assert.True(t, match("followers"))
	assert.True(t, match("see you next week"))
	assert.True(t, match("based on the memo"))
	assert.True(t, match("unfollowed"), "occurrences inside words count")
	assert.False(t, match("based-on"))
	assert.False(t, match("fol low"))
	assert.False(t, match(""))
}

func TestClassify_AllRelationshipsReachable(t *testing.T) {
	got := map[string]bool{}
	for _, c := range []string{"next steps", "however odd", "from scratch", "plain"} {
		got[Classify(c)] = true
	}
	for _, rel := range Relationships {
		assert.True(t, got[rel], rel)
	}
}

func TestExtractFromAgentText(t *testing.T) {
	candidates := []Candidate{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}}
	text := "Thought 1 (ID: t1):\nsome text\nRelationship: continuation, Strength: 0.8\n" +
		"- Thought 2: t2, contradiction, 0.6\n" +
		"\"t3\": {\"relationship\": \"inspiration\", \"strength\": 0.4}\n" +
		"- Thought 9: unknown, similar, 0.5"

	links := ExtractFromAgentText(text, candidates)

	assert.Equal(t, []Draft{
		{ThoughtID: "t1", Relationship: RelContinuation, Strength: 0.8},
		{ThoughtID: "t2", Relationship: RelContradiction, Strength: 0.6},
		{ThoughtID: "t3", Relationship: RelInspiration, Strength: 0.4},
	}, links)
}

func TestExtractFromAgentText_UnknownRelationship(t *testing.T) {
	links := ExtractFromAgentText("- Thought 1: t1, friendly, 0.3", []Candidate{{ID: "t1"}})

	require.Len(t, links, 1)
	assert.Equal(t, RelSimilar, links[0].Relationship)
	assert.Equal(t, 0.3, links[0].Strength)
}

func TestPrompt(t *testing.T) {
	p := Prompt("new", []Candidate{{ID: "x", Content: "old one"}, {ID: "y", Content: "old two"}})
	assert.Contains(t, p, "New Thought:\nnew")
	assert.Contains(t, p, "Thought 1 (ID: x):\nold one\n\nThought 2 (ID: y):\nold two")
}
