// Package reflection produces the rule-based reflection and summary for a
// thought.
package reflection

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kalambet/mirror/internal/lexicon"
)

// Reflection types stored alongside thoughts.
const (
	TypeInsight = "insight"
	TypePattern = "pattern"
	TypeSummary = "summary"
)

const (
	QuestionMessage = "This thought contains questions that might benefit from further exploration or research."
	ActionMessage   = "This thought contains action-oriented language. Consider breaking down these intentions into specific, achievable steps."
	GenericMessage  = "This thought represents an externalization of your internal processing. Consider how it connects to your broader goals and values."

	emotionFormat = "This thought expresses %s emotions. Consider how these feelings influence your perspective and decision-making."

	minSentenceLen = 10
	maxSummaryLen  = 100
)

// Branch names reported by Classify.
const (
	BranchQuestion = "question"
	BranchEmotion  = "emotion"
	BranchAction   = "action"
	BranchGeneric  = "generic"
)

// Result is the reflection stage output.
type Result struct {
	Reflection string `json:"reflection"`
	Summary    string `json:"summary"`
}

var actionCueRe = regexp.MustCompile(`(?i)\b(should|must|need to|have to|will)\b`)

var rules = lexicon.Table[string]{
	Rules: []lexicon.Rule[string]{
		{
			Name:  BranchQuestion,
			Match: func(s string) bool { return strings.Contains(s, "?") },
			Value: lexicon.Const(QuestionMessage),
		},
		{
			Name:  BranchEmotion,
			Match: func(s string) bool { return len(lexicon.MatchEmotions(s)) > 0 },
			Value: func(s string) string {
				return fmt.Sprintf(emotionFormat, strings.Join(lexicon.MatchEmotions(s), ", "))
			},
		},
		{
			Name:  BranchAction,
			Match: actionCueRe.MatchString,
			Value: lexicon.Const(ActionMessage),
		},
	},
	Fallback: lexicon.Const(GenericMessage),
}

// Reflect returns the reflection selected by the first matching rule and
// the summary of content.
func Reflect(content string) Result {
	msg, _ := rules.Eval(content)
	return Result{Reflection: msg, Summary: Summarize(content)}
}

// Classify returns the name of the rule that Reflect would select.
func Classify(content string) string {
	_, name := rules.Eval(content)
	if name == "" {
		return BranchGeneric
	}
	return name
}

// Summarize returns the first sentence of content when it is longer than ten
// characters, otherwise a 97-character prefix with an ellipsis for content
// over 100 characters, otherwise content itself.
func Summarize(content string) string {
	if first := strings.TrimSpace(firstSentence(content)); utf8.RuneCountInString(first) > minSentenceLen {
		return first
	}
	if utf8.RuneCountInString(content) > maxSummaryLen {
		runes := []rune(content)
		return string(runes[:maxSummaryLen-3]) + "..."
	}
	return content
}

// firstSentence returns content up to and including the first terminator
// that is followed by whitespace.
func firstSentence(content string) string {
	for i, r := range content {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next, _ := utf8.DecodeRuneInString(content[i+1:])
		if next != utf8.RuneError && unicode.IsSpace(next) {
			return content[:i+1]
		}
	}
	return content
}

// NarrativePrompt builds the text-generation prompt for a narrative
// reflection. Related thoughts are only used as framing context.
func NarrativePrompt(content string, related []string) string {
	var context string
	if len(related) > 0 {
		parts := make([]string, len(related))
		for i, r := range related {
			parts[i] = fmt.Sprintf("Related Thought %d:\n%s", i+1, r)
		}
		context = "\n\nContext from related thoughts:\n" + strings.Join(parts, "\n\n")
	}
	return fmt.Sprintf("Generate a reflection and summary for the following thought:%s\n\nThought:\n%s", context, content)
}

// ParseNarrative splits a narrative response into summary and reflection on
// the first blank line. A response without a blank line is all reflection.
func ParseNarrative(text string) Result {
	summary, reflection, ok := strings.Cut(text, "\n\n")
	if !ok {
		return Result{Reflection: text}
	}
	return Result{Summary: summary, Reflection: reflection}
}
