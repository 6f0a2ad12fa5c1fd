// Package lexicon holds the word lists and ordered rule tables shared by the
// heuristic enrichment stages.
package lexicon

import (
	"slices"
	"strings"
	"unicode"
)

// Emotions is the fixed emotion lexicon. Order matters: reflections name
// matched emotions in this order.
var Emotions = []string{"happy", "sad", "angry", "excited", "worried", "anxious", "proud", "frustrated"}

// IsWordRune reports whether r belongs to a word: a Unicode letter or
// number, or an underscore.
func IsWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_'
}

// Words splits text into maximal runs of word runes. Word boundaries are
// Unicode-aware, so "Café" is one word.
func Words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool { return !IsWordRune(r) })
}

// MatchEmotions returns the lexicon emotions that occur in text as whole
// words (case-insensitive), in lexicon order.
func MatchEmotions(text string) []string {
	words := Words(strings.ToLower(text))
	var found []string
	for _, e := range Emotions {
		if slices.Contains(words, e) {
			found = append(found, e)
		}
	}
	return found
}

// Rule pairs a predicate with the value it selects. Rules are evaluated in
// order and the first matching predicate wins.
type Rule[T any] struct {
	Name  string
	Match func(text string) bool
	Value func(text string) T
}

// Table is an ordered first-match-wins rule list with a fallback value.
type Table[T any] struct {
	Rules    []Rule[T]
	Fallback func(text string) T
}

// Eval returns the value of the first rule whose predicate matches, or the
// fallback when none does. The second result names the rule that fired
// ("" for the fallback).
func (t Table[T]) Eval(text string) (T, string) {
	for _, r := range t.Rules {
		if r.Match(text) {
			return r.Value(text), r.Name
		}
	}
	return t.Fallback(text), ""
}

// Const returns a value func that ignores its input.
func Const[T any](v T) func(string) T {
	return func(string) T { return v }
}

// ContainsAny reports whether s contains any of the substrings.
func ContainsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
