// Package classifier implements the adaptive query classifier: a pure,
// synchronous heuristic that decides a query's type and, from it, how
// the engine should shape or skip retrieval. It applies
// confidence-scored decision tables and threshold gating to
// query-shape features instead of answer-quality features.
package classifier

import (
	"strings"
	"unicode"

	"github.com/connexus-ai/ragcore/internal/model"
)

// Options configures the classifier's thresholds and keyword sets.
// New fills every zero-valued field from DefaultOptions, so a zero-value
// Options yields the default classifier.
type Options struct {
	SimpleMaxWords  int
	ComplexMinWords int
	Greetings       map[string]struct{}
	QuestionWords   map[string]struct{}
	ComplexKeywords map[string]struct{}
}

// DefaultOptions returns the standard classifier configuration.
func DefaultOptions() Options {
	return Options{
		SimpleMaxWords:  4,
		ComplexMinWords: 15,
		Greetings:       toSet("hello", "hi", "hey", "thanks", "thank you", "bye", "goodbye"),
		QuestionWords:   toSet("what", "who", "when", "where", "why", "how", "is", "are", "does", "do", "can", "could", "would"),
		ComplexKeywords: toSet("compare", "contrast", "analyze", "explain", "evaluate", "summarize", "list", "pros and cons", "differences"),
	}
}

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Classifier is pure and stateless beyond its frozen Options.
type Classifier struct {
	opts Options
}

// New creates a Classifier. Zero-valued fields in opts fall back to
// DefaultOptions' values.
func New(opts Options) *Classifier {
	def := DefaultOptions()
	if opts.SimpleMaxWords == 0 {
		opts.SimpleMaxWords = def.SimpleMaxWords
	}
	if opts.ComplexMinWords == 0 {
		opts.ComplexMinWords = def.ComplexMinWords
	}
	if opts.Greetings == nil {
		opts.Greetings = def.Greetings
	}
	if opts.QuestionWords == nil {
		opts.QuestionWords = def.QuestionWords
	}
	if opts.ComplexKeywords == nil {
		opts.ComplexKeywords = def.ComplexKeywords
	}
	return &Classifier{opts: opts}
}

// leadingConjunctions are the follow-up markers checked at the start of
// a query.
var leadingConjunctions = []string{"and ", "also ", "but "}

var followUpPhrases = []string{"and also", "tell me more", "what about"}

// Classify extracts features and applies the heuristic decision table.
// Calling Classify twice on the same query (the classifier holds no
// mutable state) yields identical results.
func (c *Classifier) Classify(query string) model.Classification {
	features := c.extractFeatures(query)
	qType, confidence := c.decide(query, features)

	return model.Classification{
		Type:           qType,
		Confidence:     confidence,
		Features:       features,
		Recommendation: recommendationFor(qType, features.WordCount),
	}
}

func (c *Classifier) extractFeatures(query string) model.QueryFeatures {
	trimmed := strings.TrimSpace(query)
	lower := strings.ToLower(trimmed)
	words := strings.Fields(trimmed)

	_, isGreeting := c.opts.Greetings[strings.Trim(lower, "!.,? ")]

	hasQuestionWord := false
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, "!.,?"))
		if _, ok := c.opts.QuestionWords[w]; ok {
			hasQuestionWord = true
			break
		}
	}

	hasComplexKeyword := false
	for kw := range c.opts.ComplexKeywords {
		if strings.Contains(lower, kw) {
			hasComplexKeyword = true
			break
		}
	}

	hasFollowUp := false
	for _, phrase := range followUpPhrases {
		if strings.Contains(lower, phrase) {
			hasFollowUp = true
			break
		}
	}
	if !hasFollowUp {
		for _, lead := range leadingConjunctions {
			if strings.HasPrefix(lower, lead) {
				hasFollowUp = true
				break
			}
		}
	}

	return model.QueryFeatures{
		WordCount:            len(words),
		CharCount:            len(trimmed),
		EndsWithQuestion:     strings.HasSuffix(trimmed, "?"),
		IsGreeting:           isGreeting,
		HasQuestionWords:     hasQuestionWord,
		HasComplexKeywords:   hasComplexKeyword,
		HasFollowUpPattern:   hasFollowUp,
		HasPronouns:          hasReferentialPronoun(words),
		PotentialEntityCount: countCapitalizedRuns(words),
	}
}

// hasReferentialPronoun distinguishes referential "it/that/this" used as
// the subject of a sentence from "this/that" used as an adjective
// modifying a noun ("this document" does not count; bare "this" or "it"
// as a standalone subject does).
func hasReferentialPronoun(words []string) bool {
	for i, raw := range words {
		w := strings.ToLower(strings.Trim(raw, "!.,?"))
		if w != "it" && w != "that" && w != "this" {
			continue
		}
		// Adjective use: immediately followed by another word means it
		// is very likely modifying a noun ("this report", "that claim").
		if i+1 < len(words) {
			next := strings.Trim(words[i+1], "!.,?")
			if next != "" && !isVerbish(strings.ToLower(next)) {
				continue
			}
		}
		return true
	}
	return false
}

var commonVerbs = toSet("is", "was", "are", "were", "means", "refers", "does", "did", "should", "could", "would", "will")

func isVerbish(word string) bool {
	_, ok := commonVerbs[word]
	return ok
}

func countCapitalizedRuns(words []string) int {
	count := 0
	inRun := false
	for i, w := range words {
		r := []rune(w)
		if len(r) == 0 {
			continue
		}
		// Sentence-initial capitalization is not an entity signal: a run
		// that starts at the first word is never counted, even when it
		// continues past it.
		isCap := unicode.IsUpper(r[0]) && len(w) > 1
		if isCap {
			if !inRun {
				if i == 0 {
					inRun = true
					continue // a run starting at the first word is not counted
				}
				count++
				inRun = true
			}
		} else {
			inRun = false
		}
	}
	return count
}

func (c *Classifier) decide(query string, f model.QueryFeatures) (model.QueryType, float64) {
	if f.IsGreeting {
		return model.QuerySimple, 0.95
	}
	if f.WordCount <= c.opts.SimpleMaxWords && !f.EndsWithQuestion {
		return model.QuerySimple, simpleConfidence(f)
	}

	if f.HasPronouns || f.HasFollowUpPattern {
		return model.QueryConversational, conversationalConfidence(f)
	}

	if f.HasComplexKeywords || f.WordCount > c.opts.ComplexMinWords {
		return model.QueryComplex, complexConfidence(f)
	}

	if f.HasQuestionWords || f.EndsWithQuestion {
		return model.QueryFactual, factualConfidence(f)
	}

	return model.QueryFactual, 0.5
}

func simpleConfidence(f model.QueryFeatures) float64 {
	conf := 0.75
	if f.WordCount <= 2 {
		conf += 0.1
	}
	return clamp01(conf)
}

func conversationalConfidence(f model.QueryFeatures) float64 {
	conf := 0.6
	if f.HasPronouns {
		conf += 0.15
	}
	if f.HasFollowUpPattern {
		conf += 0.15
	}
	return clamp01(conf)
}

func complexConfidence(f model.QueryFeatures) float64 {
	conf := 0.6
	if f.HasComplexKeywords {
		conf += 0.2
	}
	if f.WordCount > 15 {
		conf += 0.1
	}
	return clamp01(conf)
}

func factualConfidence(f model.QueryFeatures) float64 {
	conf := 0.55
	if f.HasQuestionWords {
		conf += 0.15
	}
	if f.EndsWithQuestion {
		conf += 0.1
	}
	return clamp01(conf)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func recommendationFor(t model.QueryType, wordCount int) model.Recommendation {
	switch t {
	case model.QuerySimple:
		return model.Recommendation{SkipRetrieval: true}
	case model.QueryFactual:
		return model.Recommendation{EnableReranking: true, SuggestedTopK: 5}
	case model.QueryComplex:
		strategy := "multi-query"
		if wordCount <= 20 {
			strategy = "rewrite"
		}
		return model.Recommendation{
			EnableEnhancement: true,
			EnableReranking:   true,
			SuggestedTopK:     10,
			SuggestedStrategy: strategy,
		}
	case model.QueryConversational:
		return model.Recommendation{
			EnableReranking:          true,
			SuggestedTopK:            5,
			NeedsConversationContext: true,
		}
	default:
		return model.Recommendation{}
	}
}
