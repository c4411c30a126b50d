// Package transcript corrects domain keywords in final STT transcripts.
//
// Speech recognisers reliably mangle proper nouns and product names they have
// never seen ("assembly eye" for "AssemblyAI"). The Corrector takes the list
// of keywords configured for the assistant and rewrites close phonetic
// matches in each final transcript before the agent sees it.
//
// Matching is two-stage: Double Metaphone codes filter phonetic candidates,
// then Jaro-Winkler similarity on the raw strings ranks them. A candidate
// with no phonetic overlap can still match through a higher fuzzy threshold.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a Corrector.
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched keyword to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic overlap is found. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.fuzzyThreshold = threshold
	}
}

// keyword is one configured boost keyword with its precomputed match data.
type keyword struct {
	canonical  string
	lower      string
	tokens     []string
	codes      map[string]struct{}
	firstCodes map[string]struct{}
	// Double Metaphone of the keyword with spaces removed. A span whose
	// concatenated code equals this is phonetically the whole keyword,
	// however many words the recogniser split it into.
	concatPrimary   string
	concatSecondary string
}

// Corrector rewrites configured keywords in transcripts. It is read-only
// after construction and safe for concurrent use.
type Corrector struct {
	keywords          []keyword
	maxTokens         int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Corrector for the given keywords. Blank keywords are
// ignored; a Corrector with no keywords passes text through unchanged.
func New(keywords []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	for _, kw := range keywords {
		lower := strings.ToLower(strings.TrimSpace(kw))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		p, s := matchr.DoubleMetaphone(strings.Join(tokens, ""))
		c.keywords = append(c.keywords, keyword{
			canonical:       strings.TrimSpace(kw),
			lower:           lower,
			tokens:          tokens,
			codes:           codesForTokens(tokens),
			firstCodes:      codesForTokens(tokens[:1]),
			concatPrimary:   p,
			concatSecondary: s,
		})
		if len(tokens) > c.maxTokens {
			c.maxTokens = len(tokens)
		}
	}
	return c
}

// Correct rewrites close keyword matches in text and returns the result.
// Words that match no keyword are left untouched, as is all punctuation.
func (c *Corrector) Correct(text string) string {
	if len(c.keywords) == 0 || strings.TrimSpace(text) == "" {
		return text
	}

	words := strings.Fields(text)
	out := make([]string, 0, len(words))

	for i := 0; i < len(words); {
		// Score every window at this position and keep the best; a one-word
		// window with a near-exact score must beat a wider sloppy one. One
		// extra word beyond the widest keyword is allowed because
		// recognisers split unseen names apart ("assembly eye").
		maxWin := c.maxTokens + 1
		if rest := len(words) - i; maxWin > rest {
			maxWin = rest
		}
		var (
			bestKw    keyword
			bestScore float64
			bestWin   int
		)
		// Ties go to the wider window: when two spans sound equally like the
		// keyword, the wider one is the keyword split apart by the recogniser.
		for win := 1; win <= maxWin; win++ {
			core, _ := splitTrailingPunct(strings.Join(words[i:i+win], " "))
			if kw, score, ok := c.match(core); ok && score >= bestScore {
				bestKw, bestScore, bestWin = kw, score, win
			}
		}
		if bestWin > 0 {
			_, trailing := splitTrailingPunct(strings.Join(words[i:i+bestWin], " "))
			out = append(out, bestKw.canonical+trailing)
			i += bestWin
			continue
		}
		out = append(out, words[i])
		i++
	}
	return strings.Join(out, " ")
}

// match finds the best keyword for the given phrase, if any clears its
// threshold. Multi-word phrases must open with a word that phonetically
// resembles the keyword's first word; without that gate a wide span can
// swallow its neighbours on the strength of one embedded word.
func (c *Corrector) match(phrase string) (keyword, float64, bool) {
	lower := strings.ToLower(phrase)
	if lower == "" {
		return keyword{}, 0, false
	}
	tokens := strings.Fields(lower)
	codes := codesForTokens(tokens)
	var firstCodes map[string]struct{}
	if len(tokens) > 1 {
		firstCodes = codesForTokens(tokens[:1])
	}

	var (
		best         keyword
		bestScore    float64
		bestPhonetic bool
		found        bool
	)
	for _, kw := range c.keywords {
		if lower == kw.lower {
			return kw, 1, true
		}
		if len(tokens) > 1 && !codesOverlap(firstCodes, kw.firstCodes) {
			continue
		}
		phonetic := codesOverlap(codes, kw.codes)
		score := bestJWScore(tokens, kw.tokens, lower, kw.lower)

		// A span that sounds like the entire keyword outranks a narrower
		// span that merely resembles part of it.
		cp, cs := matchr.DoubleMetaphone(strings.Join(tokens, ""))
		if score >= c.phoneticThreshold && score < 0.99 && codeEquals(cp, cs, kw.concatPrimary, kw.concatSecondary) {
			score = 0.99
		}

		switch {
		case phonetic && score >= c.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic, found = kw, score, true, true
			}
		case !phonetic && !bestPhonetic && score >= c.fuzzyThreshold && score > bestScore:
			best, bestScore, found = kw, score, true
		}
	}
	return best, bestScore, found
}

// splitTrailingPunct separates sentence punctuation glued to the end of a
// phrase so it survives keyword replacement.
func splitTrailingPunct(s string) (core, trailing string) {
	core = strings.TrimRight(s, ".,!?;:")
	return core, s[len(core):]
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codeEquals reports whether any code from the first pair equals any
// non-empty code from the second pair.
func codeEquals(p1, s1, p2, s2 string) bool {
	for _, a := range [2]string{p1, s1} {
		if a == "" {
			continue
		}
		if a == p2 || a == s2 {
			return true
		}
	}
	return false
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the input
// and the keyword using three strategies: full strings, space-stripped
// strings, and the best pairwise token score. The space-stripped pass covers
// recognisers splitting one keyword into several words ("assembly eye").
// The pairwise pass only applies to one-word-to-one-word comparisons;
// otherwise a span could be consumed, or a lone word inflated to a phrase,
// on the strength of a single embedded word.
func bestJWScore(inputTokens, kwTokens []string, inputFull, kwFull string) float64 {
	score := matchr.JaroWinkler(inputFull, kwFull, false)

	if len(inputTokens) > 1 || len(kwTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(kwTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	if len(inputTokens) == 1 && len(kwTokens) == 1 {
		if s := matchr.JaroWinkler(inputTokens[0], kwTokens[0], false); s > score {
			score = s
		}
	}
	return score
}
