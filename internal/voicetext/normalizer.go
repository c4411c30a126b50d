// Package voicetext normalizes LLM-generated text so it sounds natural when
// spoken by a TTS engine.
//
// Normalize is a pure function: no state, no I/O. It strips markdown
// artifacts, removes URLs, and spells out the things TTS engines mangle:
// acronyms, bare numbers, ordinals, currency amounts, percentages, phone
// numbers, units, and a handful of symbols.
package voicetext

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reCodeBlocks   = regexp.MustCompile("```[\\s\\S]*?```")
	reIndentedCode = regexp.MustCompile(`(?m)^(?:    |\t).+$`)
	reInlineCode   = regexp.MustCompile("`([^`]+)`")
	reBoldStar     = regexp.MustCompile(`\*{1,3}([^*]+)\*{1,3}`)
	reBoldUnder    = regexp.MustCompile(`_{1,3}([^_]+)_{1,3}`)
	reHeaders      = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reLinks        = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	reImages       = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	reBullets      = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	reNumbered     = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	reBlockquotes  = regexp.MustCompile(`(?m)^\s*>\s?`)
	reHorizRules   = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	reURLs         = regexp.MustCompile(`https?://\S+`)
	reCurrency     = regexp.MustCompile(`([$£€¥])(\d+(?:,\d{3})*(?:\.\d{2})?)`)
	rePercentages  = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	rePhone        = regexp.MustCompile(`(\d{3})-(\d{3})-(\d{4})`)
	reOrdinals     = regexp.MustCompile(`\b(\d{1,2})(st|nd|rd|th)\b`)
	reNumbers      = regexp.MustCompile(`\d+(?:\.\d+)?`)
	reAcronyms     = regexp.MustCompile(`\b[A-Z]{2,}(?:'?s)?\b`)
	reSpaces       = regexp.MustCompile(`[ \t]+`)
	reNewlines     = regexp.MustCompile(`\n{2,}`)
)

var currencyNames = map[string]string{
	"$": "dollars",
	"£": "pounds",
	"€": "euros",
	"¥": "yen",
}

// Normalize runs all normalization passes on text and returns the cleaned
// result, trimmed of surrounding whitespace.
func Normalize(text string) string {
	text = stripMarkdown(text)
	text = removeURLs(text)
	text = expandCurrency(text)
	text = expandPercentages(text)
	text = expandPhoneNumbers(text)
	text = expandOrdinals(text)
	text = expandUnits(text)
	text = expandNumbers(text)
	text = expandAcronyms(text)
	text = cleanSymbols(text)
	text = collapseWhitespace(text)
	return strings.TrimSpace(text)
}

func stripMarkdown(text string) string {
	text = reCodeBlocks.ReplaceAllString(text, "")
	text = reIndentedCode.ReplaceAllString(text, "")
	text = reInlineCode.ReplaceAllString(text, "$1")
	text = reBoldStar.ReplaceAllString(text, "$1")
	text = reBoldUnder.ReplaceAllString(text, "$1")
	text = reHeaders.ReplaceAllString(text, "")
	text = reImages.ReplaceAllString(text, "")
	text = reLinks.ReplaceAllString(text, "$1")
	text = reBullets.ReplaceAllString(text, "")
	text = reNumbered.ReplaceAllString(text, "")
	text = reBlockquotes.ReplaceAllString(text, "")
	text = reHorizRules.ReplaceAllString(text, "")
	return text
}

func removeURLs(text string) string {
	return reURLs.ReplaceAllString(text, "")
}

// expandCurrency turns $7.95 into "seven dollars and ninety-five cents".
func expandCurrency(text string) string {
	return reCurrency.ReplaceAllStringFunc(text, func(m string) string {
		groups := reCurrency.FindStringSubmatch(m)
		symbol, num := groups[1], groups[2]
		num = strings.ReplaceAll(num, ",", "")
		currency := currencyNames[symbol]
		if currency == "" {
			currency = "currency"
		}
		whole, cents, hasCents := strings.Cut(num, ".")
		w, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return m
		}
		if hasCents {
			c, err := strconv.ParseInt(cents, 10, 64)
			if err != nil {
				return m
			}
			return numberToWords(w) + " " + currency + " and " + numberToWords(c) + " cents"
		}
		return numberToWords(w) + " " + currency
	})
}

func expandPercentages(text string) string {
	return rePercentages.ReplaceAllString(text, "$1 percent")
}

// expandPhoneNumbers turns 555-772-9140 into digit-by-digit groups separated
// by commas, which reads as a natural phone cadence.
func expandPhoneNumbers(text string) string {
	return rePhone.ReplaceAllStringFunc(text, func(m string) string {
		groups := rePhone.FindStringSubmatch(m)
		parts := make([]string, 0, 3)
		for _, g := range groups[1:] {
			digits := make([]string, 0, len(g))
			for _, d := range g {
				digits = append(digits, onesWords[d-'0'])
			}
			parts = append(parts, strings.Join(digits, " "))
		}
		return strings.Join(parts, ", ")
	})
}

var unitNames = []struct {
	abbr string
	full string
	re   *regexp.Regexp
}{
	{abbr: "kHz", full: "kilohertz"},
	{abbr: "MHz", full: "megahertz"},
	{abbr: "GHz", full: "gigahertz"},
	{abbr: "Hz", full: "hertz"},
	{abbr: "KB", full: "kilobytes"},
	{abbr: "MB", full: "megabytes"},
	{abbr: "GB", full: "gigabytes"},
	{abbr: "TB", full: "terabytes"},
	{abbr: "ms", full: "milliseconds"},
	{abbr: "kb", full: "kilobits"},
	{abbr: "Mb", full: "megabits"},
	{abbr: "Gb", full: "gigabits"},
}

func init() {
	for i := range unitNames {
		unitNames[i].re = regexp.MustCompile(`(\d)\s*` + unitNames[i].abbr + `\b`)
	}
}

func expandUnits(text string) string {
	for _, u := range unitNames {
		text = u.re.ReplaceAllString(text, "$1 "+u.full)
	}
	return text
}

// expandOrdinals turns 1st into "first", 22nd into "twenty-second".
func expandOrdinals(text string) string {
	return reOrdinals.ReplaceAllStringFunc(text, func(m string) string {
		groups := reOrdinals.FindStringSubmatch(m)
		n, err := strconv.ParseInt(groups[1], 10, 64)
		if err != nil {
			return m
		}
		return ordinalWords(numberToWords(n))
	})
}

// expandNumbers spells out bare numbers. Numbers attached to word characters
// or colons (identifiers, versions, timestamps like 12:30) are left alone;
// the regexp package has no lookaround, so the boundary check is done by
// inspecting the characters adjacent to each match.
func expandNumbers(text string) string {
	matches := reNumbers.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) * 2)
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		b.WriteString(text[last:start])
		raw := text[start:end]
		if !bareNumberAt(text, start, end) {
			b.WriteString(raw)
		} else if strings.Contains(raw, ".") {
			b.WriteString(decimalToWords(raw))
		} else if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			b.WriteString(numberToWords(n))
		} else {
			b.WriteString(raw)
		}
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

// bareNumberAt reports whether the digits at text[start:end] stand alone,
// not glued to a word character or colon on either side.
func bareNumberAt(text string, start, end int) bool {
	if start > 0 {
		c := text[start-1]
		if c == ':' || c == '_' || c == '.' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			return false
		}
	}
	if end < len(text) {
		c := text[end]
		if c == ':' || c == '_' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// notAcronyms are words that look like acronyms but should be read as words.
var notAcronyms = map[string]bool{
	"AM": true,
	"PM": true,
	"OK": true,
	"US": true,
}

// expandAcronyms turns API into "a. p. i." so TTS spells it out.
func expandAcronyms(text string) string {
	return reAcronyms.ReplaceAllStringFunc(text, func(word string) string {
		suffix := ""
		if strings.HasSuffix(word, "'s") {
			suffix = "s"
			word = strings.TrimSuffix(word, "'s")
		} else if strings.HasSuffix(word, "s") && len(word) > 1 && word[len(word)-2] >= 'A' && word[len(word)-2] <= 'Z' {
			suffix = "s"
			word = strings.TrimSuffix(word, "s")
		}
		if notAcronyms[word] {
			return word + suffix
		}
		letters := make([]string, 0, len(word))
		for _, r := range word {
			letters = append(letters, strings.ToLower(string(r)))
		}
		return strings.Join(letters, ". ") + "." + suffix
	})
}

var symbolReplacer = strings.NewReplacer(
	"°F", " degrees Fahrenheit",
	"°C", " degrees Celsius",
	"°", " degrees",
	"&", " and ",
	"+", " plus ",
	"→", "",
	"—", ", ",
	"–", ", ",
)

func cleanSymbols(text string) string {
	return symbolReplacer.Replace(text)
}

func collapseWhitespace(text string) string {
	text = reSpaces.ReplaceAllString(text, " ")
	text = reNewlines.ReplaceAllString(text, "\n")
	return text
}
