package voicetext

import (
	"strconv"
	"strings"
)

var onesWords = []string{
	"zero", "one", "two", "three", "four", "five", "six", "seven", "eight",
	"nine", "ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen",
	"sixteen", "seventeen", "eighteen", "nineteen",
}

var tensWords = []string{
	"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy",
	"eighty", "ninety",
}

var scaleWords = []struct {
	value int64
	word  string
}{
	{1_000_000_000_000, "trillion"},
	{1_000_000_000, "billion"},
	{1_000_000, "million"},
	{1_000, "thousand"},
}

// numberToWords spells out a non-negative integer, e.g. 123 ->
// "one hundred and twenty-three".
func numberToWords(n int64) string {
	if n < 0 {
		return "minus " + numberToWords(-n)
	}
	if n < 20 {
		return onesWords[n]
	}
	if n < 100 {
		w := tensWords[n/10]
		if n%10 != 0 {
			w += "-" + onesWords[n%10]
		}
		return w
	}
	if n < 1000 {
		w := onesWords[n/100] + " hundred"
		if n%100 != 0 {
			w += " and " + numberToWords(n%100)
		}
		return w
	}
	for _, s := range scaleWords {
		if n >= s.value {
			w := numberToWords(n/s.value) + " " + s.word
			rem := n % s.value
			if rem == 0 {
				return w
			}
			if rem < 100 {
				return w + " and " + numberToWords(rem)
			}
			return w + " " + numberToWords(rem)
		}
	}
	return strconv.FormatInt(n, 10)
}

// decimalToWords spells out a decimal literal, e.g. "3.14" ->
// "three point one four". The integer part is spelled as a number; each
// fractional digit is spelled individually.
func decimalToWords(raw string) string {
	intPart, fracPart, found := strings.Cut(raw, ".")
	n, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return raw
	}
	w := numberToWords(n)
	if !found || fracPart == "" {
		return w
	}
	var b strings.Builder
	b.WriteString(w)
	b.WriteString(" point")
	for _, d := range fracPart {
		if d < '0' || d > '9' {
			return raw
		}
		b.WriteString(" ")
		b.WriteString(onesWords[d-'0'])
	}
	return b.String()
}

var irregularOrdinals = map[string]string{
	"one":    "first",
	"two":    "second",
	"three":  "third",
	"five":   "fifth",
	"eight":  "eighth",
	"nine":   "ninth",
	"twelve": "twelfth",
}

// ordinalWords converts spelled-out cardinal words into the matching ordinal,
// e.g. "twenty-one" -> "twenty-first", "ten" -> "tenth".
func ordinalWords(cardinal string) string {
	// Only the last word (or hyphenated part) changes.
	if i := strings.LastIndexAny(cardinal, " -"); i >= 0 {
		return cardinal[:i+1] + ordinalWords(cardinal[i+1:])
	}
	if ord, ok := irregularOrdinals[cardinal]; ok {
		return ord
	}
	if strings.HasSuffix(cardinal, "y") {
		return strings.TrimSuffix(cardinal, "y") + "ieth"
	}
	return cardinal + "th"
}
