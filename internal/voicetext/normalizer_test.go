package voicetext

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text untouched",
			in:   "hello there",
			want: "hello there",
		},
		{
			name: "bold stripped",
			in:   "this is **important** stuff",
			want: "this is important stuff",
		},
		{
			name: "inline code unwrapped",
			in:   "run `make build` now",
			want: "run make build now",
		},
		{
			name: "code block removed",
			in:   "see:\n```go\nfmt.Println(1)\n```\ndone",
			want: "see:\ndone",
		},
		{
			name: "link keeps label",
			in:   "read [the docs](https://example.com/docs) first",
			want: "read the docs first",
		},
		{
			name: "bare URL removed",
			in:   "visit https://example.com today",
			want: "visit today",
		},
		{
			name: "header marker stripped",
			in:   "## Summary\nall good",
			want: "Summary\nall good",
		},
		{
			name: "currency with cents",
			in:   "that costs $7.95 total",
			want: "that costs seven dollars and ninety-five cents total",
		},
		{
			name: "currency whole",
			in:   "pay £20 now",
			want: "pay twenty pounds now",
		},
		{
			name: "currency with thousands separator",
			in:   "around $1,500 per month",
			want: "around one thousand five hundred dollars per month",
		},
		{
			name: "percentage",
			in:   "we saw 12% growth",
			want: "we saw twelve percent growth",
		},
		{
			name: "phone number",
			in:   "call 555-772-9140 anytime",
			want: "call five five five, seven seven two, nine one four zero anytime",
		},
		{
			name: "ordinal",
			in:   "the 3rd item and the 22nd item",
			want: "the third item and the twenty-second item",
		},
		{
			name: "unit",
			in:   "sampled at 16 kHz exactly",
			want: "sampled at sixteen kilohertz exactly",
		},
		{
			name: "bare number",
			in:   "I counted 123 sheep",
			want: "I counted one hundred and twenty-three sheep",
		},
		{
			name: "decimal number",
			in:   "pi is about 3.14 here",
			want: "pi is about three point one four here",
		},
		{
			name: "timestamp untouched",
			in:   "meet at 12:30 sharp",
			want: "meet at 12:30 sharp",
		},
		{
			name: "acronym spelled out",
			in:   "the API is down",
			want: "the a. p. i. is down",
		},
		{
			name: "plural acronym",
			in:   "multiple URLs failed",
			want: "multiple u. r. l.s failed",
		},
		{
			name: "acronym allowlist",
			in:   "it is 9 PM and all is OK",
			want: "it is nine PM and all is OK",
		},
		{
			name: "symbols",
			in:   "salt & pepper at 70°F",
			want: "salt and pepper at seventy degrees Fahrenheit",
		},
		{
			name: "whitespace collapsed",
			in:   "too   many\n\n\nlines",
			want: "too many\nlines",
		},
		{
			name: "bullets stripped",
			in:   "- first thing\n- second thing",
			want: "first thing\nsecond thing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNumberToWords(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "zero"},
		{7, "seven"},
		{13, "thirteen"},
		{20, "twenty"},
		{21, "twenty-one"},
		{100, "one hundred"},
		{123, "one hundred and twenty-three"},
		{1000, "one thousand"},
		{1500, "one thousand five hundred"},
		{1002, "one thousand and two"},
		{1_000_000, "one million"},
		{2_000_003, "two million and three"},
	}
	for _, tt := range tests {
		if got := numberToWords(tt.n); got != tt.want {
			t.Errorf("numberToWords(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestOrdinalWords(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"one", "first"},
		{"two", "second"},
		{"three", "third"},
		{"four", "fourth"},
		{"five", "fifth"},
		{"nine", "ninth"},
		{"twelve", "twelfth"},
		{"twenty", "twentieth"},
		{"twenty-one", "twenty-first"},
		{"ninety-nine", "ninety-ninth"},
	}
	for _, tt := range tests {
		if got := ordinalWords(tt.in); got != tt.want {
			t.Errorf("ordinalWords(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
