package indexer

import (
	"regexp"
	"strings"
	"unicode"
)

// chunk is one retrieval-sized piece of a document with the section heading
// it came from.
type chunk struct {
	Text    string
	Section string
}

var (
	sectionHeaderRE = regexp.MustCompile(`^#{1,4}\s+(.+)`)
	codeBlockRE     = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRE    = regexp.MustCompile("`[^`]+`")

	pageSepRE     = regexp.MustCompile(`\n\*{3}\s*\n`)
	titleLineRE   = regexp.MustCompile(`(?m)^title:\s*(.+)$`)
	headerLineRE  = regexp.MustCompile(`(?m)^#{1,4}\s+(?:title:\s*)?(.+)$`)
	frontmatterRE = regexp.MustCompile(`(?s)^---\s*\n.*?\n---\s*\n?`)
	metaLineRE    = regexp.MustCompile(`(?m)^(?:title|layout|hide-feedback|hide-nav-links|subtitle|description|'[^']+'):.*$`)
	dashRuleRE    = regexp.MustCompile(`(?m)^-{20,}\s*$`)
)

var faqPrefixes = []string{
	"how ", "what ", "can ", "do ", "does ", "is ", "why ", "when ", "where ",
}

// isFAQTitle reports whether a section heading reads like a question. FAQ
// chunks skip the minimum-length filter so short answers stay retrievable.
func isFAQTitle(title string) bool {
	if title == "" {
		return false
	}
	if strings.Contains(title, "?") {
		return true
	}
	lower := strings.ToLower(title)
	for _, p := range faqPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// splitSentences splits on sentence-ending punctuation followed by
// whitespace and an uppercase letter or a line break.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i + 1
		sawNewline := false
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			if runes[j] == '\n' {
				sawNewline = true
			}
			j++
		}
		if j == i+1 {
			continue
		}
		if j < len(runes) && (sawNewline || unicode.IsUpper(runes[j])) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			start = j
			i = j - 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// chunkText cleans text and splits it into retrieval-sized chunks. Markdown
// headings open new sections; each chunk carries its section heading as a
// bracketed prefix and overlapSentences sentences of context from the
// previous chunk. Sections that are almost entirely code are dropped, as are
// fragments under 80 characters unless their section reads like an FAQ
// entry.
func chunkText(text, section string, chunkSize, overlapSentences int) []chunk {
	cleaned := cleanText(text)
	if cleaned == "" {
		return nil
	}

	type sect struct {
		title string
		text  string
	}

	var sections []sect
	currentTitle := section
	var currentLines []string
	flush := func() {
		body := strings.TrimSpace(strings.Join(currentLines, "\n"))
		if body != "" {
			sections = append(sections, sect{title: currentTitle, text: body})
		}
	}
	for _, line := range strings.Split(cleaned, "\n") {
		if m := sectionHeaderRE.FindStringSubmatch(line); m != nil {
			flush()
			currentTitle = strings.TrimSpace(m[1])
			currentLines = nil
			if isFAQTitle(currentTitle) {
				currentLines = append(currentLines, currentTitle)
			}
			continue
		}
		currentLines = append(currentLines, line)
	}
	flush()
	if len(sections) == 0 {
		sections = []sect{{title: section, text: cleaned}}
	}

	var all []chunk
	for _, s := range sections {
		// Skip sections that are almost entirely code.
		prose := codeBlockRE.ReplaceAllString(s.text, "")
		prose = inlineCodeRE.ReplaceAllString(prose, "")
		if countLetters(prose) < 30 {
			continue
		}

		prefix := ""
		if s.title != "" {
			prefix = "[" + s.title + "]\n"
		}
		sentences := splitSentences(s.text)
		if len(sentences) == 0 {
			continue
		}

		var chunks []string
		current := prefix
		var currentSents []string
		for _, sentence := range sentences {
			test := current
			if strings.TrimSpace(current) != "" {
				test += " "
			}
			test += sentence
			if len(test) > chunkSize && len(currentSents) > 0 {
				chunks = append(chunks, strings.TrimSpace(current))
				overlap := currentSents
				if len(overlap) > overlapSentences {
					overlap = overlap[len(overlap)-overlapSentences:]
				}
				current = prefix + strings.Join(overlap, " ") + " " + sentence
				currentSents = append(append([]string{}, overlap...), sentence)
			} else {
				current = test
				currentSents = append(currentSents, sentence)
			}
		}
		if c := strings.TrimSpace(current); c != "" && c != strings.TrimSpace(prefix) {
			chunks = append(chunks, c)
		}

		sectionTitle := s.title
		if sectionTitle == "" {
			sectionTitle = section
		}
		for _, c := range chunks {
			all = append(all, chunk{Text: c, Section: sectionTitle})
		}
	}

	// Halve anything that grew past twice the target until it fits.
	maxLen := chunkSize * 2
	var final []chunk
	queue := all
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if len(c.Text) <= maxLen {
			final = append(final, c)
			continue
		}
		mid := len(c.Text) / 2
		sp := strings.LastIndex(c.Text[:min(mid+200, len(c.Text))], ". ")
		if sp == -1 || sp < 100 {
			sp = strings.LastIndex(c.Text[:min(mid+200, len(c.Text))], "\n")
		}
		if sp == -1 || sp < 100 {
			sp = mid
		} else {
			sp++
		}
		head := chunk{Text: strings.TrimSpace(c.Text[:sp]), Section: c.Section}
		tail := chunk{Text: strings.TrimSpace(c.Text[sp:]), Section: c.Section}
		queue = append([]chunk{head, tail}, queue...)
	}

	kept := final[:0]
	for _, c := range final {
		if len(c.Text) >= 80 || isFAQTitle(c.Section) {
			kept = append(kept, c)
		}
	}
	return kept
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			n++
		}
	}
	return n
}

// page is one document page in the llms-full.txt multi-page format.
type page struct {
	Title string
	Body  string
}

// splitPages splits an llms-full.txt document on its "***" page separators
// and strips each page's frontmatter, keeping the title for chunk context.
func splitPages(text string) []page {
	var pages []page
	for _, raw := range pageSepRE.Split(text, -1) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		title := ""
		if m := titleLineRE.FindStringSubmatch(raw); m != nil {
			title = strings.TrimSpace(m[1])
		} else if m := headerLineRE.FindStringSubmatch(raw); m != nil {
			title = strings.TrimSpace(m[1])
		}

		body := frontmatterRE.ReplaceAllString(raw, "")
		body = metaLineRE.ReplaceAllString(body, "")
		body = dashRuleRE.ReplaceAllString(body, "")
		body = strings.TrimSpace(body)
		if body != "" {
			pages = append(pages, page{Title: title, Body: body})
		}
	}
	return pages
}
