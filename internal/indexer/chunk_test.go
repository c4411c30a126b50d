package indexer

import (
	"strings"
	"testing"
)

func TestCleanTextStripsMarkup(t *testing.T) {
	in := "<div>Hello</div> ![alt](img.png) [docs](https://example.com/docs) see https://example.com now"
	got := cleanText(in)
	for _, banned := range []string{"<div>", "![", "](", "https://"} {
		if strings.Contains(got, banned) {
			t.Errorf("cleanText() = %q, still contains %q", got, banned)
		}
	}
	if !strings.Contains(got, "Hello") || !strings.Contains(got, "docs") {
		t.Errorf("cleanText() = %q, lost visible text", got)
	}
}

func TestCleanTextTableToProse(t *testing.T) {
	in := "| Plan | Price |\n| --- | --- |\n| Free | $0 |\n| Pro | $20 |\n"
	got := cleanText(in)
	if !strings.Contains(got, "Plan: Free. Price: $0.") {
		t.Errorf("cleanText() = %q, want first row as prose", got)
	}
	if !strings.Contains(got, "Plan: Pro. Price: $20.") {
		t.Errorf("cleanText() = %q, want second row as prose", got)
	}
	if strings.Contains(got, "|") {
		t.Errorf("cleanText() = %q, table syntax left behind", got)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("First thing here. Second thing follows! Is there a third? yes, lowercase stays attached.")
	want := []string{
		"First thing here.",
		"Second thing follows!",
		"Is there a third? yes, lowercase stays attached.",
	}
	if len(got) != len(want) {
		t.Fatalf("splitSentences() = %q, want %d sentences", got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIsFAQTitle(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"How do I authenticate?", true},
		{"what is streaming", true},
		{"Can I use webhooks", true},
		{"Pricing", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := isFAQTitle(tc.title); got != tc.want {
			t.Errorf("isFAQTitle(%q) = %v, want %v", tc.title, got, tc.want)
		}
	}
}

func TestChunkTextSections(t *testing.T) {
	doc := `# Getting Started

AssemblyAI provides speech recognition APIs for developers. The streaming
API accepts raw audio and returns transcripts in real time. Sessions are
authenticated with temporary tokens minted by your backend.

## How do I authenticate?

Mint a temporary token on your server. Pass it to the browser client.
`
	chunks := chunkText(doc, "", DefaultChunkSize, DefaultOverlapSentences)
	if len(chunks) != 2 {
		t.Fatalf("chunkText() produced %d chunks, want 2: %+v", len(chunks), chunks)
	}
	if chunks[0].Section != "Getting Started" {
		t.Errorf("chunks[0].Section = %q", chunks[0].Section)
	}
	if !strings.HasPrefix(chunks[0].Text, "[Getting Started]") {
		t.Errorf("chunks[0].Text = %q, want section prefix", chunks[0].Text)
	}
	if chunks[1].Section != "How do I authenticate?" {
		t.Errorf("chunks[1].Section = %q", chunks[1].Section)
	}
	// FAQ headings are folded into the chunk body so the question itself is
	// searchable.
	if !strings.Contains(chunks[1].Text, "How do I authenticate? Mint a temporary token") {
		t.Errorf("chunks[1].Text = %q, want question in body", chunks[1].Text)
	}
}

func TestChunkTextOverlap(t *testing.T) {
	sentences := []string{
		"Alpha systems stream audio to the recognizer in small frames.",
		"Beta clients buffer partial transcripts before display.",
		"Gamma workers merge finals into the session history.",
		"Delta services rotate tokens before they expire.",
		"Epsilon jobs archive transcripts at the end of the day.",
	}
	chunks := chunkText(strings.Join(sentences, " "), "", 150, 1)
	if len(chunks) != 4 {
		t.Fatalf("chunkText() produced %d chunks, want 4: %+v", len(chunks), chunks)
	}
	if chunks[0].Text != sentences[0]+" "+sentences[1] {
		t.Errorf("chunks[0].Text = %q", chunks[0].Text)
	}
	// Each subsequent chunk repeats the previous chunk's last sentence.
	if chunks[1].Text != sentences[1]+" "+sentences[2] {
		t.Errorf("chunks[1].Text = %q", chunks[1].Text)
	}
	if chunks[3].Text != sentences[3]+" "+sentences[4] {
		t.Errorf("chunks[3].Text = %q", chunks[3].Text)
	}
}

func TestChunkTextDropsCodeOnlySections(t *testing.T) {
	doc := "# Install\n\n```\npip install aai-agent\nexport KEY=x\n```\n"
	if chunks := chunkText(doc, "", DefaultChunkSize, DefaultOverlapSentences); len(chunks) != 0 {
		t.Errorf("chunkText() = %+v, want no chunks for code-only section", chunks)
	}
}

func TestChunkTextDropsTinyFragments(t *testing.T) {
	doc := "# Notes\n\nShort line without much substance here.\n"
	if chunks := chunkText(doc, "", DefaultChunkSize, DefaultOverlapSentences); len(chunks) != 0 {
		t.Errorf("chunkText() = %+v, want tiny fragment dropped", chunks)
	}
}

func TestChunkTextSplitsOversized(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("This sentence repeats to build one very long unbroken section of prose for the splitter. ")
	}
	chunks := chunkText(b.String(), "", 200, 0)
	if len(chunks) < 2 {
		t.Fatalf("chunkText() produced %d chunks, want several", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Text) > 400 {
			t.Errorf("chunks[%d] is %d chars, want <= 400", i, len(c.Text))
		}
	}
}

func TestSplitPages(t *testing.T) {
	doc := `---
layout: docs
---
title: First Page
First page body with enough text to matter.

***

# title: Second Page

Second page body right here.
`
	pages := splitPages(doc)
	if len(pages) != 2 {
		t.Fatalf("splitPages() = %d pages, want 2: %+v", len(pages), pages)
	}
	if pages[0].Title != "First Page" {
		t.Errorf("pages[0].Title = %q", pages[0].Title)
	}
	if strings.Contains(pages[0].Body, "layout:") || strings.Contains(pages[0].Body, "title:") {
		t.Errorf("pages[0].Body = %q, metadata left behind", pages[0].Body)
	}
	if pages[1].Title != "Second Page" {
		t.Errorf("pages[1].Title = %q", pages[1].Title)
	}
	if !strings.Contains(pages[1].Body, "Second page body") {
		t.Errorf("pages[1].Body = %q", pages[1].Body)
	}
}
