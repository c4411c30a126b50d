package indexer

import (
	"regexp"
	"strings"
)

var (
	htmlTagRE     = regexp.MustCompile(`<[^>]+>`)
	jsxExprRE     = regexp.MustCompile(`\{[^}]{0,200}\}`)
	mdImageRE     = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinkRE      = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	urlRE         = regexp.MustCompile(`https?://\S+`)
	quotedMetaRE  = regexp.MustCompile(`(?m)^'[^']+':.*$`)
	headerTitleRE = regexp.MustCompile(`(?m)^(#{1,4})\s+title:\s*`)
	tableRE       = regexp.MustCompile(`(?m)(?:^\|.+\|[ \t]*\n){2,}`)
	tableSepRE    = regexp.MustCompile(`^[-:]+$`)
	spaceRunRE    = regexp.MustCompile(`[ \t]+`)
	blankRunRE    = regexp.MustCompile(`\n{3,}`)
)

// cleanText prepares raw document text for indexing: strips HTML/JSX,
// markdown images and link syntax, bare URLs and YAML-ish metadata lines,
// and rewrites markdown tables as prose so table cells survive
// sentence-level chunking.
func cleanText(text string) string {
	text = htmlTagRE.ReplaceAllString(text, " ")
	text = jsxExprRE.ReplaceAllString(text, " ")
	text = mdImageRE.ReplaceAllString(text, "")
	text = mdLinkRE.ReplaceAllString(text, "$1")
	text = urlRE.ReplaceAllString(text, "")
	text = quotedMetaRE.ReplaceAllString(text, "")
	text = headerTitleRE.ReplaceAllString(text, "$1 ")
	text = tableRE.ReplaceAllStringFunc(text, tableToProse)
	text = spaceRunRE.ReplaceAllString(text, " ")
	text = blankRunRE.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// tableToProse rewrites one markdown table as "Header: cell. Header: cell."
// sentences, one line per row. Malformed tables come back unchanged.
func tableToProse(table string) string {
	lines := strings.Split(strings.TrimSpace(table), "\n")
	if len(lines) < 3 {
		return table
	}

	var headers []string
	for _, h := range strings.Split(strings.Trim(lines[0], "|"), "|") {
		h = strings.TrimSpace(h)
		if h != "" && !tableSepRE.MatchString(h) {
			headers = append(headers, h)
		}
	}
	if len(headers) == 0 {
		return table
	}

	var prose []string
	for _, line := range lines[2:] {
		var cells []string
		for _, c := range strings.Split(strings.Trim(line, "|"), "|") {
			c = strings.TrimSpace(c)
			if c != "" {
				cells = append(cells, c)
			}
		}
		if len(cells) != len(headers) || tableSepRE.MatchString(cells[0]) {
			continue
		}
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = headers[i] + ": " + c
		}
		prose = append(prose, strings.Join(parts, ". ")+".")
	}

	if len(prose) == 0 {
		return table
	}
	return strings.Join(prose, "\n")
}
