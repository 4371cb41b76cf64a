// scraper/html_text.go
package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/gewnthar/parkalerts/logging"
)

var (
	lineBreakTags  = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockCloseTags = regexp.MustCompile(`(?i)</(p|div|h[1-6]|ul|ol|table)>`)
	listItemOpen   = regexp.MustCompile(`(?i)<li[^>]*>`)
	listItemClose  = regexp.MustCompile(`(?i)</li>`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
	spaceRuns      = regexp.MustCompile(`[ \t\x{00a0}]+`)
)

// HTMLToText renders an alert description as plain text, keeping paragraph
// and list structure as line breaks.
func HTMLToText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	text := lineBreakTags.ReplaceAllString(html, "\n")
	text = blockCloseTags.ReplaceAllString(text, "\n\n")
	text = listItemOpen.ReplaceAllString(text, "\n- ")
	text = listItemClose.ReplaceAllString(text, "")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		logging.ForService("scraper").Warn("could not parse alert HTML, returning raw text", "error", err)
		return strings.TrimSpace(text)
	}

	plain := doc.Text()
	plain = strings.ReplaceAll(plain, "\r\n", "\n")
	plain = strings.ReplaceAll(plain, "\r", "\n")

	lines := strings.Split(plain, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
	}
	plain = strings.Join(lines, "\n")
	plain = blankRuns.ReplaceAllString(plain, "\n\n")
	return strings.TrimSpace(plain)
}
