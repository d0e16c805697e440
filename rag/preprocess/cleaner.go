package preprocess

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var (
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
	reHTMLTag  = regexp.MustCompile(`(?i)<(p|div|h[1-6]|ul|ol|li|table|br|span|strong|em|a)\b[^>]*>`)

	ligatures = strings.NewReplacer(
		"ﬁ", "fi", "ﬂ", "fl",
		"—", "-", "–", "-",
		"•", "-", "\u00a0", " ",
		"\r\n", "\n",
	)
)

// CleanBasic removes control characters, repairs ligatures and collapses whitespace.
// Paragraph breaks (blank lines) are preserved.
func CleanBasic(text string) string {
	if text == "" {
		return ""
	}

	b := reSpaces.ReplaceAllString(ligatures.Replace(text), " ")
	b = strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, b)

	lines := strings.Split(b, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	b = reNewlines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")

	return strings.TrimSpace(b)
}

// LooksLikeHTML reports whether text carries block-level markup worth extracting.
func LooksLikeHTML(text string) bool {
	return reHTMLTag.MatchString(text)
}

// HTMLToText extracts headings, paragraphs, list items, code and tables as
// blank-line separated blocks so the chunker sees paragraph boundaries.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	var out []string
	doc.Find("h1,h2,h3,h4,p,li,pre,table").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1":
			out = append(out, "# "+text)
		case "h2":
			out = append(out, "## "+text)
		case "h3", "h4":
			out = append(out, "### "+text)
		case "li":
			out = append(out, "- "+text)
		case "pre":
			out = append(out, "```\n"+text+"\n```")
		case "table":
			out = append(out, parseTable(s))
		default:
			out = append(out, text)
		}
	})
	if len(out) == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.Join(out, "\n\n"), nil
}

func parseTable(sel *goquery.Selection) string {
	var rows []string
	sel.Find("tr").Each(func(i int, tr *goquery.Selection) {
		var cols []string
		tr.Find("th,td").Each(func(j int, td *goquery.Selection) {
			cols = append(cols, strings.TrimSpace(td.Text()))
		})
		if len(cols) > 0 {
			rows = append(rows, "| "+strings.Join(cols, " | ")+" |")
		}
	})
	return strings.Join(rows, "\n")
}

// RemoveDuplicateParagraphs drops repeated paragraphs, keeping the first occurrence.
func RemoveDuplicateParagraphs(text string) string {
	parts := strings.Split(text, "\n\n")
	seen := map[string]struct{}{}
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return strings.Join(out, "\n\n")
}

// Preprocess prepares a knowledge base body for chunking. HTML bodies are
// converted to text first; on a parse error the raw body is cleaned as-is.
func Preprocess(raw string) string {
	text := raw
	if LooksLikeHTML(raw) {
		if extracted, err := HTMLToText(raw); err == nil {
			text = extracted
		}
	}
	text = CleanBasic(text)
	return RemoveDuplicateParagraphs(text)
}
