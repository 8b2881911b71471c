package preview

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

// InjectCSS inserts a <style> block before </head>, after <body>, or at
// the start of the HTML, whichever is found first.
func InjectCSS(htmlContent, css string) string {
	if css == "" {
		return htmlContent
	}

	style := "<style>" + sanitizeCSS(css) + "</style>"
	lower := strings.ToLower(htmlContent)

	if idx := strings.Index(lower, "</head>"); idx != -1 {
		return htmlContent[:idx] + style + htmlContent[idx:]
	}
	if idx := strings.Index(lower, "<body"); idx != -1 {
		if end := strings.Index(htmlContent[idx:], ">"); end != -1 {
			pos := idx + end + 1
			return htmlContent[:pos] + style + htmlContent[pos:]
		}
	}
	return style + htmlContent
}

// sanitizeCSS keeps css from closing its <style> element.
func sanitizeCSS(css string) string {
	return strings.ReplaceAll(css, "</", `<\/`)
}

// heading is a heading found in rendered HTML.
type heading struct {
	Level int
	ID    string
	Text  string
}

// headingPattern captures level, id and inner HTML of h1-h6 with an id.
var headingPattern = regexp.MustCompile(`(?is)<h([1-6])[^>]*\bid="([^"]*)"[^>]*>(.*?)</h[1-6]>`)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(s, "")))
}

// extractHeadings returns headings up to maxDepth, skipping those without id.
func extractHeadings(htmlContent string, maxDepth int) []heading {
	var out []heading
	for _, m := range headingPattern.FindAllStringSubmatch(htmlContent, -1) {
		level, _ := strconv.Atoi(m[1])
		if level > maxDepth {
			continue
		}
		out = append(out, heading{Level: level, ID: m[2], Text: stripTags(m[3])})
	}
	return out
}

// numbering produces "1.", "1.1.", ... for headings, treating the first
// level seen as depth 1 and collapsing skipped levels.
type numbering struct {
	counters [6]int
	minLevel int
	last     int
}

func (n *numbering) next(level int) (string, int) {
	if n.minLevel == 0 {
		n.minLevel = level
	}
	depth := max(level-n.minLevel+1, 1)
	if n.last > 0 && depth > n.last+1 {
		depth = n.last + 1
	}
	for i := depth; i < len(n.counters); i++ {
		n.counters[i] = 0
	}
	n.counters[depth-1]++
	n.last = depth

	parts := make([]string, depth)
	for i := range depth {
		parts[i] = strconv.Itoa(n.counters[i])
	}
	return strings.Join(parts, ".") + ".", depth
}

// tableOfContents renders a numbered outline of the page headings.
// Returns "" when the page has none.
func tableOfContents(htmlContent string, maxDepth int) string {
	headings := extractHeadings(htmlContent, maxDepth)
	if len(headings) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(`<nav class="toc"><div class="toc-list">`)
	var num numbering
	for _, h := range headings {
		label, depth := num.next(h.Level)
		sb.WriteString(`<div class="toc-item"`)
		if depth > 1 {
			fmt.Fprintf(&sb, ` style="padding-left:%.1fem"`, float64(depth-1)*1.5)
		}
		sb.WriteString(`><a href="#`)
		sb.WriteString(html.EscapeString(h.ID))
		sb.WriteString(`">`)
		sb.WriteString(label)
		sb.WriteString(" ")
		sb.WriteString(html.EscapeString(h.Text))
		sb.WriteString(`</a></div>`)
	}
	sb.WriteString(`</div></nav>`)
	return sb.String()
}
