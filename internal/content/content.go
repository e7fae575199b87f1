// Package content turns captured page payloads into bounded markdown text.
package content

import (
	"regexp"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"github.com/mfenderov/browseflow/pkg/models"
)

// Ellipsis is appended to truncated text.
const Ellipsis = "..."

var (
	headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
	listPattern    = regexp.MustCompile(`(?m)^[\-\*]\s+\S`)
	linkPattern    = regexp.MustCompile(`\[.+?\]\(.+?\)`)
	tagPattern     = regexp.MustCompile(`(?i)<(html|head|body|div|p|span|a|ul|ol|li|h[1-6]|table|section|article|main)[\s>]`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// ToMarkdown converts an HTML fragment or document to markdown.
func ToMarkdown(htmlContent string) (string, error) {
	if strings.TrimSpace(htmlContent) == "" {
		return "", nil
	}

	markdown, err := htmltomarkdown.ConvertString(htmlContent)
	if err != nil {
		return "", err
	}

	markdown = blankRuns.ReplaceAllString(markdown, "\n\n")
	return strings.TrimSpace(markdown), nil
}

// Title returns the text of the first <title> element, or "".
func Title(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var title string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil {
				title = n.FirstChild.Data
			}
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)

	return strings.TrimSpace(title)
}

// LooksLikeHTML reports whether s appears to contain HTML markup.
func LooksLikeHTML(s string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(trimmed, "<!doctype") {
		return true
	}
	return tagPattern.MatchString(trimmed)
}

// IsMarkdown reports whether s looks like markdown rather than HTML or plain text.
func IsMarkdown(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || LooksLikeHTML(trimmed) {
		return false
	}
	return headingPattern.MatchString(trimmed) ||
		listPattern.MatchString(trimmed) ||
		linkPattern.MatchString(trimmed)
}

// IsHTMLDocument reports whether s is a whole HTML document rather than
// markdown with inline tags.
func IsHTMLDocument(s string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(trimmed, "<!doctype") || strings.HasPrefix(trimmed, "<html")
}

// Fragment returns the markdown carried by a payload. Extracted markdown is
// preferred and returned as captured, unless the capture stored a whole HTML
// document there. Raw HTML is converted.
func Fragment(p *models.Payload) string {
	if p == nil {
		return ""
	}
	if md := strings.TrimSpace(p.Markdown); md != "" {
		if !IsHTMLDocument(md) {
			return md
		}
		if converted, err := ToMarkdown(md); err == nil {
			return converted
		}
		return md
	}
	if p.HTML == "" {
		return ""
	}
	converted, err := ToMarkdown(p.HTML)
	if err != nil {
		return ""
	}
	return converted
}

// Truncate shortens s to at most n runes, appending Ellipsis when it cut.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + Ellipsis
}

// IsMarkdownContentType reports whether a Content-Type header names markdown.
func IsMarkdownContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/markdown") ||
		strings.HasPrefix(ct, "text/x-markdown")
}

// IsMarkdownURL reports whether the URL path names a markdown file.
func IsMarkdownURL(url string) bool {
	lower := strings.ToLower(url)
	return strings.HasSuffix(lower, ".md") ||
		strings.HasSuffix(lower, ".markdown")
}

// Detect decides whether a fetched body is markdown, checking the
// Content-Type, then the URL, then the body itself.
func Detect(url, contentType, body string) bool {
	if IsMarkdownContentType(contentType) {
		return true
	}
	if IsMarkdownURL(url) {
		return true
	}
	return IsMarkdown(body)
}
