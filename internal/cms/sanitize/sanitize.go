// Package sanitize allow-lists markup in user supplied content and derives
// reading metadata from it.
package sanitize

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var (
	headingIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
	// image sources are http(s), data images or relative references
	imageSrcPattern = regexp.MustCompile(`^(?i)(?:https?:|data:image/|[^:/?#]*(?:[/?#]|$))`)
)

// Sanitizer holds the compiled policies. It is safe for concurrent use.
type Sanitizer struct {
	rich    *bluemonday.Policy
	plain   *bluemonday.Policy
	comment *bluemonday.Policy
}

// New builds a Sanitizer with the cms policies.
func New() *Sanitizer {
	return &Sanitizer{
		rich:    richPolicy(),
		plain:   bluemonday.StrictPolicy(),
		comment: commentPolicy(),
	}
}

// Rich keeps headings, lists, tables, inline formatting, links and images.
func (s *Sanitizer) Rich(html string) string {
	return s.rich.Sanitize(html)
}

// Plain strips every tag.
func (s *Sanitizer) Plain(text string) string {
	return s.plain.Sanitize(text)
}

// Comment keeps minimal inline formatting and http(s) links.
func (s *Sanitizer) Comment(html string) string {
	return s.comment.Sanitize(html)
}

func richPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr",
		"strong", "em", "u", "s", "sup", "sub",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"table", "thead", "tbody", "tr", "th", "td",
		"div", "span",
	)
	p.AllowAttrs("href", "title", "target", "rel").OnElements("a")
	p.AllowAttrs("alt", "title", "width", "height").OnElements("img")
	p.AllowAttrs("src").Matching(imageSrcPattern).OnElements("img")
	p.AllowAttrs("class").OnElements("div", "span", "code", "pre")
	// anchors for the table of contents
	p.AllowAttrs("id").Matching(headingIDPattern).OnElements("h2", "h3")

	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowDataURIImages()
	return p
}

func commentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "strong", "em")
	p.AllowAttrs("href", "rel").OnElements("a")
	p.RequireParseableURLs(true)
	p.AllowURLSchemes("http", "https")
	return p
}
