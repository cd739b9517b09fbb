package sanitize

import (
	"math"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// WordsPerMinute is the reading speed used for ReadingTime.
const WordsPerMinute = 200

var (
	nonSlugChars  = regexp.MustCompile(`[^\w\s-]`)
	spaceRun      = regexp.MustCompile(`\s+`)
	dashRun       = regexp.MustCompile(`-+`)
	headingsQuery = "h2, h3"
)

// TOCItem is one entry of a post's table of contents.
type TOCItem struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Level int    `json:"level"`
}

// Text returns the text content of an html fragment.
func Text(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return doc.Text()
}

// ReadingTime estimates minutes to read html, rounded up, at least 1.
func ReadingTime(html string) int {
	words := len(strings.Fields(Text(html)))
	minutes := int(math.Ceil(float64(words) / WordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// HeadingID converts heading text into an anchor id.
func HeadingID(text string) string {
	id := strings.ToLower(strings.TrimSpace(text))
	id = nonSlugChars.ReplaceAllString(id, "")
	id = spaceRun.ReplaceAllString(id, "-")
	id = dashRun.ReplaceAllString(id, "-")
	return strings.Trim(id, "-")
}

// AddHeadingIDs sets an id on every h2/h3 lacking one.
func AddHeadingIDs(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	changed := false
	doc.Find(headingsQuery).Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("id"); ok {
			return
		}
		if id := HeadingID(s.Text()); id != "" {
			s.SetAttr("id", id)
			changed = true
		}
	})
	if !changed {
		return html
	}

	out, err := doc.Find("body").Html()
	if err != nil {
		return html
	}
	return out
}

// TOC extracts h2/h3 headings in document order.
func TOC(html string) []TOCItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var items []TOCItem
	doc.Find(headingsQuery).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		id, ok := s.Attr("id")
		if !ok {
			id = HeadingID(text)
		}
		level := 2
		if goquery.NodeName(s) == "h3" {
			level = 3
		}
		items = append(items, TOCItem{ID: id, Text: text, Level: level})
	})
	return items
}
