package cache

import (
	"strconv"
	"strings"
)

// Key namespaces. Lists and search results are invalidated by prefix.
const (
	PrefixPost     = "post:"
	PrefixPosts    = "posts:"
	PrefixCategory = "category:"
	PrefixSearch   = "search:"
)

// PostKey is the key of a single post read by slug.
func PostKey(slug string) string {
	return PrefixPost + slug
}

// PostsKey is the key of an unfiltered post list page.
func PostsKey(page, limit int) string {
	return PrefixPosts + "page:" + strconv.Itoa(page) + ":limit:" + strconv.Itoa(limit)
}

// CategoryKey is the key of a single category read by slug.
func CategoryKey(slug string) string {
	return PrefixCategory + slug
}

// SearchKey is the key of an unfiltered search result page.
func SearchKey(query string, page, limit int) string {
	return PrefixSearch + strings.ToLower(strings.TrimSpace(query)) +
		":page:" + strconv.Itoa(page) + ":limit:" + strconv.Itoa(limit)
}
