// Package slug derives URL-safe identifiers from titles and names.
package slug

import (
	"context"
	"strconv"
	"strings"

	errors "github.com/Laisky/errors/v2"
	gslug "github.com/gosimple/slug"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
)

const (
	// maxLength bounds a base slug so that suffixes still fit the column.
	maxLength = 200
	// fallback is used when a title has no sluggable characters.
	fallback = "untitled"
)

// Slugify converts text into a lowercase, hyphen-separated identifier.
func Slugify(text string) string {
	s := gslug.Make(strings.TrimSpace(text))
	if len(s) > maxLength {
		s = strings.TrimRight(s[:maxLength], "-")
	}
	if s == "" {
		return fallback
	}
	return s
}

// Disambiguate returns base when it is not in existing, otherwise the first
// of base-2, base-3, ... that is absent. Comparison is case-insensitive.
func Disambiguate(base string, existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		taken[strings.ToLower(s)] = struct{}{}
	}

	candidate := strings.ToLower(base)
	if _, ok := taken[candidate]; !ok {
		return candidate
	}
	for n := 2; ; n++ {
		candidate = strings.ToLower(base) + "-" + strconv.Itoa(n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// Unique is Slugify followed by Disambiguate.
func Unique(text string, existing []string) string {
	return Disambiguate(Slugify(text), existing)
}

// Allocate derives a slug from text that no other row of table m uses.
// excludeID is the row being renamed, if any. Run it inside the transaction
// that writes the row.
func Allocate(ctx context.Context, db *gorm.DB, m any, text, excludeID string) (string, error) {
	base := Slugify(text)

	q := db.WithContext(ctx).
		Model(m).
		Where(`LOWER(slug) LIKE ? ESCAPE '\'`, model.EscapeLike(base)+"%")
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}

	var existing []string
	if err := q.Pluck("slug", &existing).Error; err != nil {
		return "", errors.Wrap(err, "query existing slugs")
	}
	return Disambiguate(base, existing), nil
}
