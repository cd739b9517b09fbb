package model

import (
	"context"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

// SearchDocumentSQL is the weighted text-search document of a post:
// title weighs most, then excerpt, then the body.
const SearchDocumentSQL = `setweight(to_tsvector('english', coalesce(title, '')), 'A') || ` +
	`setweight(to_tsvector('english', coalesce(excerpt, '')), 'B') || ` +
	`setweight(to_tsvector('english', coalesce(content, '')), 'C')`

// Migrate creates or updates every cms table. On Postgres it also
// provisions the GIN index backing ranked search.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("gorm db is required")
	}
	db = db.WithContext(ctx)

	if err := db.SetupJoinTable(&Post{}, "Categories", &PostCategory{}); err != nil {
		return errors.Wrap(err, "setup post categories join table")
	}
	if err := db.SetupJoinTable(&Post{}, "Tags", &PostTag{}); err != nil {
		return errors.Wrap(err, "setup post tags join table")
	}

	if err := db.AutoMigrate(
		&User{},
		&Category{},
		&Tag{},
		&Post{},
		&PostCategory{},
		&PostTag{},
		&Revision{},
		&PostView{},
		&Comment{},
	); err != nil {
		return errors.Wrap(err, "auto migrate cms tables")
	}

	if IsPostgres(db) {
		if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_posts_search_document ON posts USING GIN ((` +
			SearchDocumentSQL + `))`).Error; err != nil {
			return errors.Wrap(err, "create posts search index")
		}
	}

	return nil
}

// EscapeLike escapes the LIKE wildcards in s for use with ESCAPE '\'.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// IsPostgres reports whether db talks to Postgres.
func IsPostgres(db *gorm.DB) bool {
	return db != nil && db.Dialector != nil && db.Dialector.Name() == "postgres"
}
