// Package model contains the persisted entities of the cms.
package model

import (
	"time"

	gutils "github.com/Laisky/go-utils/v6"
	"gorm.io/gorm"
)

// RoleAdmin may mutate posts it does not own.
const RoleAdmin = "admin"

// User is the author of posts. Only the fields the cms core reads are modelled.
type User struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	Name      string `gorm:"type:varchar(255);not null"`
	Email     string `gorm:"type:varchar(255);uniqueIndex"`
	Role      string `gorm:"type:varchar(32);not null;default:'author'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate fills the ID with a UUIDv7 value when missing.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = gutils.UUID7Bytes().String()
	}
	return nil
}

// Post is the central entity. A post is exactly one of
// Draft, Scheduled or Published, see State.
type Post struct {
	ID            string  `gorm:"type:varchar(36);primaryKey"`
	Slug          string  `gorm:"type:varchar(255);not null;uniqueIndex"`
	Title         string  `gorm:"type:varchar(255);not null"`
	Content       string  `gorm:"type:text;not null"`
	Excerpt       *string `gorm:"type:text"`
	FeaturedImage *string `gorm:"type:text"`
	ReadingTime   int     `gorm:"not null;default:1"`

	Published          bool       `gorm:"not null;default:false;index"`
	PublishedAt        *time.Time `gorm:"index"`
	ScheduledPublishAt *time.Time `gorm:"index"`

	MetaTitle       *string `gorm:"type:varchar(255)"`
	MetaDescription *string `gorm:"type:text"`
	OgTitle         *string `gorm:"type:varchar(255)"`
	OgDescription   *string `gorm:"type:text"`
	OgImage         *string `gorm:"type:text"`

	// Version is bumped on every update and backs the optional
	// optimistic-concurrency check.
	Version int `gorm:"not null;default:0"`

	AuthorID   string     `gorm:"type:varchar(36);not null;index"`
	Author     User       `gorm:"foreignKey:AuthorID"`
	Categories []Category `gorm:"many2many:post_categories;"`
	Tags       []Tag      `gorm:"many2many:post_tags;"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// BeforeCreate fills the ID with a UUIDv7 value when missing.
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = gutils.UUID7Bytes().String()
	}
	return nil
}

// PostState is the publish state of a post.
type PostState string

const (
	StateDraft     PostState = "draft"
	StateScheduled PostState = "scheduled"
	StatePublished PostState = "published"
)

// State derives the publish state from the stored columns.
func (p *Post) State() PostState {
	switch {
	case p.Published:
		return StatePublished
	case p.ScheduledPublishAt != nil:
		return StateScheduled
	default:
		return StateDraft
	}
}

// ExcerptOrEmpty returns the excerpt or an empty string.
func (p *Post) ExcerptOrEmpty() string {
	if p.Excerpt == nil {
		return ""
	}
	return *p.Excerpt
}

// Category groups posts. A category cannot be deleted while posts reference it.
type Category struct {
	ID          string  `gorm:"type:varchar(36);primaryKey"`
	Name        string  `gorm:"type:varchar(255);not null"`
	Slug        string  `gorm:"type:varchar(255);not null;uniqueIndex"`
	Description *string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BeforeCreate fills the ID with a UUIDv7 value when missing.
func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = gutils.UUID7Bytes().String()
	}
	return nil
}

// Tag labels posts. Deleting a tag detaches it from its posts.
type Tag struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	Name      string `gorm:"type:varchar(255);not null"`
	Slug      string `gorm:"type:varchar(255);not null;uniqueIndex"`
	CreatedAt time.Time
}

// BeforeCreate fills the ID with a UUIDv7 value when missing.
func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = gutils.UUID7Bytes().String()
	}
	return nil
}

// PostCategory is the join row between posts and categories.
type PostCategory struct {
	PostID     string `gorm:"type:varchar(36);primaryKey"`
	CategoryID string `gorm:"type:varchar(36);primaryKey;index"`
}

// TableName binds the join model to the many2many table.
func (PostCategory) TableName() string {
	return "post_categories"
}

// PostTag is the join row between posts and tags.
type PostTag struct {
	PostID string `gorm:"type:varchar(36);primaryKey"`
	TagID  string `gorm:"type:varchar(36);primaryKey;index"`
}

// TableName binds the join model to the many2many table.
func (PostTag) TableName() string {
	return "post_tags"
}

// RevisionReason records which mutation produced a revision.
type RevisionReason string

const (
	RevisionCreate  RevisionReason = "create"
	RevisionUpdate  RevisionReason = "update"
	RevisionRestore RevisionReason = "restore"
)

// Revision is an immutable snapshot of a post's editable text,
// always taken before the mutation it records. Version 0 holds the
// state the post was created with.
type Revision struct {
	ID        string         `gorm:"type:varchar(36);primaryKey"`
	PostID    string         `gorm:"type:varchar(36);not null;index:idx_revisions_post_version,priority:1"`
	Version   int            `gorm:"not null;index:idx_revisions_post_version,priority:2"`
	EditorID  string         `gorm:"type:varchar(36);not null"`
	Editor    User           `gorm:"foreignKey:EditorID"`
	Reason    RevisionReason `gorm:"type:varchar(16);not null"`
	Title     string         `gorm:"type:varchar(255);not null"`
	Content   string         `gorm:"type:text;not null"`
	Excerpt   *string        `gorm:"type:text"`
	CreatedAt time.Time
}

// TableName keeps the table name stable.
func (Revision) TableName() string {
	return "post_revisions"
}

// BeforeCreate fills the ID with a UUIDv7 value when missing.
func (r *Revision) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = gutils.UUID7Bytes().String()
	}
	return nil
}

// PostView is a single entry of the view log.
type PostView struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	PostID    string    `gorm:"type:varchar(36);not null;index"`
	IPAddress *string   `gorm:"type:varchar(64)"`
	UserAgent *string   `gorm:"type:text"`
	ViewedAt  time.Time `gorm:"not null;index"`
}

// BeforeCreate fills the ID with a UUIDv7 value when missing.
func (v *PostView) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = gutils.UUID7Bytes().String()
	}
	return nil
}

// Comment is owned by the comments collaborator; the core only counts
// and cascades them.
type Comment struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	PostID    string `gorm:"type:varchar(36);not null;index"`
	AuthorID  string `gorm:"type:varchar(36);not null"`
	Content   string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

// BeforeCreate fills the ID with a UUIDv7 value when missing.
func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = gutils.UUID7Bytes().String()
	}
	return nil
}
