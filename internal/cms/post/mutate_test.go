package post

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Laisky/laisky-blog-cms/internal/cms/cache"
	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/internal/cms/testutil"
)

func TestCreateGeneratesUniqueSlugs(t *testing.T) {
	f := newFixture(t)

	var slugs []string
	for i := 0; i < 3; i++ {
		slugs = append(slugs, f.create(t, CreateInput{Title: "Hello World"}).Slug)
	}
	require.Equal(t, []string{"hello-world", "hello-world-2", "hello-world-3"}, slugs)
}

func TestCreateSanitizesAndDerivesFields(t *testing.T) {
	f := newFixture(t)

	v := f.create(t, CreateInput{
		Title:   "  Safe Post  ",
		Content: `<h2>Intro</h2><p onclick="x()">Hi</p><script>alert(1)</script>`,
		Excerpt: ptr("<b>short</b> summary"),
	})

	require.Equal(t, "Safe Post", v.Title)
	require.NotContains(t, v.Content, "script")
	require.NotContains(t, v.Content, "onclick")
	require.Contains(t, v.Content, `<h2 id="intro">Intro</h2>`)
	require.Equal(t, "short summary", *v.Excerpt)
	require.Equal(t, 1, v.ReadingTime)
	require.Equal(t, model.StateDraft, v.State)
	require.Nil(t, v.PublishedAt)
	require.Nil(t, v.ScheduledPublishAt)
	require.Equal(t, f.author.ID, v.Author.ID)
	require.Equal(t, "author", v.Author.Name)

	revs, err := f.repo.Revisions().ListByPost(context.Background(), v.ID)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	require.Equal(t, 0, revs[0].Version)
	require.Equal(t, model.RevisionCreate, revs[0].Reason)
	require.Equal(t, v.Content, revs[0].Content)
}

func TestCreateFromMarkdown(t *testing.T) {
	f := newFixture(t)

	v := f.create(t, CreateInput{Title: "Markdown Post", Markdown: "## Setup\n\nRun **it**."})
	require.Contains(t, v.Content, `<h2 id="setup">Setup</h2>`)
	require.Contains(t, v.Content, "<strong>it</strong>")
}

func TestCreatePublishStates(t *testing.T) {
	f := newFixture(t)

	published := f.create(t, CreateInput{Title: "Published now", Published: true})
	require.Equal(t, model.StatePublished, published.State)
	require.NotNil(t, published.PublishedAt)
	require.WithinDuration(t, epoch, *published.PublishedAt, time.Second)
	require.Nil(t, published.ScheduledPublishAt)

	at := f.clock.Now().Add(time.Hour)
	scheduled := f.create(t, CreateInput{Title: "Later", Published: true, ScheduledPublishAt: &at})
	require.Equal(t, model.StateScheduled, scheduled.State)
	require.False(t, scheduled.Published)
	require.Nil(t, scheduled.PublishedAt)
	require.WithinDuration(t, at, *scheduled.ScheduledPublishAt, time.Second)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := f.clock.Now().Add(-time.Minute)

	cases := map[string]CreateInput{
		"short title":      {Title: " ab ", Content: "<p>x</p>"},
		"empty content":    {Title: "Valid title", Content: "   "},
		"only script":      {Title: "Valid title", Content: "<script>alert(1)</script>"},
		"past schedule":    {Title: "Valid title", Content: "<p>x</p>", ScheduledPublishAt: &past},
		"unknown category": {Title: "Valid title", Content: "<p>x</p>", CategoryIDs: []string{"missing"}},
		"unknown tag":      {Title: "Valid title", Content: "<p>x</p>", TagIDs: []string{"missing"}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.repo.Create(ctx, in, f.author.ID)
			require.Error(t, err)
			require.True(t, model.IsInvalidArgument(err), "got %v", err)
		})
	}

	_, err := f.repo.Create(ctx, CreateInput{Title: "Valid title", Content: "<p>x</p>"}, "nobody")
	require.True(t, model.IsInvalidArgument(err))

	var n int64
	require.NoError(t, f.db.Model(&model.Post{}).Count(&n).Error)
	require.Zero(t, n)
	require.NoError(t, f.db.Model(&model.Revision{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestCreateAttachesTerms(t *testing.T) {
	f := newFixture(t)
	cat := testutil.CreateCategory(t, f.db, "Go", "go")
	tag := testutil.CreateTag(t, f.db, "Concurrency", "concurrency")

	v := f.create(t, CreateInput{
		Title:       "Channels",
		CategoryIDs: []string{cat.ID, cat.ID},
		TagIDs:      []string{tag.ID},
	})
	require.Len(t, v.Categories, 1)
	require.Equal(t, "go", v.Categories[0].Slug)
	require.Len(t, v.Tags, 1)
	require.Equal(t, "concurrency", v.Tags[0].Slug)
}

func TestUpdateWritesOnePreUpdateRevision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, CreateInput{Title: "First title", Content: "<p>first</p>"})

	updated, err := f.repo.Update(ctx, v.ID, UpdateInput{
		Title:   ptr("Second title"),
		Content: ptr("<p>second</p>"),
	}, f.actor())
	require.NoError(t, err)
	require.Equal(t, "Second title", updated.Title)
	require.Equal(t, "second-title", updated.Slug)
	require.Equal(t, 1, updated.Version)
	require.EqualValues(t, 2, f.revisionCount(t, v.ID))

	revs, err := f.repo.Revisions().ListByPost(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, model.RevisionUpdate, revs[0].Reason)
	require.Equal(t, "First title", revs[0].Title)
	require.Equal(t, "<p>first</p>", revs[0].Content)

	_, err = f.repo.Update(ctx, v.ID, UpdateInput{Excerpt: ptr("only excerpt")}, f.actor())
	require.NoError(t, err)
	require.EqualValues(t, 3, f.revisionCount(t, v.ID))
}

func TestUpdateAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, CreateInput{Title: "Owned post"})

	_, err := f.repo.Update(ctx, v.ID, UpdateInput{Title: ptr("Hijacked")},
		Actor{UserID: f.other.ID, Role: f.other.Role})
	require.True(t, model.IsForbidden(err))
	require.EqualValues(t, 1, f.revisionCount(t, v.ID))

	updated, err := f.repo.Update(ctx, v.ID, UpdateInput{Title: ptr("Moderated")},
		Actor{UserID: f.admin.ID, Role: model.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, "Moderated", updated.Title)

	_, err = f.repo.Update(ctx, "missing", UpdateInput{}, f.actor())
	require.True(t, model.IsNotFound(err))

	require.True(t, model.IsForbidden(f.repo.Delete(ctx, v.ID, Actor{UserID: f.other.ID})))
}

func TestUpdateExpectedVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, CreateInput{Title: "Versioned"})

	_, err := f.repo.Update(ctx, v.ID, UpdateInput{Title: ptr("Versioned v1"), ExpectedVersion: ptr(0)}, f.actor())
	require.NoError(t, err)

	_, err = f.repo.Update(ctx, v.ID, UpdateInput{Title: ptr("Stale write"), ExpectedVersion: ptr(0)}, f.actor())
	require.True(t, model.IsConflict(err))

	got, err := f.repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, "Versioned v1", got.Title)
	require.Equal(t, 1, got.Version)

	_, err = f.repo.Update(ctx, v.ID, UpdateInput{Title: ptr("Last writer")}, f.actor())
	require.NoError(t, err)
}

func TestUpdatePublishTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, CreateInput{Title: "Transitions", Published: true})
	firstPublishedAt := *v.PublishedAt

	f.clock.Advance(time.Hour)
	again, err := f.repo.Update(ctx, v.ID, UpdateInput{Published: ptr(true)}, f.actor())
	require.NoError(t, err)
	require.WithinDuration(t, firstPublishedAt, *again.PublishedAt, time.Second)

	at := f.clock.Now().Add(24 * time.Hour)
	demoted, err := f.repo.Update(ctx, v.ID, UpdateInput{ScheduledPublishAt: &at}, f.actor())
	require.NoError(t, err)
	require.Equal(t, model.StateScheduled, demoted.State)
	require.Nil(t, demoted.PublishedAt)

	stillScheduled, err := f.repo.Update(ctx, v.ID, UpdateInput{Published: ptr(false)}, f.actor())
	require.NoError(t, err)
	require.Equal(t, model.StateScheduled, stillScheduled.State)
	require.WithinDuration(t, at, *stillScheduled.ScheduledPublishAt, time.Second)

	_, err = f.repo.Update(ctx, v.ID, UpdateInput{ScheduledPublishAt: &at, ClearSchedule: true}, f.actor())
	require.True(t, model.IsInvalidArgument(err))

	draft, err := f.repo.Update(ctx, v.ID, UpdateInput{ClearSchedule: true}, f.actor())
	require.NoError(t, err)
	require.Equal(t, model.StateDraft, draft.State)
	require.Nil(t, draft.ScheduledPublishAt)

	past := f.clock.Now().Add(-time.Second)
	_, err = f.repo.Update(ctx, v.ID, UpdateInput{ScheduledPublishAt: &past}, f.actor())
	require.True(t, model.IsInvalidArgument(err))

	republished, err := f.repo.Update(ctx, v.ID, UpdateInput{Published: ptr(true)}, f.actor())
	require.NoError(t, err)
	require.WithinDuration(t, f.clock.Now(), *republished.PublishedAt, time.Second)
}

// At most one of PublishedAt and ScheduledPublishAt is ever set, whatever
// sequence of transitions is applied.
func TestPublishTimestampsMutuallyExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	v := f.create(t, CreateInput{Title: "State machine"})
	for step := 0; step < 60; step++ {
		before, err := f.repo.GetByID(ctx, v.ID)
		require.NoError(t, err)

		switch op := rng.Intn(5); op {
		case 0:
			_, err = f.repo.Update(ctx, v.ID, UpdateInput{Published: ptr(true)}, f.actor())
			require.NoError(t, err)
			if before.Published {
				after, err := f.repo.GetByID(ctx, v.ID)
				require.NoError(t, err)
				require.WithinDuration(t, *before.PublishedAt, *after.PublishedAt, time.Second, "step %d", step)
			}
		case 1:
			_, err = f.repo.Update(ctx, v.ID, UpdateInput{Published: ptr(false)}, f.actor())
			require.NoError(t, err)
		case 2:
			at := f.clock.Now().Add(time.Duration(1+rng.Intn(90)) * time.Minute)
			_, err = f.repo.Update(ctx, v.ID, UpdateInput{ScheduledPublishAt: &at}, f.actor())
			require.NoError(t, err)
		case 3:
			f.clock.Advance(time.Duration(rng.Intn(120)) * time.Minute)
			_, err = f.repo.PromoteScheduled(ctx, v.ID, f.clock.Now())
			require.NoError(t, err)
		case 4:
			_, err = f.repo.Update(ctx, v.ID, UpdateInput{ClearSchedule: true}, f.actor())
			require.NoError(t, err)
		}
		f.clock.Advance(time.Minute)

		after, err := f.repo.GetByID(ctx, v.ID)
		require.NoError(t, err)
		require.False(t, after.PublishedAt != nil && after.ScheduledPublishAt != nil, "step %d", step)
		require.Equal(t, after.Published, after.PublishedAt != nil, "step %d", step)
	}
}

func TestUpdateReplacesTerms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	goCat := testutil.CreateCategory(t, f.db, "Go", "go")
	rustCat := testutil.CreateCategory(t, f.db, "Rust", "rust")
	tag := testutil.CreateTag(t, f.db, "Tips", "tips")

	v := f.create(t, CreateInput{Title: "Terms", CategoryIDs: []string{goCat.ID}, TagIDs: []string{tag.ID}})

	updated, err := f.repo.Update(ctx, v.ID, UpdateInput{CategoryIDs: []string{rustCat.ID}}, f.actor())
	require.NoError(t, err)
	require.Len(t, updated.Categories, 1)
	require.Equal(t, "rust", updated.Categories[0].Slug)
	require.Len(t, updated.Tags, 1, "tags untouched when not supplied")

	cleared, err := f.repo.Update(ctx, v.ID, UpdateInput{TagIDs: []string{}}, f.actor())
	require.NoError(t, err)
	require.Empty(t, cleared.Tags)
	require.Len(t, cleared.Categories, 1)

	_, err = f.repo.Update(ctx, v.ID, UpdateInput{CategoryIDs: []string{"missing"}}, f.actor())
	require.True(t, model.IsInvalidArgument(err))
}

func TestTermChangesDropCachedCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	goCat := testutil.CreateCategory(t, f.db, "Go", "go")
	rustCat := testutil.CreateCategory(t, f.db, "Rust", "rust")
	testutil.CreateCategory(t, f.db, "Zig", "zig")

	warm := func(slugs ...string) {
		for _, s := range slugs {
			require.NoError(t, f.mr.Set(cacheNamespace+cache.CategoryKey(s), `{}`))
		}
	}

	warm("go", "rust", "zig")
	v := f.create(t, CreateInput{Title: "Membership", CategoryIDs: []string{goCat.ID}})
	require.False(t, f.cached(cache.CategoryKey("go")))
	require.True(t, f.cached(cache.CategoryKey("rust")))

	warm("go", "rust")
	_, err := f.repo.Update(ctx, v.ID, UpdateInput{CategoryIDs: []string{rustCat.ID}}, f.actor())
	require.NoError(t, err)
	require.False(t, f.cached(cache.CategoryKey("go")), "left category dropped")
	require.False(t, f.cached(cache.CategoryKey("rust")), "joined category dropped")
	require.True(t, f.cached(cache.CategoryKey("zig")))

	warm("go", "rust")
	_, err = f.repo.Update(ctx, v.ID, UpdateInput{Title: ptr("Renamed")}, f.actor())
	require.NoError(t, err)
	require.True(t, f.cached(cache.CategoryKey("rust")), "membership unchanged")

	require.NoError(t, f.repo.Delete(ctx, v.ID, f.actor()))
	require.False(t, f.cached(cache.CategoryKey("rust")))
	require.True(t, f.cached(cache.CategoryKey("go")))
	require.True(t, f.cached(cache.CategoryKey("zig")))
}

func TestTitleUpdateMovesCachedSlug(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, CreateInput{Title: "Old Name", Content: "<p>old body</p>", Published: true})

	_, err := f.repo.GetBySlug(ctx, "old-name")
	require.NoError(t, err)
	require.True(t, f.cached(cache.PostKey("old-name")))
	_, err = f.repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.True(t, f.cached(cache.PostsKey(1, 10)))

	_, err = f.repo.Update(ctx, v.ID, UpdateInput{
		Title:   ptr("New Name"),
		Content: ptr("<p>new body</p>"),
	}, f.actor())
	require.NoError(t, err)
	require.False(t, f.cached(cache.PostKey("old-name")))
	require.False(t, f.cached(cache.PostsKey(1, 10)))

	_, err = f.repo.GetBySlug(ctx, "old-name")
	require.True(t, model.IsNotFound(err))

	got, err := f.repo.GetBySlug(ctx, "new-name")
	require.NoError(t, err)
	require.Equal(t, "<p>new body</p>", got.Content)
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := testutil.CreateCategory(t, f.db, "Go", "go")
	tag := testutil.CreateTag(t, f.db, "Tips", "tips")
	v := f.create(t, CreateInput{Title: "Doomed", CategoryIDs: []string{cat.ID}, TagIDs: []string{tag.ID}})
	keep := f.create(t, CreateInput{Title: "Survivor"})

	require.NoError(t, f.db.Create(&model.PostView{PostID: v.ID, ViewedAt: epoch}).Error)
	require.NoError(t, f.db.Create(&model.Comment{PostID: v.ID, AuthorID: f.other.ID, Content: "nice"}).Error)

	_, err := f.repo.GetBySlug(ctx, "doomed")
	require.NoError(t, err)

	require.NoError(t, f.repo.Delete(ctx, v.ID, Actor{UserID: f.admin.ID, Role: model.RoleAdmin}))
	require.False(t, f.cached(cache.PostKey("doomed")))

	for _, m := range []any{&model.Post{}, &model.PostCategory{}, &model.PostTag{}, &model.PostView{}, &model.Comment{}} {
		var n int64
		require.NoError(t, f.db.Model(m).Count(&n).Error)
		if _, ok := m.(*model.Post); ok {
			require.EqualValues(t, 1, n)
			continue
		}
		require.Zero(t, n, "%T", m)
	}
	require.Zero(t, f.revisionCount(t, v.ID))
	require.EqualValues(t, 1, f.revisionCount(t, keep.ID))

	require.True(t, model.IsNotFound(f.repo.Delete(ctx, v.ID, f.actor())))
	require.NoError(t, f.db.First(&model.Category{}, "id = ?", cat.ID).Error, "terms survive the post")
}
