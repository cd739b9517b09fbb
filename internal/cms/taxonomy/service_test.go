package taxonomy

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-blog-cms/internal/cms/cache"
	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/internal/cms/testutil"
	redisLib "github.com/Laisky/laisky-blog-cms/library/db/redis"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *miniredis.Miniredis) {
	t.Helper()
	db := testutil.NewDB(t)
	mr := miniredis.RunT(t)
	rdb := redisLib.NewDB(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c, err := cache.NewRedis(rdb, "test/", nil, nil)
	require.NoError(t, err)

	clock := testutil.NewClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	svc, err := NewService(db, c, nil, clock.Now)
	require.NoError(t, err)
	return svc, db, mr
}

func attachPost(t *testing.T, db *gorm.DB, slug string, categoryIDs, tagIDs []string) model.Post {
	t.Helper()
	author := testutil.CreateUser(t, db, "author-"+slug, "author")
	p := model.Post{Slug: slug, Title: slug, Content: "<p>x</p>", ReadingTime: 1, AuthorID: author.ID}
	require.NoError(t, db.Omit("Author", "Categories", "Tags").Create(&p).Error)
	for _, id := range categoryIDs {
		require.NoError(t, db.Create(&model.PostCategory{PostID: p.ID, CategoryID: id}).Error)
	}
	for _, id := range tagIDs {
		require.NoError(t, db.Create(&model.PostTag{PostID: p.ID, TagID: id}).Error)
	}
	return p
}

func TestCategoryLifecycle(t *testing.T) {
	svc, db, mr := newTestService(t)
	ctx := context.Background()

	goCat, err := svc.CreateCategory(ctx, CategoryInput{Name: "Go Lang"})
	require.NoError(t, err)
	require.Equal(t, "go-lang", goCat.Slug)

	dup, err := svc.CreateCategory(ctx, CategoryInput{Name: "go lang"})
	require.NoError(t, err)
	require.Equal(t, "go-lang-2", dup.Slug)

	_, err = svc.CreateCategory(ctx, CategoryInput{Name: "  "})
	require.True(t, model.IsInvalidArgument(err))

	_, err = svc.CreateCategory(ctx, CategoryInput{Name: "Architecture"})
	require.NoError(t, err)
	attachPost(t, db, "p1", []string{goCat.ID}, nil)

	list, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "Architecture", list[0].Name)
	require.EqualValues(t, 1, list[1].PostCount)

	bySlug, err := svc.GetCategoryBySlug(ctx, "go-lang")
	require.NoError(t, err)
	require.Equal(t, goCat.ID, bySlug.ID)
	require.True(t, mr.Exists("test/category:go-lang"))

	renamed, err := svc.UpdateCategory(ctx, goCat.ID, CategoryUpdate{Name: ptr("Golang"), Description: ptr("all things go")})
	require.NoError(t, err)
	require.Equal(t, "golang", renamed.Slug)
	require.Equal(t, "all things go", *renamed.Description)
	require.False(t, mr.Exists("test/category:go-lang"))

	_, err = svc.GetCategoryBySlug(ctx, "go-lang")
	require.True(t, model.IsNotFound(err))
	_, err = svc.GetCategory(ctx, "missing")
	require.True(t, model.IsNotFound(err))
}

func TestDeleteCategoryBlockedWhileReferenced(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	used, err := svc.CreateCategory(ctx, CategoryInput{Name: "Used"})
	require.NoError(t, err)
	unused, err := svc.CreateCategory(ctx, CategoryInput{Name: "Unused"})
	require.NoError(t, err)
	attachPost(t, db, "p1", []string{used.ID}, nil)

	err = svc.DeleteCategory(ctx, used.ID)
	require.True(t, model.IsConflict(err))
	_, err = svc.GetCategory(ctx, used.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteCategory(ctx, unused.ID))
	require.True(t, model.IsNotFound(svc.DeleteCategory(ctx, unused.ID)))
}

func TestDeleteTagDetachesPosts(t *testing.T) {
	svc, db, mr := newTestService(t)
	ctx := context.Background()

	tag, err := svc.CreateTag(ctx, "Performance")
	require.NoError(t, err)
	require.Equal(t, "performance", tag.Slug)
	other, err := svc.CreateTag(ctx, "Testing")
	require.NoError(t, err)

	p1 := attachPost(t, db, "p1", nil, []string{tag.ID, other.ID})
	attachPost(t, db, "p2", nil, []string{tag.ID})
	require.NoError(t, mr.Set("test/post:p1", "{}"))

	got, err := svc.GetTag(ctx, tag.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, got.PostCount)

	require.NoError(t, svc.DeleteTag(ctx, tag.ID))
	require.False(t, mr.Exists("test/post:p1"))

	var links []model.PostTag
	require.NoError(t, db.Find(&links).Error)
	require.Equal(t, []model.PostTag{{PostID: p1.ID, TagID: other.ID}}, links)

	var posts int64
	require.NoError(t, db.Model(&model.Post{}).Count(&posts).Error)
	require.EqualValues(t, 2, posts)

	require.True(t, model.IsNotFound(svc.DeleteTag(ctx, tag.ID)))
}

func TestTagRenameAndList(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.CreateTag(ctx, "Beta")
	require.NoError(t, err)
	_, err = svc.CreateTag(ctx, "Alpha")
	require.NoError(t, err)

	renamed, err := svc.UpdateTag(ctx, b.ID, "Gamma Ray")
	require.NoError(t, err)
	require.Equal(t, "gamma-ray", renamed.Slug)

	bySlug, err := svc.GetTagBySlug(ctx, "gamma-ray")
	require.NoError(t, err)
	require.Equal(t, b.ID, bySlug.ID)

	tags, err := svc.ListTags(ctx)
	require.NoError(t, err)
	require.Equal(t, "Alpha", tags[0].Name)
	require.Equal(t, "Gamma Ray", tags[1].Name)

	_, err = svc.UpdateTag(ctx, "missing", "Name")
	require.True(t, model.IsNotFound(err))
	_, err = svc.UpdateTag(ctx, b.ID, "")
	require.True(t, model.IsInvalidArgument(err))
}

func ptr[T any](v T) *T {
	return &v
}
