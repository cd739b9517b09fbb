package post

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	errors "github.com/Laisky/errors/v2"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-blog-cms/internal/cms/cache"
	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/internal/cms/testutil"
)

func TestListPaginationAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 1; i <= 12; i++ {
		f.create(t, CreateInput{Title: fmt.Sprintf("Post number %02d", i)})
	}

	page, err := f.repo.List(ctx, ListFilter{Page: 2, Limit: 5})
	require.NoError(t, err)
	require.Equal(t, Pagination{Page: 2, Limit: 5, Total: 12, TotalPages: 3}, page.Pagination)
	require.Len(t, page.Items, 5)
	require.Equal(t, "Post number 07", page.Items[0].Title)
	require.Equal(t, "Post number 03", page.Items[4].Title)

	last, err := f.repo.List(ctx, ListFilter{Page: 3, Limit: 5})
	require.NoError(t, err)
	require.Len(t, last.Items, 2)

	clamped, err := f.repo.List(ctx, ListFilter{Page: -1, Limit: 500})
	require.NoError(t, err)
	require.Equal(t, 1, clamped.Pagination.Page)
	require.Equal(t, 50, clamped.Pagination.Limit)
	require.Len(t, clamped.Items, 12)

	defaults, err := f.repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 10, defaults.Pagination.Limit)
	require.Equal(t, "Post number 12", defaults.Items[0].Title)
}

func TestListFiltersBypassCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := testutil.CreateCategory(t, f.db, "Go", "go")

	f.create(t, CreateInput{Title: "Draft one"})
	f.create(t, CreateInput{Title: "Live one", Published: true, CategoryIDs: []string{cat.ID}})
	_, err := f.repo.Create(ctx, CreateInput{Title: "By other", Content: "<p>x</p>", Published: true}, f.other.ID)
	require.NoError(t, err)

	published, err := f.repo.List(ctx, ListFilter{Published: ptr(true)})
	require.NoError(t, err)
	require.EqualValues(t, 2, published.Pagination.Total)

	mine, err := f.repo.List(ctx, ListFilter{AuthorID: f.author.ID})
	require.NoError(t, err)
	require.EqualValues(t, 2, mine.Pagination.Total)

	inCat, err := f.repo.List(ctx, ListFilter{CategoryID: cat.ID})
	require.NoError(t, err)
	require.Len(t, inCat.Items, 1)
	require.Equal(t, "Live one", inCat.Items[0].Title)

	require.Empty(t, f.mr.Keys(), "filtered lists are not cached")

	_, err = f.repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.True(t, f.cached(cache.PostsKey(1, 10)))

	f.create(t, CreateInput{Title: "Fresh post"})
	require.False(t, f.cached(cache.PostsKey(1, 10)), "create drops list pages")
}

func TestDraftsOfHidesOtherAuthorsDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.create(t, CreateInput{Title: "Live needle", Published: true})
	f.create(t, CreateInput{Title: "Own needle draft"})
	_, err := f.repo.Create(ctx, CreateInput{Title: "Foreign needle draft", Content: "<p>x</p>"}, f.other.ID)
	require.NoError(t, err)

	res, err := f.repo.List(ctx, ListFilter{DraftsOf: f.author.ID})
	require.NoError(t, err)
	require.EqualValues(t, 2, res.Pagination.Total)
	for _, it := range res.Items {
		require.NotEqual(t, "Foreign needle draft", it.Title)
	}

	found, err := f.repo.Search(ctx, SearchFilter{Query: "needle", DraftsOf: f.other.ID})
	require.NoError(t, err)
	require.EqualValues(t, 2, found.Pagination.Total)
	for _, it := range found.Items {
		require.NotEqual(t, "Own needle draft", it.Title)
	}

	require.Empty(t, f.mr.Keys(), "scoped lists are not cached")
}

func TestListServesFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, CreateInput{Title: "Cached title"})

	first, err := f.repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, first.Items, 1)

	// bypass the repository so the cached page goes stale
	require.NoError(t, f.db.Model(&model.Post{}).Where("id = ?", v.ID).Update("title", "Changed behind").Error)

	second, err := f.repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, "Cached title", second.Items[0].Title)
}

func TestGetBySlugAndCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, CreateInput{
		Title:   "Structured",
		Content: "<h2>Intro</h2><p>a</p><h3>Detail</h3><p>b</p><h2>End</h2>",
	})
	for i := 0; i < 3; i++ {
		require.NoError(t, f.db.Create(&model.PostView{PostID: v.ID, ViewedAt: epoch}).Error)
	}
	require.NoError(t, f.db.Create(&model.Comment{PostID: v.ID, AuthorID: f.other.ID, Content: "hi"}).Error)

	got, err := f.repo.GetBySlug(ctx, "structured")
	require.NoError(t, err)
	require.EqualValues(t, 3, got.ViewCount)
	require.EqualValues(t, 1, got.CommentCount)
	require.Len(t, got.TOC, 3)
	require.Equal(t, "intro", got.TOC[0].ID)
	require.Equal(t, 3, got.TOC[1].Level)
	require.True(t, f.cached(cache.PostKey("structured")))

	cached, err := f.repo.GetBySlug(ctx, "structured")
	require.NoError(t, err)
	require.Equal(t, got.ID, cached.ID)
	require.Len(t, cached.TOC, 3)

	_, err = f.repo.GetBySlug(ctx, "missing")
	require.True(t, model.IsNotFound(err))
	_, err = f.repo.GetByID(ctx, "missing")
	require.True(t, model.IsNotFound(err))
}

func TestSearchValidation(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"", "   "} {
		_, err := f.repo.Search(context.Background(), SearchFilter{Query: q})
		require.True(t, model.IsInvalidArgument(err))
	}
}

func TestSearchSubstringFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, CreateInput{Title: "Learning Golang", Published: true})
	f.create(t, CreateInput{Title: "Cooking pasta", Content: "<p>Boil water, not GOLANG</p>"})
	f.create(t, CreateInput{Title: "Gardening", Excerpt: ptr("golang for plants")})
	f.create(t, CreateInput{Title: "Discounts", Content: "<p>100% off</p>"})

	res, err := f.repo.Search(ctx, SearchFilter{Query: "GoLang"})
	require.NoError(t, err)
	require.EqualValues(t, 3, res.Pagination.Total)
	require.Equal(t, "Gardening", res.Items[0].Title, "newest first")
	require.True(t, f.cached(cache.SearchKey("golang", 1, 10)))

	published, err := f.repo.Search(ctx, SearchFilter{Query: "golang", Published: ptr(true)})
	require.NoError(t, err)
	require.Len(t, published.Items, 1)
	require.Equal(t, "Learning Golang", published.Items[0].Title)

	percent, err := f.repo.Search(ctx, SearchFilter{Query: "%"})
	require.NoError(t, err)
	require.Len(t, percent.Items, 1)
	require.Equal(t, "Discounts", percent.Items[0].Title)

	none, err := f.repo.Search(ctx, SearchFilter{Query: "kubernetes"})
	require.NoError(t, err)
	require.Empty(t, none.Items)
	require.Equal(t, Pagination{Page: 1, Limit: 10, Total: 0, TotalPages: 0}, none.Pagination)

	require.NoError(t, promtest.GatherAndCompare(f.reg, strings.NewReader(`
# HELP blog_cms_search_degraded_total Searches served by the substring fallback instead of ranked search.
# TYPE blog_cms_search_degraded_total counter
blog_cms_search_degraded_total 4
`), "blog_cms_search_degraded_total"))
}

type brokenStrategy struct{}

func (brokenStrategy) Name() string                          { return "broken" }
func (brokenStrategy) Probe(context.Context, *gorm.DB) error { return nil }
func (brokenStrategy) Search(context.Context, *gorm.DB, string, ListFilter) ([]string, int64, error) {
	return nil, 0, errors.New("syntax error in tsquery")
}

func TestSearchDegradesWhenRankedQueryFails(t *testing.T) {
	f := newFixture(t, WithSearchStrategies(brokenStrategy{}, nil))
	f.create(t, CreateInput{Title: "Searchable post"})

	res, err := f.repo.Search(context.Background(), SearchFilter{Query: "searchable"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.NoError(t, promtest.GatherAndCompare(f.reg, strings.NewReader(`
# HELP blog_cms_search_degraded_total Searches served by the substring fallback instead of ranked search.
# TYPE blog_cms_search_degraded_total counter
blog_cms_search_degraded_total 1
`), "blog_cms_search_degraded_total"))
}

func TestPublishDueAndPromote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	soon := f.clock.Now().Add(30 * time.Minute)
	later := f.clock.Now().Add(48 * time.Hour)
	due := f.create(t, CreateInput{Title: "Due soon", ScheduledPublishAt: &soon})
	f.create(t, CreateInput{Title: "Due later", ScheduledPublishAt: &later})
	f.create(t, CreateInput{Title: "Plain draft"})

	_, err := f.repo.List(ctx, ListFilter{})
	require.NoError(t, err)

	now := f.clock.Now().Add(time.Hour)
	list, err := f.repo.PublishDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, due.ID, list[0].ID)

	ok, err := f.repo.PromoteScheduled(ctx, due.ID, now)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, f.cached(cache.PostsKey(1, 10)))

	ok, err = f.repo.PromoteScheduled(ctx, due.ID, now)
	require.NoError(t, err)
	require.False(t, ok, "second claim loses")

	got, err := f.repo.GetByID(ctx, due.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatePublished, got.State)
	require.WithinDuration(t, now, *got.PublishedAt, time.Second)
	require.Nil(t, got.ScheduledPublishAt)

	list, err = f.repo.PublishDue(ctx, now)
	require.NoError(t, err)
	require.Empty(t, list)
}
