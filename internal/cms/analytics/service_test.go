package analytics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/internal/cms/testutil"
)

var now = time.Date(2026, 6, 15, 15, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB, *testutil.Clock, model.User) {
	t.Helper()
	db := testutil.NewDB(t)
	clock := testutil.NewClock(now)
	svc, err := NewService(db, nil, clock.Now)
	require.NoError(t, err)
	return svc, db, clock, testutil.CreateUser(t, db, "author", "author")
}

func seedPost(t *testing.T, db *gorm.DB, authorID, slug string, published bool, created time.Time) model.Post {
	t.Helper()
	p := model.Post{Slug: slug, Title: slug, Content: "<p>x</p>", ReadingTime: 1, AuthorID: authorID,
		Published: published, CreatedAt: created, UpdatedAt: created}
	if published {
		p.PublishedAt = &created
	}
	require.NoError(t, db.Omit("Author", "Categories", "Tags").Create(&p).Error)
	return p
}

func TestTrackViewAndCount(t *testing.T) {
	svc, db, _, user := newTestService(t)
	ctx := context.Background()
	p := seedPost(t, db, user.ID, "p", true, now)

	v, err := svc.TrackView(ctx, p.ID, "10.0.0.1", strings.Repeat("a", 600))
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", *v.IPAddress)
	require.Len(t, *v.UserAgent, maxUserAgentLen)

	v, err = svc.TrackView(ctx, p.ID, "", "")
	require.NoError(t, err)
	require.Nil(t, v.IPAddress)

	n, err := svc.ViewCount(ctx, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	_, err = svc.TrackView(ctx, "missing", "", "")
	require.True(t, model.IsNotFound(err))
}

func TestMostViewedOnlyPublished(t *testing.T) {
	svc, db, _, user := newTestService(t)
	ctx := context.Background()
	popular := seedPost(t, db, user.ID, "popular", true, now.Add(-48*time.Hour))
	quiet := seedPost(t, db, user.ID, "quiet", true, now.Add(-24*time.Hour))
	draft := seedPost(t, db, user.ID, "draft", false, now)

	for i := 0; i < 3; i++ {
		_, err := svc.TrackView(ctx, popular.ID, "", "")
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := svc.TrackView(ctx, draft.ID, "", "")
		require.NoError(t, err)
	}

	top, err := svc.MostViewed(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []PostViews{
		{ID: popular.ID, Slug: "popular", Title: "popular", ViewCount: 3},
		{ID: quiet.ID, Slug: "quiet", Title: "quiet", ViewCount: 0},
	}, top)
}

func TestDashboardStats(t *testing.T) {
	svc, db, clock, user := newTestService(t)
	ctx := context.Background()
	old := seedPost(t, db, user.ID, "old", true, now.Add(-60*24*time.Hour))
	recent := seedPost(t, db, user.ID, "recent", true, now.Add(-24*time.Hour))
	require.NoError(t, db.Create(&model.Comment{PostID: old.ID, AuthorID: user.ID, Content: "c", CreatedAt: now.Add(-40 * 24 * time.Hour)}).Error)
	require.NoError(t, db.Create(&model.Comment{PostID: recent.ID, AuthorID: user.ID, Content: "c", CreatedAt: now}).Error)

	clock.Set(now.Add(-45 * 24 * time.Hour))
	_, err := svc.TrackView(ctx, old.ID, "", "")
	require.NoError(t, err)
	clock.Set(now)
	_, err = svc.TrackView(ctx, recent.ID, "", "")
	require.NoError(t, err)

	stats, err := svc.DashboardStats(ctx)
	require.NoError(t, err)
	require.Equal(t, Totals{Posts: 2, Views: 2, Comments: 2, Users: 1}, stats.Total)
	require.Equal(t, Totals{Posts: 1, Views: 1, Comments: 1}, stats.Last30Days)
}

func TestViewTrendFillsEmptyDays(t *testing.T) {
	svc, db, clock, user := newTestService(t)
	ctx := context.Background()
	p := seedPost(t, db, user.ID, "p", true, now)

	for _, at := range []time.Time{
		now,
		now.Add(-time.Hour),
		now.Add(-48 * time.Hour),
		now.Add(-10 * 24 * time.Hour),
	} {
		clock.Set(at)
		_, err := svc.TrackView(ctx, p.ID, "", "")
		require.NoError(t, err)
	}
	clock.Set(now)

	trend, err := svc.ViewTrend(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []DayViews{
		{Date: "2026-06-13", Views: 1},
		{Date: "2026-06-14", Views: 0},
		{Date: "2026-06-15", Views: 2},
	}, trend)

	trend, err = svc.ViewTrend(ctx, 0)
	require.NoError(t, err)
	require.Len(t, trend, DefaultTrendDays)
}

func TestDeleteViewsBefore(t *testing.T) {
	svc, db, clock, user := newTestService(t)
	ctx := context.Background()
	p := seedPost(t, db, user.ID, "p", true, now)

	clock.Set(now.Add(-100 * 24 * time.Hour))
	_, err := svc.TrackView(ctx, p.ID, "", "")
	require.NoError(t, err)
	clock.Set(now)
	_, err = svc.TrackView(ctx, p.ID, "", "")
	require.NoError(t, err)

	removed, err := svc.DeleteViewsBefore(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	n, err := svc.ViewCount(ctx, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
