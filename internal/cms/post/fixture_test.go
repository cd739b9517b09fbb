package post

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-blog-cms/internal/cms/cache"
	"github.com/Laisky/laisky-blog-cms/internal/cms/metrics"
	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/internal/cms/testutil"
	redisLib "github.com/Laisky/laisky-blog-cms/library/db/redis"
)

const cacheNamespace = "test/"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo   *Repository
	db     *gorm.DB
	clock  *testutil.Clock
	mr     *miniredis.Miniredis
	reg    *prometheus.Registry
	author model.User
	other  model.User
	admin  model.User
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	mr := miniredis.RunT(t)
	rdb := redisLib.NewDB(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c, err := cache.NewRedis(rdb, cacheNamespace, nil, nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	clock := testutil.NewClock(epoch)
	opts = append([]Option{WithMetrics(metrics.New(reg))}, opts...)
	repo, err := NewRepository(db, c, nil, clock.Now, opts...)
	require.NoError(t, err)

	return &fixture{
		repo:   repo,
		db:     db,
		clock:  clock,
		mr:     mr,
		reg:    reg,
		author: testutil.CreateUser(t, db, "author", "author"),
		other:  testutil.CreateUser(t, db, "other", "author"),
		admin:  testutil.CreateUser(t, db, "admin", model.RoleAdmin),
	}
}

func (f *fixture) actor() Actor {
	return Actor{UserID: f.author.ID, Role: f.author.Role}
}

// create inserts a post and advances the clock so creation order is strict.
func (f *fixture) create(t *testing.T, in CreateInput) *View {
	t.Helper()
	if in.Content == "" && in.Markdown == "" {
		in.Content = "<p>body of " + in.Title + "</p>"
	}
	v, err := f.repo.Create(context.Background(), in, f.author.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	return v
}

func (f *fixture) cached(key string) bool {
	return f.mr.Exists(cacheNamespace + key)
}

func (f *fixture) revisionCount(t *testing.T, postID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&model.Revision{}).Where("post_id = ?", postID).Count(&n).Error)
	return n
}

func ptr[T any](v T) *T {
	return &v
}
