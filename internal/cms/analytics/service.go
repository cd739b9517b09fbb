// Package analytics records post views and aggregates them for the dashboard.
package analytics

import (
	"context"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/library/log"
)

const (
	// RecentWindow is the span of the "last 30 days" dashboard figures.
	RecentWindow = 30 * 24 * time.Hour
	// DefaultTrendDays is used when ViewTrend is asked for a non-positive span.
	DefaultTrendDays = 30
	maxTrendDays     = 366
	defaultTopLimit  = 10
	maxTopLimit      = 100
	maxUserAgentLen  = 512
)

// Totals are counts over some span.
type Totals struct {
	Posts    int64 `json:"posts"`
	Views    int64 `json:"views"`
	Comments int64 `json:"comments"`
	Users    int64 `json:"users,omitempty"`
}

// Dashboard holds the all-time and recent totals.
type Dashboard struct {
	Total      Totals `json:"total"`
	Last30Days Totals `json:"last30Days"`
}

// PostViews is a post ranked by views.
type PostViews struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	ViewCount int64  `json:"viewCount"`
}

// DayViews is the number of views on one UTC day.
type DayViews struct {
	Date  string `json:"date"`
	Views int64  `json:"views"`
}

// Service reads and writes the view log.
type Service struct {
	db     *gorm.DB
	logger logSDK.Logger
	clock  model.Clock
}

// NewService constructs an analytics service.
func NewService(db *gorm.DB, logger logSDK.Logger, clock model.Clock) (*Service, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if logger == nil {
		logger = log.Logger.Named("analytics")
	}
	if clock == nil {
		clock = model.SystemClock
	}
	return &Service{db: db, logger: logger, clock: clock}, nil
}

// TrackView appends one view of a post.
func (s *Service) TrackView(ctx context.Context, postID, ipAddress, userAgent string) (*model.PostView, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Post{}).Where("id = ?", postID).Count(&n).Error; err != nil {
		return nil, errors.Wrap(err, "check post")
	}
	if n == 0 {
		return nil, model.Errorf(model.KindNotFound, "post %s not found", postID)
	}

	if len(userAgent) > maxUserAgentLen {
		userAgent = userAgent[:maxUserAgentLen]
	}
	view := &model.PostView{
		PostID:    postID,
		IPAddress: optional(ipAddress),
		UserAgent: optional(userAgent),
		ViewedAt:  s.clock(),
	}
	if err := s.db.WithContext(ctx).Create(view).Error; err != nil {
		return nil, errors.Wrap(err, "track view")
	}
	return view, nil
}

// ViewCount returns the number of views of a post.
func (s *Service) ViewCount(ctx context.Context, postID string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.PostView{}).Where("post_id = ?", postID).Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, "count views")
	}
	return n, nil
}

// MostViewed returns the published posts with the most views.
func (s *Service) MostViewed(ctx context.Context, limit int) ([]PostViews, error) {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}

	rows := []PostViews{}
	if err := s.db.WithContext(ctx).
		Model(&model.Post{}).
		Select("posts.id, posts.slug, posts.title, COUNT(post_views.id) AS view_count").
		Joins("LEFT JOIN post_views ON post_views.post_id = posts.id").
		Where("posts.published = ?", true).
		Group("posts.id").
		Order("view_count DESC").
		Order("posts.created_at DESC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "most viewed posts")
	}
	return rows, nil
}

// DashboardStats counts posts, views, comments and users overall and over
// the last 30 days. The counts run concurrently.
func (s *Service) DashboardStats(ctx context.Context) (*Dashboard, error) {
	since := s.clock().Add(-RecentWindow)
	out := new(Dashboard)

	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, m any, what string, where ...any) {
		g.Go(func() error {
			q := s.db.WithContext(gctx).Model(m)
			if len(where) > 0 {
				q = q.Where(where[0], where[1:]...)
			}
			if err := q.Count(dst).Error; err != nil {
				return errors.Wrapf(err, "count %s", what)
			}
			return nil
		})
	}

	count(&out.Total.Posts, &model.Post{}, "posts")
	count(&out.Total.Views, &model.PostView{}, "views")
	count(&out.Total.Comments, &model.Comment{}, "comments")
	count(&out.Total.Users, &model.User{}, "users")
	count(&out.Last30Days.Posts, &model.Post{}, "recent posts", "created_at >= ?", since)
	count(&out.Last30Days.Views, &model.PostView{}, "recent views", "viewed_at >= ?", since)
	count(&out.Last30Days.Comments, &model.Comment{}, "recent comments", "created_at >= ?", since)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ViewTrend returns per-day view counts for the last days days, oldest
// first, including days without views.
func (s *Service) ViewTrend(ctx context.Context, days int) ([]DayViews, error) {
	if days <= 0 {
		days = DefaultTrendDays
	}
	if days > maxTrendDays {
		days = maxTrendDays
	}

	today := s.clock().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -(days - 1))

	var stamps []time.Time
	if err := s.db.WithContext(ctx).
		Model(&model.PostView{}).
		Where("viewed_at >= ?", start).
		Pluck("viewed_at", &stamps).Error; err != nil {
		return nil, errors.Wrap(err, "load view timestamps")
	}

	buckets := make(map[string]int64, days)
	for _, ts := range stamps {
		buckets[ts.UTC().Format(time.DateOnly)]++
	}

	trend := make([]DayViews, 0, days)
	for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		trend = append(trend, DayViews{Date: key, Views: buckets[key]})
	}
	return trend, nil
}

// DeleteViewsBefore removes views older than cutoff and returns how many
// were removed.
func (s *Service) DeleteViewsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("viewed_at < ?", cutoff.UTC()).Delete(&model.PostView{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "delete old views")
	}
	return res.RowsAffected, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
