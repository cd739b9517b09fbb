// Package scheduler runs the recurring maintenance tasks of the cms:
// promoting due scheduled posts, trimming the view log and pruning
// revision history.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/robfig/cron/v3"

	"github.com/Laisky/laisky-blog-cms/internal/cms/metrics"
	"github.com/Laisky/laisky-blog-cms/internal/cms/model"
	"github.com/Laisky/laisky-blog-cms/library/log"
)

// Task names of the built-in sweeps.
const (
	TaskPublishScheduled = "publish-scheduled-posts"
	TaskCleanupViews     = "cleanup-old-views"
	TaskPruneRevisions   = "prune-old-revisions"
)

// Publisher promotes scheduled posts.
type Publisher interface {
	PublishDue(ctx context.Context, now time.Time) ([]model.Post, error)
	PromoteScheduled(ctx context.Context, id string, now time.Time) (bool, error)
}

// ViewLog trims the post view log.
type ViewLog interface {
	DeleteViewsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RevisionPruner trims revision history.
type RevisionPruner interface {
	PostsExceeding(ctx context.Context, keep int) ([]string, error)
	Prune(ctx context.Context, postID string, keep int) (int64, error)
}

// TaskFunc is the unit of work of a scheduled task.
type TaskFunc func(ctx context.Context) error

// Scheduler is a registry of named cron tasks. At most one task is
// registered per name.
type Scheduler struct {
	cron      *cron.Cron
	publisher Publisher
	views     ViewLog
	revisions RevisionPruner
	settings  Settings
	logger    logSDK.Logger
	clock     model.Clock
	metrics   *metrics.Metrics

	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
	started bool
	stopped bool
}

// New constructs a scheduler. The collaborators may be nil when the
// corresponding sweep is never run.
func New(publisher Publisher, views ViewLog, revisions RevisionPruner,
	settings Settings, logger logSDK.Logger, clock model.Clock, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = log.Logger.Named("scheduler")
	}
	if clock == nil {
		clock = model.SystemClock
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger{logger: logger}),
		),
		publisher: publisher,
		views:     views,
		revisions: revisions,
		settings:  settings,
		logger:    logger,
		clock:     clock,
		metrics:   m,
		entries:   make(map[string]cron.EntryID),
		ctx:       context.Background(),
	}
}

// Init registers the built-in sweeps and starts the cron loop. Calling it
// again is a no-op. ctx is handed to every task run.
func (s *Scheduler) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return errors.New("scheduler already stopped")
	}
	s.ctx = ctx
	s.mu.Unlock()

	for _, task := range []struct {
		name string
		spec string
		fn   TaskFunc
	}{
		{TaskPublishScheduled, PublishSpec, func(ctx context.Context) error {
			_, err := s.PublishScheduledPosts(ctx)
			return err
		}},
		{TaskCleanupViews, ViewCleanupSpec, func(ctx context.Context) error {
			_, err := s.CleanupOldViews(ctx)
			return err
		}},
		{TaskPruneRevisions, RevisionPruneSpec, func(ctx context.Context) error {
			_, err := s.PruneRevisions(ctx)
			return err
		}},
	} {
		if err := s.Register(task.name, task.spec, task.fn); err != nil {
			return errors.Wrapf(err, "register %s", task.name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.cron.Start()
		s.started = true
		s.logger.Info("scheduler started", zap.Strings("tasks", s.namesLocked()))
	}
	return nil
}

// Register adds a task under name. It is a no-op when name is already
// registered and fails for an invalid cron expression.
func (s *Scheduler) Register(name, spec string, fn TaskFunc) error {
	if name == "" || fn == nil {
		return errors.New("task name and func are required")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return errors.Wrapf(err, "invalid cron expression %q", spec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("scheduler already stopped")
	}
	if _, ok := s.entries[name]; ok {
		s.logger.Debug("task already registered", zap.String("task", name))
		return nil
	}

	id, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return errors.Wrapf(err, "add task %s", name)
	}
	s.entries[name] = id
	return nil
}

// Names lists the registered task names.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namesLocked()
}

func (s *Scheduler) namesLocked() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunNow executes a registered task synchronously, with the same panic
// recovery and accounting as a cron tick.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return model.Errorf(model.KindNotFound, "task %s not registered", name)
	}
	s.cron.Entry(id).WrappedJob.Run()
	return nil
}

// run executes one tick of a task. Panics and errors are logged and
// counted and never escape.
func (s *Scheduler) run(name string, fn TaskFunc) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	logger := s.logger.With(zap.String("task", name))
	start := s.clock()
	defer func() {
		if r := recover(); r != nil {
			s.metrics.TaskRun(name, "panic")
			logger.Error("task panicked",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
		}
	}()

	if err := fn(ctx); err != nil {
		s.metrics.TaskRun(name, "error")
		logger.Error("task failed", zap.Error(err))
		return
	}
	s.metrics.TaskRun(name, "ok")
	logger.Debug("task done", zap.Duration("took", s.clock().Sub(start)))
}

// PublishScheduledPosts promotes every due scheduled post and returns how
// many this call promoted. A failing post is logged and skipped.
func (s *Scheduler) PublishScheduledPosts(ctx context.Context) (int, error) {
	if s.publisher == nil {
		return 0, errors.New("no publisher configured")
	}
	now := s.clock()
	due, err := s.publisher.PublishDue(ctx, now)
	if err != nil {
		return 0, errors.Wrap(err, "list due posts")
	}

	promoted := 0
	for _, p := range due {
		ok, err := s.publisher.PromoteScheduled(ctx, p.ID, now)
		if err != nil {
			s.metrics.SweepItemFailed(TaskPublishScheduled)
			s.logger.Error("promote scheduled post",
				zap.String("post_id", p.ID), zap.String("slug", p.Slug), zap.Error(err))
			continue
		}
		if !ok {
			s.logger.Debug("scheduled post claimed elsewhere", zap.String("post_id", p.ID))
			continue
		}
		promoted++
		s.metrics.PostPublished()
		s.logger.Info("scheduled post published", zap.String("post_id", p.ID), zap.String("slug", p.Slug))
	}
	return promoted, nil
}

// CleanupOldViews deletes view log rows beyond the retention window.
func (s *Scheduler) CleanupOldViews(ctx context.Context) (int64, error) {
	if s.views == nil {
		return 0, errors.New("no view log configured")
	}
	days := s.settings.ViewRetentionDays
	if days <= 0 {
		days = DefaultViewRetentionDays
	}
	cutoff := s.clock().AddDate(0, 0, -days)

	n, err := s.views.DeleteViewsBefore(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "delete old views")
	}
	if n > 0 {
		s.logger.Info("old views removed", zap.Int64("removed", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// PruneRevisions trims every post's history to the configured size. A
// failing post is logged and skipped.
func (s *Scheduler) PruneRevisions(ctx context.Context) (int64, error) {
	if s.revisions == nil {
		return 0, errors.New("no revision store configured")
	}
	keep := s.settings.RevisionKeep
	if keep <= 0 {
		return 0, nil
	}

	ids, err := s.revisions.PostsExceeding(ctx, keep)
	if err != nil {
		return 0, errors.Wrap(err, "find posts to prune")
	}

	var total int64
	for _, id := range ids {
		n, err := s.revisions.Prune(ctx, id, keep)
		if err != nil {
			s.metrics.SweepItemFailed(TaskPruneRevisions)
			s.logger.Error("prune revisions", zap.String("post_id", id), zap.Error(err))
			continue
		}
		total += n
	}
	if total > 0 {
		s.logger.Info("revisions pruned", zap.Int64("removed", total), zap.Int("posts", len(ids)))
	}
	return total, nil
}

// StopAll removes every task, stops the cron loop and waits for running
// tasks to finish or ctx to end. It is safe to call more than once.
func (s *Scheduler) StopAll(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for running tasks")
	}
}

// cronLogger routes cron's internal logs to the cms logger.
type cronLogger struct {
	logger logSDK.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(kvFields(keysAndValues), zap.Error(err))...)
}

func kvFields(kv []any) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
