package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-blog-cms/internal/cms/analytics"
	"github.com/Laisky/laisky-blog-cms/internal/cms/cache"
	"github.com/Laisky/laisky-blog-cms/internal/cms/metrics"
	"github.com/Laisky/laisky-blog-cms/internal/cms/post"
	"github.com/Laisky/laisky-blog-cms/internal/cms/related"
	"github.com/Laisky/laisky-blog-cms/internal/cms/scheduler"
	"github.com/Laisky/laisky-blog-cms/internal/cms/taxonomy"
	"github.com/Laisky/laisky-blog-cms/internal/web"
	"github.com/Laisky/laisky-blog-cms/library/db/postgres"
	redisLib "github.com/Laisky/laisky-blog-cms/library/db/redis"
	"github.com/Laisky/laisky-blog-cms/library/jwt"
	"github.com/Laisky/laisky-blog-cms/library/log"
)

const stopTimeout = 30 * time.Second

var apiCMD = &cobra.Command{
	Use:   "api",
	Short: "api",
	Long:  `REST API service for the blog cms`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runAPI(ctx, gconfig.Shared.GetString("listen")); err != nil {
			log.Logger.Panic("api exit", zap.Error(err))
		}
	},
}

func init() {
	rootCMD.AddCommand(apiCMD)
}

// runAPI wires the services, starts the scheduler when enabled and serves
// until ctx is done.
func runAPI(ctx context.Context, listen string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	db, err := openDB(ctx)
	if err != nil {
		return errors.Wrap(err, "open db")
	}
	c, closeCache := openCache(ctx, m)
	defer closeCache()

	posts, err := post.NewRepository(db, c, log.Logger.Named("post"), nil, post.WithMetrics(m))
	if err != nil {
		return errors.Wrap(err, "new post repository")
	}
	tax, err := taxonomy.NewService(db, c, log.Logger.Named("taxonomy"), nil)
	if err != nil {
		return errors.Wrap(err, "new taxonomy service")
	}
	rel, err := related.NewScorer(db, log.Logger.Named("related"), nil)
	if err != nil {
		return errors.Wrap(err, "new related scorer")
	}
	stats, err := analytics.NewService(db, log.Logger.Named("analytics"), nil)
	if err != nil {
		return errors.Wrap(err, "new analytics service")
	}
	tokens, err := jwt.New([]byte(gconfig.Shared.GetString("settings.secret")), nil)
	if err != nil {
		return errors.Wrap(err, "new token signer")
	}

	settings := scheduler.LoadSettingsFromConfig()
	sched := scheduler.New(posts, stats, posts.Revisions(), settings,
		log.Logger.Named("scheduler"), nil, m)
	if settings.Enabled {
		if err := sched.Init(ctx); err != nil {
			return errors.Wrap(err, "start scheduler")
		}
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := sched.StopAll(stopCtx); err != nil {
			log.Logger.Warn("stop scheduler", zap.Error(err))
		}
	}()

	srv, err := web.NewServer(web.Deps{
		Posts:     posts,
		Taxonomy:  tax,
		Related:   rel,
		Analytics: stats,
		Tokens:    tokens,
		Gatherer:  reg,
		Logger:    log.Logger.Named("web"),
	})
	if err != nil {
		return errors.Wrap(err, "new web server")
	}
	return srv.Run(ctx, listen)
}

func openDB(ctx context.Context) (*gorm.DB, error) {
	return postgres.NewDB(ctx, postgres.DialInfo{
		DSN:    gconfig.Shared.GetString("settings.db.postgres.dsn"),
		Addr:   gconfig.Shared.GetString("settings.db.postgres.addr"),
		DBName: gconfig.Shared.GetString("settings.db.postgres.db"),
		User:   gconfig.Shared.GetString("settings.db.postgres.user"),
		Pwd:    gconfig.Shared.GetString("settings.db.postgres.pwd"),
	}, log.Logger, gconfig.Shared.GetBool("debug"))
}

// openCache connects the redis cache. The cms runs uncached when redis is
// not configured or unreachable.
func openCache(ctx context.Context, m *metrics.Metrics) (cache.Cache, func()) {
	noop := func() {}
	url := gconfig.Shared.GetString("settings.db.redis.url")
	addr := gconfig.Shared.GetString("settings.db.redis.addr")
	if url == "" && addr == "" {
		log.Logger.Info("redis not configured, caching disabled")
		return cache.Noop{}, noop
	}

	var (
		rdb *redisLib.DB
		err error
	)
	if url != "" {
		if rdb, err = redisLib.NewDBFromURL(url); err != nil {
			log.Logger.Warn("invalid redis url, caching disabled", zap.Error(err))
			return cache.Noop{}, noop
		}
	} else {
		rdb = redisLib.NewDB(&redis.Options{
			Addr:     addr,
			Password: gconfig.Shared.GetString("settings.db.redis.pwd"),
			DB:       gconfig.Shared.GetInt("settings.db.redis.db"),
		})
	}

	if err := rdb.Ping(ctx); err != nil {
		log.Logger.Warn("redis unreachable, caching disabled", zap.Error(err))
		_ = rdb.Close()
		return cache.Noop{}, noop
	}

	ns := gconfig.Shared.GetString("settings.cache.namespace")
	if ns == "" {
		ns = redisLib.DefaultKeyPrefix
	}
	c, err := cache.NewRedis(rdb, ns, log.Logger.Named("cache"), m)
	if err != nil {
		log.Logger.Warn("new redis cache, caching disabled", zap.Error(err))
		_ = rdb.Close()
		return cache.Noop{}, noop
	}
	return c, func() { _ = rdb.Close() }
}
