// Package app wires configuration into a running engine: database, Redis,
// AWS clients, transports, notification sinks and the webhook ingester.
// cmd/server, cmd/worker and cmd/engine all start from Open.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/engine"
	"github.com/ignite/outreach-engine/internal/esp"
	"github.com/ignite/outreach-engine/internal/metrics"
	"github.com/ignite/outreach-engine/internal/notify"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/ratelimit"
	"github.com/ignite/outreach-engine/internal/repository/memory"
	"github.com/ignite/outreach-engine/internal/repository/postgres"
	"github.com/ignite/outreach-engine/internal/webhook"
	"github.com/ignite/outreach-engine/internal/worker"
)

// App holds the process-wide dependencies.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Redis   *redis.Client
	Engine  *engine.Engine
	Metrics *metrics.Metrics
	// Memory is set when no database is configured.
	Memory *memory.Store

	aws     *aws.Config
	closers []func() error
	log     *logger.Logger
}

// Open connects everything cfg describes. Without DATABASE_URL the engine
// runs on the in-memory store, which is only useful for local trials.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.RedactPII)

	a := &App{Config: cfg, Metrics: metrics.New(), log: logger.With("component", "app")}
	metrics.SetGlobal(a.Metrics)

	var store engine.Store
	if cfg.Database.URL != "" {
		db, err := openDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		store = postgres.New(db)
		a.log.Info("connected to database")
	} else {
		a.Memory = memory.New()
		store = a.Memory
		a.log.Warn("DATABASE_URL not set, using in-memory store")
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.Redis = redis.NewClient(opts)
		a.closers = append(a.closers, a.Redis.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = a.Redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.log.Info("connected to redis")
	}

	transports, err := a.transports(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []engine.Option{engine.WithNotifier(a.notifier())}
	if a.Redis != nil {
		opts = append(opts, engine.WithLocker(
			distlock.NewRedisLocker(a.Redis, cfg.Reconcile.LockPrefix, cfg.Reconcile.LockTTL)))
		if cfg.OrgLimits != (ratelimit.OrgLimits{}) {
			opts = append(opts, engine.WithOrgLimiter(ratelimit.NewOrgLimiter(a.Redis, cfg.OrgLimits)))
		}
	}

	eng, err := engine.New(store, esp.NewRegistry(transports.ses, transports.smtp, transports.sandbox), cfg.Engine(), opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = eng
	return a, nil
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

type transportSet struct {
	ses     *esp.SES
	smtp    *esp.SMTP
	sandbox *esp.Sandbox
}

func (a *App) transports(ctx context.Context) (transportSet, error) {
	ses, err := esp.NewSES(ctx, a.Config.SES)
	if err != nil {
		return transportSet{}, fmt.Errorf("ses transport: %w", err)
	}
	ts := transportSet{ses: ses, smtp: esp.NewSMTP(a.Config.SMTP)}
	if a.Config.Sandbox {
		a.log.Warn("sandbox transport enabled; sandbox accounts deliver nowhere")
		ts.sandbox = esp.NewSandbox()
	}
	return ts, nil
}

// notifier logs every notification and, with an AMQP URL, also publishes
// it. A broker that cannot be reached degrades to logging only.
func (a *App) notifier() notify.Sink {
	sinks := notify.Multi{notify.NewLogSink()}
	if a.Config.Notify.AMQPURL == "" {
		return sinks
	}
	amqpSink, err := notify.DialAMQP(a.Config.Notify.AMQPURL, a.Config.Notify.Queue)
	if err != nil {
		a.log.Error("notification broker unavailable, logging only", "error", err)
		return sinks
	}
	a.closers = append(a.closers, amqpSink.Close)
	return append(sinks, amqpSink)
}

// AWS returns the shared AWS configuration, loading it on first use.
func (a *App) AWS(ctx context.Context) (aws.Config, error) {
	if a.aws != nil {
		return *a.aws, nil
	}
	c := a.Config.SES
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.Region)}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	a.aws = &cfg
	return cfg, nil
}

// S3 returns a client for the webhook archive bucket, or nil when no bucket
// is configured.
func (a *App) S3(ctx context.Context) (*s3.Client, error) {
	if a.Config.Webhooks.ArchiveBucket == "" {
		return nil, nil
	}
	cfg, err := a.AWS(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}

// Ingester builds the webhook ingester over the engine, archiving rejected
// payloads to S3 when a bucket is configured.
func (a *App) Ingester(ctx context.Context) (*webhook.Ingester, error) {
	var opts []webhook.IngesterOption
	client, err := a.S3(ctx)
	if err != nil {
		return nil, err
	}
	if client != nil {
		opts = append(opts, webhook.WithArchiver(
			webhook.NewS3Archiver(client, a.Config.Webhooks.ArchiveBucket, a.Config.Webhooks.ArchivePrefix)))
	}
	return webhook.NewIngester(webhook.DefaultParsers(), a.Engine, opts...), nil
}

// Poller returns the SES event queue poller, or nil when no queue is
// configured.
func (a *App) Poller(ctx context.Context, ingester *webhook.Ingester) (*webhook.Poller, error) {
	if a.Config.Webhooks.SQSQueueURL == "" {
		return nil, nil
	}
	cfg, err := a.AWS(ctx)
	if err != nil {
		return nil, err
	}
	return webhook.NewPoller(sqs.NewFromConfig(cfg), a.Config.Webhooks.SQSQueueURL, ingester), nil
}

// Scheduler builds the trigger loops. Replicas coordinate through Redis
// locks, or Postgres advisory locks without Redis. With neither, runs are
// not coordinated.
func (a *App) Scheduler() *worker.Scheduler {
	intervals := make(map[engine.Trigger]time.Duration)
	for _, t := range append([]engine.Trigger{engine.TriggerQuotaReset}, engine.Triggers...) {
		intervals[t] = a.Config.Schedule.Interval(t)
	}

	var newLock worker.LockFactory
	if a.Redis != nil || a.DB != nil {
		ttl := a.Config.Schedule.LockTTL
		newLock = func(key string) distlock.DistLock {
			return distlock.NewLock(a.Redis, a.DB, key, ttl)
		}
	}
	return worker.NewScheduler(a.Engine, intervals, newLock)
}

// Close releases every connection Open made, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
