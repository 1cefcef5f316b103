package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dshills/auditlens/internal/cache"
	"github.com/dshills/auditlens/internal/config"
	"github.com/dshills/auditlens/internal/logging"
	"github.com/dshills/auditlens/internal/notify"
	"github.com/dshills/auditlens/internal/providers"
	"github.com/dshills/auditlens/internal/quota"
	"github.com/dshills/auditlens/internal/review"
	"github.com/dshills/auditlens/internal/store"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	redis  *redis.Client
	store  store.Store
	cache  cache.Store
	quota  *quota.Manager
	counts *quota.SQLite
	orch   *review.Orchestrator
}

// newApp connects every dependency named by cfg.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logging.New(cfg.Log.Level, cfg.Log.Format),
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening finding store: %w", err)
	}
	a.store = st

	if a.cache, err = a.openCache(); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if a.quota, err = a.openQuota(); err != nil {
		a.Close(ctx)
		return nil, err
	}

	client, err := providers.New(cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	p, _ := cfg.ActiveProvider()
	retrier := providers.NewRetrier(providers.Policy{
		MaxAttempts:          cfg.Retry.MaxAttempts,
		Backoff:              cfg.Retry.Schedule(),
		MaxRetryAfter:        cfg.Retry.MaxRetryAfter(),
		FailFastClientErrors: cfg.Retry.FailFastClientErrors,
	}, providers.NewGate(), a.logger)

	a.orch, err = review.NewOrchestrator(review.Options{
		Store:       st,
		Cache:       a.cache,
		CacheTTL:    cfg.Cache.TTL(),
		Quota:       a.quota,
		Selector:    review.NewSelector(p.Models, cfg.Quota.PremiumFraction, cfg.Escalation.Keywords),
		Client:      client,
		Retrier:     retrier,
		Notifier:    notify.New(cfg.Notification.WebhookURL, a.logger),
		Recipients:  cfg.Notification.Recipients,
		Redact:      cfg.Privacy.RedactSecrets,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Logger:      a.logger,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// redisClient lazily creates the client shared by the redis backends.
func (a *app) redisClient() *redis.Client {
	if a.redis == nil {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
	}
	return a.redis
}

func (a *app) openCache() (cache.Store, error) {
	if !a.cfg.Cache.Enabled {
		return cache.Nop{}, nil
	}
	switch a.cfg.Cache.Backend {
	case "", "file":
		c, err := cache.NewFile(a.cfg.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		return c, nil
	case "memory":
		return cache.NewMemory(), nil
	case "redis":
		return cache.NewRedis(a.redisClient()), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", a.cfg.Cache.Backend)
	}
}

func (a *app) openQuota() (*quota.Manager, error) {
	var backend quota.Store
	switch a.cfg.Quota.Backend {
	case "", "sqlite":
		path, err := a.cfg.Quota.DBPath()
		if err != nil {
			return nil, fmt.Errorf("locating quota database: %w", err)
		}
		if a.counts, err = quota.OpenSQLite(path); err != nil {
			return nil, err
		}
		backend = a.counts
	case "redis":
		backend = quota.NewRedis(a.redisClient(), a.cfg.Quota.RedisKey)
	case "memory":
		backend = quota.NewMemory()
	default:
		return nil, fmt.Errorf("unknown quota backend: %s", a.cfg.Quota.Backend)
	}
	return quota.NewManager(backend, a.cfg.Quota.CallsMax,
		quota.WithLocation(a.cfg.Quota.Location()),
		quota.WithLogger(a.logger)), nil
}

// applyReload pushes the hot-reloadable settings of cfg into the running app.
func (a *app) applyReload(cfg config.Config) {
	a.orch.Selector().SetKeywords(cfg.Escalation.Keywords)
	a.orch.SetRecipients(cfg.Notification.Recipients)
	a.quota.SetMax(cfg.Quota.CallsMax)
	a.logger.Debug("applied reloaded settings",
		"calls_max", cfg.Quota.CallsMax,
		"keywords", len(cfg.Escalation.Keywords),
		"recipients", len(cfg.Notification.Recipients))
}

// Close releases the store, quota and redis connections.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close(ctx))
	}
	if a.counts != nil {
		errs = append(errs, a.counts.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
