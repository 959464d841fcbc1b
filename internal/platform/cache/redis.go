package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/topservers/credits/pkg/config"
)

// NewClient connects to redis when an address is configured. Returns nil
// when redis is disabled; callers must treat a nil client as "no cache".
func NewClient(lc fx.Lifecycle, l *zap.SugaredLogger, cfg *cfgpkg.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		l.Infow("redis disabled, notification dedupe runs without cache")
		return nil
	}
	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := cli.Ping(ctx).Err(); err != nil {
				l.Warnw("redis ping failed, dedupe degraded", "err", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			l.Infow("closing redis connection")
			return cli.Close()
		},
	})
	return cli
}

const dedupeTTL = 24 * time.Hour

// NotificationDeduper remembers which provider notification ids were
// already seen. It is advisory only: it suppresses duplicate audit noise,
// while correctness rests on the transaction's terminal-status gate. A nil
// or unreachable redis makes Seen always return false.
type NotificationDeduper struct {
	cli *redis.Client
	log *zap.SugaredLogger
}

func NewNotificationDeduper(cli *redis.Client, log *zap.SugaredLogger) *NotificationDeduper {
	return &NotificationDeduper{cli: cli, log: log}
}

// Seen claims the notification id and reports whether it was already
// claimed before.
func (d *NotificationDeduper) Seen(ctx context.Context, provider, notificationID string) bool {
	if d == nil || d.cli == nil || notificationID == "" {
		return false
	}
	key := fmt.Sprintf("notif_seen:%s:%s", provider, notificationID)
	ok, err := d.cli.SetNX(ctx, key, 1, dedupeTTL).Result()
	if err != nil {
		d.log.Warnw("dedupe cache unavailable", "err", err)
		return false
	}
	return !ok
}

var Module = fx.Options(
	fx.Provide(NewClient),
	fx.Provide(NewNotificationDeduper),
)
