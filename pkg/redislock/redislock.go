package redislock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	Addr          string        `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password      string        `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB            int           `yaml:"db" envconfig:"REDIS_DB"`
	LockTTL       time.Duration `yaml:"lockTTL" envconfig:"REDIS_LOCK_TTL" default:"10s"`
	RetryInterval time.Duration `yaml:"retryInterval" envconfig:"REDIS_LOCK_RETRY" default:"20ms"`
	KeyPrefix     string        `yaml:"keyPrefix" envconfig:"REDIS_LOCK_PREFIX" default:"lending:lock:"`
}

func (c Config) Enabled() bool {
	return c.Addr != ""
}

// NewClient returns a client whose connection has been checked.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	if pong != "PONG" {
		_ = client.Close()
		return nil, errors.Errorf("redis ping: unexpected reply %q", pong)
	}
	return client, nil
}

// compare-and-delete, so an expired holder never frees somebody else's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Locker is a per-key mutex shared by every replica talking to the same redis.
type Locker struct {
	client *redis.Client
	cfg    Config
	log    *zap.Logger
}

func New(client *redis.Client, cfg Config, log *zap.Logger) *Locker {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 20 * time.Millisecond
	}
	return &Locker{
		client: client,
		cfg:    cfg,
		log:    log.Named("redislock"),
	}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := l.cfg.KeyPrefix + key

	ticker := time.NewTicker(l.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.cfg.LockTTL).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "lock %s", key)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.log.Warn("release", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
