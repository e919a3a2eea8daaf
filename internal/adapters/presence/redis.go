package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Stream/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "peer:"

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Connect opens a client and pings it.
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Redis stores claims as `peer:<id>` keys holding the owner, so brokers
// sharing one Redis enforce identity uniqueness together.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func key(id domain.PeerID) string { return keyPrefix + string(id) }

func (r *Redis) Claim(ctx context.Context, id domain.PeerID, owner string) error {
	ok, err := r.client.SetNX(ctx, key(id), owner, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim %s: %w", id, err)
	}
	if !ok {
		cur, err := r.client.Get(ctx, key(id)).Result()
		if err == nil && cur == owner {
			return nil
		}
		return ErrTaken
	}
	log.Debug().Str("module", "presence").Str("peer", string(id)).Msg("claimed")
	return nil
}

func (r *Redis) Refresh(ctx context.Context, id domain.PeerID, owner string) error {
	n, err := refreshScript.Run(ctx, r.client, []string{key(id)}, owner, r.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotOwner
	}
	return nil
}

func (r *Redis) Release(ctx context.Context, id domain.PeerID, owner string) error {
	n, err := releaseScript.Run(ctx, r.client, []string{key(id)}, owner).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotOwner
	}
	log.Debug().Str("module", "presence").Str("peer", string(id)).Msg("released")
	return nil
}

func (r *Redis) Exists(ctx context.Context, id domain.PeerID) (bool, error) {
	n, err := r.client.Exists(ctx, key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", id, err)
	}
	return n > 0, nil
}
