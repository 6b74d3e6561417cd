package redislock

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var ErrNotHeld = errors.New("lock not held")

// releaseScript deletes the key only while it still carries our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a single-holder lock stored under one Redis key with a TTL.
type Lease struct {
	Client *goredis.Client
	Key    string
	Token  string
	TTL    time.Duration
}

func New(client *goredis.Client, key, token string, ttl time.Duration) *Lease {
	return &Lease{Client: client, Key: key, Token: token, TTL: ttl}
}

// TryAcquire returns false without error when another holder owns the key.
func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	return l.Client.SetNX(ctx, l.Key, l.Token, l.TTL).Result()
}

func (l *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.Client, []string{l.Key}, l.Token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func Connect(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
