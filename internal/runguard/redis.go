package runguard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vk/fanoutgo/internal/ctxlog"
	"github.com/vk/fanoutgo/internal/taskerr"
)

// DefaultLeaseTTL bounds how long a lease survives a crashed holder. A live
// holder renews it every third of the TTL.
const DefaultLeaseTTL = 10 * time.Minute

// releaseScript deletes the lease only if it still carries the holder's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only if it still carries the holder's token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisOptions configures a Redis guard.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces lease keys. Defaults to "fanoutgo:run:".
	Prefix string
	TTL    time.Duration
}

// Redis is a Guard shared by every process connected to the same Redis.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "fanoutgo:run:"
	}
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// DialRedis connects to Redis and verifies the connection.
func DialRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return NewRedis(client, opts.Prefix, opts.TTL), nil
}

// Acquire implements Guard.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	leaseKey := r.prefix + key
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, leaseKey, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lease %q: %w", leaseKey, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", taskerr.ErrRunInProgress, key)
	}

	logger := ctxlog.FromContext(ctx)
	stop := make(chan struct{})
	stopped := make(chan struct{})
	go r.renew(context.WithoutCancel(ctx), leaseKey, token, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			// The run context may already be cancelled; the lease must still go.
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, r.client, []string{leaseKey}, token).Err(); err != nil {
				logger.Warn("Failed to release run lease.", "key", leaseKey, "error", err)
			}
		})
	}, nil
}

// renew keeps the lease alive until stop is closed or the lease is lost.
func (r *Redis) renew(ctx context.Context, leaseKey, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	logger := ctxlog.FromContext(ctx)
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rctx, cancel := context.WithTimeout(ctx, r.ttl/3)
			n, err := renewScript.Run(rctx, r.client, []string{leaseKey}, token, r.ttl.Milliseconds()).Int64()
			cancel()
			switch {
			case err != nil:
				logger.Warn("Failed to renew run lease.", "key", leaseKey, "error", err)
			case n == 0:
				logger.Warn("Run lease lost, another holder may start the same root.", "key", leaseKey)
				return
			}
		}
	}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
