package presence

import (
	"context"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror publishes live connection counts where other processes can read them.
type Mirror interface {
	Connected(ctx context.Context, accountID string) error
	Disconnected(ctx context.Context, accountID string) error
	Online(ctx context.Context) ([]string, error)
}

// NopMirror discards updates.
type NopMirror struct{}

func (NopMirror) Connected(context.Context, string) error    { return nil }
func (NopMirror) Disconnected(context.Context, string) error { return nil }
func (NopMirror) Online(context.Context) ([]string, error)   { return nil, nil }

// RedisMirror keeps one hash per process, <prefix>:<instance>, mapping account
// id -> live connection count on that process. Fields are removed when their
// count drops to zero. Every write renews the hash's TTL and Touch renews it on
// a timer, so the hash of a crashed process expires instead of lingering.
// Online is the union across every instance's hash.
type RedisMirror struct {
	client   *redis.Client
	prefix   string
	instance string
	ttl      time.Duration
}

// NewRedisMirror builds the mirror for one process.
func NewRedisMirror(client *redis.Client, prefix, instance string, ttl time.Duration) *RedisMirror {
	return &RedisMirror{client: client, prefix: prefix, instance: instance, ttl: ttl}
}

// Key returns this process's hash key.
func (m *RedisMirror) Key() string {
	return m.prefix + ":" + m.instance
}

var decrementScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
  redis.call('HDEL', KEYS[1], ARGV[1])
end
if redis.call('HLEN', KEYS[1]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return n
`)

// Connected increments the account's count on this process.
func (m *RedisMirror) Connected(ctx context.Context, accountID string) error {
	pipe := m.client.TxPipeline()
	pipe.HIncrBy(ctx, m.Key(), accountID, 1)
	pipe.PExpire(ctx, m.Key(), m.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Disconnected decrements the account's count on this process.
func (m *RedisMirror) Disconnected(ctx context.Context, accountID string) error {
	return decrementScript.Run(ctx, m.client, []string{m.Key()}, accountID, m.ttl.Milliseconds()).Err()
}

// Online lists accounts with a positive count on any live process, sorted.
func (m *RedisMirror) Online(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	iter := m.client.Scan(ctx, 0, m.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		ids, err := m.client.HKeys(ctx, iter.Val()).Result()
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Touch renews this process's hash so it survives quiet periods.
func (m *RedisMirror) Touch(ctx context.Context) error {
	return m.client.PExpire(ctx, m.Key(), m.ttl).Err()
}

// Reset drops this process's hash. Other processes' counts are untouched.
func (m *RedisMirror) Reset(ctx context.Context) error {
	return m.client.Del(ctx, m.Key()).Err()
}
