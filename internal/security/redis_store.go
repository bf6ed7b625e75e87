package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares windows and locks between server instances. Entries are
// written with an expiry so Redis evicts them and Sweep has nothing left to
// do. A window is a hash: c (count), r (reset, unix ms), f (failure times,
// comma separated unix ms).
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "printshop:sec:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// NewRedisStoreFromURL parses a redis:// URL.
func NewRedisStoreFromURL(url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisStore(redis.NewClient(opt), ""), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

// incrScript runs the reset-or-increment of Incr in one step. ARGV: now (ms),
// window (ms), stamp ("1" or "0"). The TTL is relative to the caller's clock
// so it outlives the reset by a second whatever Redis thinks the time is.
var incrScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local r = tonumber(redis.call('HGET', KEYS[1], 'r'))
if not r or now >= r then
  r = now + tonumber(ARGV[2])
  redis.call('DEL', KEYS[1])
  redis.call('HSET', KEYS[1], 'r', string.format('%d', r))
end
local c = redis.call('HINCRBY', KEYS[1], 'c', 1)
if ARGV[3] == '1' then
  local f = redis.call('HGET', KEYS[1], 'f')
  if f then f = f .. ',' .. ARGV[1] else f = ARGV[1] end
  redis.call('HSET', KEYS[1], 'f', f)
end
redis.call('PEXPIRE', KEYS[1], r - now + 1000)
return {c, r, redis.call('HGET', KEYS[1], 'f') or ''}
`)

func (s *RedisStore) Window(ctx context.Context, key string) (Window, bool, error) {
	vals, err := s.rdb.HMGet(ctx, s.prefix+"w:"+key, "c", "r", "f").Result()
	if err != nil {
		return Window{}, false, err
	}
	c, _ := vals[0].(string)
	r, _ := vals[1].(string)
	if c == "" || r == "" {
		return Window{}, false, nil
	}
	f, _ := vals[2].(string)
	w, err := parseWindow(c, r, f)
	if err != nil {
		return Window{}, false, fmt.Errorf("window %s: %w", key, err)
	}
	return w, true, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, h Hit) (Window, error) {
	stamp := "0"
	if h.Stamp {
		stamp = "1"
	}
	res, err := incrScript.Run(ctx, s.rdb, []string{s.prefix + "w:" + key},
		h.Now.UnixMilli(), h.Window.Milliseconds(), stamp).Slice()
	if err != nil {
		return Window{}, err
	}
	if len(res) != 3 {
		return Window{}, fmt.Errorf("window %s: unexpected script reply %v", key, res)
	}
	c, _ := res[0].(int64)
	r, _ := res[1].(int64)
	f, _ := res[2].(string)
	w, err := parseWindow(strconv.FormatInt(c, 10), strconv.FormatInt(r, 10), f)
	if err != nil {
		return Window{}, fmt.Errorf("window %s: %w", key, err)
	}
	return w, nil
}

func parseWindow(c, r, f string) (Window, error) {
	var w Window
	var err error
	if w.Count, err = strconv.Atoi(c); err != nil {
		return Window{}, fmt.Errorf("count: %w", err)
	}
	ms, err := strconv.ParseInt(r, 10, 64)
	if err != nil {
		return Window{}, fmt.Errorf("reset: %w", err)
	}
	w.ResetAt = time.UnixMilli(ms).UTC()
	if f == "" {
		return w, nil
	}
	for _, v := range strings.Split(f, ",") {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Window{}, fmt.Errorf("failures: %w", err)
		}
		w.Failures = append(w.Failures, time.UnixMilli(ms).UTC())
	}
	return w, nil
}

func (s *RedisStore) DeleteWindow(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+"w:"+key).Err()
}

func (s *RedisStore) Lock(ctx context.Context, key string) (Lock, bool, error) {
	var l Lock
	ok, err := s.get(ctx, "l:"+key, &l)
	return l, ok, err
}

func (s *RedisStore) SetLock(ctx context.Context, key string, l Lock) error {
	return s.set(ctx, "l:"+key, l, l.Until)
}

func (s *RedisStore) DeleteLock(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+"l:"+key).Err()
}

func (s *RedisStore) Sweep(context.Context, time.Time) (SweepStats, error) {
	return SweepStats{}, nil
}

func (s *RedisStore) get(ctx context.Context, key string, v any) (bool, error) {
	b, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) set(ctx context.Context, key string, v any, expireAt time.Time) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ttl := time.Until(expireAt)
	if ttl <= 0 {
		// keep briefly so a reader still observes the expired deadline
		ttl = time.Second
	}
	return s.rdb.Set(ctx, s.prefix+key, b, ttl).Err()
}
