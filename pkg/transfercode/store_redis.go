package transfercode

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

// insertScript creates the code hash only if absent.
// KEYS[1] = code key
// ARGV[1] = wallet, ARGV[2] = expires_at (unix ms), ARGV[3] = created_at (unix ms), ARGV[4] = retention (ms)
var insertScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
    return 0
end
redis.call("HSET", KEYS[1], "wallet", ARGV[1], "expires_at", ARGV[2], "created_at", ARGV[3], "used", "0")
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`)

// markUsedScript flips used 0 -> 1.
// Returns -1 if the code is unknown, 0 if already used, 1 on success.
var markUsedScript = redis.NewScript(`
local used = redis.call("HGET", KEYS[1], "used")
if not used then
    return -1
end
if used == "1" then
    return 0
end
redis.call("HSET", KEYS[1], "used", "1")
return 1
`)

// RedisStore keeps codes as Redis hashes. Keys outlive expiry by the
// retention window so late redemptions report expired rather than unknown.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "titlevault:transfer_code:", retention: 24 * time.Hour}
}

// NewRedisStoreFromAddr dials a single Redis node.
func NewRedisStoreFromAddr(addr, password string, db int) *RedisStore {
	return NewRedisStore(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(code string) string { return s.prefix + code }

func (s *RedisStore) Insert(ctx context.Context, c Code) error {
	ttl := time.Until(c.ExpiresAt) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}
	n, err := insertScript.Run(ctx, s.client, []string{s.key(c.Code)},
		c.Wallet, c.ExpiresAt.UnixMilli(), c.CreatedAt.UnixMilli(), ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis insert transfer code: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: code %s", property.ErrDuplicate, c.Code)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, code string) (Code, error) {
	fields, err := s.client.HGetAll(ctx, s.key(code)).Result()
	if err != nil {
		return Code{}, fmt.Errorf("redis get transfer code: %w", err)
	}
	if len(fields) == 0 {
		return Code{}, fmt.Errorf("%w: transfer code %s", property.ErrNotFound, code)
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return Code{}, fmt.Errorf("decode expires_at for %s: %w", code, err)
	}
	created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	return Code{
		Code:      code,
		Wallet:    fields["wallet"],
		ExpiresAt: time.UnixMilli(expires).UTC(),
		CreatedAt: time.UnixMilli(created).UTC(),
		Used:      fields["used"] == "1",
	}, nil
}

func (s *RedisStore) MarkUsed(ctx context.Context, code string) error {
	n, err := markUsedScript.Run(ctx, s.client, []string{s.key(code)}).Int()
	if err != nil {
		return fmt.Errorf("redis mark transfer code used: %w", err)
	}
	switch n {
	case -1:
		return fmt.Errorf("%w: transfer code %s", property.ErrNotFound, code)
	case 0:
		return fmt.Errorf("%w: %s", property.ErrCodeUsed, code)
	}
	return nil
}
