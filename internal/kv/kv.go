// Package kv wraps go-redis with the primitives the rest of the mediator
// needs: hashes, sorted sets, pub/sub, and the server-side scripts that
// keep mailbox counters atomic under concurrent writers.
//
// Other packages go through this wrapper's methods; Raw hands out the
// underlying client for primitives not wrapped here (account.List uses it
// for SSCAN). Only the mailbox insert and delete run as single atomic
// server-side scripts; other multi-step writes, such as account creation,
// are issued as separate commands.
package kv

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a thin, mockable wrapper over a go-redis client.
type Store struct {
	rdb *redis.Client
}

// Open connects to the configured Redis-compatible server. It does not
// block on the connection; callers should call Ping to verify reachability.
func Open(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Raw exposes the underlying client for packages that need primitives not
// wrapped here (e.g. TxPipeline for non-atomic multi-key reads).
func (s *Store) Raw() *redis.Client {
	return s.rdb
}

// HGet/HSet/HGetAll/HDel/Del — plain hash primitives, used by the account
// store for account records, by the oob store for invitation records and
// by the mailbox store for envelope-body records.

func (s *Store) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := s.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return v, err
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, key).Result()
}

func (s *Store) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	return s.rdb.HSet(ctx, key, values).Err()
}

func (s *Store) HDel(ctx context.Context, key string, fields ...string) error {
	return s.rdb.HDel(ctx, key, fields...).Err()
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// SAdd/SRem/SIsMember/SMembers — sets, used for the admin-list and access
// lists.

func (s *Store) SAdd(ctx context.Context, key string, members ...interface{}) error {
	return s.rdb.SAdd(ctx, key, members...).Err()
}

func (s *Store) SRem(ctx context.Context, key string, members ...interface{}) error {
	return s.rdb.SRem(ctx, key, members...).Err()
}

func (s *Store) SIsMember(ctx context.Context, key string, member interface{}) (bool, error) {
	return s.rdb.SIsMember(ctx, key, member).Result()
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.rdb.SMembers(ctx, key).Result()
}

func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	return s.rdb.SCard(ctx, key).Result()
}

// ZAdd/ZRangeByScore/ZRem/ZRange/ZCard — sorted sets, used for
// the mailbox arrival-order index and the forwarding work queue's due-time
// ordering.

func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *Store) ZRem(ctx context.Context, key string, members ...interface{}) error {
	return s.rdb.ZRem(ctx, key, members...).Err()
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	return s.rdb.ZCard(ctx, key).Result()
}

func (s *Store) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.rdb.ZRange(ctx, key, start, stop).Result()
}

func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max string, count int64) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: min, Max: max, Count: count}).Result()
}

// Publish broadcasts payload on channel; used by the pub/sub bus for
// live-delivery fan-out.
func (s *Store) Publish(ctx context.Context, channel string, payload interface{}) error {
	return s.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe returns a go-redis PubSub handle for channel. Callers read
// from Channel() until the context is canceled, then must Close it.
func (s *Store) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, channel)
}

// Expire sets a TTL on key, used for session records and OOB invitations.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.rdb.Expire(ctx, key, ttl).Err()
}

// IncrBy — used for the mailbox arrival-order tiebreaker, outside the
// atomic mailbox scripts.
func (s *Store) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return s.rdb.IncrBy(ctx, key, delta).Result()
}
