package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces answer hashes in a shared Redis.
const DefaultRedisPrefix = "answerbot:answer:"

// RedisAnswerRepo stores each entry as one Redis hash. HSET writes every
// field in a single command, so readers see either the old or the new
// entry. Keys are independent; there is no cross-key locking. Durability
// follows the server's persistence settings (AOF or RDB).
type RedisAnswerRepo struct {
	rdb    *redis.Client
	prefix string
	counters
}

// ConnectRedis parses url, creates a client and verifies connectivity.
func ConnectRedis(ctx context.Context, url, prefix string) (*RedisAnswerRepo, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisAnswerRepo(rdb, prefix), nil
}

// NewRedisAnswerRepo wraps an existing client.
func NewRedisAnswerRepo(rdb *redis.Client, prefix string) *RedisAnswerRepo {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisAnswerRepo{rdb: rdb, prefix: prefix}
}

// Close releases the client.
func (r *RedisAnswerRepo) Close() error {
	return r.rdb.Close()
}

func (r *RedisAnswerRepo) key(k string) string {
	return r.prefix + k
}

func (r *RedisAnswerRepo) Get(ctx context.Context, key string) (*AnswerEntry, error) {
	fields, err := r.rdb.HGetAll(ctx, r.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer %s: %w", key, err)
	}
	if len(fields) == 0 {
		r.record(false)
		return nil, nil
	}
	r.record(true)

	e := &AnswerEntry{
		Key:          key,
		Title:        fields[colTitle],
		Options:      fields[colOptions],
		QuestionType: fields[colQuestionType],
		Answer:       fields[colAnswer],
	}
	if ts := fields[colCreatedAt]; ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.CreatedAt = t
		}
	}
	return e, nil
}

func (r *RedisAnswerRepo) Upsert(ctx context.Context, e *AnswerEntry) error {
	row := *e
	stamp(&row)

	err := r.rdb.HSet(ctx, r.key(row.Key),
		colTitle, row.Title,
		colOptions, row.Options,
		colQuestionType, row.QuestionType,
		colAnswer, row.Answer,
		colCreatedAt, row.CreatedAt.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("upsert answer %s: %w", row.Key, err)
	}
	return nil
}

func (r *RedisAnswerRepo) Stats(ctx context.Context) (AnswerStats, error) {
	var n int64
	err := r.scan(ctx, func(keys []string) error {
		n += int64(len(keys))
		return nil
	})
	if err != nil {
		return AnswerStats{}, fmt.Errorf("count answers: %w", err)
	}
	return r.stats("redis", n), nil
}

func (r *RedisAnswerRepo) Clear(ctx context.Context) (int64, error) {
	var n int64
	err := r.scan(ctx, func(keys []string) error {
		deleted, err := r.rdb.Del(ctx, keys...).Result()
		n += deleted
		return err
	})
	if err != nil {
		return n, fmt.Errorf("clear answers: %w", err)
	}
	return n, nil
}

// scan walks every key under the prefix in batches.
func (r *RedisAnswerRepo) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.prefix+"*", 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
