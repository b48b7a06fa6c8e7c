package store

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryAnswerRepo keeps answers in process memory. Entries do not survive
// a restart; use it for tests and throwaway runs. A ttl of zero keeps
// entries until Clear.
type MemoryAnswerRepo struct {
	cache *cache.Cache
	counters
}

// NewMemoryAnswerRepo creates an in-memory AnswerRepo.
func NewMemoryAnswerRepo(ttl time.Duration) *MemoryAnswerRepo {
	exp := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		exp = ttl
		cleanup = ttl / 2
	}
	return &MemoryAnswerRepo{cache: cache.New(exp, cleanup)}
}

func (r *MemoryAnswerRepo) Get(_ context.Context, key string) (*AnswerEntry, error) {
	x, found := r.cache.Get(key)
	r.record(found)
	if !found {
		return nil, nil
	}
	// Stored by value so callers never share a mutable entry.
	e := x.(AnswerEntry)
	return &e, nil
}

func (r *MemoryAnswerRepo) Upsert(_ context.Context, e *AnswerEntry) error {
	row := *e
	stamp(&row)
	r.cache.Set(row.Key, row, cache.DefaultExpiration)
	return nil
}

func (r *MemoryAnswerRepo) Stats(context.Context) (AnswerStats, error) {
	return r.stats("memory", int64(r.cache.ItemCount())), nil
}

func (r *MemoryAnswerRepo) Clear(context.Context) (int64, error) {
	n := int64(r.cache.ItemCount())
	r.cache.Flush()
	return n, nil
}
