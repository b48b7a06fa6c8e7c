package store

import (
	"context"
	"sync/atomic"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit   int       // max results (0 = unlimited)
	Purpose string    // exact purpose match ("" = any)
	From    time.Time // timestamp >= From
	To      time.Time // timestamp <= To
}

// AnswerEntry is the persisted record for one cache key. Options holds the
// option list one per line, the same text the key was derived from.
type AnswerEntry struct {
	Key          string
	Title        string
	Options      string
	QuestionType string
	Answer       string
	CreatedAt    time.Time
}

// AnswerStats summarizes an answer store.
type AnswerStats struct {
	Backend string
	Entries int64
	Hits    int64
	Misses  int64
}

// AnswerRepo is a key-value store of the latest validated answer per key.
// Implementations must make Upsert atomic per key and must not hold a
// store-wide lock while doing so.
type AnswerRepo interface {
	// Get returns the entry for key, or nil if none exists.
	Get(ctx context.Context, key string) (*AnswerEntry, error)

	// Upsert inserts or replaces the entry for e.Key. A zero CreatedAt is
	// set to the current time.
	Upsert(ctx context.Context, e *AnswerEntry) error

	// Stats reports the entry count and hit/miss counters since startup.
	Stats(ctx context.Context) (AnswerStats, error)

	// Clear removes every entry and returns how many were deleted.
	Clear(ctx context.Context) (int64, error)
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMEventRecord is a stored LLMRequestEventData with its row id and time.
type LLMEventRecord struct {
	ID        int
	Timestamp time.Time
	LLMRequestEventData
}

// PurposeUsage aggregates calls for one purpose.
type PurposeUsage struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int
}

// ModelUsage aggregates token counts for one model.
type ModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}

// EventRepo records and reads back LLM request events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEventRecord, error)

	// GetLLMEvent returns one event, or nil if id is unknown.
	GetLLMEvent(ctx context.Context, id int) (*LLMEventRecord, error)

	LLMUsageByPurpose(ctx context.Context) ([]PurposeUsage, error)
	LLMUsageByModel(ctx context.Context) ([]ModelUsage, error)
}

// counters tracks lookups for Stats. Shared by every backend.
type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) record(found bool) {
	if found {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

func (c *counters) stats(backend string, entries int64) AnswerStats {
	return AnswerStats{
		Backend: backend,
		Entries: entries,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

func stamp(e *AnswerEntry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}
