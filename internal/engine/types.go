package engine

import (
	"fmt"
	"time"

	"github.com/abhisek/answerbot/internal/question"
)

// Source says which path produced an answer.
type Source string

const (
	SourceCache      Source = "cache"
	SourceDirect     Source = "direct"
	SourceSearch     Source = "search-augmented"
	SourceReanalyzed Source = "reanalyzed"
)

// Request is one unit of work for the engine.
type Request struct {
	Question  question.Question
	SkipCache bool
}

// Outcome is a successful resolution.
type Outcome struct {
	Answer string
	Source Source
	Key    string

	// Confidence reported by the call that produced Answer. Zero for
	// cache hits.
	Confidence float64

	// Counters for the resolution.
	ModelCalls  int
	SearchCalls int
	Failures    int
}

// Kind classifies a failed resolution.
type Kind string

const (
	KindInvalidQuestion   Kind = "invalid_question"
	KindUpstreamFailure   Kind = "upstream_failure"
	KindValidationFailure Kind = "validation_failure"
)

// ResolutionError is returned for every failed resolution.
type ResolutionError struct {
	Kind    Kind
	Message string

	// Diagnostic carries the last rejected answer on validation failure.
	// It is never an accepted answer.
	Diagnostic string

	Err error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Public returns the message shown to API clients.
func (e *ResolutionError) Public() string {
	if e.Kind == KindUpstreamFailure && e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Config holds the tunables of the resolution engine.
type Config struct {
	// ConfidenceThreshold is the score at or above which a first-pass
	// answer is accepted without escalation.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// RetryProbability is the chance a cache hit is ignored and the
	// question re-answered.
	RetryProbability float64 `yaml:"retry_probability"`

	// MaxAttempts bounds backend and validation failures together.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffUnit is the wait before the first retry. It doubles after
	// every further failure, up to MaxBackoff.
	BackoffUnit time.Duration `yaml:"backoff_unit"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`

	// IncludeTypeInKey folds the question type into the cache key.
	IncludeTypeInKey bool `yaml:"include_type_in_key"`
}

// DefaultConfig returns the recommended defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.7,
		RetryProbability:    0.1,
		MaxAttempts:         3,
		BackoffUnit:         time.Second,
		MaxBackoff:          10 * time.Second,
	}
}

const maxAttemptsLimit = 20

// Validate checks that every field is within range.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %v must be within [0,1]", c.ConfidenceThreshold)
	}
	if c.RetryProbability < 0 || c.RetryProbability > 1 {
		return fmt.Errorf("retry probability %v must be within [0,1]", c.RetryProbability)
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > maxAttemptsLimit {
		return fmt.Errorf("max attempts must be within [1,%d], got %d", maxAttemptsLimit, c.MaxAttempts)
	}
	if c.BackoffUnit < 0 || c.MaxBackoff < 0 {
		return fmt.Errorf("backoff durations must not be negative")
	}
	return nil
}
