// Package answerer asks the completion backend for an answer to a quiz
// question together with a self-reported confidence score.
package answerer

import (
	"context"
	"fmt"

	"github.com/abhisek/answerbot/internal/question"
)

// Result is one answer attempt. Confidence is always within [0,1].
type Result struct {
	Answer     string
	Confidence float64
}

// Extra is the context attached to an escalation call. A nil *Extra means
// a first-pass call.
type Extra struct {
	// Prior is the low-confidence first answer being reconsidered.
	Prior Result

	// Threshold is the confidence the prior answer failed to reach.
	Threshold float64

	// Snippets holds search results. When empty the call is a plain
	// reanalysis of the prior answer.
	Snippets []string
}

// Searched reports whether the escalation carries search context.
func (e *Extra) Searched() bool {
	return e != nil && len(e.Snippets) > 0
}

// Invoker issues a single answer request.
type Invoker interface {
	// Ask returns the model's answer and confidence for q. On
	// *ErrMalformedResponse the returned Result is still usable, with
	// Confidence set to 0.
	Ask(ctx context.Context, q question.Question, extra *Extra) (*Result, error)
}

// ErrBackendUnavailable wraps network, auth and rate-limit failures.
// These are worth retrying.
type ErrBackendUnavailable struct {
	Err error
}

func (e *ErrBackendUnavailable) Error() string {
	return fmt.Sprintf("backend unavailable: %v", e.Err)
}

func (e *ErrBackendUnavailable) Unwrap() error { return e.Err }

// ErrMalformedResponse reports an answer that could not be read cleanly:
// the answer is missing or the confidence is not a number in [0,1].
type ErrMalformedResponse struct {
	Raw    string
	Reason string
}

func (e *ErrMalformedResponse) Error() string {
	return fmt.Sprintf("malformed response: %s", e.Reason)
}
