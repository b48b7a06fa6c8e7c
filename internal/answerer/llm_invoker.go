package answerer

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhisek/answerbot/internal/llm"
	"github.com/abhisek/answerbot/internal/question"
)

// LLMInvoker implements Invoker using the LLM provider.
type LLMInvoker struct {
	provider llm.Provider
	config   Config
}

// New creates a new LLMInvoker with the given provider and config.
func New(provider llm.Provider, cfg Config) *LLMInvoker {
	return &LLMInvoker{provider: provider, config: cfg}
}

// ModelID returns the model behind the provider.
func (v *LLMInvoker) ModelID() string {
	return v.provider.ModelID()
}

// Ask sends one answer request for q.
func (v *LLMInvoker) Ask(ctx context.Context, q question.Question, extra *Extra) (*Result, error) {
	purpose := llm.PurposeAnswer
	switch {
	case extra.Searched():
		purpose = llm.PurposeSearchAnswer
	case extra != nil:
		purpose = llm.PurposeReanalyzeAnswer
	}
	ctx = llm.WithPurpose(ctx, purpose)

	system, user := buildPrompts(q, extra)
	req := llm.Request{
		System: system,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: user},
		},
		Schema:      AnswerSchema,
		MaxTokens:   v.config.MaxTokens,
		Temperature: v.config.Temperature,
	}

	resp, err := v.provider.Generate(ctx, req)
	if err != nil {
		// A reply that missed the schema is salvaged rather than retried.
		var invalid *llm.ErrInvalidResponse
		if errors.As(err, &invalid) && len(invalid.Content) > 0 {
			return parseResult(invalid.Content)
		}
		var truncated *llm.ErrMaxTokensExceeded
		if errors.As(err, &truncated) && len(truncated.Content) > 0 {
			return parseResult(truncated.Content)
		}
		if errors.As(err, &invalid) || errors.As(err, &truncated) {
			return &Result{}, &ErrMalformedResponse{Reason: err.Error()}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ask: %w", ctxErr)
		}
		return nil, &ErrBackendUnavailable{Err: err}
	}

	return parseResult(resp.Content)
}
