// Package engine turns a normalized question into a validated answer. It
// consults the answer store, asks the model, escalates once on low
// confidence, validates the result and writes it back.
package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/answerbot/internal/answer"
	"github.com/abhisek/answerbot/internal/answerer"
	"github.com/abhisek/answerbot/internal/llm"
	"github.com/abhisek/answerbot/internal/question"
	"github.com/abhisek/answerbot/internal/search"
	"github.com/abhisek/answerbot/internal/store"
)

const persistTimeout = 5 * time.Second

// Engine resolves questions. It holds no per-request state, so one Engine
// serves any number of concurrent Resolve calls.
type Engine struct {
	store    store.AnswerRepo
	invoker  answerer.Invoker
	searcher search.Searcher
	cfg      Config
	log      *zap.Logger
	rand     func() float64
	sleep    Sleeper
}

// Option configures an Engine.
type Option func(*Engine)

// WithSearcher enables search-augmented escalation. A nil searcher leaves
// it disabled.
func WithSearcher(s search.Searcher) Option {
	return func(e *Engine) { e.searcher = s }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRand sets the source of the cache refresh draw. f must return
// values in [0,1).
func WithRand(f func() float64) Option {
	return func(e *Engine) { e.rand = f }
}

// WithSleeper replaces the backoff wait.
func WithSleeper(s Sleeper) Option {
	return func(e *Engine) { e.sleep = s }
}

// New creates an Engine.
func New(repo store.AnswerRepo, inv answerer.Invoker, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:   repo,
		invoker: inv,
		cfg:     cfg,
		log:     zap.NewNop(),
		rand:    rand.Float64,
		sleep:   sleepContext,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SearchEnabled reports whether escalation can use search.
func (e *Engine) SearchEnabled() bool {
	return e.searcher != nil
}

// Resolve runs one request to completion. Every failure is a
// *ResolutionError.
func (e *Engine) Resolve(ctx context.Context, req Request) (*Outcome, error) {
	q := req.Question
	if strings.TrimSpace(q.Title) == "" {
		return nil, &ResolutionError{Kind: KindInvalidQuestion, Message: "题目不能为空"}
	}
	if q.Type.NeedsOptions() && len(q.Options) == 0 {
		return nil, &ResolutionError{Kind: KindInvalidQuestion, Message: "选择题缺少选项"}
	}

	key := q.Key(e.cfg.IncludeTypeInKey)
	log := e.log.With(zap.String("key", key), zap.String("type", string(q.Type)))

	if !req.SkipCache {
		if out := e.lookup(ctx, key, log); out != nil {
			e.persist(ctx, key, q, out.Answer, log)
			return out, nil
		}
	}

	out, err := e.answer(ctx, q, log)
	if err != nil {
		return nil, err
	}
	out.Key = key
	e.persist(ctx, key, q, out.Answer, log)
	return out, nil
}

// lookup returns a cache outcome, or nil when the model must be asked.
func (e *Engine) lookup(ctx context.Context, key string, log *zap.Logger) *Outcome {
	entry, err := e.store.Get(ctx, key)
	if err != nil {
		log.Warn("cache lookup failed, treating as miss", zap.Error(err))
		return nil
	}
	if entry == nil {
		log.Debug("cache miss")
		return nil
	}
	if e.cfg.RetryProbability > 0 && e.rand() < e.cfg.RetryProbability {
		log.Info("cache hit ignored for refresh", zap.String("cached", entry.Answer))
		return nil
	}
	log.Info("cache hit", zap.String("answer", entry.Answer))
	return &Outcome{Answer: entry.Answer, Source: SourceCache, Key: key}
}

// answer drives the model until it produces a valid answer or the budget
// runs out. The first call has no context; a low-confidence result
// triggers one escalation, and rejected answers are retried on the path
// that produced them.
func (e *Engine) answer(ctx context.Context, q question.Question, log *zap.Logger) (*Outcome, error) {
	out := &Outcome{Source: SourceDirect}
	budget := NewBudget(e.cfg.MaxAttempts)

	var (
		extra     *answerer.Extra
		escalated bool
	)
	for {
		res, next, err := e.invoke(ctx, q, extra, budget, out, log)
		budget = next
		if err != nil {
			return nil, err
		}

		if !escalated && res.Confidence < e.cfg.ConfidenceThreshold {
			log.Info("low confidence, escalating",
				zap.String("answer", res.Answer),
				zap.Float64("confidence", res.Confidence),
				zap.Float64("threshold", e.cfg.ConfidenceThreshold),
			)
			extra = e.escalate(ctx, q, *res, out, log)
			escalated = true
			continue
		}

		verr := answer.Validate(res.Answer, q.Type)
		if verr == nil {
			out.Answer = answer.Normalize(res.Answer)
			out.Confidence = res.Confidence
			log.Info("answer accepted",
				zap.String("answer", out.Answer),
				zap.String("source", string(out.Source)),
				zap.Float64("confidence", res.Confidence),
				zap.Int("model_calls", out.ModelCalls),
			)
			return out, nil
		}

		budget = budget.Spend()
		out.Failures = budget.Failures()
		log.Warn("answer rejected", zap.Error(verr), zap.Int("failures", budget.Failures()))
		if budget.Exhausted() {
			return nil, &ResolutionError{
				Kind:       KindValidationFailure,
				Message:    "LLM返回的答案格式不规范",
				Diagnostic: res.Answer,
				Err:        verr,
			}
		}
		if err := e.backoff(ctx, budget, nil); err != nil {
			return nil, upstreamError(err)
		}
	}
}

// invoke makes one successful model call, retrying backend failures
// against budget. A malformed reply is not a failure; it arrives with
// confidence 0.
func (e *Engine) invoke(ctx context.Context, q question.Question, extra *answerer.Extra, budget Budget, out *Outcome, log *zap.Logger) (*answerer.Result, Budget, error) {
	for {
		out.ModelCalls++
		res, err := e.invoker.Ask(ctx, q, extra)

		var malformed *answerer.ErrMalformedResponse
		switch {
		case err == nil:
			return res, budget, nil
		case errors.As(err, &malformed):
			log.Warn("malformed model response", zap.String("reason", malformed.Reason))
			if res == nil {
				res = &answerer.Result{}
			}
			res.Confidence = 0
			return res, budget, nil
		case ctx.Err() != nil || llm.IsCanceled(err):
			return nil, budget, upstreamError(err)
		case llm.IsNotConfigured(err):
			return nil, budget, &ResolutionError{
				Kind:    KindUpstreamFailure,
				Message: "LLM未配置",
				Err:     err,
			}
		}

		budget = budget.Spend()
		out.Failures = budget.Failures()
		log.Warn("model call failed", zap.Error(err), zap.Int("failures", budget.Failures()))
		if budget.Exhausted() {
			return nil, budget, &ResolutionError{
				Kind:    KindUpstreamFailure,
				Message: "LLM请求失败",
				Err:     err,
			}
		}
		if err := e.backoff(ctx, budget, err); err != nil {
			return nil, budget, upstreamError(err)
		}
	}
}

// escalate builds the context for the second call. Search is tried when
// configured; any error or empty result falls back to reanalysis.
func (e *Engine) escalate(ctx context.Context, q question.Question, prior answerer.Result, out *Outcome, log *zap.Logger) *answerer.Extra {
	extra := &answerer.Extra{Prior: prior, Threshold: e.cfg.ConfidenceThreshold}
	out.Source = SourceReanalyzed

	if e.searcher == nil {
		return extra
	}

	out.SearchCalls++
	snippets, err := e.searcher.Search(ctx, q)
	switch {
	case err != nil:
		log.Warn("search failed, reanalyzing instead", zap.Error(err))
	case len(snippets) == 0:
		log.Info("search returned nothing, reanalyzing instead")
	default:
		log.Debug("search returned snippets", zap.Int("count", len(snippets)))
		extra.Snippets = snippets
		out.Source = SourceSearch
	}
	return extra
}

func (e *Engine) backoff(ctx context.Context, budget Budget, cause error) error {
	d := budget.Backoff(e.cfg.BackoffUnit, e.cfg.MaxBackoff, llm.RetryAfter(cause))
	return e.sleep(ctx, d)
}

// persist writes the accepted answer. The write is detached from the
// request context so a caller that gives up mid-write cannot interrupt
// it; the store applies it atomically either way.
func (e *Engine) persist(ctx context.Context, key string, q question.Question, ans string, log *zap.Logger) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	err := e.store.Upsert(wctx, &store.AnswerEntry{
		Key:          key,
		Title:        q.Title,
		Options:      q.OptionsText(),
		QuestionType: string(q.Type),
		Answer:       ans,
	})
	if err != nil {
		log.Warn("save answer failed", zap.Error(err))
	}
}

func upstreamError(err error) error {
	return &ResolutionError{Kind: KindUpstreamFailure, Message: "请求已取消", Err: err}
}
