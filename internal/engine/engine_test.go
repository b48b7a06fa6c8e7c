package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/answerbot/internal/answerer"
	"github.com/abhisek/answerbot/internal/llm"
	"github.com/abhisek/answerbot/internal/question"
	"github.com/abhisek/answerbot/internal/store"
)

type step struct {
	res *answerer.Result
	err error
}

func ok(ans string, conf float64) step {
	return step{res: &answerer.Result{Answer: ans, Confidence: conf}}
}

func fail(err error) step {
	return step{err: err}
}

var errBackend = &answerer.ErrBackendUnavailable{Err: errors.New("connection refused")}

// fakeInvoker replays steps in order and records the context of each call.
type fakeInvoker struct {
	mu     sync.Mutex
	steps  []step
	extras []*answerer.Extra
}

func (f *fakeInvoker) Ask(_ context.Context, _ question.Question, extra *answerer.Extra) (*answerer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extras = append(f.extras, extra)
	if len(f.steps) == 0 {
		return nil, errBackend
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	if s.res != nil {
		r := *s.res
		return &r, s.err
	}
	return nil, s.err
}

func (f *fakeInvoker) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.extras)
}

type fakeSearcher struct {
	snippets []string
	err      error
	calls    int
}

func (f *fakeSearcher) Search(context.Context, question.Question) ([]string, error) {
	f.calls++
	return f.snippets, f.err
}

// countingRepo wraps a memory repo to count writes.
type countingRepo struct {
	*store.MemoryAnswerRepo
	mu      sync.Mutex
	upserts int
	getErr  error
}

func newCountingRepo() *countingRepo {
	return &countingRepo{MemoryAnswerRepo: store.NewMemoryAnswerRepo(0)}
}

func (r *countingRepo) Get(ctx context.Context, key string) (*store.AnswerEntry, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.MemoryAnswerRepo.Get(ctx, key)
}

func (r *countingRepo) Upsert(ctx context.Context, e *store.AnswerEntry) error {
	r.mu.Lock()
	r.upserts++
	r.mu.Unlock()
	return r.MemoryAnswerRepo.Upsert(ctx, e)
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func singleQ() question.Question {
	return question.Question{
		Title:   "1+1=?",
		Options: []string{"A. 1", "B. 2"},
		Type:    question.TypeSingle,
	}
}

type harness struct {
	inv    *fakeInvoker
	repo   *countingRepo
	sleeps *sleepRecorder
	engine *Engine
}

func newHarness(cfg Config, steps []step, opts ...Option) *harness {
	h := &harness{
		inv:    &fakeInvoker{steps: steps},
		repo:   newCountingRepo(),
		sleeps: &sleepRecorder{},
	}
	opts = append([]Option{WithSleeper(h.sleeps.sleep), WithRand(func() float64 { return 0.5 })}, opts...)
	h.engine = New(h.repo, h.inv, cfg, opts...)
	return h
}

func (h *harness) seed(t *testing.T, q question.Question, ans string) {
	t.Helper()
	require.NoError(t, h.repo.MemoryAnswerRepo.Upsert(context.Background(), &store.AnswerEntry{
		Key:    q.Key(false),
		Title:  q.Title,
		Answer: ans,
	}))
}

func TestScenarioA_DirectHighConfidence(t *testing.T) {
	h := newHarness(DefaultConfig(), []step{ok("B", 0.9)})

	out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	require.NoError(t, err)
	assert.Equal(t, "B", out.Answer)
	assert.Equal(t, SourceDirect, out.Source)
	assert.Equal(t, 1, h.inv.calls())
	assert.Equal(t, 1, h.repo.upserts)
	assert.Equal(t, singleQ().Key(false), out.Key)

	saved, err := h.repo.Get(context.Background(), out.Key)
	require.NoError(t, err)
	assert.Equal(t, "B", saved.Answer)
	assert.Equal(t, "A. 1\nB. 2", saved.Options)
	assert.Equal(t, "single", saved.QuestionType)
}

func TestScenarioB_SearchAugmented(t *testing.T) {
	s := &fakeSearcher{snippets: []string{"【结果 1】\n标题: 1+1"}}
	h := newHarness(DefaultConfig(), []step{ok("A", 0.3), ok("B", 0.4)}, WithSearcher(s))

	out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	require.NoError(t, err)
	assert.Equal(t, "B", out.Answer)
	assert.Equal(t, SourceSearch, out.Source)
	assert.Equal(t, 2, h.inv.calls())
	assert.Equal(t, 1, s.calls)
	assert.Equal(t, 1, out.SearchCalls)

	require.Len(t, h.inv.extras, 2)
	assert.Nil(t, h.inv.extras[0])
	second := h.inv.extras[1]
	require.NotNil(t, second)
	assert.Equal(t, s.snippets, second.Snippets)
	assert.Equal(t, "A", second.Prior.Answer)
	assert.InDelta(t, 0.3, second.Prior.Confidence, 1e-9)
	assert.InDelta(t, 0.7, second.Threshold, 1e-9)
}

func TestScenarioC_ReanalysisWithoutSearch(t *testing.T) {
	h := newHarness(DefaultConfig(), []step{ok("A", 0.2), ok("B", 0.1)})

	out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	require.NoError(t, err)
	assert.Equal(t, SourceReanalyzed, out.Source)
	assert.Equal(t, "B", out.Answer)
	assert.Equal(t, 2, h.inv.calls())
	assert.Zero(t, out.SearchCalls)
	assert.False(t, h.inv.extras[1].Searched())
}

func TestScenarioD_CacheHit(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	h.seed(t, singleQ(), "B")

	out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, out.Source)
	assert.Equal(t, "B", out.Answer)
	assert.Zero(t, h.inv.calls())
	assert.Equal(t, 1, h.repo.upserts, "cache outcomes are written back")
}

func TestScenarioE_BackendFailsTwice(t *testing.T) {
	cfg := DefaultConfig()
	h := newHarness(cfg, []step{fail(errBackend), fail(errBackend), ok("B", 0.95)})

	out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	require.NoError(t, err)
	assert.Equal(t, "B", out.Answer)
	assert.Equal(t, 3, h.inv.calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.sleeps.waits)
}

func TestBackendExhaustion(t *testing.T) {
	h := newHarness(DefaultConfig(), []step{fail(errBackend), fail(errBackend), fail(errBackend), ok("B", 1)})

	_, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	var rerr *ResolutionError
	require.True(t, errors.As(err, &rerr), "got %v", err)
	assert.Equal(t, KindUpstreamFailure, rerr.Kind)
	assert.Equal(t, 3, h.inv.calls())
	assert.Zero(t, h.repo.upserts)
	assert.ErrorIs(t, err, errBackend)
	assert.Contains(t, rerr.Public(), "LLM请求失败: ")
}

func TestMissingProviderFailsWithoutRetry(t *testing.T) {
	missing := &answerer.ErrBackendUnavailable{
		Err: &llm.ErrNotConfigured{Err: errors.New("OPENAI_API_KEY is required")},
	}
	h := newHarness(DefaultConfig(), []step{fail(missing), ok("B", 1)})

	_, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	var rerr *ResolutionError
	require.True(t, errors.As(err, &rerr), "got %v", err)
	assert.Equal(t, KindUpstreamFailure, rerr.Kind)
	assert.Equal(t, 1, h.inv.calls())
	assert.Empty(t, h.sleeps.waits)
	assert.Contains(t, rerr.Public(), "OPENAI_API_KEY is required")
}

func TestRetryProbability(t *testing.T) {
	t.Run("zero never refreshes", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RetryProbability = 0
		h := newHarness(cfg, nil, WithRand(func() float64 { return 0 }))
		h.seed(t, singleQ(), "B")

		for i := 0; i < 5; i++ {
			out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
			require.NoError(t, err)
			assert.Equal(t, SourceCache, out.Source)
		}
		assert.Zero(t, h.inv.calls())
	})

	t.Run("one always refreshes", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RetryProbability = 1
		h := newHarness(cfg, []step{ok("A", 0.9)}, WithRand(func() float64 { return 0.999 }))
		h.seed(t, singleQ(), "B")

		out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
		require.NoError(t, err)
		assert.Equal(t, SourceDirect, out.Source)
		assert.Equal(t, "A", out.Answer)
		assert.Equal(t, 1, h.inv.calls())

		saved, _ := h.repo.Get(context.Background(), out.Key)
		assert.Equal(t, "A", saved.Answer)
	})

	t.Run("draw below probability refreshes", func(t *testing.T) {
		h := newHarness(DefaultConfig(), []step{ok("A", 0.9)}, WithRand(func() float64 { return 0.05 }))
		h.seed(t, singleQ(), "B")

		out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
		require.NoError(t, err)
		assert.Equal(t, SourceDirect, out.Source)
	})
}

func TestSkipCacheAlwaysMisses(t *testing.T) {
	h := newHarness(DefaultConfig(), []step{ok("A", 0.9)}, WithRand(func() float64 { return 0.99 }))
	h.seed(t, singleQ(), "B")

	out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ(), SkipCache: true})
	require.NoError(t, err)
	assert.Equal(t, SourceDirect, out.Source)
	assert.Equal(t, 1, h.inv.calls())
}

func TestConfidenceThresholdBoundary(t *testing.T) {
	h := newHarness(DefaultConfig(), []step{ok("B", 0.7)})
	out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	require.NoError(t, err)
	assert.Equal(t, SourceDirect, out.Source, "confidence equal to threshold is accepted")

	h = newHarness(DefaultConfig(), []step{ok("B", 0.6999), ok("B", 0.9)})
	out, err = h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	require.NoError(t, err)
	assert.Equal(t, SourceReanalyzed, out.Source)
}

func TestEscalatesAtMostOnce(t *testing.T) {
	s := &fakeSearcher{snippets: []string{"s"}}
	h := newHarness(DefaultConfig(), []step{ok("B", 0.1), ok("B", 0.05)}, WithSearcher(s))

	out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	require.NoError(t, err)
	assert.Equal(t, "B", out.Answer)
	assert.InDelta(t, 0.05, out.Confidence, 1e-9)
	assert.Equal(t, 2, h.inv.calls())
	assert.Equal(t, 1, s.calls)
}

func TestSearchFailureFallsBackToReanalysis(t *testing.T) {
	tests := []struct {
		name     string
		searcher *fakeSearcher
	}{
		{"error", &fakeSearcher{err: errors.New("HTTP 500")}},
		{"empty", &fakeSearcher{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(DefaultConfig(), []step{ok("A", 0.1), ok("B", 0.9)}, WithSearcher(tt.searcher))

			out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
			require.NoError(t, err)
			assert.Equal(t, SourceReanalyzed, out.Source)
			assert.Equal(t, 1, tt.searcher.calls)
			assert.Empty(t, h.inv.extras[1].Snippets)
		})
	}
}

func TestValidationRetrySamePath(t *testing.T) {
	s := &fakeSearcher{snippets: []string{"s"}}
	h := newHarness(DefaultConfig(), []step{ok("A", 0.2), ok("答案是B", 0.9), ok("B", 0.9)}, WithSearcher(s))

	out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	require.NoError(t, err)
	assert.Equal(t, "B", out.Answer)
	assert.Equal(t, SourceSearch, out.Source)
	assert.Equal(t, 3, h.inv.calls())
	assert.Equal(t, 1, s.calls, "snippets are reused on retry")
	assert.Equal(t, h.inv.extras[1], h.inv.extras[2])
	assert.Equal(t, []time.Duration{time.Second}, h.sleeps.waits)
}

func TestValidationExhaustion(t *testing.T) {
	h := newHarness(DefaultConfig(), []step{ok("AB", 0.9), ok("AB", 0.9), ok("AC", 0.9)})

	_, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	var rerr *ResolutionError
	require.True(t, errors.As(err, &rerr), "got %v", err)
	assert.Equal(t, KindValidationFailure, rerr.Kind)
	assert.Equal(t, "AC", rerr.Diagnostic)
	assert.Equal(t, "LLM返回的答案格式不规范", rerr.Public())
	assert.Equal(t, 3, h.inv.calls())
	assert.Zero(t, h.repo.upserts)
}

func TestSharedBudget(t *testing.T) {
	// One backend failure plus two rejected answers exhaust three attempts.
	h := newHarness(DefaultConfig(), []step{fail(errBackend), ok("x", 0.9), ok("y", 0.9), ok("B", 0.9)})

	_, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	var rerr *ResolutionError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, KindValidationFailure, rerr.Kind)
	assert.Equal(t, 3, h.inv.calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.sleeps.waits)
}

func TestModelCallsBounded(t *testing.T) {
	// Worst case: low-confidence first pass, then every escalated call
	// rejected. Calls never exceed MaxAttempts + 1.
	steps := []step{ok("A", 0.1)}
	for i := 0; i < 10; i++ {
		steps = append(steps, ok("bad", 0.9))
	}
	s := &fakeSearcher{snippets: []string{"s"}}
	h := newHarness(DefaultConfig(), steps, WithSearcher(s))

	_, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	require.Error(t, err)
	assert.Equal(t, 4, h.inv.calls())
	assert.Equal(t, 1, s.calls)
}

func TestMalformedResponseTreatedAsZeroConfidence(t *testing.T) {
	malformed := step{
		res: &answerer.Result{Answer: "B", Confidence: 0.99},
		err: &answerer.ErrMalformedResponse{Reason: "confidence missing"},
	}
	h := newHarness(DefaultConfig(), []step{malformed, ok("B", 0.8)})

	out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	require.NoError(t, err)
	assert.Equal(t, SourceReanalyzed, out.Source)
	assert.Zero(t, h.inv.extras[1].Prior.Confidence)
	assert.Empty(t, h.sleeps.waits)
}

func TestRateLimitHintRaisesBackoff(t *testing.T) {
	rl := &answerer.ErrBackendUnavailable{Err: &llm.ErrRateLimit{RetryAfter: 4 * time.Second, Err: errors.New("429")}}
	h := newHarness(DefaultConfig(), []step{fail(rl), ok("B", 0.9)})

	_, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{4 * time.Second}, h.sleeps.waits)
}

func TestCanceledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := newHarness(DefaultConfig(), []step{fail(context.Canceled), ok("B", 0.9)})

	_, err := h.engine.Resolve(ctx, Request{Question: singleQ(), SkipCache: true})
	var rerr *ResolutionError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, KindUpstreamFailure, rerr.Kind)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, h.inv.calls())
}

func TestInvalidQuestion(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	for _, q := range []question.Question{
		{Title: "", Type: question.TypeJudgement},
		{Title: "   ", Type: question.TypeOther},
		{Title: "\t\n", Type: question.TypeCompletion},
		{Title: "pick", Type: question.TypeMultiple},
	} {
		_, err := h.engine.Resolve(context.Background(), Request{Question: q})
		var rerr *ResolutionError
		require.True(t, errors.As(err, &rerr))
		assert.Equal(t, KindInvalidQuestion, rerr.Kind)
	}
	assert.Zero(t, h.inv.calls())
	assert.Zero(t, h.repo.upserts)
}

func TestStoreReadErrorIsMiss(t *testing.T) {
	h := newHarness(DefaultConfig(), []step{ok("B", 0.9)})
	h.repo.getErr = errors.New("disk I/O error")

	out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	require.NoError(t, err)
	assert.Equal(t, SourceDirect, out.Source)
}

func TestIncludeTypeInKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IncludeTypeInKey = true
	h := newHarness(cfg, []step{ok("B", 0.9)})
	h.seed(t, singleQ(), "cached-under-untyped-key")

	out, err := h.engine.Resolve(context.Background(), Request{Question: singleQ()})
	require.NoError(t, err)
	assert.Equal(t, SourceDirect, out.Source)
	assert.Equal(t, singleQ().Key(true), out.Key)
}

func TestConcurrentResolutions(t *testing.T) {
	inv := &fakeInvoker{}
	for i := 0; i < 20; i++ {
		inv.steps = append(inv.steps, ok("正确", 0.9))
	}
	repo := newCountingRepo()
	e := New(repo, inv, DefaultConfig(), WithSleeper((&sleepRecorder{}).sleep))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := question.Question{Title: string(rune('a' + i)), Type: question.TypeJudgement}
			out, err := e.Resolve(context.Background(), Request{Question: q})
			assert.NoError(t, err)
			if out != nil {
				assert.Equal(t, "正确", out.Answer)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, repo.upserts)
}
