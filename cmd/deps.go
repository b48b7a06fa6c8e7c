package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/abhisek/answerbot/internal/answerer"
	"github.com/abhisek/answerbot/internal/config"
	"github.com/abhisek/answerbot/internal/engine"
	"github.com/abhisek/answerbot/internal/llm"
	"github.com/abhisek/answerbot/internal/logging"
	"github.com/abhisek/answerbot/internal/search"
	"github.com/abhisek/answerbot/internal/store"
)

// stack is everything a command needs to resolve or inspect answers.
type stack struct {
	cfg     *config.Config
	log     *zap.Logger
	dbPath  string
	db      *store.Store
	answers store.AnswerRepo
	closers []func() error
}

// openStack loads the SQLite database (always used for the LLM event log)
// and the configured answer store.
func openStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &stack{cfg: cfg, log: log, dbPath: dbPath, db: db}
	s.closers = append(s.closers, db.Close)

	switch cfg.Store.Driver {
	case config.DriverRedis:
		repo, err := store.ConnectRedis(ctx, cfg.Store.RedisURL, cfg.Store.RedisPrefix)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.answers = repo
		s.closers = append(s.closers, repo.Close)
	case config.DriverMemory:
		s.answers = store.NewMemoryAnswerRepo(cfg.Store.MemoryTTL)
	default:
		s.answers = db.AnswerRepo()
	}
	return s, nil
}

// storeLocation describes where answers live, for banners and stats.
func (s *stack) storeLocation() string {
	switch s.cfg.Store.Driver {
	case config.DriverRedis:
		return "redis " + s.cfg.Store.RedisURL
	case config.DriverMemory:
		return "memory"
	default:
		return s.dbPath
	}
}

// Close releases resources in reverse order of acquisition.
func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	_ = s.log.Sync()
	return errors.Join(errs...)
}

// newEngine builds the provider chain and the resolution engine. A missing
// or broken provider configuration is not fatal: requests then fail with an
// upstream error that names the cause.
func (s *stack) newEngine(ctx context.Context) *engine.Engine {
	provider, err := llm.NewProvider(ctx, s.cfg.LLM, s.db.EventRepo(), s.log)
	if err != nil {
		s.log.Warn("LLM provider not configured, answers will be unavailable", zap.Error(err))
		mock := llm.NewMockProvider()
		mock.SetFallback(llm.MockResponse{Err: &llm.ErrNotConfigured{Err: err}})
		provider = mock
	}

	opts := []engine.Option{engine.WithLogger(s.log)}
	if s.cfg.Search.Enabled() {
		opts = append(opts, engine.WithSearcher(search.NewExaClient(s.cfg.Search)))
	}

	inv := answerer.New(provider, s.cfg.Answerer)
	return engine.New(s.answers, inv, s.cfg.Engine, opts...)
}
