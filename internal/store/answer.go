package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

const (
	answerTable     = "answer_cache"
	colKey          = "question_hash"
	colTitle        = "title"
	colOptions      = "options"
	colQuestionType = "question_type"
	colAnswer       = "answer"
	colCreatedAt    = "created_at"
)

var answerColumns = []string{colKey, colTitle, colOptions, colQuestionType, colAnswer, colCreatedAt}

// sqliteAnswerRepo keeps answers in the answer_cache table. Each Upsert is a
// single INSERT ... ON CONFLICT statement, so a row is never observed half
// written. SQLite serializes writers at the file level; statements are short
// and no transaction is held open across calls.
type sqliteAnswerRepo struct {
	db *sql.DB
	counters
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

func (r *sqliteAnswerRepo) Get(ctx context.Context, key string) (*AnswerEntry, error) {
	b := builder()
	query, args := b.Select(answerColumns...).
		From(b.Table(answerTable)).
		Where(entsql.EQ(colKey, key)).
		Limit(1).
		Query()

	var (
		e                  AnswerEntry
		title, opts, qtype sql.NullString
		createdAt          sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&e.Key, &title, &opts, &qtype, &e.Answer, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		r.record(false)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get answer %s: %w", key, err)
	}
	r.record(true)

	e.Title = title.String
	e.Options = opts.String
	e.QuestionType = qtype.String
	e.CreatedAt = createdAt.Time
	return &e, nil
}

func (r *sqliteAnswerRepo) Upsert(ctx context.Context, e *AnswerEntry) error {
	row := *e
	stamp(&row)

	query, args := builder().Insert(answerTable).
		Columns(answerColumns...).
		Values(row.Key, row.Title, row.Options, row.QuestionType, row.Answer, row.CreatedAt).
		OnConflict(
			entsql.ConflictColumns(colKey),
			entsql.ResolveWithNewValues(),
		).
		Query()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert answer %s: %w", row.Key, err)
	}
	return nil
}

func (r *sqliteAnswerRepo) Stats(ctx context.Context) (AnswerStats, error) {
	b := builder()
	query, args := b.Select(entsql.Count("*")).From(b.Table(answerTable)).Query()

	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return AnswerStats{}, fmt.Errorf("count answers: %w", err)
	}
	return r.stats("sqlite", n), nil
}

func (r *sqliteAnswerRepo) Clear(ctx context.Context) (int64, error) {
	query, args := builder().Delete(answerTable).Query()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear answers: %w", err)
	}
	return res.RowsAffected()
}
