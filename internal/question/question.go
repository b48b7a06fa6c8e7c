// Package question builds the canonical form of an incoming quiz question
// and derives the cache key that identifies it.
package question

import (
	"fmt"
	"strings"
)

// Type is the closed set of question kinds the answerer understands.
type Type string

const (
	TypeSingle     Type = "single"
	TypeMultiple   Type = "multiple"
	TypeJudgement  Type = "judgement"
	TypeCompletion Type = "completion"
	TypeOther      Type = "other"
)

// typeAliases maps the labels seen in the wild to the closed enum.
// Keys are lowercased before lookup.
var typeAliases = map[string]Type{
	"single":     TypeSingle,
	"radio":      TypeSingle,
	"单选":         TypeSingle,
	"单选题":        TypeSingle,
	"multiple":   TypeMultiple,
	"checkbox":   TypeMultiple,
	"多选":         TypeMultiple,
	"多选题":        TypeMultiple,
	"judgement":  TypeJudgement,
	"judgment":   TypeJudgement,
	"truefalse":  TypeJudgement,
	"判断":         TypeJudgement,
	"判断题":        TypeJudgement,
	"completion": TypeCompletion,
	"fill":       TypeCompletion,
	"blank":      TypeCompletion,
	"填空":         TypeCompletion,
	"填空题":        TypeCompletion,
}

// ParseType collapses a raw type label to the closed enum.
// Unrecognized or empty labels map to TypeOther.
func ParseType(label string) Type {
	if t, ok := typeAliases[strings.ToLower(strings.TrimSpace(label))]; ok {
		return t
	}
	return TypeOther
}

// NeedsOptions reports whether questions of this type must carry options.
func (t Type) NeedsOptions() bool {
	return t == TypeSingle || t == TypeMultiple
}

// Question is the normalized, immutable form of a request.
type Question struct {
	Title   string
	Options []string
	Type    Type
}

// OptionsText renders the options the way they are persisted and shown to
// the model: one option per line. Returns "" when there are none.
func (q Question) OptionsText() string {
	return strings.Join(q.Options, "\n")
}

// ErrInvalidQuestion reports input that cannot be turned into a Question.
type ErrInvalidQuestion struct {
	Reason string
}

func (e *ErrInvalidQuestion) Error() string {
	return fmt.Sprintf("invalid question: %s", e.Reason)
}

// Normalize trims the raw input and validates it. Options are kept in the
// order given; blank entries are dropped.
func Normalize(title string, options []string, typeLabel string) (Question, error) {
	q := Question{
		Title: strings.TrimSpace(title),
		Type:  ParseType(typeLabel),
	}
	if q.Title == "" {
		return Question{}, &ErrInvalidQuestion{Reason: "title is empty"}
	}

	for _, o := range options {
		o = strings.TrimSpace(o)
		if o != "" {
			q.Options = append(q.Options, o)
		}
	}

	if q.Type.NeedsOptions() && len(q.Options) == 0 {
		return Question{}, &ErrInvalidQuestion{
			Reason: fmt.Sprintf("%s question requires options", q.Type),
		}
	}
	return q, nil
}

// SplitOptions turns free-text options (one per line, as sent by the
// userscript) into a list.
func SplitOptions(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
