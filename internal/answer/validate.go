// Package answer checks that a candidate answer string has the shape the
// question type demands. The checks are purely syntactic.
package answer

import (
	"fmt"
	"strings"

	"github.com/abhisek/answerbot/internal/question"
)

// Delimiter joins the parts of multiple-choice and fill-in-blank answers.
const Delimiter = "#"

// Judgement tokens accepted for true/false questions.
const (
	JudgementTrue  = "正确"
	JudgementFalse = "错误"
)

// ValidationError describes why an answer was rejected.
type ValidationError struct {
	Type    question.Type
	Answer  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s answer %q: %s", e.Type, e.Answer, e.Message)
}

// Normalize trims surrounding whitespace. Validate operates on the
// normalized form, and that form is what gets persisted.
func Normalize(s string) string {
	return strings.TrimSpace(s)
}

// Validate returns nil if ans is well formed for t.
func Validate(ans string, t question.Type) error {
	ans = Normalize(ans)
	fail := func(format string, args ...any) error {
		return &ValidationError{Type: t, Answer: ans, Message: fmt.Sprintf(format, args...)}
	}

	if ans == "" {
		return fail("answer is empty")
	}

	switch t {
	case question.TypeSingle:
		if !isLetter(ans) {
			return fail("expected exactly one letter A-Z")
		}

	case question.TypeMultiple:
		parts := strings.Split(ans, Delimiter)
		if len(parts) < 2 {
			return fail("expected at least two letters joined by %q", Delimiter)
		}
		for i, p := range parts {
			if p == "" {
				return fail("segment %d is empty", i+1)
			}
			if !isLetter(p) {
				return fail("segment %d (%q) is not a letter A-Z", i+1, p)
			}
		}

	case question.TypeJudgement:
		if ans != JudgementTrue && ans != JudgementFalse {
			return fail("expected %q or %q", JudgementTrue, JudgementFalse)
		}

	case question.TypeCompletion:
		for i, p := range strings.Split(ans, Delimiter) {
			if strings.TrimSpace(p) == "" {
				return fail("blank %d is empty", i+1)
			}
		}
	}

	return nil
}

func isLetter(s string) bool {
	return len(s) == 1 && s[0] >= 'A' && s[0] <= 'Z'
}
