package answerer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// parseResult reads a model reply. It always returns a Result; the error,
// when set, is an *ErrMalformedResponse and the Result carries confidence 0.
func parseResult(raw []byte) (*Result, error) {
	text := strings.TrimSpace(string(raw))
	obj, ok := extractObject(text)
	if !ok {
		// Plain text reply: take it as the answer with no confidence.
		return &Result{Answer: text}, &ErrMalformedResponse{Raw: text, Reason: "response is not a JSON object"}
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return &Result{Answer: text}, &ErrMalformedResponse{Raw: text, Reason: "response is not a JSON object"}
	}

	res := &Result{}
	switch a := fields["answer"].(type) {
	case string:
		res.Answer = strings.TrimSpace(a)
	case float64:
		res.Answer = strconv.FormatFloat(a, 'f', -1, 64)
	case nil:
		return res, &ErrMalformedResponse{Raw: text, Reason: "answer is missing"}
	default:
		return res, &ErrMalformedResponse{Raw: text, Reason: fmt.Sprintf("answer has unexpected type %T", a)}
	}

	conf, err := readConfidence(fields["confidence"])
	if err != nil {
		return res, &ErrMalformedResponse{Raw: text, Reason: err.Error()}
	}
	res.Confidence = conf
	return res, nil
}

func readConfidence(v any) (float64, error) {
	var f float64
	switch c := v.(type) {
	case float64:
		f = c
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return 0, fmt.Errorf("confidence %q is not a number", c)
		}
		f = parsed
	case nil:
		return 0, fmt.Errorf("confidence is missing")
	default:
		return 0, fmt.Errorf("confidence has unexpected type %T", v)
	}
	if math.IsNaN(f) || f < 0 || f > 1 {
		return 0, fmt.Errorf("confidence %v is outside [0,1]", f)
	}
	return f, nil
}

// extractObject finds the outermost {...} in s, which also strips markdown
// code fences some models wrap around JSON.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
