package llm

import (
	"errors"
	"testing"
	"time"

	"google.golang.org/genai"
)

func TestGeminiModelMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"gemini-flash", "gemini-2.5-flash"},
		{"gemini-pro", "gemini-2.5-pro"},
		{"gemini-lite", "gemini-2.5-flash-lite"},
		{"gemini-2.0-flash", "gemini-2.0-flash"}, // Pass-through
	}
	for _, tt := range tests {
		got := resolveModel(tt.input, geminiModels)
		if got != tt.expected {
			t.Errorf("resolveModel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestBuildGeminiSchema(t *testing.T) {
	def := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer":     map[string]any{"type": "string"},
			"confidence": map[string]any{"type": "number"},
			"choice":     map[string]any{"type": "string", "enum": []any{"A", "B", "C", "D"}},
			"attempt":    map[string]any{"type": "integer"},
			"blanks": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []any{"answer", "confidence"},
	}

	schema := buildGeminiSchema(def)

	if schema.Type != "OBJECT" {
		t.Fatalf("expected OBJECT type, got %s", schema.Type)
	}
	if len(schema.Properties) != 5 {
		t.Fatalf("expected 5 properties, got %d", len(schema.Properties))
	}
	if schema.Properties["answer"].Type != "STRING" {
		t.Fatalf("expected STRING for answer, got %s", schema.Properties["answer"].Type)
	}
	if schema.Properties["confidence"].Type != "NUMBER" {
		t.Fatalf("expected NUMBER for confidence, got %s", schema.Properties["confidence"].Type)
	}
	if schema.Properties["attempt"].Type != "INTEGER" {
		t.Fatalf("expected INTEGER for attempt, got %s", schema.Properties["attempt"].Type)
	}
	if len(schema.Properties["choice"].Enum) != 4 {
		t.Fatalf("expected 4 enum values, got %d", len(schema.Properties["choice"].Enum))
	}
	if schema.Properties["blanks"].Type != "ARRAY" {
		t.Fatalf("expected ARRAY for blanks, got %s", schema.Properties["blanks"].Type)
	}
	if schema.Properties["blanks"].Items.Type != "STRING" {
		t.Fatalf("expected STRING for blanks items, got %s", schema.Properties["blanks"].Items.Type)
	}
	if len(schema.Required) != 2 {
		t.Fatalf("expected 2 required fields, got %d", len(schema.Required))
	}
}

func TestGeminiRetryDelay(t *testing.T) {
	details := []map[string]any{
		{"@type": "type.googleapis.com/google.rpc.QuotaFailure"},
		{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "19s"},
	}
	if got := geminiRetryDelay(details); got != 19*time.Second {
		t.Fatalf("geminiRetryDelay = %v, want 19s", got)
	}
	if got := geminiRetryDelay(nil); got != 0 {
		t.Fatalf("geminiRetryDelay(nil) = %v, want 0", got)
	}
}

func TestMapGeminiError(t *testing.T) {
	err := mapGeminiError(genai.APIError{
		Code:    429,
		Status:  "RESOURCE_EXHAUSTED",
		Details: []map[string]any{{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "2s"}},
	})
	if got := RetryAfter(err); got != 2*time.Second {
		t.Fatalf("RetryAfter = %v, want 2s (err %v)", got, err)
	}

	err = mapGeminiError(genai.APIError{Code: 503, Status: "UNAVAILABLE"})
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrProviderUnavailable, got %T", err)
	}
}
