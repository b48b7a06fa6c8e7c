package answerer

// Config controls the behavior of the LLMInvoker.
type Config struct {
	// MaxTokens is the token budget for the LLM response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls LLM output randomness (0.0-1.0).
	Temperature float64 `yaml:"temperature"`
}

// DefaultConfig returns the recommended defaults for answer calls.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   500,
		Temperature: 0.3,
	}
}
