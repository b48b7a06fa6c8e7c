package answerer

import "github.com/abhisek/answerbot/internal/llm"

// AnswerSchema defines the JSON schema for answer responses.
var AnswerSchema = &llm.Schema{
	Name:        "quiz-answer",
	Description: "The answer to a quiz question and how sure the model is about it",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer": map[string]any{
				"type":        "string",
				"description": "The answer only, in the exact format the question asks for",
			},
			"confidence": map[string]any{
				"type":        "number",
				"minimum":     0,
				"maximum":     1,
				"description": "Probability from 0 to 1 that the answer is correct",
			},
		},
		"required":             []any{"answer", "confidence"},
		"additionalProperties": false,
	},
}
