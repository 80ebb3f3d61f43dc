package port

import "context"

// LLM represents a language model for answer generation.
type LLM interface {
	// Complete generates text for the prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
