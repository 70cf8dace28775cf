package llm

import (
	"context"
	"errors"
)

var (
	// ErrSafetyBlocked is returned when the provider refuses a prompt or
	// suppresses a response due to its content policy.
	ErrSafetyBlocked = errors.New("generation blocked by safety settings")
	// ErrEmptyResponse is returned when the provider returns no usable
	// candidate text.
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// Params are the sampling parameters of a single generation call.
type Params struct {
	Temperature     float32
	TopP            float32
	TopK            int32
	MaxOutputTokens int32
}

// Generator defines the interface for text generation providers.
type Generator interface {
	// Generate produces text from a prompt with the given sampling
	// parameters.
	Generate(ctx context.Context, prompt string, params Params) (string, error)

	// AnalyzeFigure produces a textual description of a JPEG image using
	// a vision-capable model.
	AnalyzeFigure(ctx context.Context, imageJPEG []byte) (string, error)
}
