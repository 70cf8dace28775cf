package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"Laira/pkg/circuitbreaker"
	"Laira/pkg/logger"
)

// figureAnalysisPrompt is the fixed analytic prompt used for scientific
// figure descriptions.
const figureAnalysisPrompt = `Analyze this scientific figure/image in detail. Focus on:
1. Type of visualization (graph, diagram, microscopy image, flow chart, etc.)
2. Key elements, labels, and data shown.
3. Main findings or patterns visible in the image.
4. Relationship to scientific concepts if evident.
5. Clear and concise description of the figure's scientific conclusion.

Provide a concise but thorough description suitable for understanding the figure's purpose and content.`

// Figure descriptions are factual; sampling stays near-deterministic and
// short.
const (
	figureAnalysisTemperature     = 0.2
	figureAnalysisMaxOutputTokens = 500
)

// Breaker settings for the GenAI API. Five consecutive transport
// failures stop calls for the cooldown; two clean probes restore them.
const (
	breakerFailureThreshold = 5
	breakerSuccessThreshold = 2
	breakerCooldown         = 30 * time.Second
)

// Gemini is a Generator backed by the Google GenAI API.
type Gemini struct {
	client      *genai.Client
	modelName   string
	visionModel string
	breaker     *circuitbreaker.Breaker
	log         *logger.Logger
}

// NewGemini creates a Gemini client. visionModel may equal modelName when
// one model serves both text and multimodal calls.
func NewGemini(ctx context.Context, apiKey, modelName, visionModel string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	if visionModel == "" {
		visionModel = modelName
	}
	return &Gemini{
		client:      client,
		modelName:   modelName,
		visionModel: visionModel,
		breaker:     circuitbreaker.New(breakerFailureThreshold, breakerSuccessThreshold, breakerCooldown),
		log:         logger.New("gemini"),
	}, nil
}

// Generate produces text from a prompt with the given sampling
// parameters. A safety block surfaces as ErrSafetyBlocked and an empty
// candidate list as ErrEmptyResponse.
func (g *Gemini) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	model := g.client.GenerativeModel(g.modelName)
	applyParams(model, params)

	resp, err := g.call(ctx, model, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	text, err := responseText(resp)
	if err != nil {
		g.log.WithField("model", g.modelName).WithError(err).Warn("generation produced no usable text")
		return "", err
	}
	return text, nil
}

// AnalyzeFigure sends a JPEG image with the fixed figure-analysis prompt
// to the vision model.
func (g *Gemini) AnalyzeFigure(ctx context.Context, imageJPEG []byte) (string, error) {
	model := g.client.GenerativeModel(g.visionModel)
	applyParams(model, Params{
		Temperature:     figureAnalysisTemperature,
		MaxOutputTokens: figureAnalysisMaxOutputTokens,
	})

	resp, err := g.call(ctx, model,
		genai.Text(figureAnalysisPrompt),
		genai.ImageData("jpeg", imageJPEG),
	)
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

// call routes one API request through the circuit breaker. Only
// transport failures feed the breaker; blocked or empty responses are
// the API working as intended.
func (g *Gemini) call(ctx context.Context, model *genai.GenerativeModel, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	err := g.breaker.Do(func() error {
		var callErr error
		resp, callErr = model.GenerateContent(ctx, parts...)
		return callErr
	})
	return resp, err
}

// Close releases the underlying API client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

func applyParams(model *genai.GenerativeModel, params Params) {
	if params.Temperature > 0 {
		model.SetTemperature(params.Temperature)
	}
	if params.TopP > 0 {
		model.SetTopP(params.TopP)
	}
	if params.TopK > 0 {
		model.SetTopK(params.TopK)
	}
	if params.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(params.MaxOutputTokens)
	}
}

// responseText extracts the concatenated text parts of the first
// candidate, classifying blocked and empty outcomes.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("%w: %s", ErrSafetyBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: response suppressed", ErrSafetyBlocked)
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// compile-time check to ensure Gemini implements the Generator interface
var _ Generator = (*Gemini)(nil)
