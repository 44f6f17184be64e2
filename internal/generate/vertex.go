package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/syllabusflow/internal/gcp"
	"github.com/Lllllllleong/syllabusflow/internal/models"
)

// VertexConfig configures the Vertex AI Gemini provider. The project ID is the
// credential: without it no client is created.
// Parameters override any generation settings in VertexModelConfig; the zero
// value means DefaultModelParameters.
type VertexConfig struct {
	gcp.VertexModelConfig
	Parameters ModelParameters
	Timeout    time.Duration
}

// Vertex generates syllabi with a Vertex AI GenerativeModel.
type Vertex struct {
	client  *gcp.VertexClient
	timeout time.Duration
	logger  *slog.Logger
}

// NewVertex builds the provider. A missing project ID is not an error here;
// it surfaces from Generate as a missing-credential failure.
func NewVertex(ctx context.Context, cfg VertexConfig, logger *slog.Logger) (*Vertex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	v := &Vertex{timeout: cfg.Timeout, logger: logger.With("provider", "vertex", "model", cfg.Model)}
	if cfg.ProjectID == "" {
		return v, nil
	}
	client, err := gcp.NewVertexClient(ctx, cfg.modelConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	v.client = client
	return v, nil
}

// modelConfig copies the request parameters into the client configuration so
// Vertex sends the same settings as the REST provider.
func (cfg VertexConfig) modelConfig() gcp.VertexModelConfig {
	params := cfg.Parameters
	if params == (ModelParameters{}) {
		params = DefaultModelParameters()
	}
	mc := cfg.VertexModelConfig
	mc.Temperature = params.Temperature
	mc.MaxOutputTokens = params.MaxOutputTokens
	mc.ResponseMIMEType = params.ResponseMIMEType
	return mc
}

func (v *Vertex) Generate(ctx context.Context, prompt string) (string, error) {
	if v.client == nil {
		return "", models.MissingCredentialError("PROJECT_ID is not set for the Vertex AI provider")
	}

	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	resp, err := v.client.SyllabusModel.GenerateContent(callCtx, genai.Text(prompt))
	if err != nil {
		v.logger.Error("Call to Vertex AI failed", "error", err, "elapsed", time.Since(start).String())
		return "", vertexError(ctx, callCtx, err)
	}
	text, err := responseText(resp)
	if err != nil {
		return "", err
	}
	v.logger.Info("Vertex AI generation complete.", "elapsed", time.Since(start).String(), "chars", len(text))
	return text, nil
}

func (v *Vertex) Close() error {
	if v.client == nil {
		return nil
	}
	return v.client.Close()
}

func vertexError(parent, call context.Context, err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return models.EmptyResponseError(blocked.Error())
	}
	return classifyCallError(parent, call, err)
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", models.EmptyResponseError("response was empty")
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockedReasonUnspecified {
		reason := fb.BlockReason.String()
		if fb.BlockReasonMessage != "" {
			reason += ": " + fb.BlockReasonMessage
		}
		return "", models.EmptyResponseError("prompt blocked: " + reason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", models.EmptyResponseError("response contained no candidates")
	}
	cand := resp.Candidates[0]
	var sb strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				sb.WriteString(string(txt))
			}
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		switch cand.FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonRecitation:
			return "", models.EmptyResponseError("response blocked: " + cand.FinishReason.String())
		}
		return "", models.EmptyResponseError("candidate contained no text")
	}
	return text, nil
}
