package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Lllllllleong/syllabusflow/internal/models"
	"github.com/Lllllllleong/syllabusflow/internal/prompt"
)

const (
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel    = "gemini-1.5-flash"

	maxResponseBytes = 8 << 20
)

// GeminiConfig configures the Gemini REST client. RequestsPerMinute > 0
// paces outgoing calls on the client side.
type GeminiConfig struct {
	APIKey            string
	Model             string
	Endpoint          string
	Timeout           time.Duration
	RequestsPerMinute int
	Parameters        ModelParameters
	HTTPClient        *http.Client
}

// Gemini calls the generateContent endpoint of the Gemini API with an API key.
type Gemini struct {
	cfg     GeminiConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewGemini(cfg GeminiConfig, logger *slog.Logger) *Gemini {
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGeminiEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Parameters == (ModelParameters{}) {
		cfg.Parameters = DefaultModelParameters()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gemini{cfg: cfg, logger: logger.With("provider", "gemini", "model", cfg.Model)}
	if cfg.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return g
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float32 `json:"temperature"`
	MaxOutputTokens  int32   `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiCandidate struct {
	Content      *geminiContent `json:"content"`
	FinishReason string         `json:"finishReason"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// blockingFinishReasons mark candidates withheld by provider-side filtering.
var blockingFinishReasons = map[string]bool{
	"SAFETY":             true,
	"RECITATION":         true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
}

func (g *Gemini) Generate(ctx context.Context, promptText string) (string, error) {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return "", models.MissingCredentialError("GEMINI_API_KEY is not set")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(callCtx); err != nil {
			if ctx.Err() != nil {
				return "", models.CancelledError(ctx.Err())
			}
			// Wait fails early, without wrapping DeadlineExceeded, when the
			// next slot lies beyond the call deadline.
			return "", models.TimeoutError("generation request could not be scheduled within the timeout", err)
		}
	}

	body, err := json.Marshal(g.buildRequest(promptText))
	if err != nil {
		return "", fmt.Errorf("failed to marshal gemini request: %w", err)
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(g.cfg.Endpoint, "/"), g.cfg.Model)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)

	start := time.Now()
	resp, err := g.cfg.HTTPClient.Do(req)
	if err != nil {
		g.logger.Error("Call to Gemini failed", "error", err, "elapsed", time.Since(start).String())
		return "", classifyCallError(ctx, callCtx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", classifyCallError(ctx, callCtx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := models.ProviderError(resp.StatusCode, providerMessage(respBody))
		g.logger.Warn("Gemini returned an error status.", "status", resp.StatusCode, "kind", perr.Kind, "providerMessage", perr.ProviderMessage)
		return "", perr
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		perr := models.ProviderError(resp.StatusCode, "unreadable response body")
		perr.Err = err
		return "", perr
	}
	text, err := parsed.text()
	if err != nil {
		return "", err
	}
	g.logger.Info("Gemini generation complete.", "elapsed", time.Since(start).String(), "chars", len(text))
	return text, nil
}

func (g *Gemini) buildRequest(promptText string) geminiRequest {
	return geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: prompt.SystemInstruction}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: promptText}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      g.cfg.Parameters.Temperature,
			MaxOutputTokens:  g.cfg.Parameters.MaxOutputTokens,
			ResponseMIMEType: g.cfg.Parameters.ResponseMIMEType,
		},
	}
}

func (r geminiResponse) text() (string, error) {
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return "", models.EmptyResponseError("prompt blocked: " + r.PromptFeedback.BlockReason)
	}
	if len(r.Candidates) == 0 {
		return "", models.EmptyResponseError("response contained no candidates")
	}
	first := r.Candidates[0]
	var sb strings.Builder
	if first.Content != nil {
		for _, p := range first.Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		if blockingFinishReasons[first.FinishReason] {
			return "", models.EmptyResponseError("response blocked: " + first.FinishReason)
		}
		return "", models.EmptyResponseError("candidate contained no text")
	}
	return text, nil
}

func providerMessage(body []byte) string {
	var eb geminiErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		return eb.Error.Message
	}
	return strings.TrimSpace(string(body))
}
