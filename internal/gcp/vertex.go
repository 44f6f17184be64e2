package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"

	"github.com/Lllllllleong/syllabusflow/internal/prompt"
)

// DefaultVertexModel is used when no model name is configured.
const DefaultVertexModel = "gemini-1.5-pro"

// VertexModelConfig describes the syllabus model.
type VertexModelConfig struct {
	ProjectID        string
	Region           string
	Model            string
	CredentialsFile  string
	Temperature      float32
	MaxOutputTokens  int32
	ResponseMIMEType string
}

// VertexClient holds the pre-configured syllabus model.
type VertexClient struct {
	SyllabusModel *genai.GenerativeModel
	baseClient    *genai.Client
}

// NewVertexClient creates a Vertex AI client with the syllabus model configured
// for JSON output.
func NewVertexClient(ctx context.Context, cfg VertexModelConfig) (*VertexClient, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	baseClient, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region, opts...)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultVertexModel
	}
	syllabusModel := baseClient.GenerativeModel(modelName)
	ConfigureSyllabusModel(syllabusModel, cfg)

	return &VertexClient{
		SyllabusModel: syllabusModel,
		baseClient:    baseClient,
	}, nil
}

// ConfigureSyllabusModel applies the system instruction and generation
// parameters of cfg to model.
func ConfigureSyllabusModel(model *genai.GenerativeModel, cfg VertexModelConfig) {
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(prompt.SystemInstruction)},
	}
	mimeType := cfg.ResponseMIMEType
	if mimeType == "" {
		mimeType = "application/json"
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: mimeType,
		Temperature:      genai.Ptr(cfg.Temperature),
	}
	if cfg.MaxOutputTokens > 0 {
		model.GenerationConfig.MaxOutputTokens = genai.Ptr(cfg.MaxOutputTokens)
	}
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
