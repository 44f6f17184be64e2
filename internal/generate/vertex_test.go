package generate

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/syllabusflow/internal/gcp"
	"github.com/Lllllllleong/syllabusflow/internal/models"
)

func TestVertexWithoutProjectIsMissingCredential(t *testing.T) {
	v, err := NewVertex(context.Background(), VertexConfig{VertexModelConfig: gcp.VertexModelConfig{Region: "us-central1"}}, quietLogger())
	require.NoError(t, err)
	_, err = v.Generate(context.Background(), "p")
	assert.True(t, models.IsKind(err, models.KindMissingCredential))
	assert.NoError(t, v.Close())
}

func TestVertexErrorMapping(t *testing.T) {
	bg := context.Background()
	tests := []struct {
		name   string
		err    error
		kind   models.ErrorKind
		status int
	}{
		{"resource exhausted", status.Error(codes.ResourceExhausted, "quota"), models.KindRateLimited, 429},
		{"internal", status.Error(codes.Internal, "boom"), models.KindProvider, 500},
		{"unavailable", status.Error(codes.Unavailable, "down"), models.KindProvider, 503},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), models.KindTimeout, 0},
		{"googleapi 429", &googleapi.Error{Code: 429, Message: "slow down"}, models.KindRateLimited, 429},
		{"transport", errors.New("connection reset"), models.KindProvider, 0},
	}
	for _, tt := range tests {
		err := vertexError(bg, bg, tt.err)
		var perr *models.Error
		require.True(t, errors.As(err, &perr), tt.name)
		assert.Equal(t, tt.kind, perr.Kind, tt.name)
		assert.Equal(t, tt.status, perr.HTTPStatus, tt.name)
	}

	blocked := &genai.BlockedError{PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockedReasonSafety}}
	assert.True(t, models.IsKind(vertexError(bg, bg, blocked), models.KindEmptyResponse))

	cancelled, cancel := context.WithCancel(bg)
	cancel()
	assert.True(t, models.IsKind(vertexError(cancelled, cancelled, errors.New("x")), models.KindCancelled))
}

func TestVertexResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"modules":`), genai.Text(`[]}`)}},
	}}}
	text, err := responseText(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"modules":[]}`, text)

	_, err = responseText(&genai.GenerateContentResponse{})
	assert.True(t, models.IsKind(err, models.KindEmptyResponse))

	_, err = responseText(&genai.GenerateContentResponse{PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockedReasonSafety}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt blocked")

	_, err = responseText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}})
	assert.True(t, models.IsKind(err, models.KindEmptyResponse))
}

func TestVertexSendsSameParametersAsREST(t *testing.T) {
	mc := VertexConfig{VertexModelConfig: gcp.VertexModelConfig{ProjectID: "p", Region: "r", Temperature: 0}}.modelConfig()
	want := DefaultModelParameters()
	assert.Equal(t, want.Temperature, mc.Temperature)
	assert.Equal(t, want.MaxOutputTokens, mc.MaxOutputTokens)
	assert.Equal(t, want.ResponseMIMEType, mc.ResponseMIMEType)
	assert.Equal(t, "p", mc.ProjectID)

	var model genai.GenerativeModel
	gcp.ConfigureSyllabusModel(&model, mc)
	require.NotNil(t, model.Temperature)
	assert.InDelta(t, 0.4, float64(*model.Temperature), 0.0001)
	require.NotNil(t, model.MaxOutputTokens)
	assert.Equal(t, int32(8192), *model.MaxOutputTokens)
	assert.Equal(t, "application/json", model.ResponseMIMEType)
	require.NotNil(t, model.SystemInstruction)

	custom := VertexConfig{Parameters: ModelParameters{Temperature: 0.1, MaxOutputTokens: 1024, ResponseMIMEType: "application/json"}}.modelConfig()
	assert.InDelta(t, 0.1, float64(custom.Temperature), 0.0001)
	assert.Equal(t, int32(1024), custom.MaxOutputTokens)
}
