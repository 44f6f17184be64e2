package generate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/syllabusflow/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGemini(url string, timeout time.Duration) *Gemini {
	return NewGemini(GeminiConfig{APIKey: "test-key", Endpoint: url, Model: "test-model", Timeout: timeout}, quietLogger())
}

func TestGeminiSuccess(t *testing.T) {
	var captured geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"{\"modules\":"},{"text":"[]}"}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	text, err := newTestGemini(srv.URL, time.Second).Generate(context.Background(), "make a course")
	require.NoError(t, err)
	assert.Equal(t, `{"modules":[]}`, text)

	require.Len(t, captured.Contents, 1)
	assert.Equal(t, "make a course", captured.Contents[0].Parts[0].Text)
	assert.Equal(t, "application/json", captured.GenerationConfig.ResponseMIMEType)
	assert.NotContains(t, captured.Contents[0].Parts[0].Text, "test-key")
}

func TestGeminiMissingKeyMakesNoCall(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{Endpoint: srv.URL}, quietLogger())
	_, err := g.Generate(context.Background(), "p")
	assert.True(t, models.IsKind(err, models.KindMissingCredential))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestGeminiStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   models.ErrorKind
	}{
		{http.StatusTooManyRequests, models.KindRateLimited},
		{http.StatusInternalServerError, models.KindProvider},
		{http.StatusBadRequest, models.KindProvider},
	}
	for _, tt := range tests {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, `{"error":{"code":1,"message":"provider says no","status":"X"}}`)
		}))

		_, err := newTestGemini(srv.URL, time.Second).Generate(context.Background(), "p")
		srv.Close()

		var perr *models.Error
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, tt.kind, perr.Kind)
		assert.Equal(t, tt.status, perr.HTTPStatus)
		assert.Equal(t, "provider says no", perr.ProviderMessage)
		assert.True(t, models.IsProviderError(err))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "no retries")
	}
}

func TestGeminiEmptyResponses(t *testing.T) {
	bodies := map[string]string{
		"no candidates":  `{"candidates":[]}`,
		"prompt blocked": `{"promptFeedback":{"blockReason":"SAFETY"}}`,
		"safety finish":  `{"candidates":[{"finishReason":"SAFETY"}]}`,
		"blank text":     `{"candidates":[{"content":{"parts":[{"text":"  "}]},"finishReason":"STOP"}]}`,
	}
	for name, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		}))
		_, err := newTestGemini(srv.URL, time.Second).Generate(context.Background(), "p")
		srv.Close()
		assert.True(t, models.IsKind(err, models.KindEmptyResponse), name)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"promptFeedback":{"blockReason":"PROHIBITED_CONTENT"}}`)
	}))
	defer srv.Close()
	_, err := newTestGemini(srv.URL, time.Second).Generate(context.Background(), "p")
	assert.Contains(t, err.Error(), "PROHIBITED_CONTENT")
}

func TestGeminiTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestGemini(srv.URL, 50*time.Millisecond).Generate(context.Background(), "p")
	assert.True(t, models.IsKind(err, models.KindTimeout))
	assert.True(t, models.IsProviderError(err))
}

func TestGeminiCallerCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := newTestGemini(srv.URL, 5*time.Second).Generate(ctx, "p")
	assert.True(t, models.IsKind(err, models.KindCancelled))
}

func TestGeminiRequestPacing(t *testing.T) {
	g := NewGemini(GeminiConfig{APIKey: "k", RequestsPerMinute: 60}, quietLogger())
	require.NotNil(t, g.limiter)
	assert.InDelta(t, 1.0, float64(g.limiter.Limit()), 0.001)
	assert.Nil(t, NewGemini(GeminiConfig{APIKey: "k"}, quietLogger()).limiter)
	assert.True(t, strings.HasPrefix(DefaultGeminiEndpoint, "https://"))
}

func TestGeminiPacingBeyondTimeoutIsTimeout(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"{}"}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{APIKey: "k", Endpoint: srv.URL, Timeout: 200 * time.Millisecond, RequestsPerMinute: 1}, quietLogger())
	_, err := g.Generate(context.Background(), "first")
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "second")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindTimeout))
	assert.True(t, models.IsProviderError(err))
	assert.NotContains(t, models.UserMessage(err), "HTTP 0")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGeminiPacingWaitCancelled(t *testing.T) {
	g := NewGemini(GeminiConfig{APIKey: "k", Endpoint: "http://127.0.0.1:0", Timeout: time.Second, RequestsPerMinute: 1}, quietLogger())
	require.True(t, g.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Generate(ctx, "p")
	assert.True(t, models.IsKind(err, models.KindCancelled))
}
