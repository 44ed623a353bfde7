package email

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiReply(t *testing.T, text string) []byte {
	t.Helper()
	out, err := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	require.NoError(t, err)
	return out
}

func newTestEnhancer(t *testing.T, handler http.HandlerFunc) *GeminiEnhancer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e, err := NewGeminiEnhancer(GeminiConfig{
		APIKey:      "gemini-key",
		Model:       "gemini-1.5-flash",
		BaseURL:     srv.URL + "/v1beta/",
		Temperature: 0.7,
		Timeout:     time.Second,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return e
}

func TestNewGeminiEnhancer_RequiresKey(t *testing.T) {
	_, err := NewGeminiEnhancer(GeminiConfig{})
	assert.ErrorContains(t, err, "api key is required")
}

func TestGeminiEnhancer_Request(t *testing.T) {
	var got generateRequest
	e := newTestEnhancer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "gemini-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write(geminiReply(t, `{"subject":"Better","body":"Much better"}`))
	})

	out, err := e.Enhance(context.Background(), Draft{Subject: "Test Email Subject", Body: "Draft body"})
	require.NoError(t, err)
	assert.Equal(t, Draft{Subject: "Better", Body: "Much better"}, out)

	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMimeType)
	assert.InDelta(t, 0.7, got.GenerationConfig.Temperature, 1e-9)
	require.Len(t, got.Contents, 1)
	prompt := got.Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "KEYPOINTS:\nTest Email Subject\nDraft body")
	assert.Contains(t, prompt, "EXISTING BODY:\nDraft body")
}

func TestGeminiEnhancer_Replies(t *testing.T) {
	original := Draft{Subject: "Original", Body: "Original body"}

	tests := []struct {
		name    string
		status  int
		text    string
		want    Draft
		wantErr string
	}{
		{name: "wrapped in prose", text: "Sure! ```json\n{\"subject\":\"S\",\"body\":\"B\"}\n``` Done.", want: Draft{Subject: "S", Body: "B"}},
		{name: "empty subject keeps original", text: `{"subject":"  ","body":" New body "}`, want: Draft{Subject: "Original", Body: "New body"}},
		{name: "extra key", text: `{"subject":"S","body":"B","tone":"warm"}`, wantErr: "unexpected shape"},
		{name: "missing key", text: `{"subject":"S"}`, wantErr: "unexpected shape"},
		{name: "non-string value", text: `{"subject":"S","body":42}`, wantErr: "unexpected shape"},
		{name: "no json", text: "I cannot help with that", wantErr: "no JSON object"},
		{name: "server error", status: http.StatusInternalServerError, wantErr: "gemini returned 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnhancer(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.status != 0 {
					w.WriteHeader(tt.status)
					_, _ = w.Write([]byte(`{"error":"boom"}`))
					return
				}
				_, _ = w.Write(geminiReply(t, tt.text))
			})

			out, err := e.Enhance(context.Background(), original)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, original, out)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestGeminiEnhancer_NoCandidates(t *testing.T) {
	e := newTestEnhancer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := e.Enhance(context.Background(), Draft{Subject: "s", Body: "b"})
	assert.ErrorContains(t, err, "no candidates")
}

func TestGeminiEnhancer_TransportErrorHidesKey(t *testing.T) {
	e, err := NewGeminiEnhancer(GeminiConfig{APIKey: "secret-key", Model: "m", BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	require.NoError(t, err)

	_, err = e.Enhance(context.Background(), Draft{Subject: "s", Body: "b"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-key")
}
