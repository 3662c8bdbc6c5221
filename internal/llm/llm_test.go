package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvlm/internal/config"
	"cvlm/internal/domain"
	"cvlm/internal/ports"
)

func TestGeminiGenerator_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		body, _ := io.ReadAll(r.Body)
		var req geminiRequest
		require.NoError(t, json.Unmarshal(body, &req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "écris une lettre", req.Contents[0].Parts[0].Text)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Madame, "},{"text":"Monsieur"}]}}]}`)
	}))
	defer srv.Close()

	g := NewGeminiGenerator(config.GeminiConfig{APIKey: "secret", Model: "gemini-test", BaseURL: srv.URL + "/"})
	text, err := g.Generate(context.Background(), "écris une lettre")
	require.NoError(t, err)
	assert.Equal(t, "Madame, Monsieur", text)
}

func TestGeminiGenerator_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewGeminiGenerator(config.GeminiConfig{APIKey: "k", Model: "m", BaseURL: srv.URL})
	_, err := g.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestGeminiGenerator_EmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	g := NewGeminiGenerator(config.GeminiConfig{APIKey: "k", Model: "m", BaseURL: srv.URL})
	_, err := g.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Bonjour  "},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-test", BaseURL: srv.URL + "/v1"})
	text, err := g.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", text)
}

type stubGenerator struct{ out string }

func (s stubGenerator) Generate(context.Context, string) (string, error) { return s.out, nil }

func TestRegistry_Get(t *testing.T) {
	r := NewStaticRegistry(ProviderOpenAI, map[string]ports.TextGenerator{
		ProviderOpenAI: stubGenerator{out: "a"},
		ProviderGemini: stubGenerator{out: "b"},
	})

	g, err := r.Get("")
	require.NoError(t, err)
	out, _ := g.Generate(context.Background(), "")
	assert.Equal(t, "a", out)

	g, err = r.Get("Gemini")
	require.NoError(t, err)
	out, _ = g.Generate(context.Background(), "")
	assert.Equal(t, "b", out)

	_, err = r.Get("mistral")
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))
}

func TestNewRegistry_SkipsUnconfigured(t *testing.T) {
	r := NewRegistry(config.LLMConfig{
		DefaultProvider: ProviderGemini,
		OpenAI:          config.OpenAIConfig{APIKey: "sk", Model: "gpt"},
	})
	_, err := r.Get(ProviderOpenAI)
	assert.NoError(t, err)
	_, err = r.Get("")
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))
	assert.Equal(t, ProviderGemini, r.Default())
}
