package rules

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"scrapeflow/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func llmBackend(t *testing.T, reply string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.WriteHeader(status)
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		}
		if status != http.StatusOK {
			resp = map[string]interface{}{"error": map[string]string{"message": "model overloaded"}}
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestLLMGeneratorGenerate(t *testing.T) {
	reply := `{"title": {"selector": "h1.headline", "selector_type": "css"},
	           "content": {"selector": "//div[@class='body']", "selector_type": "xpath"}}`
	srv := llmBackend(t, reply, http.StatusOK)
	defer srv.Close()

	gen := NewLLMGenerator(LLMConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"}, zap.NewNop())
	rs, err := gen.Generate(context.Background(), "example.com", "<html></html>")
	require.NoError(t, err)

	assert.Equal(t, "example.com", rs.Domain)
	assert.Equal(t, domain.SourceAIGenerated, rs.Source)
	assert.Equal(t, "h1.headline", rs.Selectors[domain.FieldTitle].Expr)
	assert.Equal(t, domain.SelectorXPath, rs.Selectors[domain.FieldContent].Type)
}

func TestLLMGeneratorBackendError(t *testing.T) {
	srv := llmBackend(t, "", http.StatusTooManyRequests)
	defer srv.Close()

	gen := NewLLMGenerator(LLMConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"}, zap.NewNop())
	_, err := gen.Generate(context.Background(), "example.com", "<html></html>")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestLLMGeneratorNoTitleSelector(t *testing.T) {
	srv := llmBackend(t, `{"author": {"selector": ".byline", "selector_type": "css"}}`, http.StatusOK)
	defer srv.Close()

	gen := NewLLMGenerator(LLMConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"}, zap.NewNop())
	_, err := gen.Generate(context.Background(), "example.com", "<html></html>")
	assert.ErrorIs(t, err, domain.ErrGeneration)
}
