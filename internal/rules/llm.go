package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"scrapeflow/internal/domain"

	"go.uber.org/zap"
)

// LLMConfig selects the rule-synthesis backend: any OpenAI-compatible chat
// completion endpoint.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// LLMGenerator asks a language model to propose selectors for the standard
// field set, given a sample page. The reply must be a JSON object mapping
// field name to {selector, selector_type, attribute}.
type LLMGenerator struct {
	cfg    LLMConfig
	client *http.Client
	logger *zap.Logger
}

func NewLLMGenerator(cfg LLMConfig, logger *zap.Logger) *LLMGenerator {
	return &LLMGenerator{
		cfg:    cfg,
		client: &http.Client{Timeout: 90 * time.Second},
		logger: logger,
	}
}

const llmPrompt = `You are given the HTML of a news article page from the domain %q.
Return a JSON object mapping each of these field names to a selector:
title, content, author, publish_date, language, categories, images, videos, embeds.
Each value must be {"selector": string, "selector_type": "css"|"xpath", "attribute": string|""}.
Omit fields you cannot locate. Reply with JSON only.

HTML:
%s`

// sample pages can be huge; the model only needs the head plus the leading
// body to find selectors.
const maxSampleBytes = 60_000

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *LLMGenerator) Generate(ctx context.Context, dom, sampleHTML string) (*domain.RuleSet, error) {
	if len(sampleHTML) > maxSampleBytes {
		sampleHTML = sampleHTML[:maxSampleBytes]
	}

	body, err := json.Marshal(chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf(llmPrompt, dom, sampleHTML)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", domain.ErrGeneration, err)
	}

	url := strings.TrimRight(g.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: llm request: %v", domain.ErrGeneration, err)
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode llm response: %v", domain.ErrGeneration, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("%w: llm backend: %s", domain.ErrGeneration, msg)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty llm response", domain.ErrGeneration)
	}

	selectors, err := parseSelectorJSON(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if _, ok := selectors[domain.FieldTitle]; !ok {
		return nil, fmt.Errorf("%w: llm proposed no title selector for %s", domain.ErrGeneration, dom)
	}

	g.logger.Info("llm rule generation done",
		zap.String("domain", dom),
		zap.String("model", g.cfg.Model),
		zap.Int("selectors", len(selectors)))

	return &domain.RuleSet{
		Domain:      dom,
		Selectors:   selectors,
		GeneratedAt: time.Now().UTC(),
		Source:      domain.SourceAIGenerated,
	}, nil
}

// parseSelectorJSON extracts the selector object from a model reply,
// tolerating markdown code fences around the JSON.
func parseSelectorJSON(reply string) (map[string]domain.Selector, error) {
	reply = strings.TrimSpace(reply)
	if i := strings.Index(reply, "{"); i >= 0 {
		if j := strings.LastIndex(reply, "}"); j > i {
			reply = reply[i : j+1]
		}
	}

	var selectors map[string]domain.Selector
	if err := json.Unmarshal([]byte(reply), &selectors); err != nil {
		return nil, fmt.Errorf("%w: unparseable selector JSON: %v", domain.ErrGeneration, err)
	}
	for field, sel := range selectors {
		if sel.Expr == "" {
			delete(selectors, field)
			continue
		}
		if sel.Type != domain.SelectorXPath {
			sel.Type = domain.SelectorCSS
			selectors[field] = sel
		}
	}
	if len(selectors) == 0 {
		return nil, fmt.Errorf("%w: llm proposed no selectors", domain.ErrGeneration)
	}
	return selectors, nil
}
