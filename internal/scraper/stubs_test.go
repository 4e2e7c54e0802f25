package scraper

import (
	"context"
	"sync"
	"time"

	"scrapeflow/internal/domain"
	"scrapeflow/internal/monitoring"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = monitoring.NewMetrics()

// stubRuleStore is an in-memory rules.Store that counts saves and can be
// forced to fail.
type stubRuleStore struct {
	mu      sync.Mutex
	sets    map[string]*domain.RuleSet
	saves   int
	saveErr error
}

func newStubRuleStore() *stubRuleStore {
	return &stubRuleStore{sets: make(map[string]*domain.RuleSet)}
}

func (s *stubRuleStore) Load(dom string) (*domain.RuleSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.sets[dom]
	if !ok {
		return nil, domain.ErrRuleSetNotFound
	}
	return rs, nil
}

func (s *stubRuleStore) Save(rs *domain.RuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.sets[rs.Domain] = rs
	return nil
}

func (s *stubRuleStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// stubGenerator returns a canned rule set, or err when set.
type stubGenerator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (g *stubGenerator) Generate(ctx context.Context, dom, sampleHTML string) (*domain.RuleSet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &domain.RuleSet{
		Domain: dom,
		Selectors: map[string]domain.Selector{
			domain.FieldTitle:   {Expr: "h1", Type: domain.SelectorCSS},
			domain.FieldContent: {Expr: "article", Type: domain.SelectorCSS},
		},
		GeneratedAt: time.Now().UTC(),
		Source:      domain.SourceAIGenerated,
	}, nil
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// stubFetcher serves a static sample page.
type stubFetcher struct {
	html string
	err  error
}

func (f *stubFetcher) Fetch(ctx context.Context, pageURL string, opts domain.RuleOptions) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.html, nil
}

// stubExtractor replays a scripted sequence of results; the last entry
// repeats once the script is exhausted.
type stubExtractor struct {
	mu      sync.Mutex
	calls   int
	results []extractStep
}

type extractStep struct {
	result *domain.ExtractionResult
	err    error
}

func (e *stubExtractor) Extract(ctx context.Context, pageURL string, rs *domain.RuleSet, timeout time.Duration) (*domain.ExtractionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	step := e.results[min(e.calls, len(e.results)-1)]
	e.calls++
	if step.result == nil {
		return nil, step.err
	}
	cp := *step.result
	return &cp, step.err
}

func (e *stubExtractor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func goodResult() *domain.ExtractionResult {
	return &domain.ExtractionResult{Title: "headline", Content: "body text"}
}
