package rules

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"scrapeflow/internal/domain"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(afero.NewMemMapFs(), "/rules", zap.NewNop())
	require.NoError(t, err)
	return store
}

func sampleRuleSet(dom string) *domain.RuleSet {
	return &domain.RuleSet{
		Domain: dom,
		Selectors: map[string]domain.Selector{
			domain.FieldTitle:   {Expr: "h1", Type: domain.SelectorCSS},
			domain.FieldContent: {Expr: "//article", Type: domain.SelectorXPath},
			domain.FieldImages:  {Expr: "img", Type: domain.SelectorCSS, Attr: "src"},
		},
		Options: domain.RuleOptions{
			Headless:   true,
			TimeoutSec: 20,
			UserAgent:  "scrapeflow-test",
		},
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Source:      domain.SourceAIGenerated,
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	rs := sampleRuleSet("example.com")

	require.NoError(t, store.Save(rs))

	loaded, err := store.Load("example.com")
	require.NoError(t, err)
	assert.Equal(t, rs, loaded)
}

func TestFileStoreLoadAbsent(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load("never-seen.com")
	assert.ErrorIs(t, err, domain.ErrRuleSetNotFound)
}

func TestFileStoreSaveReplacesAtomically(t *testing.T) {
	store := newTestStore(t)
	first := sampleRuleSet("example.com")
	require.NoError(t, store.Save(first))

	second := sampleRuleSet("example.com")
	second.Selectors[domain.FieldTitle] = domain.Selector{Expr: ".headline", Type: domain.SelectorCSS}
	second.Source = domain.SourceManual
	require.NoError(t, store.Save(second))

	loaded, err := store.Load("example.com")
	require.NoError(t, err)
	assert.Equal(t, ".headline", loaded.Selectors[domain.FieldTitle].Expr)
	assert.Equal(t, domain.SourceManual, loaded.Source)
}

func TestFileStoreSaveWithoutDomain(t *testing.T) {
	store := newTestStore(t)
	err := store.Save(&domain.RuleSet{})
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestFileStoreConcurrentSavesDistinctDomains(t *testing.T) {
	store := newTestStore(t)

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dom := fmt.Sprintf("site-%d.com", i)
			rs := sampleRuleSet(dom)
			rs.Options.TimeoutSec = i + 1
			assert.NoError(t, store.Save(rs))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		dom := fmt.Sprintf("site-%d.com", i)
		loaded, err := store.Load(dom)
		require.NoError(t, err)
		assert.Equal(t, dom, loaded.Domain)
		assert.Equal(t, i+1, loaded.Options.TimeoutSec)
	}
}

func TestFileStoreKeepsUnrecognizedOptions(t *testing.T) {
	store := newTestStore(t)
	rs := sampleRuleSet("example.com")
	rs.Options.Extra = map[string]string{"wait_for": ".article-loaded"}
	require.NoError(t, store.Save(rs))

	loaded, err := store.Load("example.com")
	require.NoError(t, err)
	assert.Equal(t, ".article-loaded", loaded.Options.Extra["wait_for"])
}
