package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scrapeflow/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Generator synthesizes a rule set for a domain from a sample page.
type Generator interface {
	Generate(ctx context.Context, dom, sampleHTML string) (*domain.RuleSet, error)
}

// fieldCandidates are selector guesses probed in order against the sample
// page; the first one that matches something on the page wins. Attribute
// extraction is encoded as "selector@attr".
var fieldCandidates = map[string][]string{
	domain.FieldTitle: {
		`meta[property="og:title"]@content`,
		`article h1`,
		`h1`,
		`title`,
	},
	domain.FieldContent: {
		`article`,
		`[itemprop="articleBody"]`,
		`main`,
		`.article-body`,
		`.post-content`,
		`.content`,
	},
	domain.FieldAuthor: {
		`meta[name="author"]@content`,
		`[rel="author"]`,
		`.byline`,
		`.author`,
	},
	domain.FieldPublishDate: {
		`meta[property="article:published_time"]@content`,
		`time[datetime]@datetime`,
		`time`,
		`.published`,
	},
	domain.FieldLanguage: {
		`html@lang`,
		`meta[property="og:locale"]@content`,
	},
	domain.FieldCategories: {
		`meta[property="article:tag"]@content`,
		`meta[name="keywords"]@content`,
		`.category a`,
		`.tags a`,
	},
	domain.FieldImages: {
		`article img@src`,
		`img@src`,
	},
	domain.FieldVideos: {
		`video source@src`,
		`video@src`,
	},
	domain.FieldEmbeds: {
		`iframe@src`,
	},
}

// HeuristicGenerator probes a fixed catalogue of common news-page selectors
// against the sample page and keeps the ones that match. It is the fallback
// backend when no LLM is configured, and also serves as the schema the LLM
// output is validated against.
type HeuristicGenerator struct {
	logger *zap.Logger
}

func NewHeuristicGenerator(logger *zap.Logger) *HeuristicGenerator {
	return &HeuristicGenerator{logger: logger}
}

func (g *HeuristicGenerator) Generate(ctx context.Context, dom, sampleHTML string) (*domain.RuleSet, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sampleHTML))
	if err != nil {
		return nil, fmt.Errorf("%w: parse sample for %s: %v", domain.ErrGeneration, dom, err)
	}

	selectors := make(map[string]domain.Selector)
	for field, candidates := range fieldCandidates {
		for _, cand := range candidates {
			expr, attr := splitCandidate(cand)
			if matches(doc, expr, attr) {
				selectors[field] = domain.Selector{
					Expr: expr,
					Type: domain.SelectorCSS,
					Attr: attr,
				}
				break
			}
		}
	}

	if _, ok := selectors[domain.FieldTitle]; !ok {
		return nil, fmt.Errorf("%w: no title selector found for %s", domain.ErrGeneration, dom)
	}
	g.logger.Debug("heuristic rule generation done",
		zap.String("domain", dom), zap.Int("selectors", len(selectors)))

	return &domain.RuleSet{
		Domain:      dom,
		Selectors:   selectors,
		GeneratedAt: time.Now().UTC(),
		Source:      domain.SourceAIGenerated,
	}, nil
}

func splitCandidate(cand string) (expr, attr string) {
	if i := strings.LastIndex(cand, "@"); i >= 0 {
		return cand[:i], cand[i+1:]
	}
	return cand, ""
}

// matches reports whether the selector yields non-empty data on the page.
func matches(doc *goquery.Document, expr, attr string) bool {
	sel := doc.Find(expr)
	if sel.Length() == 0 {
		return false
	}
	if attr != "" {
		v, ok := sel.First().Attr(attr)
		return ok && strings.TrimSpace(v) != ""
	}
	return strings.TrimSpace(sel.First().Text()) != ""
}
