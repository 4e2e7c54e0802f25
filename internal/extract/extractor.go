package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scrapeflow/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Extractor applies a rule set to a URL and returns the structured result.
type Extractor interface {
	Extract(ctx context.Context, pageURL string, rs *domain.RuleSet, timeout time.Duration) (*domain.ExtractionResult, error)
}

// multiValueFields collect every selector match; all others take the first.
var multiValueFields = map[string]bool{
	domain.FieldCategories: true,
	domain.FieldImages:     true,
	domain.FieldVideos:     true,
	domain.FieldEmbeds:     true,
}

// RuleExtractor fetches a page and evaluates the rule set's selectors
// against it. CSS selectors run through goquery, XPath through htmlquery.
type RuleExtractor struct {
	fetcher Fetcher
	logger  *zap.Logger
}

func NewRuleExtractor(fetcher Fetcher, logger *zap.Logger) *RuleExtractor {
	return &RuleExtractor{fetcher: fetcher, logger: logger}
}

func (e *RuleExtractor) Extract(ctx context.Context, pageURL string, rs *domain.RuleSet, timeout time.Duration) (*domain.ExtractionResult, error) {
	if t := rs.Options.TimeoutSec; t > 0 && time.Duration(t)*time.Second < timeout {
		timeout = time.Duration(t) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	htmlContent, err := e.fetcher.Fetch(ctx, pageURL, rs.Options)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrExtraction, pageURL, err)
	}
	// htmlquery operates on the x/net/html tree; parse once and share.
	var root *html.Node
	if hasXPath(rs) {
		root, err = htmlquery.Parse(strings.NewReader(htmlContent))
		if err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrExtraction, pageURL, err)
		}
	}

	result := &domain.ExtractionResult{}
	for field, sel := range rs.Selectors {
		values, err := e.eval(doc, root, sel, multiValueFields[field])
		if err != nil {
			e.logger.Warn("selector evaluation failed",
				zap.String("url", pageURL),
				zap.String("field", field),
				zap.Error(err))
			continue
		}
		assign(result, field, values)
	}
	return result, nil
}

func hasXPath(rs *domain.RuleSet) bool {
	for _, sel := range rs.Selectors {
		if sel.Type == domain.SelectorXPath {
			return true
		}
	}
	return false
}

func (e *RuleExtractor) eval(doc *goquery.Document, root *html.Node, sel domain.Selector, multi bool) ([]string, error) {
	if sel.Type == domain.SelectorXPath {
		return evalXPath(root, sel, multi)
	}
	return evalCSS(doc, sel, multi)
}

func evalCSS(doc *goquery.Document, sel domain.Selector, multi bool) ([]string, error) {
	var values []string
	doc.Find(sel.Expr).EachWithBreak(func(i int, s *goquery.Selection) bool {
		var v string
		if sel.Attr != "" {
			v, _ = s.Attr(sel.Attr)
		} else {
			v = s.Text()
		}
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
		return multi || len(values) == 0
	})
	return values, nil
}

func evalXPath(root *html.Node, sel domain.Selector, multi bool) ([]string, error) {
	nodes, err := htmlquery.QueryAll(root, sel.Expr)
	if err != nil {
		return nil, fmt.Errorf("bad xpath %q: %w", sel.Expr, err)
	}
	var values []string
	for _, n := range nodes {
		var v string
		if sel.Attr != "" {
			v = htmlquery.SelectAttr(n, sel.Attr)
		} else {
			v = htmlquery.InnerText(n)
		}
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
			if !multi {
				break
			}
		}
	}
	return values, nil
}

func assign(r *domain.ExtractionResult, field string, values []string) {
	if len(values) == 0 {
		return
	}
	switch field {
	case domain.FieldTitle:
		r.Title = values[0]
	case domain.FieldContent:
		r.Content = values[0]
	case domain.FieldAuthor:
		r.Author = values[0]
	case domain.FieldPublishDate:
		r.PublishDate = values[0]
	case domain.FieldLanguage:
		r.Language = values[0]
	case domain.FieldCategories:
		r.Categories = values
	case domain.FieldImages:
		r.Media.Images = values
	case domain.FieldVideos:
		r.Media.Videos = values
	case domain.FieldEmbeds:
		r.Media.Embeds = values
	}
}
