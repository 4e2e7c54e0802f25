package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scrapeflow/internal/domain"
	"scrapeflow/internal/extract"
	"scrapeflow/internal/monitoring"
	"scrapeflow/internal/rules"

	"go.uber.org/zap"
)

// Policy is the externally supplied retry configuration.
type Policy struct {
	// MaxRetries bounds regeneration cycles after the initial attempt.
	MaxRetries int
	// AttemptTimeout is the deadline for one fetch+extract attempt.
	AttemptTimeout time.Duration
	// RequiredFields drive the success/partial/failure classification.
	RequiredFields []string
	// AcceptPartial, when set, lets a Partial classification terminate the
	// task as completed instead of triggering regeneration.
	AcceptPartial bool
}

// Outcome is what a finished pipeline hands back to the worker.
type Outcome struct {
	Result   *domain.ExtractionResult
	Attempts int
}

// Controller drives the generate -> extract -> validate cycle for one task.
//
// Failed or partial extractions force rule regeneration before the next
// attempt: the premise is that extraction failure signals structural drift
// on the site, so re-running identical rules is wasted work. Generation
// failure is terminal within a task to bound LLM cost.
type Controller struct {
	rules     rules.Store
	generator rules.Generator
	fetcher   extract.Fetcher
	extractor extract.Extractor
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	policy    Policy
}

func NewController(
	rs rules.Store,
	gen rules.Generator,
	fetcher extract.Fetcher,
	ex extract.Extractor,
	m *monitoring.Metrics,
	l *zap.Logger,
	policy Policy,
) *Controller {
	return &Controller{
		rules:     rs,
		generator: gen,
		fetcher:   fetcher,
		extractor: ex,
		metrics:   m,
		logger:    l,
		policy:    policy,
	}
}

// Run executes the pipeline for a task until it completes or its retry
// budget is spent. The returned attempt count is the number of full
// extract cycles consumed.
func (c *Controller) Run(ctx context.Context, t *domain.Task) (*Outcome, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		var ruleSet *domain.RuleSet
		var err error
		if attempt == 1 {
			ruleSet, err = c.loadOrGenerate(ctx, t)
		} else {
			// Stale rules are assumed to be the cause of the previous
			// failure; regenerate before the next cycle.
			c.metrics.Regenerations.Inc()
			ruleSet, err = c.generate(ctx, t)
		}
		if err != nil {
			if errors.Is(err, domain.ErrPersistence) {
				// Infrastructure, not site drift. Counts toward the retry
				// budget like any other failed attempt.
				c.logger.Error("rule persistence failed",
					zap.String("task_id", t.ID),
					zap.String("domain", t.Domain),
					zap.Error(err))
				c.metrics.IncError("persistence")
				lastErr = err
				if attempt > c.policy.MaxRetries {
					return &Outcome{Attempts: attempt}, err
				}
				continue
			}
			// Generation failure is terminal within the task.
			return &Outcome{Attempts: attempt - 1}, err
		}

		result, extractErr := c.extractor.Extract(ctx, t.URL, ruleSet, c.policy.AttemptTimeout)

		verdict := extract.Failure
		if extractErr == nil {
			verdict = extract.Classify(result, c.policy.RequiredFields)
		}

		switch verdict {
		case extract.Success:
			return &Outcome{Result: result, Attempts: attempt}, nil
		case extract.Partial:
			if c.policy.AcceptPartial {
				c.logger.Info("accepting partial extraction",
					zap.String("task_id", t.ID),
					zap.Strings("missing", result.Missing))
				return &Outcome{Result: result, Attempts: attempt}, nil
			}
			lastErr = fmt.Errorf("%w: missing required fields %v", domain.ErrExtraction, result.Missing)
		case extract.Failure:
			if extractErr != nil {
				lastErr = extractErr
			} else {
				lastErr = fmt.Errorf("%w: no usable data extracted", domain.ErrExtraction)
			}
		}
		c.metrics.IncError("extraction")
		c.logger.Warn("extraction attempt failed",
			zap.String("task_id", t.ID),
			zap.String("url", t.URL),
			zap.Int("attempt", attempt),
			zap.String("verdict", verdict.String()),
			zap.Error(lastErr))

		if attempt > c.policy.MaxRetries {
			return &Outcome{Attempts: attempt},
				fmt.Errorf("%w after %d attempts: %v", domain.ErrMaxRetries, attempt, lastErr)
		}
	}
}

// loadOrGenerate returns the active rule set for the task's domain,
// synthesizing and persisting one when none exists yet.
func (c *Controller) loadOrGenerate(ctx context.Context, t *domain.Task) (*domain.RuleSet, error) {
	ruleSet, err := c.rules.Load(t.Domain)
	if err == nil {
		return ruleSet, nil
	}
	if !errors.Is(err, domain.ErrRuleSetNotFound) {
		c.metrics.IncError("persistence")
		return nil, err
	}
	c.logger.Info("no rule set for domain, generating",
		zap.String("task_id", t.ID), zap.String("domain", t.Domain))
	return c.generate(ctx, t)
}

// generate fetches a sample of the task's page, asks the generator for a
// rule set, and persists it. A save failure is reported as ErrPersistence
// so the caller can distinguish it from synthesis failure.
func (c *Controller) generate(ctx context.Context, t *domain.Task) (*domain.RuleSet, error) {
	sampleCtx, cancel := context.WithTimeout(ctx, c.policy.AttemptTimeout)
	defer cancel()

	sampleHTML, err := c.fetcher.Fetch(sampleCtx, t.URL, domain.RuleOptions{})
	if err != nil {
		c.metrics.IncError("generation")
		return nil, fmt.Errorf("%w: sample fetch: %v", domain.ErrGeneration, err)
	}

	ruleSet, err := c.generator.Generate(ctx, t.Domain, sampleHTML)
	if err != nil {
		c.metrics.IncError("generation")
		return nil, err
	}

	if err := c.rules.Save(ruleSet); err != nil {
		return nil, err
	}
	c.logger.Info("rule set generated and saved",
		zap.String("task_id", t.ID),
		zap.String("domain", t.Domain),
		zap.Int("selectors", len(ruleSet.Selectors)))
	return ruleSet, nil
}
