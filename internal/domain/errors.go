package domain

import "errors"

// Error taxonomy shared across the pipeline. Components wrap these with
// fmt.Errorf("...: %w", Err...) so callers can classify with errors.Is.
var (
	// ErrGeneration means rule synthesis failed (LLM or heuristic).
	ErrGeneration = errors.New("rule generation failed")
	// ErrExtraction means the fetch or parse step failed outright.
	ErrExtraction = errors.New("extraction failed")
	// ErrPersistence means a rule or task store write failed; an
	// infrastructure problem, not site drift.
	ErrPersistence = errors.New("persistence failure")
	// ErrInvalidTransition means a task transition outside the monotonic
	// queued -> processing -> completed|failed set was requested.
	ErrInvalidTransition = errors.New("invalid task state transition")
	// ErrConcurrentModification means two writers raced on one task. This
	// indicates a scheduler bug and is logged loudly, never retried.
	ErrConcurrentModification = errors.New("concurrent task modification")
	// ErrQueueFull is the backpressure signal: callers may retry submission.
	ErrQueueFull = errors.New("task queue is full")
	// ErrMaxRetries means the retry budget for a task is exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")

	ErrTaskNotFound    = errors.New("task not found")
	ErrRuleSetNotFound = errors.New("no rule set for domain")
	ErrInvalidURL      = errors.New("invalid URL")
)
