package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TaskState is the lifecycle state of a scrape task.
type TaskState string

const (
	StateQueued     TaskState = "queued"
	StateProcessing TaskState = "processing"
	StateCompleted  TaskState = "completed"
	StateFailed     TaskState = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransitionTo reports whether the monotonic state machine allows s -> next.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	switch s {
	case StateQueued:
		return next == StateProcessing
	case StateProcessing:
		return next == StateCompleted || next == StateFailed
	default:
		return false
	}
}

// Failure reasons recorded on failed tasks so API callers can tell
// "this site is not supported" from "system unavailable".
const (
	ReasonGenerationFailed   = "generation_failed"
	ReasonMaxRetriesExceeded = "max_retries_exceeded"
	ReasonPersistenceError   = "persistence_error"
)

// Task is a single scrape request tracked through its lifecycle.
type Task struct {
	ID           string            `json:"task_id"`
	URL          string            `json:"url"`
	Domain       string            `json:"domain"`
	State        TaskState         `json:"status"`
	Result       *ExtractionResult `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	AttemptCount int               `json:"attempt_count"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// TransitionPayload carries the data attached to a state transition.
type TransitionPayload struct {
	Result       *ExtractionResult
	Error        string
	Reason       string
	AttemptCount int
}

// SelectorType tags a selector expression as CSS or XPath.
type SelectorType string

const (
	SelectorCSS   SelectorType = "css"
	SelectorXPath SelectorType = "xpath"
)

// Selector locates one field in a page.
type Selector struct {
	Expr string       `json:"selector"`
	Type SelectorType `json:"selector_type"`
	// Attr, when set, extracts the named attribute instead of text content.
	Attr string `json:"attribute,omitempty"`
}

// RuleOptions are per-domain fetch knobs. Unrecognized keys arriving from a
// rule file are preserved in Extra and logged, never rejected.
type RuleOptions struct {
	Headless   bool              `json:"use_headless"`
	Proxy      bool              `json:"use_proxy"`
	TimeoutSec int               `json:"timeout,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Rule set provenance tags.
const (
	SourceManual      = "manual"
	SourceAIGenerated = "ai-generated"
)

// RuleSet is the active extraction rule set for one domain.
type RuleSet struct {
	Domain      string              `json:"domain"`
	Selectors   map[string]Selector `json:"selectors"`
	Options     RuleOptions         `json:"options"`
	GeneratedAt time.Time           `json:"generated_at"`
	Source      string              `json:"source"`
}

// Field names the generator and extractor agree on.
const (
	FieldTitle       = "title"
	FieldContent     = "content"
	FieldAuthor      = "author"
	FieldPublishDate = "publish_date"
	FieldLanguage    = "language"
	FieldCategories  = "categories"
	FieldImages      = "images"
	FieldVideos      = "videos"
	FieldEmbeds      = "embeds"
)

// Media holds ordered references to page media.
type Media struct {
	Images []string `json:"images"`
	Videos []string `json:"videos"`
	Embeds []string `json:"embeds"`
}

// ExtractionResult is the structured content pulled from one page.
type ExtractionResult struct {
	Title       string   `json:"title,omitempty"`
	Content     string   `json:"content,omitempty"`
	Author      string   `json:"author,omitempty"`
	PublishDate string   `json:"publish_date,omitempty"`
	Language    string   `json:"language,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Media       Media    `json:"media"`
	// Missing lists required fields the extractor could not fill.
	Missing []string `json:"missing,omitempty"`
}

// Field returns the value of a named field flattened to a string, or ""
// when the field is absent.
func (r *ExtractionResult) Field(name string) string {
	switch name {
	case FieldTitle:
		return r.Title
	case FieldContent:
		return r.Content
	case FieldAuthor:
		return r.Author
	case FieldPublishDate:
		return r.PublishDate
	case FieldLanguage:
		return r.Language
	case FieldCategories:
		return strings.Join(r.Categories, ",")
	case FieldImages:
		return strings.Join(r.Media.Images, ",")
	case FieldVideos:
		return strings.Join(r.Media.Videos, ",")
	case FieldEmbeds:
		return strings.Join(r.Media.Embeds, ",")
	}
	return ""
}

// DomainOf derives the rule-set key from a URL: the lowercased host with any
// leading "www." stripped.
func DomainOf(rawURL string) (string, error) {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: missing host in %s", ErrInvalidURL, rawURL)
	}
	return strings.TrimPrefix(host, "www."), nil
}
