package extract

import "scrapeflow/internal/domain"

// Classification is the validator's verdict on one extraction attempt. It is
// what drives retry decisions, keeping the retry policy independent of the
// extractor's error model.
type Classification int

const (
	// Failure: no usable data, or the extractor reported a transport or
	// parse error.
	Failure Classification = iota
	// Partial: some data extracted but at least one required field missing.
	Partial
	// Success: every required field present and non-empty.
	Success
)

func (c Classification) String() string {
	switch c {
	case Success:
		return "success"
	case Partial:
		return "partial"
	default:
		return "failure"
	}
}

// allFields is the full set a page can yield, used to decide whether a
// result carries any usable data at all.
var allFields = []string{
	domain.FieldTitle, domain.FieldContent, domain.FieldAuthor,
	domain.FieldPublishDate, domain.FieldLanguage, domain.FieldCategories,
	domain.FieldImages, domain.FieldVideos, domain.FieldEmbeds,
}

// Classify inspects a result against the required-field policy and records
// the missing required fields in the result's diagnostic.
func Classify(result *domain.ExtractionResult, required []string) Classification {
	if result == nil {
		return Failure
	}

	result.Missing = result.Missing[:0]
	for _, f := range required {
		if result.Field(f) == "" {
			result.Missing = append(result.Missing, f)
		}
	}
	if len(result.Missing) == 0 {
		return Success
	}

	for _, f := range allFields {
		if result.Field(f) != "" {
			return Partial
		}
	}
	return Failure
}
