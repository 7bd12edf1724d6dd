package extraction

import (
	"fmt"
	"log/slog"
	"time"
)

// Record is the structured result of running the pipeline over one receipt
// image. Every field carries a documented fallback, so a Record always
// exists when text acquisition succeeds.
type Record struct {
	Vendor   string  `json:"vendor"`
	Total    float64 `json:"total"`
	Date     string  `json:"date"` // DD/MM/YY
	Category string  `json:"category"`
	RawText  string  `json:"raw_text"`
}

// Recognizer converts a receipt image into raw line-broken text. The
// pipeline tolerates garbled or empty output; only an outright failure to
// process the image is an error.
type Recognizer interface {
	RecognizeText(image []byte, contentType string) (string, error)
}

// Clock provides the current time, injectable for the date-default tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ExtractionError means the OCR capability could not process the image.
// No partial record accompanies it.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting receipt text: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Pipeline sequences text acquisition, the field extractors, and category
// resolution into one Record.
type Pipeline struct {
	recognizer Recognizer
	resolver   *Resolver
	clock      Clock
}

// NewPipeline creates a Pipeline using the system clock.
func NewPipeline(recognizer Recognizer, resolver *Resolver) *Pipeline {
	return NewPipelineWithClock(recognizer, resolver, systemClock{})
}

// NewPipelineWithClock creates a Pipeline with a custom clock for testing.
func NewPipelineWithClock(recognizer Recognizer, resolver *Resolver, clock Clock) *Pipeline {
	return &Pipeline{
		recognizer: recognizer,
		resolver:   resolver,
		clock:      clock,
	}
}

// Extract runs the full pipeline on one image. The field extractors are
// total functions with guaranteed fallbacks, so the only failure mode is
// the recognizer itself.
func (p *Pipeline) Extract(image []byte, contentType string) (*Record, error) {
	text, err := p.recognizer.RecognizeText(image, contentType)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}

	vendor := ExtractVendor(SplitLines(text))
	total := ExtractTotal(text)
	date := ExtractDate(text, p.clock.Now())
	category := p.resolver.Resolve(vendor, text)

	slog.Debug("extracted receipt fields",
		"vendor", vendor,
		"total", total,
		"date", date,
		"category", category,
	)

	return &Record{
		Vendor:   vendor,
		Total:    total,
		Date:     date,
		Category: category,
		RawText:  text,
	}, nil
}
