package domain

import "fmt"

// Event is an inbound trigger that starts a pipeline run. Implementations
// form a closed set of typed variants validated before any step executes.
type Event interface {
	Kind() RunKind
	Validate() error
}

// IngestEvent requests ingestion of a text blob under a caller-supplied
// source id. Empty text is valid and results in zero indexed chunks.
type IngestEvent struct {
	SourceID string `json:"source_id"`
	Text     string `json:"text"`
}

func (e IngestEvent) Kind() RunKind { return RunIngest }

func (e IngestEvent) Validate() error {
	if e.SourceID == "" {
		return fmt.Errorf("%w: ingest event missing source_id", ErrMalformedEvent)
	}
	return nil
}

// QueryEvent requests an answer to a natural-language question.
// TopK <= 0 falls back to the default at execution time.
type QueryEvent struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

func (e QueryEvent) Kind() RunKind { return RunQuery }

func (e QueryEvent) Validate() error {
	if e.Question == "" {
		return fmt.Errorf("%w: query event missing question", ErrMalformedEvent)
	}
	return nil
}
