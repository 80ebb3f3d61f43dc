package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chunk is a bounded, possibly-overlapping slice of a source document,
// the unit of embedding and retrieval.
type Chunk struct {
	Source string `json:"source"`
	Index  int    `json:"index"`
	Text   string `json:"text"`
}

// PointID derives the stable vector-store identifier for a chunk position.
// It is a name-based UUID over "<source>:<index>", so re-ingesting the same
// source produces the same ids and overwrites prior points instead of
// duplicating them.
func PointID(source string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s:%d", source, index))).String()
}

// Payload is the metadata stored alongside each vector.
type Payload struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// SearchHit is a single nearest-neighbor match.
type SearchHit struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// RunKind identifies which pipeline a run belongs to.
type RunKind string

const (
	RunIngest RunKind = "ingest"
	RunQuery  RunKind = "query"
)

// RunStatus tracks a run through its pipeline's state machine.
type RunStatus string

const (
	StatusReceived         RunStatus = "received"
	StatusChunked          RunStatus = "chunked"
	StatusEmbedded         RunStatus = "embedded"
	StatusUpserted         RunStatus = "upserted"
	StatusContextRetrieved RunStatus = "context_retrieved"
	StatusAnswered         RunStatus = "answered"
	StatusCompleted        RunStatus = "completed"
	StatusFailed           RunStatus = "failed"
)

// Terminal reports whether a run in this status is finished.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Run is one durable execution of a pipeline.
type Run struct {
	ID         string    `json:"id"`
	Kind       RunKind   `json:"kind"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// StepRecord is the durably recorded output of one named step within a run.
// Records are write-once per (run id, step name).
type StepRecord struct {
	RunID      string    `json:"run_id"`
	Step       string    `json:"step"`
	Output     []byte    `json:"output"`
	RecordedAt time.Time `json:"recorded_at"`
}

// IngestResult is the final output of an ingestion run.
type IngestResult struct {
	Indexed int `json:"indexed"`
}

// SearchContext is the output of the query pipeline's retrieval step.
// Sources is deduplicated and sorted for deterministic output.
type SearchContext struct {
	Contexts []string `json:"contexts"`
	Sources  []string `json:"sources"`
}

// QueryResult is the final output of a query run.
type QueryResult struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	NumContexts int      `json:"num_contexts"`
}
