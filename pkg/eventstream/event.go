package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeJobCreated is emitted after a job's tracking row and generated
	// storage/index/trigger are installed.
	EventTypeJobCreated = "vectorize.job.created"

	// EventTypeJobDeleted is emitted after a job and its generated storage
	// are torn down.
	EventTypeJobDeleted = "vectorize.job.deleted"

	// EventTypeEmbeddingWritten is emitted after a worker writes a batch of
	// embeddings back to generated storage.
	EventTypeEmbeddingWritten = "vectorize.embedding.written"

	// EventTypeMessageArchived is emitted when a queue message is moved to
	// the dead-letter archive after exhausting its retry budget or hitting
	// a permanent provider error.
	EventTypeMessageArchived = "vectorize.message.archived"
)

// Event is the transport-neutral envelope published for every job lifecycle
// occurrence. Payload holds the event-specific fields as a typed value
// (JobCreatedPayload, JobDeletedPayload, EmbeddingWrittenPayload, or
// MessageArchivedPayload); publishers marshal the whole Event, Payload
// included, to JSON.
type Event struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	JobName       string    `json:"job_name"`
	Payload       any       `json:"payload,omitempty"`
}

// JobCreatedPayload describes a newly registered job.
type JobCreatedPayload struct {
	Schema      string   `json:"schema"`
	Relation    string   `json:"relation"`
	TextColumns []string `json:"text_columns"`
	Transformer string   `json:"transformer"`
	TableMethod string   `json:"table_method"`
	Realtime    bool     `json:"realtime"`
	Schedule    string   `json:"schedule,omitempty"`
}

// JobDeletedPayload describes a torn-down job.
type JobDeletedPayload struct {
	DroppedStorage bool `json:"dropped_storage"`
}

// EmbeddingWrittenPayload describes one batch writeback.
type EmbeddingWrittenPayload struct {
	RowCount   int    `json:"row_count"`
	Provider   string `json:"provider"`
	DurationMs int64  `json:"duration_ms"`
}

// MessageArchivedPayload describes one dead-lettered queue message.
type MessageArchivedPayload struct {
	MessageID int64  `json:"message_id"`
	ReadCount int32  `json:"read_count"`
	Reason    string `json:"reason"`
}

// NewEventID returns a fresh random event identifier.
func NewEventID() string {
	return uuid.New().String()
}
