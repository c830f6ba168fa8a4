package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/paperlane/vectorize/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals a job-created event with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.Event{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeJobCreated,
			EventID:       "evt_123",
			EmittedAt:     now,
			JobName:       "products",
			Payload: eventstream.JobCreatedPayload{
				Schema:      "public",
				Relation:    "products",
				TextColumns: []string{"name", "description"},
				Transformer: "ollama/nomic-embed-text",
				TableMethod: "join",
				Realtime:    true,
			},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("job_name"))
		Expect(got).To(HaveKey("payload"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeJobCreated).To(Equal("vectorize.job.created"))
		Expect(eventstream.EventTypeJobDeleted).To(Equal("vectorize.job.deleted"))
		Expect(eventstream.EventTypeEmbeddingWritten).To(Equal("vectorize.embedding.written"))
		Expect(eventstream.EventTypeMessageArchived).To(Equal("vectorize.message.archived"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilEvent).To(MatchError("nil event"))
	})
})
