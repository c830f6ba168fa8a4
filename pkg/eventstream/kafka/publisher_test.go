package kafka_test

import (
	"context"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/eventstream"
	"github.com/paperlane/vectorize/pkg/eventstream/kafka"
)

func brokers() []string {
	dsn := os.Getenv("VECTORIZE_TEST_KAFKA_BROKERS")
	if dsn == "" {
		Skip("VECTORIZE_TEST_KAFKA_BROKERS not set, skipping Kafka tests")
	}
	return strings.Split(dsn, ",")
}

var _ = Describe("Publisher", func() {
	It("publishes an event without error", func() {
		p := kafka.New(kafka.Config{Brokers: brokers(), Topic: "vectorize-events-test"}, zap.NewNop())
		defer p.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := p.Publish(ctx, &eventstream.Event{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeJobCreated,
			EventID:       "evt_test",
			EmittedAt:     time.Now(),
			JobName:       "products",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a nil event", func() {
		p := kafka.New(kafka.Config{Brokers: brokers(), Topic: "vectorize-events-test"}, zap.NewNop())
		defer p.Close()

		err := p.Publish(context.Background(), nil)
		Expect(err).To(MatchError(eventstream.ErrNilEvent))
	})
})
