package streamer

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/guillermopickman-spec/market-intel-agent/internal/logging"
)

// missionEventsTopic is the fixed topic every mission run's trace is
// mirrored to, so an internal consumer (e.g. an analytics job) can tail the
// same ordered stream the Progress Streamer already produces.
const missionEventsTopic = "mission.events"

// KafkaPublisher is the Publisher implementation backing the Streamer's
// optional secondary sink: a single fire-and-forget topic rather than a
// command/reply/DLQ exchange.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher constructs a publisher for mission.events against the
// given brokers. Writes are async: WriteMessages enqueues and returns
// immediately, and delivery failures surface only through the completion
// callback, never by blocking the caller.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	p := &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        missionEventsTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
	}}
	p.writer.Completion = func(messages []kafka.Message, err error) {
		if err != nil {
			logging.FromContext(context.Background()).Warn().Err(err).
				Int("messages", len(messages)).Msg("streamer: kafka publish failed")
		}
	}
	return p
}

// Publish writes value under key to mission.events. Errors are logged by
// the writer's completion callback and never returned here: a broken Kafka
// broker must never interrupt a mission stream.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, value []byte) {
	msg := kafka.Message{Value: value}
	if key != "" {
		msg.Key = []byte(key)
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("streamer: kafka enqueue failed")
	}
}

// Close flushes buffered messages and closes the underlying connection.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
