package eventsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/fyplink/backend/core"
)

// KafkaPublisher emits workflow events to a Kafka topic, keyed by the
// project ID when present so per-project ordering is preserved.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger core.Logger
}

var _ core.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(conf *core.Config, logger core.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(conf.Kafka.Brokers...),
			Topic:        conf.Kafka.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt core.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshaling event")
	}

	var key []byte
	if pid, ok := evt.Data["project_id"].(string); ok {
		key = []byte(pid)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: payload}); err != nil {
		p.logger.Error("publishing event", err, map[string]interface{}{"event": evt.Name})
		return errors.Wrap(err, "publishing event")
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
