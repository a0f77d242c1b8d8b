package sink

import (
	"context"
	"fmt"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/oceanlab/flowmow/pkg/output"
	"github.com/oceanlab/flowmow/pkg/table"
)

const kafkaBatchSize = 500

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaSink publishes one JSON message per table row.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// NewKafkaSink creates a producer for topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaSink{writer: w, topic: topic}
}

// Name returns the sink name.
func (s *KafkaSink) Name() string {
	return "kafka"
}

// Write publishes the rows of t in batches, keyed by instrument, dive and
// epoch.
func (s *KafkaSink) Write(ctx context.Context, dive int, t *table.Table) (string, error) {
	cols := t.Columns()
	epochs, ok := t.Column("epoch")
	if !ok {
		return "", fmt.Errorf("table %s has no epoch column", t.Name)
	}

	batch := make([]kafkago.Message, 0, min(t.Len(), kafkaBatchSize))
	for i := 0; i < t.Len(); i++ {
		msg, err := rowMessage(t.Name, dive, epochs[i], cols, t.Row(i))
		if err != nil {
			return "", err
		}
		batch = append(batch, msg)

		if len(batch) == kafkaBatchSize {
			if err := s.writer.WriteMessages(ctx, batch...); err != nil {
				return "", fmt.Errorf("publishing %s rows: %w", t.Name, err)
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := s.writer.WriteMessages(ctx, batch...); err != nil {
			return "", fmt.Errorf("publishing %s rows: %w", t.Name, err)
		}
	}

	return "kafka://" + s.topic, nil
}

// Close flushes and closes the producer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func rowMessage(name string, dive int, epoch any, cols []string, row []any) (kafkago.Message, error) {
	value, err := output.MarshalRow(cols, row)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s row: %w", name, err)
	}

	e, ok := epoch.(float64)
	if !ok {
		return kafkago.Message{}, fmt.Errorf("%s epoch is %T, want float64", name, epoch)
	}
	key := fmt.Sprintf("%s-%d-%s", name, dive, strconv.FormatFloat(e, 'f', -1, 64))

	return kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "instrument", Value: []byte(name)},
			{Key: "dive", Value: []byte(strconv.Itoa(dive))},
		},
	}, nil
}
