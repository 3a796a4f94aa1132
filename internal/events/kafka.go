package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-lifecycle/internal/models"
)

// TransitionEvent is published for every observed status change of a ride.
type TransitionEvent struct {
	RideID     string        `json:"ride_id"`
	From       models.Status `json:"from"`
	To         models.Status `json:"to"`
	ObservedAt time.Time     `json:"observed_at"`
}

// KafkaPublisher writes lifecycle transition events to a Kafka topic,
// keyed by ride id so one ride's events stay in partition order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaPublisher{writer: w}
}

func (k *KafkaPublisher) PublishTransition(ctx context.Context, rideID string, from, to models.Status) error {
	b, err := json.Marshal(TransitionEvent{RideID: rideID, From: from, To: to, ObservedAt: time.Now()})
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(rideID), Value: b})
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
