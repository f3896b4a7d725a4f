package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"bloodlink/internal/notification"
)

// Publisher produces records and waits for broker acknowledgement.
type Publisher interface {
	Publish(ctx context.Context, records ...*kgo.Record) error
}

// Kafka publishes one record per message, keyed by recipient so a recipient's
// notifications stay ordered within a partition.
type Kafka struct {
	publisher Publisher
}

func NewKafka(publisher Publisher) *Kafka {
	return &Kafka{publisher: publisher}
}

func (k *Kafka) Deliver(ctx context.Context, messages []notification.Message) error {
	records := make([]*kgo.Record, 0, len(messages))
	for _, m := range messages {
		value, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}
		records = append(records, &kgo.Record{
			Key:   []byte(m.RecipientID.String()),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "category", Value: []byte(m.Category)},
				{Key: "priority", Value: []byte(m.Priority)},
			},
		})
	}
	if err := k.publisher.Publish(ctx, records...); err != nil {
		return fmt.Errorf("publish notifications: %w", err)
	}
	return nil
}
