// README: Outbound dispatch-offer notifications. Delivery is fire-and-forget;
// a failed publish never rolls back a broadcast.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"taybat/internal/types"
)

// Sender pushes a dispatch offer towards the drivers' devices. Returns how
// many recipients were addressed.
type Sender interface {
	DispatchOffer(ctx context.Context, orderID types.ID, driverIDs []types.ID) (int, error)
}

type offerEvent struct {
	OrderID   types.ID   `json:"order_id"`
	DriverIDs []types.ID `json:"driver_ids"`
	SentAt    time.Time  `json:"sent_at"`
}

// KafkaSender publishes offers to a topic consumed by the push-notification
// service.
type KafkaSender struct {
	writer *kafka.Writer
}

func NewKafkaSender(writer *kafka.Writer) *KafkaSender {
	return &KafkaSender{writer: writer}
}

func (s *KafkaSender) DispatchOffer(ctx context.Context, orderID types.ID, driverIDs []types.ID) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	b, err := json.Marshal(offerEvent{OrderID: orderID, DriverIDs: driverIDs, SentAt: time.Now().UTC()})
	if err != nil {
		return 0, err
	}
	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(orderID),
		Value: b,
	}); err != nil {
		return 0, err
	}
	return len(driverIDs), nil
}

func (s *KafkaSender) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

// LogSender is used when no broker is configured (local development).
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) DispatchOffer(_ context.Context, orderID types.ID, driverIDs []types.ID) (int, error) {
	s.Logger.Info("dispatch offer queued", "order_id", orderID, "drivers", len(driverIDs))
	return len(driverIDs), nil
}
