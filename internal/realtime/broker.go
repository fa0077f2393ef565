package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPMirror publishes dispatched events to a topic exchange so other
// services can follow booking activity.
type AMQPMirror struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

type mirrorMessage struct {
	UserID  int64     `json:"user_id"`
	Type    EventType `json:"type"`
	Payload Event     `json:"payload"`
	At      time.Time `json:"at"`
}

func DialAMQP(url, exchange string) (*AMQPMirror, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPMirror{conn: conn, ch: ch, exchange: exchange}, nil
}

// RoutingKey is "booking.<event type>".
func RoutingKey(ev Event) string {
	return "booking." + string(ev.Type())
}

func (m *AMQPMirror) Publish(ctx context.Context, userID int64, ev Event) error {
	now := time.Now().UTC()
	body, err := json.Marshal(mirrorMessage{UserID: userID, Type: ev.Type(), Payload: ev, At: now})
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishing.
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch.PublishWithContext(ctx, m.exchange, RoutingKey(ev), false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   uuid.NewString(),
		Timestamp:   now,
		Body:        body,
	})
}

func (m *AMQPMirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ch != nil {
		_ = m.ch.Close()
	}
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}
