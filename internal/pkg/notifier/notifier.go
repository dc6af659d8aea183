// Notifications for receipts flagged by the audit rules.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/kwasham/numzy/config"
	"github.com/kwasham/numzy/internal/entity"
)

type AuditNotifier interface {
	NotifyFlagged(ctx context.Context, notification *entity.AuditNotification) error
	Close() error
}

// NewNotifier connects to RabbitMQ when a URL is configured. Flagged
// receipt alerts are dropped otherwise so processing never blocks on
// a missing broker.
func NewNotifier(cfg config.RabbitMQConfig) AuditNotifier {
	if cfg.URL == "" {
		return &noopNotifier{}
	}

	n, err := NewRabbitNotifier(cfg)
	if err != nil {
		logrus.Warnf("rabbitmq unavailable, audit notifications disabled: %v", err)
		return &noopNotifier{}
	}
	return n
}

type rabbitNotifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

func NewRabbitNotifier(cfg config.RabbitMQConfig) (AuditNotifier, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := channel.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &rabbitNotifier{
		conn:    conn,
		channel: channel,
		queue:   q,
	}, nil
}

func (n *rabbitNotifier) NotifyFlagged(ctx context.Context, notification *entity.AuditNotification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = n.channel.PublishWithContext(
		ctx,
		"",           // exchange
		n.queue.Name, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}

func (n *rabbitNotifier) Close() error {
	var errs []error

	if n.channel != nil {
		if err := n.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if n.conn != nil {
		if err := n.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing RabbitMQ: %v", errs)
	}
	return nil
}

type noopNotifier struct{}

func (n *noopNotifier) NotifyFlagged(ctx context.Context, notification *entity.AuditNotification) error {
	logrus.WithFields(logrus.Fields{
		"receipt_id": notification.ReceiptID,
		"flags":      notification.Flags,
	}).Info("receipt flagged for review")
	return nil
}

func (n *noopNotifier) Close() error {
	return nil
}
