package processor

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kwasham/numzy/config"
	"github.com/kwasham/numzy/internal/entity"
)

// StartConsumer reads processing tasks from Kafka until the context
// is cancelled. Each task runs in its own goroutine.
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, proc ReceiptProcessor) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        strings.Split(cfg.Brokers, ","),
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})
	defer reader.Close()

	log.Println("Receipt processor consumer started...")
	log.Printf("Connected to Kafka brokers: %s", cfg.Brokers)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("Receipt processor consumer stopped")
				return
			}
			log.Printf("Error reading message from Kafka: %v", err)
			continue
		}

		log.Printf("Received message from topic %s [partition %d, offset %d]",
			msg.Topic, msg.Partition, msg.Offset)

		var task entity.ProcessingTask
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			log.Printf("Failed to parse task: %v", err)
			continue
		}

		go func(t entity.ProcessingTask) {
			if err := proc.Process(ctx, t); err != nil {
				log.Printf("Processing failed for %s: %v", t.ReceiptID, err)
			} else {
				log.Printf("Successfully processed receipt: %s", t.ReceiptID)
			}
		}(task)
	}
}
