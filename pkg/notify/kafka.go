package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/velocityiq/velocityiq-engine/pkg/config"
	"github.com/velocityiq/velocityiq-engine/pkg/models"
)

// KafkaPublisher pushes events to the configured Kafka topic. Publishing is
// asynchronous: broker failures are logged and never fail an engine run.
type KafkaPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *zap.Logger
}

var _ Sink = (*KafkaPublisher)(nil)

// NewKafkaPublisher connects an async producer to the configured brokers.
// Returns (nil, nil) when publishing is disabled.
func NewKafkaPublisher(cfg *config.KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if !cfg.PublishingEnabled() {
		return nil, nil
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V2_8_0_0
	saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	saramaCfg.Producer.Return.Successes = false
	saramaCfg.Producer.Return.Errors = true
	saramaCfg.Producer.Flush.Frequency = 500 * time.Millisecond

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	publisher := &KafkaPublisher{
		producer: producer,
		topic:    cfg.Topic,
		logger:   logger.Named("kafka"),
	}
	go publisher.drainErrors()

	return publisher, nil
}

func (p *KafkaPublisher) drainErrors() {
	for err := range p.producer.Errors() {
		p.logger.Warn("Event publish failed", zap.Error(err))
	}
}

// Publish enqueues the event on the producer's input channel.
func (p *KafkaPublisher) Publish(_ context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("Event marshal failed", zap.String("type", event.Type), zap.Error(err))
		return
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(payload),
	}
	if key := eventKey(event); key != "" {
		message.Key = sarama.StringEncoder(key)
	}

	p.producer.Input() <- message
}

// eventKey keys alert events by their subject so per-subject ordering holds
// within a partition. Non-alert events stay unkeyed.
func eventKey(event Event) string {
	alert, ok := event.Data.(*models.Alert)
	if !ok {
		return ""
	}
	switch {
	case alert.ProductID != nil:
		return alert.ProductID.String()
	case alert.SupplierID != nil:
		return alert.SupplierID.String()
	}
	return ""
}

// Close flushes buffered messages and shuts the producer down.
func (p *KafkaPublisher) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}
