package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/i474232898/weather-ingestion/internal/weather"
)

// DefaultKafkaTopic receives mirrored readings unless configured otherwise.
const DefaultKafkaTopic = "weather.readings"

// KafkaMirror publishes every stored reading to a Kafka topic, keyed by city
// so that a city's readings stay ordered within one partition.
type KafkaMirror struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaProducer dials brokers with a producer that waits for all in-sync replicas.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func NewKafkaMirror(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaMirror {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaMirror{producer: producer, topic: topic, logger: logger}
}

func (k *KafkaMirror) Publish(_ context.Context, r weather.Reading) error {
	payload, err := json.Marshal(Event{Name: EventWeatherUpdate, Data: r})
	if err != nil {
		return fmt.Errorf("encode reading %s: %w", r.ID, err)
	}

	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(r.City),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", r.ID, err)
	}

	k.logger.Debug("reading mirrored to kafka",
		zap.String("id", r.ID),
		zap.String("topic", k.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (k *KafkaMirror) Close() error {
	return k.producer.Close()
}

var _ weather.Publisher = (*KafkaMirror)(nil)
