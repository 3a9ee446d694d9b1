package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"coldchain-service/internal/metrics"
	"coldchain-service/internal/models"
	"coldchain-service/internal/monitor"
)

const sourceKafka = "kafka"

// KafkaConfig параметры потребителя топика показаний
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
	RetryDelay  time.Duration
}

// messageReader часть kafka.Reader, которой пользуется потребитель
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer читает показания из Kafka. Сообщение коммитится после того,
// как показание принято в очередь или отклонено как некорректное.
type KafkaConsumer struct {
	cfg    KafkaConfig
	reader messageReader
	sink   Sink
	log    *zap.Logger
}

// NewKafkaConsumer создает потребителя в группе cfg.GroupID
func NewKafkaConsumer(cfg KafkaConfig, sink Sink, log *zap.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("readings topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("consumer group must not be empty")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newKafkaConsumer(cfg, reader, sink, log), nil
}

func newKafkaConsumer(cfg KafkaConfig, reader messageReader, sink Sink, log *zap.Logger) *KafkaConsumer {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 50 * time.Millisecond
	}
	return &KafkaConsumer{cfg: cfg, reader: reader, sink: sink, log: log}
}

// Run читает сообщения до отмены контекста или закрытия reader
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.log.Info("kafka_consumer_started",
		zap.Strings("brokers", c.cfg.Brokers),
		zap.String("topic", c.cfg.Topic),
		zap.String("group", c.cfg.GroupID),
	)
	defer c.log.Info("kafka_consumer_stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			c.log.Error("kafka_fetch_error", zap.Error(err))
			continue
		}

		if err := c.deliver(ctx, msg); err != nil {
			// контекст отменен до того, как показание было принято
			return err
		}

		commitCtx, commitCancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				c.log.Error("kafka_commit_error", zap.Error(err), zap.Int64("offset", msg.Offset))
			}
		}
		commitCancel()
	}
}

// deliver передает показание в sink, ожидая освобождения очереди
func (c *KafkaConsumer) deliver(ctx context.Context, msg kafka.Message) error {
	r, err := models.DecodeReading(msg.Value, string(msg.Key))
	if err != nil {
		metrics.ReadingsRejected.WithLabelValues(sourceKafka).Inc()
		c.log.Warn("kafka_reading_rejected", zap.Error(err), zap.Int64("offset", msg.Offset))
		return nil
	}

	for {
		err := c.sink.Submit(r)
		switch {
		case err == nil:
			metrics.ReadingsReceived.WithLabelValues(sourceKafka).Inc()
			return nil
		case errors.Is(err, monitor.ErrQueueFull):
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
		case isInvalid(err):
			metrics.ReadingsRejected.WithLabelValues(sourceKafka).Inc()
			return nil
		default:
			c.log.Error("kafka_submit_failed", zap.Error(err), zap.String("batch_id", r.BatchID))
			return err
		}
	}
}

// Close закрывает reader
func (c *KafkaConsumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
