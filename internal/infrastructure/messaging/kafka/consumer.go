package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/pcfp/internal/config"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/pkg/errors"
)

var ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RetryPolicy bounds handler retries before a message is dead-lettered.
type RetryPolicy struct {
	MaxRetries      int
	Backoff         time.Duration
	MaxBackoff      time.Duration
	DeadLetterTopic string
}

// Consumer reads one topic in a consumer group and commits each message
// after its handler finishes, successfully or not.
type Consumer struct {
	reader     ReaderInterface
	handler    MessageHandler
	retry      RetryPolicy
	deadLetter *Producer
	logger     logging.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	consumed     atomic.Int64
	failed       atomic.Int64
	deadLettered atomic.Int64
}

// NewConsumer subscribes the group to cfg.RequestTopic.
func NewConsumer(cfg config.KafkaConfig, handler MessageHandler, deadLetter *Producer, logger logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "kafka group_id required")
	}
	topic := cfg.RequestTopic
	if topic == "" {
		topic = TopicFingerprintCompute
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    []string{topic},
		MinBytes:       1,
		MaxBytes:       10 << 20,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: cfg.CommitInterval,
		StartOffset:    kafka.FirstOffset,
		Dialer:         &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true},
	})
	policy := RetryPolicy{MaxRetries: cfg.MaxRetries, Backoff: cfg.RetryBackoff, DeadLetterTopic: TopicFingerprintDeadLetter}
	return NewConsumerWithReader(reader, handler, policy, deadLetter, logger), nil
}

func NewConsumerWithReader(r ReaderInterface, handler MessageHandler, policy RetryPolicy, deadLetter *Producer, logger logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if policy.Backoff <= 0 {
		policy.Backoff = 500 * time.Millisecond
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = 30 * time.Second
	}
	return &Consumer{reader: r, handler: handler, retry: policy, deadLetter: deadLetter, logger: logger}
}

// Start launches the fetch loop; it stops when ctx is cancelled or Close is called.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx)
	c.logger.Info("Kafka consumer started")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("FetchMessage error", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.consumed.Add(1)

		msg := fromKafkaMessage(m)
		if err := c.process(ctx, msg); err != nil {
			c.failed.Add(1)
			if ctx.Err() != nil {
				return
			}
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("CommitMessages failed", logging.Err(err), logging.Int64("offset", m.Offset))
		}
	}
}

// process runs the handler with exponential backoff and dead-letters the
// message once retries are exhausted. Validation failures are not retried.
func (c *Consumer) process(ctx context.Context, msg *Message) error {
	err := c.handler(ctx, msg)
	backoff := c.retry.Backoff
	for attempt := 0; err != nil && attempt < c.retry.MaxRetries && retryable(err); attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		err = c.handler(ctx, msg)
		backoff *= 2
		if backoff > c.retry.MaxBackoff {
			backoff = c.retry.MaxBackoff
		}
	}
	if err == nil {
		return nil
	}

	c.logger.Error("Message processing failed",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Err(err))
	if c.deadLetter != nil && c.retry.DeadLetterTopic != "" {
		headers := make(map[string]string, len(msg.Headers)+3)
		for k, v := range msg.Headers {
			headers[k] = v
		}
		headers["original_topic"] = msg.Topic
		headers["error_code"] = string(errors.GetCode(err))
		headers["error_message"] = err.Error()
		dl := &ProducerMessage{Topic: c.retry.DeadLetterTopic, Key: msg.Key, Value: msg.Value, Headers: headers}
		if dlErr := c.deadLetter.Publish(ctx, dl); dlErr != nil {
			c.logger.Error("Failed to send to dead letter topic", logging.Err(dlErr))
		} else {
			c.deadLettered.Add(1)
		}
	}
	return err
}

// retryable is false for input errors that a retry cannot fix.
func retryable(err error) bool {
	return !errors.IsClientError(errors.GetCode(err))
}

// Stats returns the consumed, failed and dead-lettered counters.
func (c *Consumer) Stats() (consumed, failed, deadLettered int64) {
	return c.consumed.Load(), c.failed.Load(), c.deadLettered.Load()
}

// Close stops the loop and waits for the in-flight message.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	err := c.reader.Close()
	c.logger.Info("Kafka consumer closed", logging.Int64("consumed", c.consumed.Load()))
	return err
}

func fromKafkaMessage(m kafka.Message) *Message {
	msg := &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Time,
		Headers:   make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}
