// Package kafka carries fingerprint requests and results over segmentio/kafka-go.
package kafka

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/pcfp/internal/config"
	"github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/pkg/errors"
)

var ErrProducerClosed = errors.New(errors.ErrCodeInternal, "producer closed")

const defaultMaxMessageBytes = 1 << 20

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes envelopes with hash partitioning on the message key so
// every event for one digest lands on the same partition.
type Producer struct {
	writer          WriterInterface
	logger          logging.Logger
	maxMessageBytes int
	closed          atomic.Bool
	sent            atomic.Int64
	failed          atomic.Int64
}

// NewProducer builds a kafka.Writer from cfg.
func NewProducer(cfg config.KafkaConfig, logger logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	if cfg.MaxRetries < 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka max_retries must be >= 0")
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxRetries + 1,
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Transport:    &kafka.Transport{DialTimeout: 10 * time.Second},
	}
	return NewProducerWithWriter(writer, logger), nil
}

func NewProducerWithWriter(w WriterInterface, logger logging.Logger) *Producer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Producer{writer: w, logger: logger, maxMessageBytes: defaultMaxMessageBytes}
}

// Publish writes one message.
func (p *Producer) Publish(ctx context.Context, msg *ProducerMessage) error {
	_, err := p.PublishBatch(ctx, []*ProducerMessage{msg})
	return err
}

// PublishBatch writes msgs in one call and reports how many succeeded.
func (p *Producer) PublishBatch(ctx context.Context, msgs []*ProducerMessage) (int, error) {
	if p.closed.Load() {
		return 0, ErrProducerClosed
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	kMsgs := make([]kafka.Message, len(msgs))
	for i, msg := range msgs {
		if err := p.check(msg); err != nil {
			return 0, err
		}
		kMsgs[i] = toKafkaMessage(msg)
	}

	start := time.Now()
	err := p.writer.WriteMessages(ctx, kMsgs...)
	if err == nil {
		p.sent.Add(int64(len(msgs)))
		p.logger.Debug("Messages published",
			logging.String("topic", msgs[0].Topic),
			logging.Int("count", len(msgs)),
			logging.Duration("latency", time.Since(start)))
		return len(msgs), nil
	}

	ok := 0
	var writeErrs kafka.WriteErrors
	if stderrors.As(err, &writeErrs) {
		for _, we := range writeErrs {
			if we == nil {
				ok++
			}
		}
	}
	p.sent.Add(int64(ok))
	p.failed.Add(int64(len(msgs) - ok))
	return ok, errors.Wrap(err, errors.CodeMessageQueueError, "publish failed")
}

func (p *Producer) check(msg *ProducerMessage) error {
	switch {
	case msg == nil || msg.Topic == "":
		return errors.New(errors.ErrCodeValidation, "message topic required")
	case len(msg.Value) == 0:
		return errors.New(errors.ErrCodeValidation, "message value required")
	case len(msg.Value) > p.maxMessageBytes:
		return errors.Newf(errors.ErrCodeValidation, "message of %d bytes exceeds %d", len(msg.Value), p.maxMessageBytes)
	}
	return nil
}

// Stats returns the sent and failed counters.
func (p *Producer) Stats() (sent, failed int64) {
	return p.sent.Load(), p.failed.Load()
}

func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("Kafka producer closed", logging.Int64("sent", p.sent.Load()), logging.Int64("failed", p.failed.Load()))
	return err
}

func toKafkaMessage(msg *ProducerMessage) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return kafka.Message{Topic: msg.Topic, Key: msg.Key, Value: msg.Value, Headers: headers, Time: ts}
}

// RecordPublisher announces computed records on the result topic.
type RecordPublisher struct {
	producer *Producer
	topic    string
}

var _ fingerprint.Publisher = (*RecordPublisher)(nil)

func NewRecordPublisher(p *Producer, topic string) *RecordPublisher {
	if topic == "" {
		topic = TopicFingerprintComputed
	}
	return &RecordPublisher{producer: p, topic: topic}
}

func (rp *RecordPublisher) Publish(ctx context.Context, records ...*fingerprint.Record) error {
	msgs := make([]*ProducerMessage, 0, len(records))
	for _, r := range records {
		msg, err := rp.message(ComputedPayloadFromRecord(jobIDFrom(ctx), r))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	_, err := rp.producer.PublishBatch(ctx, msgs)
	return err
}

// PublishFailure reports a molecule that could not be fingerprinted.
func (rp *RecordPublisher) PublishFailure(ctx context.Context, payload FingerprintComputedPayload) error {
	env, err := NewEventEnvelope(EventFingerprintFailed, payload)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(rp.topic, payload.Digest)
	if err != nil {
		return err
	}
	return rp.producer.Publish(ctx, msg)
}

func (rp *RecordPublisher) message(payload FingerprintComputedPayload) (*ProducerMessage, error) {
	env, err := NewEventEnvelope(EventFingerprintComputed, payload)
	if err != nil {
		return nil, err
	}
	return env.ToMessage(rp.topic, payload.Digest)
}

type jobIDKey struct{}

// WithJobID tags ctx so published results carry the originating job id.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, jobID)
}

func jobIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}
