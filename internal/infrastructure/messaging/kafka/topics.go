package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/pkg/errors"
	moltypes "github.com/turtacn/pcfp/pkg/types/molecule"
)

const (
	TopicFingerprintCompute    = "molecule.fingerprint.compute"
	TopicFingerprintComputed   = "molecule.fingerprint.computed"
	TopicFingerprintDeadLetter = "molecule.fingerprint.dead_letter"
)

const (
	EventComputeRequested    = "fingerprint.compute_requested"
	EventFingerprintComputed = "fingerprint.computed"
	EventFingerprintFailed   = "fingerprint.failed"

	eventSource   = "pcfp"
	schemaVersion = "v1"
)

// Message is a consumed record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// ProducerMessage is a record to publish.
type ProducerMessage struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// MessageHandler processes one consumed message.
type MessageHandler func(ctx context.Context, msg *Message) error

// EventEnvelope wraps every payload on the fingerprint topics.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// ComputeRequestedPayload asks a worker to fingerprint one molecule.
type ComputeRequestedPayload struct {
	JobID    string             `json:"job_id,omitempty"`
	Document *moltypes.Document `json:"document"`
}

// FingerprintComputedPayload reports one outcome. Fingerprint is the
// PubChem base64 form; it is empty when ErrorCode is set.
type FingerprintComputedPayload struct {
	JobID        string    `json:"job_id,omitempty"`
	Digest       string    `json:"digest"`
	MoleculeID   string    `json:"molecule_id,omitempty"`
	Formula      string    `json:"formula,omitempty"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	OnBits       int       `json:"on_bits"`
	ComputedAt   time.Time `json:"computed_at"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// ComputedPayloadFromRecord renders a successful record.
func ComputedPayloadFromRecord(jobID string, r *fingerprint.Record) FingerprintComputedPayload {
	return FingerprintComputedPayload{
		JobID:       jobID,
		Digest:      r.Digest,
		MoleculeID:  r.MoleculeID,
		Formula:     r.Formula,
		Fingerprint: r.Fingerprint.Base64(),
		OnBits:      r.OnBits,
		ComputedAt:  r.ComputedAt,
	}
}

func NewEventEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        eventSource,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload:       data,
	}, nil
}

func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeValidation, "event has no payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode event payload")
	}
	return nil
}

// ToMessage serialises the envelope for topic with key as the partition key.
func (e *EventEnvelope) ToMessage(topic string, key string) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return &ProducerMessage{
		Topic: topic,
		Key:   []byte(key),
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source_service": e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

func MessageToEventEnvelope(msg *Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// ConnInterface is the slice of *kafka.Conn the topic manager needs.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates the fingerprint topics when missing.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to dial kafka").WithDetail(brokers[0])
	}
	return NewTopicManagerWithConn(conn, logger), nil
}

func NewTopicManagerWithConn(conn ConnInterface, logger logging.Logger) *TopicManager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &TopicManager{conn: conn, logger: logger}
}

// EnsureTopics creates every topic in names that has no partitions yet.
func (m *TopicManager) EnsureTopics(ctx context.Context, partitions, replication int, retention time.Duration, names ...string) error {
	if partitions <= 0 || replication <= 0 {
		return errors.New(errors.ErrCodeValidation, "partitions and replication factor must be > 0")
	}
	var missing []kafka.TopicConfig
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		parts, err := m.conn.ReadPartitions(name)
		if err == nil && len(parts) > 0 {
			continue
		}
		cfg := kafka.TopicConfig{Topic: name, NumPartitions: partitions, ReplicationFactor: replication}
		if retention > 0 {
			cfg.ConfigEntries = append(cfg.ConfigEntries, kafka.ConfigEntry{
				ConfigName:  "retention.ms",
				ConfigValue: strconv.FormatInt(retention.Milliseconds(), 10),
			})
		}
		missing = append(missing, cfg)
	}
	if len(missing) == 0 {
		return nil
	}
	if err := m.conn.CreateTopics(missing...); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create topics")
	}
	for _, t := range missing {
		m.logger.Info("Topic created", logging.String("topic", t.Topic), logging.Int("partitions", t.NumPartitions))
	}
	return nil
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}
