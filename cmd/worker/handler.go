package main

import (
	"context"
	"time"

	appfp "github.com/turtacn/pcfp/internal/application/fingerprint"
	"github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/pcfp/pkg/errors"
)

// resultPublisher is the part of kafka.RecordPublisher the handler uses.
type resultPublisher interface {
	Publish(ctx context.Context, records ...*fingerprint.Record) error
	PublishFailure(ctx context.Context, payload kafka.FingerprintComputedPayload) error
}

// computeHandler turns compute requests into computed or failed results.
type computeHandler struct {
	svc     appfp.Service
	results resultPublisher
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

func newComputeHandler(svc appfp.Service, results resultPublisher, metrics *prometheus.AppMetrics, logger logging.Logger) *computeHandler {
	if metrics == nil {
		metrics = prometheus.NewNoopMetrics()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &computeHandler{svc: svc, results: results, metrics: metrics, logger: logger}
}

// Handle processes one message. Undecodable messages and invalid molecules
// return client errors, which the consumer dead-letters without retrying;
// invalid molecules are also reported on the result topic.
func (h *computeHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	start := time.Now()
	defer func() {
		h.metrics.MessageProcessDuration.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
	}()

	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeMoleculeParsingFailed, "undecodable compute request")
	}
	if env.EventType != kafka.EventComputeRequested {
		h.logger.Warn("skipping unexpected event type",
			logging.String("event_type", env.EventType),
			logging.Int64("offset", msg.Offset))
		return nil
	}
	var req kafka.ComputeRequestedPayload
	if err := env.DecodePayload(&req); err != nil {
		return errors.Wrap(err, errors.ErrCodeMoleculeParsingFailed, "undecodable compute request")
	}
	if req.Document == nil {
		return errors.New(errors.ErrCodeMoleculeInvalidFormat, "compute request has no document").
			WithDetail("event_id=" + env.EventID)
	}

	ctx = kafka.WithJobID(ctx, req.JobID)
	res, err := h.svc.Compute(ctx, &appfp.ComputeRequest{Document: req.Document})
	if err != nil {
		if errors.IsClientError(errors.GetCode(err)) {
			h.reportFailure(ctx, req, err)
		}
		return err
	}
	if err := h.results.Publish(ctx, res.Record); err != nil {
		return errors.Wrap(err, errors.CodeMessageQueueError, "failed to publish fingerprint")
	}
	h.logger.Debug("fingerprint computed",
		logging.String("digest", res.Record.Digest),
		logging.String("source", res.Source),
		logging.String("job_id", req.JobID))
	return nil
}

func (h *computeHandler) reportFailure(ctx context.Context, req kafka.ComputeRequestedPayload, cause error) {
	digest, _ := req.Document.Digest()
	payload := kafka.FingerprintComputedPayload{
		JobID:        req.JobID,
		Digest:       digest,
		MoleculeID:   req.Document.ID,
		ComputedAt:   time.Now().UTC(),
		ErrorCode:    string(errors.GetCode(cause)),
		ErrorMessage: cause.Error(),
	}
	if err := h.results.PublishFailure(ctx, payload); err != nil {
		h.logger.Error("failed to publish failure result", logging.Err(err), logging.String("digest", digest))
	}
}
