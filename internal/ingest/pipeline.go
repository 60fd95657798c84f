package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/sensor-collector/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensor-collector/internal/metrics"
	"github.com/nerrad567/sensor-collector/internal/reading"
)

// Inserter is the storage the pipeline needs. *reading.Store implements it.
type Inserter interface {
	Insert(ctx context.Context, r reading.Reading) error
}

// Subscriber is the broker surface Register needs. *mqtt.Client implements it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger is the logging surface the pipeline needs.
// Compatible with logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the pipeline's collaborators.
type Deps struct {
	// Store is required.
	Store Inserter

	// Logger may be nil, in which case nothing is logged.
	Logger Logger

	// Metrics may be nil.
	Metrics *metrics.Ingest

	// Mirrors receive each stored reading. May be empty.
	Mirrors []Mirror

	// Topic defaults to mqtt.SensorDataTopic; QoS defaults to 0.
	Topic string
	QoS   byte
}

// Pipeline turns broker messages into stored readings.
//
// Each message is decoded, inserted once and, if stored, forwarded to the
// mirrors. No failure is ever returned to the broker connection: decode
// errors, constraint violations and storage errors are logged and counted,
// and the message is dropped without retry.
//
// Thread Safety: HandleMessage is safe for concurrent use, though the broker
// client delivers one message at a time.
type Pipeline struct {
	store   Inserter
	logger  Logger
	metrics *metrics.Ingest
	mirrors []Mirror
	topic   string
	qos     byte
	now     func() time.Time

	stats counters
}

type counters struct {
	received             atomic.Int64
	stored               atomic.Int64
	decodeErrors         atomic.Int64
	constraintViolations atomic.Int64
	storeErrors          atomic.Int64
	mirrorErrors         atomic.Int64
	lastStored           atomic.Int64 // unix nanoseconds
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	Received             int64      `json:"received"`
	Stored               int64      `json:"stored"`
	DecodeErrors         int64      `json:"decode_errors"`
	ConstraintViolations int64      `json:"constraint_violations"`
	StoreErrors          int64      `json:"store_errors"`
	MirrorErrors         int64      `json:"mirror_errors"`
	LastStoredAt         *time.Time `json:"last_stored_at,omitempty"`
}

// New creates a pipeline.
func New(deps Deps) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.QoS > 2 {
		return nil, mqtt.ErrInvalidQoS
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	topic := deps.Topic
	if topic == "" {
		topic = mqtt.SensorDataTopic
	}

	return &Pipeline{
		store:   deps.Store,
		logger:  logger,
		metrics: deps.Metrics,
		mirrors: deps.Mirrors,
		topic:   topic,
		qos:     deps.QoS,
		now:     time.Now,
	}, nil
}

// Register routes the pipeline's topic to HandleMessage.
// Call it before the client connects so queued session messages are not
// missed.
func (p *Pipeline) Register(client Subscriber) error {
	if err := client.Subscribe(p.topic, p.qos, p.HandleMessage); err != nil {
		return fmt.Errorf("registering %s handler: %w", p.topic, err)
	}
	return nil
}

// Topic returns the topic the pipeline consumes.
func (p *Pipeline) Topic() string {
	return p.topic
}

// HandleMessage processes one message. It always returns nil: every
// failure is absorbed here so the connection keeps delivering.
func (p *Pipeline) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	arrived := p.now()
	deliveryID := uuid.NewString()
	p.stats.received.Add(1)

	r, err := reading.Decode(payload)
	if err != nil {
		p.stats.decodeErrors.Add(1)
		p.outcome(metrics.OutcomeDecodeError)
		var decodeErr *reading.DecodeError
		if errors.As(err, &decodeErr) && decodeErr.Field != "" {
			p.logger.Warn("discarding message with invalid field",
				"delivery_id", deliveryID,
				"topic", topic,
				"field", decodeErr.Field,
				"payload", string(payload),
				"error", err,
			)
			return nil
		}
		p.logger.Warn("discarding undecodable message",
			"delivery_id", deliveryID,
			"topic", topic,
			"payload", string(payload),
			"error", err,
		)
		return nil
	}

	err = p.store.Insert(ctx, r)
	if p.metrics != nil {
		p.metrics.ObserveInsert(p.now().Sub(arrived))
	}

	switch {
	case err == nil:
	case errors.Is(err, reading.ErrConstraintViolation):
		p.stats.constraintViolations.Add(1)
		p.outcome(metrics.OutcomeConstraintViolation)
		p.logger.Warn("reading rejected by table constraint",
			"delivery_id", deliveryID,
			"reading", r,
			"error", err,
		)
		return nil
	default:
		p.stats.storeErrors.Add(1)
		p.outcome(metrics.OutcomeStoreError)
		p.logger.Error("failed to store reading",
			"delivery_id", deliveryID,
			"reading", r.String(),
			"error", err,
		)
		return nil
	}

	p.stats.stored.Add(1)
	p.stats.lastStored.Store(arrived.UnixNano())
	p.outcome(metrics.OutcomeStored)
	if ts, ok := r.Timestamp(); ok && p.metrics != nil {
		p.metrics.ObserveLag(ts, arrived)
	}
	p.logger.Debug("reading stored",
		"delivery_id", deliveryID,
		"reading", r.String(),
	)

	p.mirror(ctx, deliveryID, r)
	return nil
}

// mirror forwards a stored reading. Failures never affect the stored row.
func (p *Pipeline) mirror(ctx context.Context, deliveryID string, r reading.Reading) {
	for _, m := range p.mirrors {
		if err := m.Mirror(ctx, r); err != nil {
			p.stats.mirrorErrors.Add(1)
			if p.metrics != nil {
				p.metrics.MirrorError(m.Name())
			}
			p.logger.Warn("mirror write failed",
				"delivery_id", deliveryID,
				"mirror", m.Name(),
				"reading", r.String(),
				"error", err,
			)
		}
	}
}

func (p *Pipeline) outcome(outcome string) {
	if p.metrics != nil {
		p.metrics.Outcome(outcome)
	}
}

// OnConnect records an accepted broker connection. Pass it to
// mqtt.Client.SetOnConnect.
func (p *Pipeline) OnConnect(ev mqtt.ConnectEvent) {
	if p.metrics != nil {
		p.metrics.BrokerUp()
	}
	p.logger.Info("broker connection accepted",
		"code", ev.ReturnCode,
		"session_present", ev.SessionPresent,
		"reconnect", ev.Reconnect,
	)
}

// OnDisconnect records a lost or closed broker connection. Pass it to
// mqtt.Client.SetOnDisconnect.
func (p *Pipeline) OnDisconnect(ev mqtt.DisconnectEvent) {
	if p.metrics != nil {
		p.metrics.BrokerDown()
	}
	if ev.Err != nil {
		p.logger.Warn("broker connection lost, waiting for reconnect",
			"code", ev.Code,
			"error", ev.Err,
		)
		return
	}
	p.logger.Info("broker connection closed", "code", ev.Code)
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Received:             p.stats.received.Load(),
		Stored:               p.stats.stored.Load(),
		DecodeErrors:         p.stats.decodeErrors.Load(),
		ConstraintViolations: p.stats.constraintViolations.Load(),
		StoreErrors:          p.stats.storeErrors.Load(),
		MirrorErrors:         p.stats.mirrorErrors.Load(),
	}
	if ns := p.stats.lastStored.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		s.LastStoredAt = &t
	}
	return s
}
