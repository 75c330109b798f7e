// Package transform turns raw monitor envelopes into stateful per-entity
// records, diffing each round against the prior round loaded from the
// store and publishing only what changed for the alerter to react to.
package transform

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/nodewatch/sentinel/internal/bus"
	"github.com/nodewatch/sentinel/internal/domain"
	"github.com/nodewatch/sentinel/internal/store"
)

// Func is the pure core of a transformer: given the entity's prior state
// (nil on first sight) and this round's raw payload, it produces the next
// state to persist, the set of fields that changed (for the alert stream),
// and an error if the payload could not be interpreted.
//
// Func must not perform I/O; Engine does all loading, saving and
// publishing around it, which is what makes Func itself trivial to
// unit-test.
type Func[S any] func(prior *S, raw json.RawMessage, meta domain.MetaData) (next *S, changed map[string]domain.FieldDelta, err error)

// ErrorFunc is Func's counterpart for the failure half of a raw envelope.
// It still sees (and can update) prior state, because a downtime marker
// like went_down_at is itself part of that state: the first failure after
// a run of successes must stamp it, and later failures in the same outage
// must leave it untouched.
type ErrorFunc[S any] func(prior *S, raw domain.RawError) (next *S, changed map[string]domain.FieldDelta)

// Engine drives one Func against a stream of raw envelopes consumed from
// the broker: load prior state, transform, persist next state, publish the
// delta, ack.
type Engine[S any] struct {
	store      *store.Adapter
	b          *bus.Adapter
	namespace  string
	entityKind string
	routingKey string
	transform  Func[S]
	onError    ErrorFunc[S]
	log        zerolog.Logger
}

// NewEngine builds an Engine. namespace/entityKind key the store records
// this engine reads and writes; routingKey is where transformed alert
// envelopes are published. onError may be nil, in which case a failure is
// forwarded to the alert stream without touching stored state.
func NewEngine[S any](st *store.Adapter, b *bus.Adapter, namespace, entityKind, routingKey string, fn Func[S], onError ErrorFunc[S], log zerolog.Logger) *Engine[S] {
	return &Engine[S]{
		store:      st,
		b:          b,
		namespace:  namespace,
		entityKind: entityKind,
		routingKey: routingKey,
		transform:  fn,
		onError:    onError,
		log:        log.With().Str("component", "transform").Str("entity_kind", entityKind).Logger(),
	}
}

// RunConfig wires Engine.Run's queue binding.
type RunConfig struct {
	QueueName       string
	BindRoutingKeys []string
}

// Bind returns a supervise.Worker that runs e against cfg's queue, letting
// an Engine be handed straight to supervise.Manager as a ChildSpec factory.
func (e *Engine[S]) Bind(cfg RunConfig) *BoundEngine[S] {
	return &BoundEngine[S]{engine: e, cfg: cfg}
}

// BoundEngine adapts an Engine plus its queue binding to supervise.Worker.
type BoundEngine[S any] struct {
	engine *Engine[S]
	cfg    RunConfig
}

// Run implements supervise.Worker.
func (b *BoundEngine[S]) Run(ctx context.Context) error {
	return b.engine.run(ctx, b.cfg)
}

// run connects, declares and binds the queue, and hands every delivery to
// HandleDelivery until ctx is canceled.
func (e *Engine[S]) run(ctx context.Context, cfg RunConfig) error {
	if err := e.b.Connect(ctx); err != nil {
		return err
	}
	if _, err := e.b.DeclareQueue(cfg.QueueName, true, false); err != nil {
		return err
	}
	for _, rk := range cfg.BindRoutingKeys {
		if err := e.b.Bind(cfg.QueueName, rk); err != nil {
			return err
		}
	}

	deliveries, err := e.b.Consume(cfg.QueueName)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			e.HandleDelivery(ctx, d)
		}
	}
}

// HandleDelivery processes one raw-data delivery: decode, transform,
// persist, publish, and ack/nack the delivery accordingly. Nacking is
// reserved for transient failures (store/broker unavailable); a malformed
// payload is acked and dropped, since requeueing it would only fail the
// same way forever.
func (e *Engine[S]) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	var envelope domain.RawEnvelope
	if err := json.Unmarshal(d.Body, &envelope); err != nil {
		e.log.Error().Err(err).Msg("could not decode raw envelope")
		_ = d.Ack(false)
		return
	}
	if err := envelope.Validate(); err != nil {
		e.log.Error().Err(err).Msg("malformed raw envelope")
		_ = d.Ack(false)
		return
	}

	if envelope.Error != nil {
		e.handleError(ctx, *envelope.Error)
		_ = d.Ack(false)
		return
	}

	result := *envelope.Result
	entityID := entityIDFor(result.MetaData)

	prior, err := e.loadPrior(ctx, entityID)
	if err != nil {
		e.log.Error().Err(err).Str("entity_id", entityID).Msg("could not load prior state, requeueing")
		_ = d.Nack(false, true)
		return
	}

	next, changed, err := e.transform(prior, result.Data, result.MetaData)
	if err != nil {
		e.log.Error().Err(err).Str("entity_id", entityID).Msg("transform rejected payload")
		_ = d.Ack(false)
		return
	}

	if err := e.saveNext(ctx, entityID, next); err != nil {
		e.log.Error().Err(err).Str("entity_id", entityID).Msg("could not persist next state, requeueing")
		_ = d.Nack(false, true)
		return
	}

	if len(changed) > 0 {
		e.publishResult(ctx, result.MetaData, changed)
	}

	_ = d.Ack(false)
}

func (e *Engine[S]) loadPrior(ctx context.Context, entityID string) (*S, error) {
	raws, err := e.store.GetAllFields(ctx, e.namespace, e.entityKind, entityID)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, nil
	}

	merged := make(map[string]json.RawMessage, len(raws))
	for k, v := range raws {
		merged[k] = v
	}
	blob, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("transform: remarshalling prior state for %s: %w", entityID, err)
	}

	var prior S
	if err := json.Unmarshal(blob, &prior); err != nil {
		return nil, fmt.Errorf("transform: decoding prior state for %s: %w", entityID, err)
	}
	return &prior, nil
}

func (e *Engine[S]) saveNext(ctx context.Context, entityID string, next *S) error {
	if next == nil {
		return nil
	}
	blob, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("transform: encoding next state for %s: %w", entityID, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(blob, &fields); err != nil {
		return fmt.Errorf("transform: splitting next state for %s: %w", entityID, err)
	}
	asAny := make(map[string]any, len(fields))
	for k, v := range fields {
		asAny[k] = v
	}
	return e.store.SetFields(ctx, e.namespace, e.entityKind, entityID, asAny)
}

func (e *Engine[S]) publishResult(ctx context.Context, meta domain.MetaData, changed map[string]domain.FieldDelta) {
	envelope := domain.AlertEnvelope{Result: &domain.AlertResult{MetaData: meta, Data: changed}}
	e.publish(ctx, envelope)
}

func (e *Engine[S]) handleError(ctx context.Context, raw domain.RawError) {
	var changed map[string]domain.FieldDelta

	if e.onError != nil {
		entityID := entityIDFor(raw.MetaData)
		prior, err := e.loadPrior(ctx, entityID)
		if err != nil {
			e.log.Error().Err(err).Str("entity_id", entityID).Msg("could not load prior state for error handling")
		} else {
			next, c := e.onError(prior, raw)
			changed = c
			if err := e.saveNext(ctx, entityID, next); err != nil {
				e.log.Error().Err(err).Str("entity_id", entityID).Msg("could not persist state after error")
			}
		}
	}

	envelope := domain.AlertEnvelope{Error: &domain.AlertError{
		MetaData: raw.MetaData,
		Code:     raw.Code,
		Message:  raw.Message,
		Data:     changed,
	}}
	e.publish(ctx, envelope)
}

func (e *Engine[S]) publish(ctx context.Context, envelope domain.AlertEnvelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		e.log.Error().Err(err).Msg("could not encode alert envelope")
		return
	}
	if err := e.b.PublishConfirm(ctx, e.routingKey, payload); err != nil {
		e.log.Warn().Err(err).Msg("could not publish transformed alert data")
	}
}

func entityIDFor(meta domain.MetaData) string {
	if meta.NodeID != "" {
		return meta.NodeID
	}
	return meta.NodeName
}
