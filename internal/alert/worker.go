package alert

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/nodewatch/sentinel/internal/bus"
	"github.com/nodewatch/sentinel/internal/domain"
	"github.com/nodewatch/sentinel/internal/timeutil"
)

// Resolver maps one entity's identity to the Config its alerts should be
// evaluated against, or ok=false if no config exists yet (the chain was
// never added, or was removed — spec §4.4 "subsequent messages for that
// chain are ignored, not errored").
type Resolver func(meta domain.MetaData) (cfg Config, originID, chainName string, ok bool)

// WorkerConfig wires one alert Worker.
type WorkerConfig struct {
	Name            string
	QueueName       string
	BindRoutingKeys []string
	AlertRoutingKey string
	HeartbeatKey    string
	Resolve         Resolver
	Transitions     []TransitionRule
}

// Worker consumes one entity kind's transformed alert-stream messages,
// evaluates them against the resolved chain config, and publishes the
// resulting alert records (spec §4.4).
type Worker struct {
	cfg     WorkerConfig
	b       *bus.Adapter
	alerter *Alerter
	log     zerolog.Logger
}

// NewWorker builds a Worker. alerter may be shared across Workers of
// different entity kinds only if their MetricCodes never collide; in
// practice each kind owns its own Alerter.
func NewWorker(cfg WorkerConfig, b *bus.Adapter, alerter *Alerter, log zerolog.Logger) *Worker {
	return &Worker{
		cfg:     cfg,
		b:       b,
		alerter: alerter,
		log:     log.With().Str("component", "alerter").Str("name", cfg.Name).Logger(),
	}
}

// Run implements supervise.Worker.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.b.Connect(ctx); err != nil {
		return err
	}
	if _, err := w.b.DeclareQueue(w.cfg.QueueName, true, false); err != nil {
		return err
	}
	for _, rk := range w.cfg.BindRoutingKeys {
		if err := w.b.Bind(w.cfg.QueueName, rk); err != nil {
			return err
		}
	}

	deliveries, err := w.b.Consume(w.cfg.QueueName)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil // channel closed; restart loop reconnects
			}
			w.handle(ctx, d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var envelope domain.AlertEnvelope
	if err := json.Unmarshal(d.Body, &envelope); err != nil {
		w.log.Error().Err(err).Msg("could not decode alert envelope")
		_ = d.Ack(false)
		return
	}

	var meta domain.MetaData
	var changed map[string]domain.FieldDelta
	if envelope.Result != nil {
		meta = envelope.Result.MetaData
		changed = envelope.Result.Data
	} else if envelope.Error != nil {
		meta = envelope.Error.MetaData
		changed = envelope.Error.Data
	} else {
		w.log.Error().Msg("malformed alert envelope")
		_ = d.Ack(false)
		return
	}

	cfg, originID, _, ok := w.cfg.Resolve(meta)
	if !ok {
		_ = d.Ack(false)
		return
	}

	now := meta.LastMonitored
	if now == 0 {
		now = meta.Time
	}
	if now == 0 {
		now = timeutil.ToUnixFloat(timeutil.Now())
	}

	alerts := w.alerter.Evaluate(cfg, meta.NodeParentID, originID, now, changed)
	for _, tr := range w.cfg.Transitions {
		delta, present := changed[tr.Field]
		if !present {
			continue
		}
		if a, fire := w.alerter.EvaluateTransition(tr, meta.NodeParentID, originID, now, delta); fire {
			alerts = append(alerts, a)
		}
	}

	for _, a := range alerts {
		w.publish(ctx, a)
	}
	_ = d.Ack(false)

	if len(alerts) > 0 || envelope.Result != nil {
		w.publishHeartbeat(ctx)
	}
}

func (w *Worker) publish(ctx context.Context, a domain.Alert) {
	payload, err := json.Marshal(a)
	if err != nil {
		w.log.Error().Err(err).Msg("could not encode alert")
		return
	}
	if err := w.b.PublishConfirm(ctx, w.cfg.AlertRoutingKey, payload); err != nil {
		w.log.Warn().Err(err).Str("alert_code", a.Metric.Name).Msg("could not publish alert")
	}
}

func (w *Worker) publishHeartbeat(ctx context.Context) {
	hb := struct {
		ComponentName string  `json:"component_name"`
		IsAlive       bool    `json:"is_alive"`
		Timestamp     float64 `json:"timestamp"`
	}{ComponentName: w.cfg.Name, IsAlive: true, Timestamp: timeutil.ToUnixFloat(timeutil.Now())}

	payload, err := json.Marshal(hb)
	if err != nil {
		return
	}
	if err := w.b.PublishConfirm(ctx, w.cfg.HeartbeatKey, payload); err != nil {
		w.log.Debug().Err(err).Msg("could not publish heartbeat")
	}
}

// OnComponentReset purges originID's dedup state. Wire this to a consumer
// of ComponentReset alerts on the internal alert routing key so a
// restarted monitor's first round is never compared against a severity
// from before the reset.
func (w *Worker) OnComponentReset(originID string) {
	w.alerter.PurgeOrigin(originID)
}
