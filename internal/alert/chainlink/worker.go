package chainlink

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/nodewatch/sentinel/internal/bus"
	"github.com/nodewatch/sentinel/internal/domain"
	clmon "github.com/nodewatch/sentinel/internal/monitors/chainlink"
	"github.com/nodewatch/sentinel/internal/timeutil"
)

// WorkerConfig wires one contract-observer alert Worker.
type WorkerConfig struct {
	Name            string
	QueueName       string
	BindRoutingKeys []string
	AlertRoutingKey string
	HeartbeatKey    string
}

// Worker consumes the Chainlink contract observer's raw envelopes directly
// (spec.md §4.5 Chainlink observation state is owned by the observer
// itself, not by a generic per-entity-kind transformer) and evaluates them
// through ContractAlerts.
type Worker struct {
	cfg    WorkerConfig
	b      *bus.Adapter
	alerts *ContractAlerts
	log    zerolog.Logger
}

// NewWorker builds a Worker.
func NewWorker(cfg WorkerConfig, b *bus.Adapter, alerts *ContractAlerts, log zerolog.Logger) *Worker {
	return &Worker{
		cfg:    cfg,
		b:      b,
		alerts: alerts,
		log:    log.With().Str("component", "chainlink_alerter").Str("name", cfg.Name).Logger(),
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
				return nil
			}
			w.handle(ctx, d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var envelope domain.RawEnvelope
	if err := json.Unmarshal(d.Body, &envelope); err != nil {
		w.log.Error().Err(err).Msg("could not decode raw envelope")
		_ = d.Ack(false)
		return
	}

	var emitted []domain.Alert

	switch {
	case envelope.Error != nil:
		emitted = w.handleError(*envelope.Error)
	case envelope.Result != nil:
		emitted = w.handleResult(*envelope.Result)
	default:
		w.log.Error().Msg("malformed raw envelope")
		_ = d.Ack(false)
		return
	}

	for _, a := range emitted {
		w.publish(ctx, a)
	}
	_ = d.Ack(false)

	if envelope.Result != nil {
		w.publishHeartbeat(ctx)
	}
}

func (w *Worker) handleError(raw domain.RawError) []domain.Alert {
	now := raw.MetaData.Time
	parentID := raw.MetaData.NodeParentID

	switch raw.Code {
	case domain.ErrCouldNotRetrieveContracts:
		return w.alerts.ObserveCatalogError(parentID, parentID, now, raw.Message)
	case domain.ErrNoSyncedSource:
		return w.alerts.ObserveNoSyncedSource(parentID, parentID, now, raw.Message)
	default:
		return nil
	}
}

func (w *Worker) handleResult(result domain.RawResult) []domain.Alert {
	now := result.MetaData.Time
	parentID := result.MetaData.NodeParentID
	operatorID := result.MetaData.NodeID
	operatorName := result.MetaData.NodeName

	var perProxy map[string]clmon.ContractMetrics
	if err := json.Unmarshal(result.Data, &perProxy); err != nil {
		w.log.Error().Err(err).Msg("could not decode contract metrics")
		return nil
	}

	alerts := append(
		w.alerts.ObserveCatalogOK(parentID, parentID, now),
		w.alerts.ObserveSyncedSourceFound(parentID, parentID, now)...,
	)

	for proxy, metrics := range perProxy {
		alerts = append(alerts, w.alerts.Evaluate(parentID, operatorID, operatorName, proxy, metrics.Description, now, metrics)...)
	}

	return alerts
}

func (w *Worker) publish(ctx context.Context, a domain.Alert) {
	payload, err := json.Marshal(a)
	if err != nil {
		w.log.Error().Err(err).Msg("could not encode alert")
		return
	}
	if err := w.b.PublishConfirm(ctx, w.cfg.AlertRoutingKey, payload); err != nil {
		w.log.Warn().Err(err).Str("alert_code", a.AlertCode.Name).Msg("could not publish alert")
	}
}

func (w *Worker) publishHeartbeat(ctx context.Context) {
	if w.cfg.HeartbeatKey == "" {
		return
	}
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
