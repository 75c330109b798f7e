package channels

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/nodewatch/sentinel/internal/bus"
	"github.com/nodewatch/sentinel/internal/domain"
	"github.com/nodewatch/sentinel/internal/timeutil"
)

// WorkerConfig wires one channel handler.
type WorkerConfig struct {
	Name         string
	QueueName    string
	RoutingKey   string
	HeartbeatKey string
}

// Worker consumes the alert exchange and forwards each record to a Sender,
// grounded on LogAlertsHandler._process_alert: ack the delivery as soon as
// it decodes (processing errors downstream of decode are the channel's
// problem, not the broker's), then heartbeat only once the send succeeds.
type Worker struct {
	cfg    WorkerConfig
	b      *bus.Adapter
	sender Sender
	log    zerolog.Logger
}

// NewWorker builds a Worker.
func NewWorker(cfg WorkerConfig, b *bus.Adapter, sender Sender, log zerolog.Logger) *Worker {
	return &Worker{
		cfg:    cfg,
		b:      b,
		sender: sender,
		log:    log.With().Str("component", "channel").Str("name", cfg.Name).Logger(),
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
	if err := w.b.Bind(w.cfg.QueueName, w.cfg.RoutingKey); err != nil {
		return err
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
	var alert domain.Alert
	if err := json.Unmarshal(d.Body, &alert); err != nil {
		w.log.Error().Err(err).Msg("could not decode alert")
		_ = d.Ack(false)
		return
	}

	_ = d.Ack(false)

	if err := w.sender.Send(ctx, alert); err != nil {
		w.log.Error().Err(err).Str("alert_code", alert.AlertCode.Name).Msg("could not deliver alert")
		return
	}

	w.publishHeartbeat(ctx)
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
