// Package monitors provides the periodic poll/publish loop every concrete
// monitor (system, repository, node, chainlink) is built on top of.
package monitors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/nodewatch/sentinel/internal/bus"
	"github.com/nodewatch/sentinel/internal/domain"
	"github.com/nodewatch/sentinel/internal/timeutil"
)

// Source is implemented by one concrete monitor: it knows how to fetch raw
// data for one entity and describe that entity's identity on the wire.
type Source interface {
	// Name is the monitor's name, carried in meta_data.monitor_name.
	Name() string
	// MetaData builds the envelope identity for the entity being polled.
	MetaData() domain.MetaData
	// Fetch retrieves one round of raw data, or an error describing why it
	// could not.
	Fetch(ctx context.Context) (json.RawMessage, *domain.RawError)
}

// Poller drives a Source on a fixed period, publishing a RawEnvelope for
// each round to the raw-data exchange under routingKey.
type Poller struct {
	source       Source
	b            *bus.Adapter
	routingKey   string
	heartbeatKey string
	period       time.Duration
	log          zerolog.Logger
}

// NewPoller builds a Poller for the given source. heartbeatKey may be empty,
// in which case no heartbeat is published (used by tests and by sources the
// supervising Manager doesn't track, e.g. standalone CLI runs).
func NewPoller(source Source, b *bus.Adapter, routingKey, heartbeatKey string, period time.Duration, log zerolog.Logger) *Poller {
	return &Poller{
		source:       source,
		b:            b,
		routingKey:   routingKey,
		heartbeatKey: heartbeatKey,
		period:       period,
		log:          log.With().Str("monitor", source.Name()).Logger(),
	}
}

// Run implements supervise.Worker: it polls forever until ctx is canceled,
// reconnecting to the broker first.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.b.Connect(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.runOnce(ctx)

		p.log.Debug().Dur("period", p.period).Msg("sleeping")
		if !p.b.CooperativeSleep(ctx, p.period) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// connection dropped mid-sleep; reconnect and resume the loop
			if err := p.b.Connect(ctx); err != nil {
				return err
			}
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	meta := p.source.MetaData()
	meta.MonitorName = p.source.Name()
	meta.Time = timeutil.ToUnixFloat(timeutil.Now())

	data, fetchErr := p.source.Fetch(ctx)

	var envelope domain.RawEnvelope
	if fetchErr != nil {
		fetchErr.MetaData = meta
		envelope.Error = fetchErr
	} else {
		envelope.Result = &domain.RawResult{MetaData: meta, Data: data}
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		p.log.Error().Err(err).Msg("could not encode raw envelope")
		return
	}

	if err := p.b.PublishConfirm(ctx, p.routingKey, payload); err != nil {
		p.log.Warn().Err(err).Msg("could not publish raw data")
		return
	}

	if fetchErr == nil {
		p.publishHeartbeat(ctx)
	}
}

func (p *Poller) publishHeartbeat(ctx context.Context) {
	if p.heartbeatKey == "" {
		return
	}
	hb := struct {
		ComponentName string  `json:"component_name"`
		IsAlive       bool    `json:"is_alive"`
		Timestamp     float64 `json:"timestamp"`
	}{ComponentName: p.source.Name(), IsAlive: true, Timestamp: timeutil.ToUnixFloat(timeutil.Now())}

	payload, err := json.Marshal(hb)
	if err != nil {
		return
	}
	if err := p.b.PublishConfirm(ctx, p.heartbeatKey, payload); err != nil {
		p.log.Debug().Err(err).Msg("could not publish heartbeat")
	}
}
