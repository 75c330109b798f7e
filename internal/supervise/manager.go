package supervise

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/nodewatch/sentinel/internal/domain"
	"github.com/nodewatch/sentinel/internal/timeutil"
)

// StateStore is the narrow slice of store.Adapter a Manager needs to purge a
// restarted child's prior state. Declared here so tests can supply a fake.
type StateStore interface {
	PurgeEntity(ctx context.Context, namespace, entityKind, entityID string) error
}

// Publisher is the narrow slice of bus.Adapter a Manager needs to emit
// alerts. Declared here, not in package bus, so tests can supply a fake
// without standing up a broker connection.
type Publisher interface {
	PublishConfirm(ctx context.Context, routingKey string, body []byte) error
}

// ComponentResetCode is the internal alert code a Manager emits for a
// component right before restarting it, so the alert stream's store
// consumer purges that component's prior state before new data arrives.
// The ordering here is load-bearing: emit first, restart second.
var ComponentResetCode = domain.AlertCode{Code: 1, Name: "ComponentReset"}

// ChildSpec describes one supervised child: a name used as its key in the
// heartbeat and a factory that builds a fresh Worker each time it needs to
// be (re)started. Namespace/EntityKind/EntityID are optional; when all three
// are set, StartChildren purges the child's prior store state alongside
// publishing its ComponentReset alert.
type ChildSpec struct {
	Name       string
	Factory    func() Worker
	Namespace  string
	EntityKind string
	EntityID   string
}

type child struct {
	spec     ChildSpec
	cancel   context.CancelFunc
	alive    atomic.Bool
	restarts int
}

// Heartbeat is the aggregate liveness record a Manager answers a ping with.
type Heartbeat struct {
	ComponentName   string   `json:"component_name"`
	RunningChildren []string `json:"running_processes"`
	DeadChildren    []string `json:"dead_processes"`
	Timestamp       float64  `json:"timestamp"`
}

// Manager owns a table of supervised children, restarts dead ones, and
// answers broker pings with an aggregate heartbeat.
type Manager struct {
	name  string
	b     Publisher
	store StateStore
	log   zerolog.Logger

	restartPeriod time.Duration

	mu       sync.Mutex
	children map[string]*child
}

// NewManager constructs a Manager for the given named children. Children
// are registered Absent (not yet started); call StartChildren to bring them
// up for the first time. store may be nil, in which case no child's specs
// declare purge fields, or purging is handled by a downstream consumer
// instead.
func NewManager(name string, specs []ChildSpec, b Publisher, store StateStore, restartPeriod time.Duration, log zerolog.Logger) *Manager {
	m := &Manager{
		name:          name,
		b:             b,
		store:         store,
		log:           log.With().Str("component", name).Logger(),
		restartPeriod: restartPeriod,
		children:      make(map[string]*child, len(specs)),
	}
	for _, spec := range specs {
		m.children[spec.Name] = &child{spec: spec}
	}
	return m
}

// StartChildren starts every child currently marked dead or never started.
// For each one it publishes a ComponentReset alert BEFORE launching the
// goroutine: the alert must land and be processed by the store consumer
// ahead of the freshly (re)started child's first data point, or stale state
// from the previous run survives the reset.
func (m *Manager) StartChildren(ctx context.Context, alertRoutingKey string) {
	m.mu.Lock()
	toStart := make([]*child, 0)
	for _, c := range m.children {
		if !c.alive.Load() {
			toStart = append(toStart, c)
		}
	}
	m.mu.Unlock()

	for _, c := range toStart {
		m.publishComponentReset(ctx, c.spec.Name, alertRoutingKey)
		m.purgeChildState(ctx, c.spec)

		childCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		c.alive.Store(true)
		c.restarts++

		worker := c.spec.Factory()
		go func(c *child, worker Worker, childCtx context.Context) {
			defer c.alive.Store(false)
			RunSupervised(childCtx, worker, m.restartPeriod, m.log.With().Str("child", c.spec.Name).Logger())
		}(c, worker, childCtx)

		m.log.Info().Str("child", c.spec.Name).Int("restarts", c.restarts).Msg("started child")
	}
}

func (m *Manager) publishComponentReset(ctx context.Context, childName, routingKey string) {
	alert := domain.Alert{
		AlertCode: ComponentResetCode,
		Message:   childName + " reset",
		Severity:  domain.SeverityInfo,
		Timestamp: timeutil.ToUnixFloat(timeutil.Now()),
		OriginID:  childName,
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		m.log.Error().Err(err).Str("child", childName).Msg("could not encode component reset alert")
		return
	}
	if err := m.b.PublishConfirm(ctx, routingKey, payload); err != nil {
		m.log.Error().Err(err).Str("child", childName).Msg("could not publish component reset alert")
	}
}

func (m *Manager) purgeChildState(ctx context.Context, spec ChildSpec) {
	if m.store == nil || spec.Namespace == "" || spec.EntityKind == "" || spec.EntityID == "" {
		return
	}
	if err := m.store.PurgeEntity(ctx, spec.Namespace, spec.EntityKind, spec.EntityID); err != nil {
		m.log.Error().Err(err).Str("child", spec.Name).Msg("could not purge prior state")
	}
}

// HandlePing restarts any dead children, then builds and returns the
// heartbeat for the caller to publish. StartChildren marks a restarted
// child alive before returning, so a child restarted by this very ping is
// reported as running, not dead.
func (m *Manager) HandlePing(ctx context.Context, alertRoutingKey string) Heartbeat {
	m.mu.Lock()
	anyDead := false
	for _, c := range m.children {
		if !c.alive.Load() {
			anyDead = true
			break
		}
	}
	m.mu.Unlock()

	if anyDead {
		m.StartChildren(ctx, alertRoutingKey)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	hb := Heartbeat{ComponentName: m.name, Timestamp: timeutil.ToUnixFloat(timeutil.Now())}
	for name, c := range m.children {
		if c.alive.Load() {
			hb.RunningChildren = append(hb.RunningChildren, name)
		} else {
			hb.DeadChildren = append(hb.DeadChildren, name)
		}
	}
	return hb
}

// RunSweep starts a cron job that periodically checks for and restarts dead
// children, independent of whether a broker ping ever arrives. This is a
// defense against a ping consumer that silently stalls.
func (m *Manager) RunSweep(ctx context.Context, spec string, alertRoutingKey string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		m.StartChildren(ctx, alertRoutingKey)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}

// StopAll cancels every running child's context.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.children {
		if c.cancel != nil {
			c.cancel()
		}
	}
}
