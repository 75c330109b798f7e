package supervise

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (p *recordingPublisher) PublishConfirm(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, body)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

type blockingWorker struct {
	started atomic.Int32
}

func (w *blockingWorker) Run(ctx context.Context) error {
	w.started.Add(1)
	<-ctx.Done()
	return nil
}

func TestManager_StartChildren_EmitsResetBeforeStarting(t *testing.T) {
	pub := &recordingPublisher{}
	w := &blockingWorker{}
	specs := []ChildSpec{{Name: "system-monitor", Factory: func() Worker { return w }}}

	m := NewManager("monitors-manager", specs, pub, nil, 10*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.StartChildren(ctx, "alert.internal.reset")

	require.Eventually(t, func() bool { return w.started.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, pub.count())
}

func TestManager_HandlePing_RestartsDeadChildren(t *testing.T) {
	pub := &recordingPublisher{}
	w := &blockingWorker{}
	specs := []ChildSpec{{Name: "repo-monitor", Factory: func() Worker { return w }}}

	m := NewManager("monitors-manager", specs, pub, nil, 10*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hb := m.HandlePing(ctx, "alert.internal.reset")
	assert.Contains(t, hb.RunningChildren, "repo-monitor", "a child restarted by this ping reports running, not dead")
	assert.Empty(t, hb.DeadChildren)

	require.Eventually(t, func() bool { return w.started.Load() == 1 }, time.Second, time.Millisecond)

	hb2 := m.HandlePing(ctx, "alert.internal.reset")
	assert.Contains(t, hb2.RunningChildren, "repo-monitor")
	assert.Empty(t, hb2.DeadChildren)
}
