package supervise

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type flakyWorker struct {
	runs     atomic.Int32
	failFor  int32
}

func (w *flakyWorker) Run(ctx context.Context) error {
	n := w.runs.Add(1)
	if n <= w.failFor {
		return errors.New("boom")
	}
	<-ctx.Done()
	return nil
}

func TestRunSupervised_RestartsOnError(t *testing.T) {
	w := &flakyWorker{failFor: 2}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	RunSupervised(ctx, w, 10*time.Millisecond, zerolog.Nop())

	assert.GreaterOrEqual(t, w.runs.Load(), int32(3))
}

func TestRunSupervised_StopsOnContextCancel(t *testing.T) {
	w := &flakyWorker{failFor: 0}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunSupervised(ctx, w, time.Second, zerolog.Nop())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunSupervised did not return after context cancellation")
	}
}
