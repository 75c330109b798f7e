package chainlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWatermarks_FirstSightHasNoBlock(t *testing.T) {
	wm := NewWatermarks()
	_, had := wm.LastBlockMonitored("node-1", "0xProxy")
	assert.False(t, had)
	assert.Nil(t, wm.LastRoundObserved("node-1", "0xProxy"))
}

func TestWatermarks_RollbackIsAnOrdinaryWrite(t *testing.T) {
	wm := NewWatermarks()
	wm.SetLastBlockMonitored("node-1", "0xProxy", 100)
	wm.SetLastBlockMonitored("node-1", "0xProxy", 50) // no-consensus rollback

	block, had := wm.LastBlockMonitored("node-1", "0xProxy")
	assert.True(t, had)
	assert.Equal(t, uint64(50), block)
}

func TestWatermarks_DistinctPairsDoNotCollide(t *testing.T) {
	wm := NewWatermarks()
	wm.SetLastBlockMonitored("node-1", "0xA", 10)
	wm.SetLastBlockMonitored("node-1", "0xB", 20)
	wm.SetLastBlockMonitored("node-2", "0xA", 30)

	b1, _ := wm.LastBlockMonitored("node-1", "0xA")
	b2, _ := wm.LastBlockMonitored("node-1", "0xB")
	b3, _ := wm.LastBlockMonitored("node-2", "0xA")

	assert.Equal(t, uint64(10), b1)
	assert.Equal(t, uint64(20), b2)
	assert.Equal(t, uint64(30), b3)
}

func TestWatermarks_LastRoundObserved(t *testing.T) {
	wm := NewWatermarks()
	wm.SetLastRoundObserved("node-1", "0xProxy", 7)
	round := wm.LastRoundObserved("node-1", "0xProxy")
	if assert.NotNil(t, round) {
		assert.Equal(t, uint32(7), *round)
	}
}
