package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewatch/sentinel/internal/domain"
)

func TestSystem_FirstSighting_ReportsBaselineOnly(t *testing.T) {
	fn := System()
	raw := json.RawMessage(`{"system_cpu_usage": 42.0, "system_ram_usage": 50.0, "system_storage_usage": 30.0}`)

	next, changed, err := fn(nil, raw, domain.MetaData{Time: 1000})
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, 42.0, *next.SystemCPUUsage)
	assert.Nil(t, next.NetworkTransmitBytesPerSecond, "no elapsed time on first sighting, no rate yet")
	assert.Contains(t, changed, "system_cpu_usage")
}

func TestSystem_DerivesPerSecondRates(t *testing.T) {
	fn := System()
	prior := &domain.SystemState{
		LastMonitored:             1000,
		NetworkTransmitBytesTotal: ptr(1000.0),
		NetworkReceiveBytesTotal:  ptr(2000.0),
	}

	raw := json.RawMessage(`{"network_transmit_bytes_total": 1500, "network_receive_bytes_total": 2200}`)
	next, changed, err := fn(prior, raw, domain.MetaData{Time: 1010})
	require.NoError(t, err)

	assert.Equal(t, 50.0, *next.NetworkTransmitBytesPerSecond)
	assert.Equal(t, 20.0, *next.NetworkReceiveBytesPerSecond)
	assert.Contains(t, changed, "network_transmit_bytes_per_second")
}

func TestSystem_RecoveryClearsWentDownAt(t *testing.T) {
	fn := System()
	prior := &domain.SystemState{LastMonitored: 1000, WentDownAt: ptr(900.0)}

	next, changed, err := fn(prior, json.RawMessage(`{}`), domain.MetaData{Time: 1010})
	require.NoError(t, err)
	assert.Nil(t, next.WentDownAt)
	if delta, ok := changed["went_down_at"]; assert.True(t, ok) {
		assert.Equal(t, 900.0, delta.Previous)
		assert.Nil(t, delta.Current)
	}
}

func TestSystemError_StampsOnFirstFailureOnly(t *testing.T) {
	fn := SystemError()

	next, changed := fn(nil, domain.RawError{MetaData: domain.MetaData{Time: 1000}})
	require.NotNil(t, next.WentDownAt)
	assert.Equal(t, 1000.0, *next.WentDownAt)
	assert.Contains(t, changed, "went_down_at")

	next2, changed2 := fn(next, domain.RawError{MetaData: domain.MetaData{Time: 1010}})
	assert.Equal(t, 1000.0, *next2.WentDownAt, "downtime marker does not move on subsequent failures")
	assert.Empty(t, changed2)
}
