package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFactory_AddThenGet(t *testing.T) {
	f := NewConfigFactory()
	warn := 85.0

	updated, parentID, err := f.Add("ethereum-mainnet", map[string]SubConfig{
		"system_cpu_usage": {Name: "system_cpu_usage", ParentID: "chain-1", Threshold: &ThresholdRule{Direction: Above, Warning: &warn}},
	})
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, "chain-1", parentID)

	cfg, ok := f.Get("ethereum-mainnet")
	require.True(t, ok)
	assert.Equal(t, "chain-1", cfg.ParentID)
	assert.Contains(t, cfg.Thresholds, "system_cpu_usage")
}

func TestConfigFactory_Add_MismatchedParentIDsRejected(t *testing.T) {
	f := NewConfigFactory()
	_, _, err := f.Add("ethereum-mainnet", map[string]SubConfig{
		"a": {Name: "a", ParentID: "chain-1"},
		"b": {Name: "b", ParentID: "chain-2"},
	})
	assert.ErrorIs(t, err, ErrParentIDMismatch)
}

func TestConfigFactory_Remove_SilentlyDropsConfig(t *testing.T) {
	f := NewConfigFactory()
	_, _, err := f.Add("ethereum-mainnet", map[string]SubConfig{
		"a": {Name: "a", ParentID: "chain-1"},
	})
	require.NoError(t, err)

	f.Remove("ethereum-mainnet")
	_, ok := f.Get("ethereum-mainnet")
	assert.False(t, ok)
}

func TestConfigFactory_Add_SecondCallReportsUpdate(t *testing.T) {
	f := NewConfigFactory()
	_, _, err := f.Add("ethereum-mainnet", map[string]SubConfig{"a": {Name: "a", ParentID: "chain-1"}})
	require.NoError(t, err)

	updated, _, err := f.Add("ethereum-mainnet", map[string]SubConfig{"a": {Name: "a", ParentID: "chain-1"}})
	require.NoError(t, err)
	assert.True(t, updated)
}
