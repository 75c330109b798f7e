package chainlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullSentConfig(parentID string) map[string]RawSubConfig {
	sent := make(map[string]RawSubConfig, len(requiredFields))
	for _, name := range requiredFields {
		sent[name] = RawSubConfig{Name: name, ParentID: parentID, Enabled: true}
	}
	return sent
}

func TestAlertsConfigFactory_Add_RequiresEveryField(t *testing.T) {
	f := NewAlertsConfigFactory()
	sent := fullSentConfig("chain-1")
	delete(sent, "eth_balance_amount")

	_, _, err := f.Add("ethereum-mainnet", sent)
	assert.Error(t, err)
	assert.False(t, f.Exists("ethereum-mainnet"))
}

func TestAlertsConfigFactory_Add_RejectsMismatchedParentIDs(t *testing.T) {
	f := NewAlertsConfigFactory()
	sent := fullSentConfig("chain-1")
	sent["node_is_down"] = RawSubConfig{Name: "node_is_down", ParentID: "chain-2"}

	_, _, err := f.Add("ethereum-mainnet", sent)
	assert.Error(t, err)
}

func TestAlertsConfigFactory_Add_ThenGetAndNodeIsDownRule(t *testing.T) {
	f := NewAlertsConfigFactory()
	sent := fullSentConfig("chain-1")

	updated, parentID, err := f.Add("ethereum-mainnet", sent)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, "chain-1", parentID)
	assert.True(t, f.Exists("ethereum-mainnet"))

	cfg, ok := f.Get("ethereum-mainnet")
	require.True(t, ok)
	assert.Equal(t, "chain-1", cfg.ParentID)
	assert.Contains(t, cfg.Thresholds, "head_tracker_current_head")
	assert.Contains(t, cfg.Thresholds, "eth_balance_amount")

	rule, ok := f.NodeIsDownRule("ethereum-mainnet")
	require.True(t, ok)
	assert.Equal(t, "node_is_down", rule.Field)
}

func TestAlertsConfigFactory_Remove(t *testing.T) {
	f := NewAlertsConfigFactory()
	_, _, err := f.Add("ethereum-mainnet", fullSentConfig("chain-1"))
	require.NoError(t, err)

	f.Remove("ethereum-mainnet")
	assert.False(t, f.Exists("ethereum-mainnet"))
}
