package chainlink

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nodewatch/sentinel/internal/domain"
	clmon "github.com/nodewatch/sentinel/internal/monitors/chainlink"
)

func TestContractAlerts_Evaluate_DeviationLadder(t *testing.T) {
	c := NewContractAlerts()

	alerts := c.Evaluate("chain-1", "node-1", "Operator One", "0xProxy", "ETH/USD", 1000,
		clmon.ContractMetrics{ContractVersion: 3, LatestAnswer: big.NewInt(100_000_000)})
	assert.Empty(t, alerts, "first sighting establishes the baseline, no deviation yet")

	alerts = c.Evaluate("chain-1", "node-1", "Operator One", "0xProxy", "ETH/USD", 1001,
		clmon.ContractMetrics{ContractVersion: 3, LatestAnswer: big.NewInt(112_000_000)})
	if assert.Len(t, alerts, 1) {
		assert.Equal(t, AlertPriceFeedDeviationAbove, alerts[0].AlertCode)
		assert.Equal(t, domain.SeverityWarning, alerts[0].Severity)
	}
}

func TestContractAlerts_Evaluate_MissedObservationsLadderOnV4(t *testing.T) {
	c := NewContractAlerts()

	rounds := []clmon.RoundRecord{
		{RoundID: 1, NodeSubmission: nil},
		{RoundID: 2, NodeSubmission: nil},
		{RoundID: 3, NodeSubmission: big.NewInt(1)},
		{RoundID: 4, NodeSubmission: nil},
	}

	alerts := c.Evaluate("chain-1", "node-1", "Operator One", "0xProxy", "ETH/USD", 1000,
		clmon.ContractMetrics{ContractVersion: 4, HistoricalRounds: rounds})

	if assert.Len(t, alerts, 1) {
		assert.Equal(t, AlertPriceFeedMissedAbove, alerts[0].AlertCode)
	}
}

func TestContractAlerts_Evaluate_ConsensusFailureOnV3NilAnswer(t *testing.T) {
	c := NewContractAlerts()

	rounds := []clmon.RoundRecord{{RoundID: 1, RoundAnswer: nil}}
	alerts := c.Evaluate("chain-1", "node-1", "Operator One", "0xProxy", "ETH/USD", 1000,
		clmon.ContractMetrics{ContractVersion: 3, HistoricalRounds: rounds})

	found := false
	for _, a := range alerts {
		if a.AlertCode == AlertConsensusFailure {
			found = true
		}
	}
	assert.True(t, found)
}

func TestContractAlerts_ObserveCatalogError_FiresOnceUntilResolved(t *testing.T) {
	c := NewContractAlerts()

	alerts := c.ObserveCatalogError("chain-1", "chain-1", 1000, "could not retrieve contracts")
	assert.Len(t, alerts, 1)
	assert.Equal(t, AlertContractsNotRetrieved, alerts[0].AlertCode)

	alerts = c.ObserveCatalogError("chain-1", "chain-1", 1001, "could not retrieve contracts")
	assert.Empty(t, alerts, "already open, should not repeat")

	alerts = c.ObserveCatalogOK("chain-1", "chain-1", 1002)
	if assert.Len(t, alerts, 1) {
		assert.Equal(t, AlertContractsNowRetrieved, alerts[0].AlertCode)
	}

	alerts = c.ObserveCatalogOK("chain-1", "chain-1", 1003)
	assert.Empty(t, alerts, "already resolved, should not repeat")
}

func TestContractAlerts_ObserveNoSyncedSource_FiresOnceUntilResolved(t *testing.T) {
	c := NewContractAlerts()

	alerts := c.ObserveNoSyncedSource("chain-1", "chain-1", 1000, "no synced data sources")
	assert.Len(t, alerts, 1)

	alerts = c.ObserveSyncedSourceFound("chain-1", "chain-1", 1001)
	if assert.Len(t, alerts, 1) {
		assert.Equal(t, AlertSyncedSourceFound, alerts[0].AlertCode)
	}
}
