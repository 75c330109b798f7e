package chainlink

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/nodewatch/sentinel/internal/alert"
	"github.com/nodewatch/sentinel/internal/domain"
	clmon "github.com/nodewatch/sentinel/internal/monitors/chainlink"
)

// Metric and alert codes for the contract observer, named after
// GroupedChainlinkContractAlertsMetricCode / ChainlinkContractAlertCode in
// alerts/contract/chainlink.py.
var (
	MetricPriceFeedDeviation      = domain.MetricCode{Code: 500, Name: "PriceFeedDeviation"}
	MetricPriceFeedNotObserved    = domain.MetricCode{Code: 501, Name: "PriceFeedNotObserved"}
	MetricConsensusFailure        = domain.MetricCode{Code: 502, Name: "ConsensusFailure"}
	MetricErrorContractsRetrieval = domain.MetricCode{Code: 503, Name: "ErrorContractsNotRetrieved"}
	MetricErrorNoSyncedSource     = domain.MetricCode{Code: 504, Name: "ErrorNoSyncedDataSources"}

	AlertPriceFeedDeviationAbove  = domain.AlertCode{Code: 2001, Name: "PriceFeedDeviationIncreasedAboveThreshold"}
	AlertPriceFeedDeviationBelow  = domain.AlertCode{Code: 2002, Name: "PriceFeedDeviationDecreasedBelowThreshold"}
	AlertPriceFeedMissedAbove     = domain.AlertCode{Code: 2003, Name: "PriceFeedNotObservedIncreaseAboveThreshold"}
	AlertPriceFeedObservedAgain   = domain.AlertCode{Code: 2004, Name: "PriceFeedObservedAgain"}
	AlertConsensusFailure         = domain.AlertCode{Code: 2005, Name: "ConsensusNotReached"}
	AlertContractsNotRetrieved    = domain.AlertCode{Code: 2006, Name: "ErrorContractsNotRetrieved"}
	AlertContractsNowRetrieved    = domain.AlertCode{Code: 2007, Name: "ContractsNowRetrieved"}
	AlertNoSyncedSource           = domain.AlertCode{Code: 2008, Name: "ErrorNoSyncedDataSources"}
	AlertSyncedSourceFound        = domain.AlertCode{Code: 2009, Name: "SyncedDataSourcesFound"}
)

// DeviationWarning/DeviationCritical and MissedWarning/MissedCritical are
// the default warning/critical thresholds for the two contract metric
// ladders. They are plain
// vars, not constants, so an operator deployment can override them.
var (
	DeviationWarning  = 5.0
	DeviationCritical = 10.0
	MissedWarning     = 1.0
	MissedCritical    = 3.0
)

// ContractAlerts evaluates the Chainlink contract observer's per-round
// ContractMetrics into alert records, grounded on
// alerts/contract/chainlink.py's alert classes. It is a distinct evaluator
// from the generic alert.Worker pipeline because contract observation
// state (spec §3) is owned by the observer itself, not by a generic
// per-entity-kind transformer (spec §4.5 is explicitly its own subsystem).
type ContractAlerts struct {
	mu         sync.Mutex
	lastAnswer map[string]float64

	alerter       *alert.Alerter
	catalogOpen   map[string]bool
	syncedOpen    map[string]bool
}

// NewContractAlerts builds a ContractAlerts backed by its own Alerter
// instance for threshold dedup state.
func NewContractAlerts() *ContractAlerts {
	return &ContractAlerts{
		lastAnswer:  make(map[string]float64),
		alerter:     alert.NewAlerter(),
		catalogOpen: make(map[string]bool),
		syncedOpen:  make(map[string]bool),
	}
}

// Evaluate produces the alerts for one operator/proxy pair's metrics this
// round: a deviation ladder over the latest answer, a missed-observations
// ladder over v4 non-responses, and an immediate ConsensusFailure alert per
// v3 round that could not be resolved this tick.
func (c *ContractAlerts) Evaluate(parentID, operatorID, operatorName, proxy, description string, now float64, m clmon.ContractMetrics) []domain.Alert {
	originID := operatorID + ":" + proxy
	cfg := alert.Config{
		ParentID: parentID,
		Thresholds: map[string]alert.ThresholdRule{
			"price_feed_deviation": {
				Field: "price_feed_deviation", MetricCode: MetricPriceFeedDeviation, Direction: alert.Above,
				Warning: &DeviationWarning, Critical: &DeviationCritical,
			},
			"missed_observations": {
				Field: "missed_observations", MetricCode: MetricPriceFeedNotObserved, Direction: alert.Above,
				Warning: &MissedWarning, Critical: &MissedCritical,
			},
		},
	}

	changed := make(map[string]domain.FieldDelta)

	if m.LatestAnswer != nil {
		current := bigIntToFloat(m.LatestAnswer)
		c.mu.Lock()
		prev, had := c.lastAnswer[originID]
		c.lastAnswer[originID] = current
		c.mu.Unlock()
		if had && prev != 0 {
			deviation := percentDeviation(prev, current)
			changed["price_feed_deviation"] = domain.FieldDelta{Previous: nil, Current: deviation}
		}
	}

	if m.ContractVersion == 4 {
		missed := 0
		for _, r := range m.HistoricalRounds {
			if r.NodeSubmission == nil {
				missed++
			}
		}
		if len(m.HistoricalRounds) > 0 {
			changed["missed_observations"] = domain.FieldDelta{Previous: nil, Current: float64(missed)}
		}
	}

	alerts := c.alerter.Evaluate(cfg, parentID, originID, now, changed)
	for i := range alerts {
		alerts[i] = withContractIdentity(alerts[i], operatorName, proxy, description)
	}

	if m.ContractVersion == 3 {
		for _, r := range m.HistoricalRounds {
			if r.RoundAnswer == nil {
				alerts = append(alerts, domain.Alert{
					AlertCode:       AlertConsensusFailure,
					Message:         fmt.Sprintf("the price feed %s has a consensus failure (node %s)", description, operatorName),
					Severity:        domain.SeverityWarning,
					Timestamp:       now,
					ParentID:        parentID,
					OriginID:        operatorID,
					Metric:          MetricConsensusFailure,
					MetricStateArgs: []string{operatorID, proxy},
				})
			}
		}
	}

	return alerts
}

func withContractIdentity(a domain.Alert, operatorName, proxy, description string) domain.Alert {
	switch a.Metric.Code {
	case MetricPriceFeedDeviation.Code:
		if a.Severity == domain.SeverityInfo {
			a.AlertCode = AlertPriceFeedDeviationBelow
		} else {
			a.AlertCode = AlertPriceFeedDeviationAbove
		}
		a.Message = fmt.Sprintf("the Chainlink node %s's submission deviation for price feed %s: %s", operatorName, description, a.Message)
	case MetricPriceFeedNotObserved.Code:
		if a.Severity == domain.SeverityInfo {
			a.AlertCode = AlertPriceFeedObservedAgain
			a.Message = fmt.Sprintf("the Chainlink node %s is no longer missing observations for price feed %s", operatorName, description)
		} else {
			a.AlertCode = AlertPriceFeedMissedAbove
			a.Message = fmt.Sprintf("the Chainlink node %s's missed observations for price feed %s: %s", operatorName, description, a.Message)
		}
	}
	return a
}

// ObserveCatalogError reports a CouldNotRetrieveContracts round for chain
// parentID, returning an ErrorContractsNotRetrieved alert the first time
// the condition is seen (spec §4.5 failure semantics).
func (c *ContractAlerts) ObserveCatalogError(parentID, originID string, now float64, message string) []domain.Alert {
	c.mu.Lock()
	already := c.catalogOpen[parentID]
	c.catalogOpen[parentID] = true
	c.mu.Unlock()
	if already {
		return nil
	}
	return []domain.Alert{{
		AlertCode: AlertContractsNotRetrieved, Message: message, Severity: domain.SeverityError,
		Timestamp: now, ParentID: parentID, OriginID: originID, Metric: MetricErrorContractsRetrieval,
	}}
}

// ObserveCatalogOK reports a successful catalog refresh, resolving any open
// ErrorContractsNotRetrieved alert.
func (c *ContractAlerts) ObserveCatalogOK(parentID, originID string, now float64) []domain.Alert {
	c.mu.Lock()
	was := c.catalogOpen[parentID]
	c.catalogOpen[parentID] = false
	c.mu.Unlock()
	if !was {
		return nil
	}
	return []domain.Alert{{
		AlertCode: AlertContractsNowRetrieved, Message: "contracts retrieved successfully", Severity: domain.SeverityInfo,
		Timestamp: now, ParentID: parentID, OriginID: originID, Metric: MetricErrorContractsRetrieval,
	}}
}

// ObserveNoSyncedSource reports a NoSyncedSource round for chain parentID.
func (c *ContractAlerts) ObserveNoSyncedSource(parentID, originID string, now float64, message string) []domain.Alert {
	c.mu.Lock()
	already := c.syncedOpen[parentID]
	c.syncedOpen[parentID] = true
	c.mu.Unlock()
	if already {
		return nil
	}
	return []domain.Alert{{
		AlertCode: AlertNoSyncedSource, Message: message, Severity: domain.SeverityError,
		Timestamp: now, ParentID: parentID, OriginID: originID, Metric: MetricErrorNoSyncedSource,
	}}
}

// ObserveSyncedSourceFound resolves any open NoSyncedSource alert.
func (c *ContractAlerts) ObserveSyncedSourceFound(parentID, originID string, now float64) []domain.Alert {
	c.mu.Lock()
	was := c.syncedOpen[parentID]
	c.syncedOpen[parentID] = false
	c.mu.Unlock()
	if !was {
		return nil
	}
	return []domain.Alert{{
		AlertCode: AlertSyncedSourceFound, Message: "a synced data source was found", Severity: domain.SeverityInfo,
		Timestamp: now, ParentID: parentID, OriginID: originID, Metric: MetricErrorNoSyncedSource,
	}}
}

func bigIntToFloat(v *big.Int) float64 {
	f := new(big.Float).SetInt(v)
	out, _ := f.Float64()
	return out
}

func percentDeviation(prev, current float64) float64 {
	if prev == 0 {
		return 0
	}
	diff := current - prev
	if diff < 0 {
		diff = -diff
	}
	return diff / absFloat(prev) * 100
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
