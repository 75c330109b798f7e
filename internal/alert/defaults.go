package alert

import "github.com/nodewatch/sentinel/internal/domain"

// Metric codes for the non-Chainlink entity kinds. Chainlink contract
// metric codes live in the alert/chainlink subpackage, grounded on the
// original's GroupedChainlinkContractAlertsMetricCode.
var (
	MetricSystemCPUUsage     = domain.MetricCode{Code: 100, Name: "SystemCPUUsage"}
	MetricSystemRAMUsage     = domain.MetricCode{Code: 101, Name: "SystemRAMUsage"}
	MetricSystemStorageUsage = domain.MetricCode{Code: 102, Name: "SystemStorageUsage"}
	MetricSystemIsDown       = domain.MetricCode{Code: 103, Name: "SystemIsDown"}

	MetricRepositoryIsDown = domain.MetricCode{Code: 200, Name: "RepositoryIsDown"}

	MetricNodeIsDown                   = domain.MetricCode{Code: 300, Name: "NodeIsDown"}
	MetricHeadTrackerHeadsInQueue      = domain.MetricCode{Code: 301, Name: "HeadTrackerHeadsInQueue"}
	MetricUnconfirmedTransactions      = domain.MetricCode{Code: 302, Name: "UnconfirmedTransactions"}
	MetricEthBalanceAmount             = domain.MetricCode{Code: 303, Name: "EthBalanceAmount"}
)

func f(v float64) *float64 { return &v }

// DefaultSystemConfig is the fixed warning/critical ladder applied to every
// System entity, grounded on the thresholds the original data transformer
// test fixtures exercise for CPU/RAM/disk usage percentages.
func DefaultSystemConfig(parentID string) Config {
	return Config{
		ParentID: parentID,
		Thresholds: map[string]ThresholdRule{
			"system_cpu_usage": {
				Field: "system_cpu_usage", MetricCode: MetricSystemCPUUsage, Direction: Above,
				Warning: f(85), Critical: f(95),
			},
			"system_ram_usage": {
				Field: "system_ram_usage", MetricCode: MetricSystemRAMUsage, Direction: Above,
				Warning: f(85), Critical: f(95),
			},
			"system_storage_usage": {
				Field: "system_storage_usage", MetricCode: MetricSystemStorageUsage, Direction: Above,
				Warning: f(85), Critical: f(95),
			},
		},
	}
}

// SystemTransitions lists the downtime transition rule every System alerter
// wires went_down_at to (spec §3 downtime marker, §4.4).
func SystemTransitions() []TransitionRule {
	return []TransitionRule{{
		Field:       "went_down_at",
		MetricCode:  MetricSystemIsDown,
		DownMessage: "system is no longer accessible",
		UpMessage:   "system is accessible again",
	}}
}

// RepositoryTransitions mirrors SystemTransitions for the Repository kind.
func RepositoryTransitions() []TransitionRule {
	return []TransitionRule{{
		Field:       "went_down_at",
		MetricCode:  MetricRepositoryIsDown,
		DownMessage: "repository is no longer accessible",
		UpMessage:   "repository is accessible again",
	}}
}

// DefaultNodeConfig is the fixed ladder for a Chainlink node's Prometheus
// gauges outside the contract-observer's own alerting (spec §5 supplemented
// entity kind NodeState).
func DefaultNodeConfig(parentID string) Config {
	return Config{
		ParentID: parentID,
		Thresholds: map[string]ThresholdRule{
			"head_tracker_heads_in_queue": {
				Field: "head_tracker_heads_in_queue", MetricCode: MetricHeadTrackerHeadsInQueue, Direction: Above,
				Warning: f(5), Critical: f(20),
			},
			"unconfirmed_transactions": {
				Field: "unconfirmed_transactions", MetricCode: MetricUnconfirmedTransactions, Direction: Above,
				Warning: f(5), Critical: f(20),
			},
			"eth_balance_amount": {
				Field: "eth_balance_amount", MetricCode: MetricEthBalanceAmount, Direction: Below,
				Warning: f(1), Critical: f(0.1),
			},
		},
	}
}

// NodeTransitions mirrors SystemTransitions for the ChainlinkNode kind.
func NodeTransitions() []TransitionRule {
	return []TransitionRule{{
		Field:       "went_down_at",
		MetricCode:  MetricNodeIsDown,
		DownMessage: "node is no longer accessible",
		UpMessage:   "node is accessible again",
	}}
}
