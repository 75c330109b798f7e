// Package chainlink holds the Chainlink-node alerts configuration factory
// and the contract-observer alert evaluation, grounded on
// chainlink_alerts_configs_factory.py and alerts/contract/chainlink.py
// respectively.
package chainlink

import (
	"fmt"
	"sync"

	"github.com/nodewatch/sentinel/internal/alert"
	"github.com/nodewatch/sentinel/internal/domain"
)

func metricCode(code int, label string) domain.MetricCode {
	return domain.MetricCode{Code: code, Name: label}
}

// RawSubConfig is one named threshold sub-record as received over the
// config-fanout envelope for a Chainlink chain (spec §6 Config envelope).
type RawSubConfig struct {
	Name     string
	ParentID string
	Enabled  bool
	Warning  *float64
	Critical *float64
}

// NodeAlertsConfig is the resolved per-chain ruleset, named after the
// fields ChainlinkAlertsConfigsFactory.add_new_config filters by.
type NodeAlertsConfig struct {
	ParentID                         string
	HeadTrackerCurrentHead           alert.ThresholdRule
	HeadTrackerHeadsInQueue          alert.ThresholdRule
	HeadTrackerHeadsReceivedTotal    alert.ThresholdRule
	HeadTrackerNumHeadsDroppedTotal  alert.ThresholdRule
	MaxUnconfirmedBlocks             alert.ThresholdRule
	TxManagerGasBumpExceedsLimit     alert.ThresholdRule
	UnconfirmedTransactions          alert.ThresholdRule
	RunStatusUpdateTotal             alert.ThresholdRule
	EthBalanceAmount                 alert.ThresholdRule
	EthBalanceAmountIncrease         alert.ThresholdRule
	NodeIsDown                       alert.TransitionRule
}

// requiredFields is the exact field-name set add_new_config looks up on
// sent_configs; a sent config missing any of these is a schema error.
var requiredFields = []string{
	"head_tracker_current_head",
	"head_tracker_heads_in_queue",
	"head_tracker_heads_received_total",
	"head_tracker_num_heads_dropped_total",
	"max_unconfirmed_blocks",
	"process_start_time_seconds",
	"tx_manager_gas_bump_exceeds_limit_total",
	"unconfirmed_transactions",
	"run_status_update_total",
	"eth_balance_amount",
	"eth_balance_amount_increase",
	"node_is_down",
}

// AlertsConfigFactory manages one NodeAlertsConfig per chain name, indexed
// the same way the original's ChainlinkAlertsConfigsFactory is: by chain
// name, one config per chain (spec §4.4).
type AlertsConfigFactory struct {
	mu      sync.Mutex
	configs map[string]NodeAlertsConfig
}

// NewAlertsConfigFactory builds an empty factory.
func NewAlertsConfigFactory() *AlertsConfigFactory {
	return &AlertsConfigFactory{configs: make(map[string]NodeAlertsConfig)}
}

// Add validates sent (every sub-record must share one parent_id, and every
// required field name must be present), resolves it into a NodeAlertsConfig,
// and installs it under chainName. It returns whether chainName already had
// a config (an update) and the resolved parent_id.
func (f *AlertsConfigFactory) Add(chainName string, sent map[string]RawSubConfig) (updated bool, parentID string, err error) {
	for _, name := range requiredFields {
		if _, ok := sent[name]; !ok {
			return false, "", fmt.Errorf("chainlink: config for chain %q is missing required field %q", chainName, name)
		}
	}

	for _, sub := range sent {
		if parentID == "" {
			parentID = sub.ParentID
		} else if parentID != sub.ParentID {
			return false, "", alert.ErrParentIDMismatch
		}
	}

	rule := func(name string, code int, label string, dir alert.Direction) alert.ThresholdRule {
		sub := sent[name]
		return alert.ThresholdRule{
			Field:      name,
			MetricCode: metricCode(code, label),
			Direction:  dir,
			Warning:    sub.Warning,
			Critical:   sub.Critical,
		}
	}

	cfg := NodeAlertsConfig{
		ParentID:                        parentID,
		HeadTrackerCurrentHead:          rule("head_tracker_current_head", 400, "HeadTrackerCurrentHead", alert.Above),
		HeadTrackerHeadsInQueue:         rule("head_tracker_heads_in_queue", 401, "HeadTrackerHeadsInQueue", alert.Above),
		HeadTrackerHeadsReceivedTotal:   rule("head_tracker_heads_received_total", 402, "HeadTrackerHeadsReceivedTotal", alert.Below),
		HeadTrackerNumHeadsDroppedTotal: rule("head_tracker_num_heads_dropped_total", 403, "HeadTrackerNumHeadsDroppedTotal", alert.Above),
		MaxUnconfirmedBlocks:            rule("max_unconfirmed_blocks", 404, "MaxUnconfirmedBlocks", alert.Above),
		TxManagerGasBumpExceedsLimit:    rule("tx_manager_gas_bump_exceeds_limit_total", 405, "TxManagerGasBumpExceedsLimitTotal", alert.Above),
		UnconfirmedTransactions:         rule("unconfirmed_transactions", 406, "UnconfirmedTransactions", alert.Above),
		RunStatusUpdateTotal:            rule("run_status_update_total", 407, "RunStatusUpdateTotal", alert.Below),
		EthBalanceAmount:                rule("eth_balance_amount", 408, "EthBalanceAmount", alert.Below),
		EthBalanceAmountIncrease:        rule("eth_balance_amount_increase", 409, "EthBalanceAmountIncrease", alert.Above),
		NodeIsDown: alert.TransitionRule{
			Field:       "node_is_down",
			MetricCode:  metricCode(410, "NodeIsDown"),
			DownMessage: "node is down",
			UpMessage:   "node is back up",
		},
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	_, updated = f.configs[chainName]
	f.configs[chainName] = cfg
	return updated, parentID, nil
}

// Remove clears chainName's config.
func (f *AlertsConfigFactory) Remove(chainName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.configs, chainName)
}

// Exists reports whether chainName currently has a config.
func (f *AlertsConfigFactory) Exists(chainName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.configs[chainName]
	return ok
}

// Get returns chainName's resolved ruleset as a generic alert.Config, keyed
// by the same field names the ruleset was built from, for use with
// alert.Alerter.Evaluate.
func (f *AlertsConfigFactory) Get(chainName string) (alert.Config, bool) {
	f.mu.Lock()
	cfg, ok := f.configs[chainName]
	f.mu.Unlock()
	if !ok {
		return alert.Config{}, false
	}

	thresholds := map[string]alert.ThresholdRule{
		"head_tracker_current_head":               cfg.HeadTrackerCurrentHead,
		"head_tracker_heads_in_queue":              cfg.HeadTrackerHeadsInQueue,
		"head_tracker_heads_received_total":        cfg.HeadTrackerHeadsReceivedTotal,
		"head_tracker_num_heads_dropped_total":     cfg.HeadTrackerNumHeadsDroppedTotal,
		"max_unconfirmed_blocks":                   cfg.MaxUnconfirmedBlocks,
		"tx_manager_gas_bump_exceeds_limit_total":  cfg.TxManagerGasBumpExceedsLimit,
		"unconfirmed_transactions":                 cfg.UnconfirmedTransactions,
		"run_status_update_total":                  cfg.RunStatusUpdateTotal,
		"eth_balance_amount":                       cfg.EthBalanceAmount,
		"eth_balance_amount_increase":               cfg.EthBalanceAmountIncrease,
	}
	return alert.Config{ParentID: cfg.ParentID, Thresholds: thresholds}, true
}

// NodeIsDownRule returns chainName's downtime transition rule.
func (f *AlertsConfigFactory) NodeIsDownRule(chainName string) (alert.TransitionRule, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[chainName]
	if !ok {
		return alert.TransitionRule{}, false
	}
	return cfg.NodeIsDown, true
}
