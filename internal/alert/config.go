// Package alert evaluates transformed alert-stream envelopes against
// configurable threshold ladders and transition rules, producing the alert
// records channel handlers dispatch (spec §4.4).
package alert

import (
	"errors"
	"fmt"
	"sync"
)

// ErrParentIDMismatch is returned by ConfigFactory.Add when two sub-records
// in the same flat config carry different parent_ids (spec §4.4, §8
// scenario 6).
var ErrParentIDMismatch = errors.New("alert: sub-records carry different parent_ids")

// SubConfig is one named sub-record of a flat config document: a metric
// name plus its ladder and the parent_id it claims to belong to. Every
// sub-record in one Add call must agree on parent_id.
type SubConfig struct {
	Name      string
	ParentID  string
	Threshold *ThresholdRule
}

// ConfigFactory holds one ruleset per chain (keyed by chain name) and
// enforces the single-shared-parent_id invariant on every addition. It is
// the Go shape of AlertsConfigFactory.add/remove (spec §4.4).
type ConfigFactory struct {
	mu      sync.Mutex
	configs map[string]Config
}

// Config is one chain's resolved ruleset: the parent_id every alert emitted
// under it will carry, and the threshold ladders keyed by the field name
// they react to.
type Config struct {
	ParentID   string
	Thresholds map[string]ThresholdRule
}

// NewConfigFactory builds an empty factory.
func NewConfigFactory() *ConfigFactory {
	return &ConfigFactory{configs: make(map[string]Config)}
}

// Add validates and installs chainName's ruleset. It returns whether an
// existing config for chainName was replaced (an "update") and the
// resolved parent_id, or ErrParentIDMismatch if sent carries more than one
// distinct parent_id.
func (f *ConfigFactory) Add(chainName string, sent map[string]SubConfig) (updated bool, parentID string, err error) {
	if len(sent) == 0 {
		return false, "", fmt.Errorf("alert: empty config for chain %q", chainName)
	}

	for _, sub := range sent {
		if parentID == "" {
			parentID = sub.ParentID
		} else if parentID != sub.ParentID {
			return false, "", ErrParentIDMismatch
		}
	}

	thresholds := make(map[string]ThresholdRule, len(sent))
	for _, sub := range sent {
		if sub.Threshold != nil {
			rule := *sub.Threshold
			rule.Field = sub.Name
			thresholds[sub.Name] = rule
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	_, updated = f.configs[chainName]
	f.configs[chainName] = Config{ParentID: parentID, Thresholds: thresholds}
	return updated, parentID, nil
}

// Remove clears chainName's ruleset. Messages for that chain are silently
// ignored afterwards, not errored (spec §4.4).
func (f *ConfigFactory) Remove(chainName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.configs, chainName)
}

// Get returns chainName's current ruleset, or ok=false if none is
// configured (chain never added, or removed).
func (f *ConfigFactory) Get(chainName string) (Config, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[chainName]
	return cfg, ok
}
