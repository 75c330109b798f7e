// Package node monitors a Chainlink node's /metrics Prometheus endpoint,
// extracting the gauges and counters the alerter cares about.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/nodewatch/sentinel/internal/domain"
)

// trackedMetrics maps the Prometheus metric name to the JSON field name
// published downstream.
var trackedMetrics = map[string]string{
	"head_tracker_current_head":                  "head_tracker_current_head",
	"head_tracker_heads_in_queue":                "head_tracker_heads_in_queue",
	"head_tracker_heads_received_total":          "head_tracker_heads_received_total",
	"head_tracker_num_heads_dropped_total":       "head_tracker_num_heads_dropped_total",
	"max_unconfirmed_blocks":                     "max_unconfirmed_blocks",
	"process_start_time_seconds":                 "process_start_time_seconds",
	"tx_manager_gas_bump_exceeds_limit_total":    "tx_manager_gas_bump_exceeds_limit_total",
	"unconfirmed_transactions":                   "unconfirmed_transactions",
	"run_status_update_total":                    "run_status_update_total",
	"eth_balance_amount":                         "eth_balance_amount",
}

// Monitor scrapes one Chainlink node's Prometheus endpoint.
type Monitor struct {
	name       string
	nodeID     string
	parentID   string
	metricsURL string
	client     *http.Client
}

// New builds a Monitor against metricsURL (e.g. "http://node:6688/metrics").
func New(name, nodeID, parentID, metricsURL string) *Monitor {
	return &Monitor{
		name:       name,
		nodeID:     nodeID,
		parentID:   parentID,
		metricsURL: metricsURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Name implements monitors.Source.
func (m *Monitor) Name() string { return m.name }

// MetaData implements monitors.Source.
func (m *Monitor) MetaData() domain.MetaData {
	return domain.MetaData{NodeName: m.name, NodeID: m.nodeID, NodeParentID: m.parentID}
}

// Fetch implements monitors.Source.
func (m *Monitor) Fetch(ctx context.Context) (json.RawMessage, *domain.RawError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.metricsURL, nil)
	if err != nil {
		return nil, &domain.RawError{Code: domain.ErrDataReading, Message: err.Error()}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &domain.RawError{Code: domain.ErrNodeIsDown, Message: fmt.Sprintf("scraping %s: %v", m.metricsURL, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.RawError{
			Code:    domain.ErrNodeIsDown,
			Message: fmt.Sprintf("scraping %s: unexpected status %d", m.metricsURL, resp.StatusCode),
		}
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, &domain.RawError{Code: domain.ErrDataReading, Message: fmt.Sprintf("parsing prometheus text: %v", err)}
	}

	out := make(map[string]float64, len(trackedMetrics))
	for promName, field := range trackedMetrics {
		family, ok := families[promName]
		if !ok || len(family.GetMetric()) == 0 {
			continue
		}
		out[field] = extractValue(family)
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, &domain.RawError{Code: domain.ErrJSONDecode, Message: err.Error()}
	}
	return raw, nil
}

func extractValue(family *dto.MetricFamily) float64 {
	metric := family.GetMetric()[0]
	switch {
	case metric.GetGauge() != nil:
		return metric.GetGauge().GetValue()
	case metric.GetCounter() != nil:
		return metric.GetCounter().GetValue()
	case metric.GetUntyped() != nil:
		return metric.GetUntyped().GetValue()
	default:
		return 0
	}
}
