package transform

import (
	"encoding/json"
	"fmt"

	"github.com/nodewatch/sentinel/internal/domain"
)

// Node builds the Func that turns a raw Prometheus scrape (field name to
// value) into NodeState, reporting every field whose value moved.
func Node() Func[domain.NodeState] {
	return func(prior *domain.NodeState, raw json.RawMessage, meta domain.MetaData) (*domain.NodeState, map[string]domain.FieldDelta, error) {
		var r map[string]float64
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, nil, fmt.Errorf("transform: decoding node payload: %w", err)
		}

		next := &domain.NodeState{LastMonitored: meta.Time}
		changed := make(map[string]domain.FieldDelta)

		assign := func(field string, cur *float64, dst **float64) {
			*dst = cur
			var previous any
			if prior != nil {
				if priorField := fieldOf(prior, field); priorField != nil {
					previous = *priorField
				}
			}
			if cur == nil {
				return
			}
			if previous == nil || previous.(float64) != *cur {
				changed[field] = domain.FieldDelta{Previous: previous, Current: *cur}
			}
		}

		get := func(name string) *float64 {
			if v, ok := r[name]; ok {
				return ptr(v)
			}
			return nil
		}

		assign("head_tracker_current_head", get("head_tracker_current_head"), &next.HeadTrackerCurrentHead)
		assign("head_tracker_heads_in_queue", get("head_tracker_heads_in_queue"), &next.HeadTrackerHeadsInQueue)
		assign("head_tracker_heads_received_total", get("head_tracker_heads_received_total"), &next.HeadTrackerHeadsReceivedTotal)
		assign("head_tracker_num_heads_dropped_total", get("head_tracker_num_heads_dropped_total"), &next.HeadTrackerNumHeadsDroppedTotal)
		assign("max_unconfirmed_blocks", get("max_unconfirmed_blocks"), &next.MaxUnconfirmedBlocks)
		assign("process_start_time_seconds", get("process_start_time_seconds"), &next.ProcessStartTimeSeconds)
		assign("tx_manager_gas_bump_exceeds_limit_total", get("tx_manager_gas_bump_exceeds_limit_total"), &next.TxManagerGasBumpExceedsLimitTotal)
		assign("unconfirmed_transactions", get("unconfirmed_transactions"), &next.UnconfirmedTransactions)
		assign("run_status_update_total", get("run_status_update_total"), &next.RunStatusUpdateTotal)
		assign("eth_balance_amount", get("eth_balance_amount"), &next.EthBalanceAmount)

		if prior != nil && prior.WentDownAt != nil {
			changed["went_down_at"] = domain.FieldDelta{Previous: *prior.WentDownAt, Current: nil}
		}

		return next, changed, nil
	}
}

// NodeError mirrors the downtime-marker semantics of SystemError for
// Chainlink node monitoring: the first error of an outage stamps
// went_down_at, whatever its code.
func NodeError() ErrorFunc[domain.NodeState] {
	return func(prior *domain.NodeState, raw domain.RawError) (*domain.NodeState, map[string]domain.FieldDelta) {
		next := &domain.NodeState{LastMonitored: raw.MetaData.Time}
		if prior != nil {
			*next = *prior
		}
		if next.WentDownAt != nil {
			return next, nil
		}
		next.WentDownAt = ptr(raw.MetaData.Time)
		return next, map[string]domain.FieldDelta{
			"went_down_at": {Previous: nil, Current: raw.MetaData.Time},
		}
	}
}

func fieldOf(s *domain.NodeState, field string) *float64 {
	switch field {
	case "head_tracker_current_head":
		return s.HeadTrackerCurrentHead
	case "head_tracker_heads_in_queue":
		return s.HeadTrackerHeadsInQueue
	case "head_tracker_heads_received_total":
		return s.HeadTrackerHeadsReceivedTotal
	case "head_tracker_num_heads_dropped_total":
		return s.HeadTrackerNumHeadsDroppedTotal
	case "max_unconfirmed_blocks":
		return s.MaxUnconfirmedBlocks
	case "process_start_time_seconds":
		return s.ProcessStartTimeSeconds
	case "tx_manager_gas_bump_exceeds_limit_total":
		return s.TxManagerGasBumpExceedsLimitTotal
	case "unconfirmed_transactions":
		return s.UnconfirmedTransactions
	case "run_status_update_total":
		return s.RunStatusUpdateTotal
	case "eth_balance_amount":
		return s.EthBalanceAmount
	default:
		return nil
	}
}
