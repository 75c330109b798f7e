package transform

import (
	"encoding/json"
	"fmt"

	"github.com/nodewatch/sentinel/internal/domain"
)

type systemRaw struct {
	ProcessCPUSecondsTotal    float64 `json:"process_cpu_seconds_total"`
	ProcessMemoryUsage        float64 `json:"process_memory_usage"`
	VirtualMemoryUsage        float64 `json:"virtual_memory_usage"`
	OpenFileDescriptors       float64 `json:"open_file_descriptors"`
	SystemCPUUsage            float64 `json:"system_cpu_usage"`
	SystemRAMUsage            float64 `json:"system_ram_usage"`
	SystemStorageUsage        float64 `json:"system_storage_usage"`
	NetworkTransmitBytesTotal float64 `json:"network_transmit_bytes_total"`
	NetworkReceiveBytesTotal  float64 `json:"network_receive_bytes_total"`
}

// System builds the Func that turns raw system-monitor payloads into
// SystemState, deriving the two *_per_second rate fields from the
// cumulative counters and the elapsed time since the previous round.
func System() Func[domain.SystemState] {
	return func(prior *domain.SystemState, raw json.RawMessage, meta domain.MetaData) (*domain.SystemState, map[string]domain.FieldDelta, error) {
		var r systemRaw
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, nil, fmt.Errorf("transform: decoding system payload: %w", err)
		}

		next := &domain.SystemState{
			ProcessCPUSecondsTotal:    ptr(r.ProcessCPUSecondsTotal),
			ProcessMemoryUsage:        ptr(r.ProcessMemoryUsage),
			VirtualMemoryUsage:        ptr(r.VirtualMemoryUsage),
			OpenFileDescriptors:       ptr(r.OpenFileDescriptors),
			SystemCPUUsage:            ptr(r.SystemCPUUsage),
			SystemRAMUsage:            ptr(r.SystemRAMUsage),
			SystemStorageUsage:        ptr(r.SystemStorageUsage),
			NetworkTransmitBytesTotal: ptr(r.NetworkTransmitBytesTotal),
			NetworkReceiveBytesTotal:  ptr(r.NetworkReceiveBytesTotal),
			LastMonitored:             meta.Time,
			// a successful round always clears a prior downtime marker
			WentDownAt: nil,
		}

		changed := make(map[string]domain.FieldDelta)

		if prior == nil {
			// first sighting: nothing to diff against, rates are unknown
			changed["process_cpu_seconds_total"] = domain.FieldDelta{Previous: nil, Current: r.ProcessCPUSecondsTotal}
			changed["system_cpu_usage"] = domain.FieldDelta{Previous: nil, Current: r.SystemCPUUsage}
			changed["system_ram_usage"] = domain.FieldDelta{Previous: nil, Current: r.SystemRAMUsage}
			changed["system_storage_usage"] = domain.FieldDelta{Previous: nil, Current: r.SystemStorageUsage}
			return next, changed, nil
		}

		elapsed := meta.Time - prior.LastMonitored
		if elapsed > 0 {
			if prior.NetworkTransmitBytesTotal != nil {
				rate := (r.NetworkTransmitBytesTotal - *prior.NetworkTransmitBytesTotal) / elapsed
				next.NetworkTransmitBytesPerSecond = ptr(rate)
				changed["network_transmit_bytes_per_second"] = domain.FieldDelta{Previous: derefOr(prior.NetworkTransmitBytesPerSecond), Current: rate}
			}
			if prior.NetworkReceiveBytesTotal != nil {
				rate := (r.NetworkReceiveBytesTotal - *prior.NetworkReceiveBytesTotal) / elapsed
				next.NetworkReceiveBytesPerSecond = ptr(rate)
				changed["network_receive_bytes_per_second"] = domain.FieldDelta{Previous: derefOr(prior.NetworkReceiveBytesPerSecond), Current: rate}
			}
		}

		if prior.SystemCPUUsage == nil || *prior.SystemCPUUsage != r.SystemCPUUsage {
			changed["system_cpu_usage"] = domain.FieldDelta{Previous: derefOr(prior.SystemCPUUsage), Current: r.SystemCPUUsage}
		}
		if prior.SystemRAMUsage == nil || *prior.SystemRAMUsage != r.SystemRAMUsage {
			changed["system_ram_usage"] = domain.FieldDelta{Previous: derefOr(prior.SystemRAMUsage), Current: r.SystemRAMUsage}
		}
		if prior.SystemStorageUsage == nil || *prior.SystemStorageUsage != r.SystemStorageUsage {
			changed["system_storage_usage"] = domain.FieldDelta{Previous: derefOr(prior.SystemStorageUsage), Current: r.SystemStorageUsage}
		}
		if prior.WentDownAt != nil {
			// the system was down and has now recovered
			changed["went_down_at"] = domain.FieldDelta{Previous: *prior.WentDownAt, Current: nil}
		}

		return next, changed, nil
	}
}

// SystemError builds the ErrorFunc counterpart: it stamps went_down_at on
// the first failure of an outage and leaves it untouched on subsequent
// failures within the same outage.
func SystemError() ErrorFunc[domain.SystemState] {
	return func(prior *domain.SystemState, raw domain.RawError) (*domain.SystemState, map[string]domain.FieldDelta) {
		next := &domain.SystemState{LastMonitored: raw.MetaData.Time}
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

func ptr[T any](v T) *T { return &v }

func derefOr(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
