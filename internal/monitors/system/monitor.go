// Package system monitors host-level resource usage for one machine via
// gopsutil, matching the original's psutil-based system monitor.
package system

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/nodewatch/sentinel/internal/domain"
)

// Monitor polls one host's resource usage.
type Monitor struct {
	name       string
	nodeID     string
	parentID   string
	mountPoint string
}

// New builds a Monitor for the given node identity. mountPoint is the
// filesystem path storage usage is measured against (e.g. "/").
func New(name, nodeID, parentID, mountPoint string) *Monitor {
	if mountPoint == "" {
		mountPoint = "/"
	}
	return &Monitor{name: name, nodeID: nodeID, parentID: parentID, mountPoint: mountPoint}
}

// Name implements monitors.Source.
func (m *Monitor) Name() string { return m.name }

// MetaData implements monitors.Source.
func (m *Monitor) MetaData() domain.MetaData {
	return domain.MetaData{NodeName: m.name, NodeID: m.nodeID, NodeParentID: m.parentID}
}

// systemData is the raw payload shape published for one polling round.
type systemData struct {
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

// Fetch implements monitors.Source.
func (m *Monitor) Fetch(ctx context.Context) (json.RawMessage, *domain.RawError) {
	data, err := m.collect(ctx)
	if err != nil {
		return nil, &domain.RawError{
			Code:    domain.ErrDataReading,
			Message: err.Error(),
		}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, &domain.RawError{Code: domain.ErrJSONDecode, Message: err.Error()}
	}
	return raw, nil
}

func (m *Monitor) collect(ctx context.Context) (systemData, error) {
	var out systemData

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return out, fmt.Errorf("reading system cpu usage: %w", err)
	}
	if len(cpuPercents) > 0 {
		out.SystemCPUUsage = cpuPercents[0]
	}

	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return out, fmt.Errorf("reading virtual memory: %w", err)
	}
	out.SystemRAMUsage = vmem.UsedPercent

	usage, err := disk.UsageWithContext(ctx, m.mountPoint)
	if err != nil {
		return out, fmt.Errorf("reading disk usage for %q: %w", m.mountPoint, err)
	}
	out.SystemStorageUsage = usage.UsedPercent

	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return out, fmt.Errorf("reading network counters: %w", err)
	}
	if len(counters) > 0 {
		out.NetworkTransmitBytesTotal = float64(counters[0].BytesSent)
		out.NetworkReceiveBytesTotal = float64(counters[0].BytesRecv)
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return out, fmt.Errorf("opening self process handle: %w", err)
	}
	if cpuTimes, err := proc.TimesWithContext(ctx); err == nil {
		out.ProcessCPUSecondsTotal = cpuTimes.User + cpuTimes.System
	}
	if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil {
		out.ProcessMemoryUsage = float64(memInfo.RSS)
		out.VirtualMemoryUsage = float64(memInfo.VMS)
	}
	if fds, err := proc.NumFDsWithContext(ctx); err == nil {
		out.OpenFileDescriptors = float64(fds)
	}

	return out, nil
}
