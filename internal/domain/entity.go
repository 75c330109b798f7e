package domain

// EntityKind identifies which concrete monitorable a state record belongs
// to (spec §3 Entity / Monitorable).
type EntityKind string

const (
	KindSystem         EntityKind = "system"
	KindRepository     EntityKind = "repository"
	KindChainlinkNode  EntityKind = "chainlink_node"
	KindEVMChain       EntityKind = "evm_chain"
)

// Entity is the abstract identity every monitorable carries.
type Entity struct {
	Kind     EntityKind
	ID       string
	Name     string
	ParentID string
}

// SystemState is the mutable per-system state record (spec §5 supplemented
// entity kinds). All *_total fields are cumulative counters; the
// corresponding *_per_second fields are synthesized by the transformer.
type SystemState struct {
	ProcessCPUSecondsTotal         *float64 `json:"process_cpu_seconds_total"`
	ProcessMemoryUsage             *float64 `json:"process_memory_usage"`
	VirtualMemoryUsage             *float64 `json:"virtual_memory_usage"`
	OpenFileDescriptors            *float64 `json:"open_file_descriptors"`
	SystemCPUUsage                 *float64 `json:"system_cpu_usage"`
	SystemRAMUsage                 *float64 `json:"system_ram_usage"`
	SystemStorageUsage             *float64 `json:"system_storage_usage"`
	NetworkTransmitBytesTotal      *float64 `json:"network_transmit_bytes_total"`
	NetworkReceiveBytesTotal       *float64 `json:"network_receive_bytes_total"`
	NetworkTransmitBytesPerSecond  *float64 `json:"network_transmit_bytes_per_second"`
	NetworkReceiveBytesPerSecond   *float64 `json:"network_receive_bytes_per_second"`
	WentDownAt                     *float64 `json:"went_down_at"`
	LastMonitored                  float64  `json:"last_monitored"`
}

// RepositoryState is the mutable per-repository state record.
type RepositoryState struct {
	NoOfReleases    *int64   `json:"no_of_releases"`
	LastReleaseName *string  `json:"last_release_name"`
	LastReleaseTag  *string  `json:"last_release_tag"`
	LastReleaseDate *float64 `json:"last_release_date"`
	WentDownAt      *float64 `json:"went_down_at"`
	LastMonitored   float64  `json:"last_monitored"`
}

// NodeState is the mutable per-Chainlink-node state record, sourced from the
// node's Prometheus endpoint.
type NodeState struct {
	HeadTrackerCurrentHead               *float64 `json:"head_tracker_current_head"`
	HeadTrackerHeadsInQueue               *float64 `json:"head_tracker_heads_in_queue"`
	HeadTrackerHeadsReceivedTotal         *float64 `json:"head_tracker_heads_received_total"`
	HeadTrackerNumHeadsDroppedTotal       *float64 `json:"head_tracker_num_heads_dropped_total"`
	MaxUnconfirmedBlocks                  *float64 `json:"max_unconfirmed_blocks"`
	ProcessStartTimeSeconds                *float64 `json:"process_start_time_seconds"`
	TxManagerGasBumpExceedsLimitTotal      *float64 `json:"tx_manager_gas_bump_exceeds_limit_total"`
	UnconfirmedTransactions                *float64 `json:"unconfirmed_transactions"`
	RunStatusUpdateTotal                   *float64 `json:"run_status_update_total"`
	EthBalanceAmount                       *float64 `json:"eth_balance_amount"`
	WentDownAt                              *float64 `json:"went_down_at"`
	LastMonitored                           float64  `json:"last_monitored"`
}
