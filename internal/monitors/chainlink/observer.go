// Package chainlink observes Chainlink v3/v4 price feed contracts on behalf
// of a fixed set of nodes, replicating the original Python contracts
// monitor's cadence-gated catalog/address refresh and per-node submission
// collection, translated into Go's explicit-error idiom.
package chainlink

import (
	"context"
	"encoding/json"
	"time"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/nodewatch/sentinel/internal/bus"
	"github.com/nodewatch/sentinel/internal/cadence"
	"github.com/nodewatch/sentinel/internal/domain"
	"github.com/nodewatch/sentinel/internal/monitors/chainlink/abi"
	"github.com/nodewatch/sentinel/internal/timeutil"
)

const (
	catalogRefreshInterval = 24 * time.Hour
	addressRefreshInterval = 24 * time.Hour
)

// ObserverConfig wires one Observer instance.
type ObserverConfig struct {
	MonitorName   string
	ParentID      string
	CatalogURL    string
	EVMRPCURLs    []string
	Nodes         []NodeSource
	PollPeriod    time.Duration
	RawRoutingKey string
	HeartbeatKey  string
}

// Observer polls WeiWatchers plus a set of EVM RPC endpoints to collect
// Chainlink v3/v4 submission data for a fixed set of nodes, publishing one
// raw envelope per node per round.
type Observer struct {
	cfg ObserverConfig
	b   *bus.Adapter
	log zerolog.Logger

	catalog        *Catalog
	addresses      *AddressResolver
	selector       *SourceSelector
	catalogGate    *cadence.Gate
	addressGate    *cadence.Gate
	wm             *Watermarks

	contracts        []ContractEntry
	nodeAddress      map[string]string // nodeID -> hex address
	nodeContractsV3  map[string][]string
	nodeContractsV4  map[string][]string
}

// NewObserver builds an Observer. Run must be called to start polling.
func NewObserver(cfg ObserverConfig, b *bus.Adapter, log zerolog.Logger) *Observer {
	if cfg.PollPeriod == 0 {
		cfg.PollPeriod = time.Minute
	}
	return &Observer{
		cfg:         cfg,
		b:           b,
		log:         log.With().Str("monitor", cfg.MonitorName).Logger(),
		catalog:     NewCatalog(cfg.CatalogURL),
		addresses:   NewAddressResolver(),
		selector:    NewSourceSelector(cfg.EVMRPCURLs),
		catalogGate: cadence.NewGate(catalogRefreshInterval),
		addressGate: cadence.NewGate(addressRefreshInterval),
		wm:          NewWatermarks(),
		nodeAddress: make(map[string]string),
	}
}

// abiSet bundles the four parsed contract ABIs an observer round needs.
type abiSet struct {
	v3Aggregator, v3Proxy, v4Aggregator, v4Proxy gethabi.ABI
}

// Run implements supervise.Worker.
func (o *Observer) Run(ctx context.Context) error {
	if err := o.b.Connect(ctx); err != nil {
		return err
	}

	var abis abiSet
	var err error
	if abis.v3Aggregator, err = abi.V3Aggregator(); err != nil {
		return err
	}
	if abis.v3Proxy, err = abi.V3Proxy(); err != nil {
		return err
	}
	if abis.v4Aggregator, err = abi.V4Aggregator(); err != nil {
		return err
	}
	if abis.v4Proxy, err = abi.V4Proxy(); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		o.runOnce(ctx, abis)

		if !o.b.CooperativeSleep(ctx, o.cfg.PollPeriod) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := o.b.Connect(ctx); err != nil {
				return err
			}
		}
	}
}

func (o *Observer) runOnce(ctx context.Context, abis abiSet) {
	reFilter := false

	if o.catalogGate.Allow("catalog") {
		entries, err := o.catalog.Fetch(ctx)
		if err != nil {
			o.log.Error().Err(err).Msg("could not retrieve contract catalog, continuing with stale catalog")
			o.publishError(ctx, domain.ErrCouldNotRetrieveContracts, err.Error())
			o.catalogGate.Reset("catalog")
		} else {
			o.contracts = entries
			reFilter = true
		}
	}

	if o.addressGate.Allow("addresses") {
		anyMissing := false
		for _, n := range o.cfg.Nodes {
			addr, err := o.addresses.Resolve(ctx, n)
			if err != nil {
				o.log.Warn().Err(err).Str("node_id", n.NodeID).Msg("could not resolve node address")
				anyMissing = true
				continue
			}
			o.nodeAddress[n.NodeID] = addr.Hex()
		}
		reFilter = true
		if anyMissing {
			o.addressGate.Reset("addresses")
		}
	}

	selected, ok := o.selector.Select(ctx)
	if !ok {
		o.log.Error().Msg("no synced EVM source was accessible")
		o.publishError(ctx, domain.ErrNoSyncedSource, "no synced EVM data source was accessible")
		return
	}
	defer selected.Client.Close()

	if reFilter {
		o.refilterContracts(ctx, abis, selected)
	}

	for _, n := range o.cfg.Nodes {
		addrHex, ok := o.nodeAddress[n.NodeID]
		if !ok {
			continue
		}
		nodeAddr := common.HexToAddress(addrHex)

		data := make(map[string]ContractMetrics)

		for _, proxyHex := range o.nodeContractsV3[n.NodeID] {
			metrics, err := CollectV3(ctx, selected.Client, abis.v3Aggregator, abis.v3Proxy, common.HexToAddress(proxyHex), nodeAddr, n.NodeID, o.wm)
			if err != nil {
				o.log.Error().Err(err).Str("node_id", n.NodeID).Str("proxy", proxyHex).Msg("could not collect v3 contract metrics")
				continue
			}
			data[proxyHex] = metrics
		}
		for _, proxyHex := range o.nodeContractsV4[n.NodeID] {
			metrics, ok, err := CollectV4(ctx, selected.Client, abis.v4Aggregator, abis.v4Proxy, common.HexToAddress(proxyHex), nodeAddr, n.NodeID, o.wm)
			if err != nil {
				o.log.Error().Err(err).Str("node_id", n.NodeID).Str("proxy", proxyHex).Msg("could not collect v4 contract metrics")
				continue
			}
			if ok {
				data[proxyHex] = metrics
			}
		}

		o.publishResult(ctx, n, data)
	}

	o.publishHeartbeat(ctx)
}

func (o *Observer) refilterContracts(ctx context.Context, abis abiSet, selected Selected) {
	o.nodeContractsV3 = make(map[string][]string)
	o.nodeContractsV4 = make(map[string][]string)

	for nodeID, addrHex := range o.nodeAddress {
		nodeAddr := common.HexToAddress(addrHex)
		for _, c := range o.contracts {
			switch c.Version {
			case 3:
				bound := bind.NewBoundContract(c.Aggregator, abis.v3Aggregator, selected.Client, selected.Client, selected.Client)
				oracles, err := callAddresses(ctx, bound, "getOracles")
				if err != nil {
					continue
				}
				if containsAddress(oracles, nodeAddr) {
					o.nodeContractsV3[nodeID] = append(o.nodeContractsV3[nodeID], c.Proxy.Hex())
				}
			case 4:
				bound := bind.NewBoundContract(c.Aggregator, abis.v4Aggregator, selected.Client, selected.Client, selected.Client)
				transmitters, err := callAddresses(ctx, bound, "transmitters")
				if err != nil {
					continue
				}
				if containsAddress(transmitters, nodeAddr) {
					o.nodeContractsV4[nodeID] = append(o.nodeContractsV4[nodeID], c.Proxy.Hex())
				}
			}
		}
	}
}

func (o *Observer) publishResult(ctx context.Context, n NodeSource, data map[string]ContractMetrics) {
	raw, err := json.Marshal(data)
	if err != nil {
		o.log.Error().Err(err).Msg("could not encode contract metrics")
		return
	}
	envelope := domain.RawEnvelope{Result: &domain.RawResult{
		MetaData: domain.MetaData{
			MonitorName:  o.cfg.MonitorName,
			NodeName:     n.NodeName,
			NodeID:       n.NodeID,
			NodeParentID: n.ParentID,
			Time:         timeutil.ToUnixFloat(timeutil.Now()),
		},
		Data: raw,
	}}
	o.publish(ctx, envelope)
}

func (o *Observer) publishError(ctx context.Context, code domain.ErrorCode, message string) {
	envelope := domain.RawEnvelope{Error: &domain.RawError{
		MetaData: domain.MetaData{
			MonitorName:  o.cfg.MonitorName,
			NodeParentID: o.cfg.ParentID,
			Time:         timeutil.ToUnixFloat(timeutil.Now()),
		},
		Message: message,
		Code:    code,
	}}
	o.publish(ctx, envelope)
}

func (o *Observer) publish(ctx context.Context, envelope domain.RawEnvelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		o.log.Error().Err(err).Msg("could not encode raw envelope")
		return
	}
	if err := o.b.PublishConfirm(ctx, o.cfg.RawRoutingKey, payload); err != nil {
		o.log.Warn().Err(err).Msg("could not publish chainlink contract data")
	}
}

func (o *Observer) publishHeartbeat(ctx context.Context) {
	hb := struct {
		ComponentName string  `json:"component_name"`
		IsAlive       bool    `json:"is_alive"`
		Timestamp     float64 `json:"timestamp"`
	}{ComponentName: o.cfg.MonitorName, IsAlive: true, Timestamp: timeutil.ToUnixFloat(timeutil.Now())}

	payload, err := json.Marshal(hb)
	if err != nil {
		return
	}
	if err := o.b.PublishConfirm(ctx, o.cfg.HeartbeatKey, payload); err != nil {
		o.log.Debug().Err(err).Msg("could not publish heartbeat")
	}
}
