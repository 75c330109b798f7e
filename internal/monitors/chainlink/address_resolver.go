package chainlink

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// NodeSource describes one Chainlink node's identity and the Prometheus
// endpoints it can be reached on, tried in order.
type NodeSource struct {
	NodeID        string
	NodeName      string
	ParentID      string
	PrometheusURLs []string
}

// AddressResolver discovers a node's on-chain wallet address by reading the
// "account" label off its eth_balance gauge, the same fingerprint the
// original alerter used since a node never advertises its address directly.
type AddressResolver struct {
	client *http.Client
}

// NewAddressResolver builds an AddressResolver.
func NewAddressResolver() *AddressResolver {
	return &AddressResolver{client: &http.Client{Timeout: 5 * time.Second}}
}

// Resolve attempts each of source's Prometheus URLs in turn and returns the
// address found on the first one that answers with a valid eth_balance
// metric. It returns an error only once every URL has been tried and failed.
func (r *AddressResolver) Resolve(ctx context.Context, source NodeSource) (common.Address, error) {
	var lastErr error
	for _, url := range source.PrometheusURLs {
		addr, err := r.resolveOne(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		return addr, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("chainlink: node %s has no prometheus urls configured", source.NodeID)
	}
	return common.Address{}, fmt.Errorf("chainlink: could not resolve address for node %s: %w", source.NodeID, lastErr)
}

func (r *AddressResolver) resolveOne(ctx context.Context, url string) (common.Address, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return common.Address{}, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return common.Address{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return common.Address{}, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return common.Address{}, fmt.Errorf("parsing prometheus text from %s: %w", url, err)
	}

	family, ok := families["eth_balance"]
	if !ok || len(family.GetMetric()) == 0 {
		return common.Address{}, fmt.Errorf("eth_balance metric not found at %s", url)
	}

	for _, m := range family.GetMetric() {
		if addr, ok := accountLabel(m); ok {
			return common.HexToAddress(addr), nil
		}
	}
	return common.Address{}, fmt.Errorf("eth_balance at %s carries no account label", url)
}

func accountLabel(m *dto.Metric) (string, bool) {
	for _, l := range m.GetLabel() {
		if l.GetName() == "account" {
			return l.GetValue(), true
		}
	}
	return "", false
}
