// Package abi embeds the Chainlink v3 (FluxAggregator) and v4 (OCR
// aggregator) contract ABIs the chainlink observer calls against.
package abi

import (
	_ "embed"
	"fmt"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"strings"
)

//go:embed v3_aggregator.json
var v3AggregatorJSON string

//go:embed v3_proxy.json
var v3ProxyJSON string

//go:embed v4_aggregator.json
var v4AggregatorJSON string

//go:embed v4_proxy.json
var v4ProxyJSON string

// V3Aggregator parses the embedded v3 aggregator ABI.
func V3Aggregator() (gethabi.ABI, error) { return parse(v3AggregatorJSON) }

// V3Proxy parses the embedded v3 proxy ABI.
func V3Proxy() (gethabi.ABI, error) { return parse(v3ProxyJSON) }

// V4Aggregator parses the embedded v4 aggregator ABI.
func V4Aggregator() (gethabi.ABI, error) { return parse(v4AggregatorJSON) }

// V4Proxy parses the embedded v4 proxy ABI.
func V4Proxy() (gethabi.ABI, error) { return parse(v4ProxyJSON) }

func parse(raw string) (gethabi.ABI, error) {
	parsed, err := gethabi.JSON(strings.NewReader(raw))
	if err != nil {
		return gethabi.ABI{}, fmt.Errorf("abi: parsing embedded contract ABI: %w", err)
	}
	return parsed, nil
}
