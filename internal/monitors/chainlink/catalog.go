package chainlink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ContractEntry is one WeiWatchers-catalogued contract pair: the immutable
// proxy address callers should remember, and the current aggregator address
// it forwards to.
type ContractEntry struct {
	Proxy       common.Address
	Aggregator  common.Address
	Version     int
	Description string
}

type weiWatchersEntry struct {
	ContractAddress string `json:"contractAddress"`
	ProxyAddress    string `json:"proxyAddress"`
	ContractVersion int    `json:"contractVersion"`
	Name            string `json:"name"`
}

// Catalog fetches the chain's contract catalog from a WeiWatchers-compatible
// endpoint.
type Catalog struct {
	url    string
	client *http.Client
}

// NewCatalog builds a Catalog against url.
func NewCatalog(url string) *Catalog {
	return &Catalog{url: url, client: &http.Client{Timeout: 15 * time.Second}}
}

// Fetch retrieves the current contract list.
func (c *Catalog) Fetch(ctx context.Context) ([]ContractEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chainlink: fetching contract catalog from %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chainlink: contract catalog %s returned status %d", c.url, resp.StatusCode)
	}

	var entries []weiWatchersEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("chainlink: decoding contract catalog: %w", err)
	}

	out := make([]ContractEntry, 0, len(entries))
	for _, e := range entries {
		if e.ContractVersion != 3 && e.ContractVersion != 4 {
			continue
		}
		out = append(out, ContractEntry{
			Proxy:       common.HexToAddress(e.ProxyAddress),
			Aggregator:  common.HexToAddress(e.ContractAddress),
			Version:     e.ContractVersion,
			Description: e.Name,
		})
	}
	return out, nil
}
