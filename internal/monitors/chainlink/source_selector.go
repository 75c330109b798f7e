package chainlink

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

// SourceSelector tries a fixed list of EVM RPC endpoints and picks the
// first one that is both reachable and fully synced, matching the original
// monitor's "connected and not syncing" selection rule.
type SourceSelector struct {
	urls    []string
	timeout time.Duration
}

// NewSourceSelector builds a SourceSelector over urls, tried in order.
func NewSourceSelector(urls []string) *SourceSelector {
	return &SourceSelector{urls: urls, timeout: 3 * time.Second}
}

// Selected is a connected, synced EVM client plus the URL it came from.
type Selected struct {
	URL    string
	Client *ethclient.Client
}

// Select returns the first usable source, or ok=false if none could be
// reached or all are still syncing.
func (s *SourceSelector) Select(ctx context.Context) (Selected, bool) {
	for _, url := range s.urls {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		client, err := ethclient.DialContext(callCtx, url)
		if err != nil {
			cancel()
			continue
		}

		progress, err := client.SyncProgress(callCtx)
		if err != nil {
			client.Close()
			cancel()
			continue
		}
		if progress != nil {
			// still syncing
			client.Close()
			cancel()
			continue
		}

		if _, err := client.BlockNumber(callCtx); err != nil {
			client.Close()
			cancel()
			continue
		}

		cancel()
		return Selected{URL: url, Client: client}, true
	}
	return Selected{}, false
}
