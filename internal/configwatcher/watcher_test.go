package configwatcher

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestWatcher_RoutingKeyFor_NormalizesPathSeparators(t *testing.T) {
	w := NewWatcher(Config{Root: "/configs", RoutingPrefix: "config"}, nil, zerolog.Nop())
	assert.Equal(t, "config.chainlink.ethereum-mainnet", w.routingKeyFor("/configs/chainlink/ethereum-mainnet"))
}

func TestWatcher_RoutingKeyFor_NoPrefix(t *testing.T) {
	w := NewWatcher(Config{Root: "/configs"}, nil, zerolog.Nop())
	assert.Equal(t, "chainlink/ethereum-mainnet", w.routingKeyFor("/configs/chainlink/ethereum-mainnet"))
}
