package chainlink

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Fetch_FiltersUnsupportedVersions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"contractAddress":"0x0000000000000000000000000000000000000001","proxyAddress":"0x0000000000000000000000000000000000000002","contractVersion":3,"name":"ETH/USD"},
			{"contractAddress":"0x0000000000000000000000000000000000000003","proxyAddress":"0x0000000000000000000000000000000000000004","contractVersion":4,"name":"BTC/USD"},
			{"contractAddress":"0x0000000000000000000000000000000000000005","proxyAddress":"0x0000000000000000000000000000000000000006","contractVersion":2,"name":"legacy"}
		]`))
	}))
	defer server.Close()

	catalog := NewCatalog(server.URL)
	entries, err := catalog.Fetch(t.Context())
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, 3, entries[0].Version)
	assert.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000002"), entries[0].Proxy)
	assert.Equal(t, 4, entries[1].Version)
}

func TestCatalog_Fetch_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	catalog := NewCatalog(server.URL)
	_, err := catalog.Fetch(t.Context())
	assert.Error(t, err)
}
