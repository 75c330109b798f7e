package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewatch/sentinel/internal/domain"
)

func TestNode_FirstSighting_ReportsEveryPresentField(t *testing.T) {
	fn := Node()
	raw := json.RawMessage(`{"head_tracker_heads_in_queue": 3, "eth_balance_amount": 12.5}`)

	next, changed, err := fn(nil, raw, domain.MetaData{Time: 1000})
	require.NoError(t, err)
	assert.Equal(t, 3.0, *next.HeadTrackerHeadsInQueue)
	assert.Equal(t, 12.5, *next.EthBalanceAmount)
	assert.Contains(t, changed, "head_tracker_heads_in_queue")
	assert.Contains(t, changed, "eth_balance_amount")
	assert.NotContains(t, changed, "max_unconfirmed_blocks", "field absent from the scrape was never touched")
}

func TestNode_UnchangedFieldDoesNotReport(t *testing.T) {
	fn := Node()
	prior := &domain.NodeState{HeadTrackerHeadsInQueue: ptr(3.0)}
	raw := json.RawMessage(`{"head_tracker_heads_in_queue": 3}`)

	_, changed, err := fn(prior, raw, domain.MetaData{Time: 1010})
	require.NoError(t, err)
	assert.NotContains(t, changed, "head_tracker_heads_in_queue")
}

func TestNode_ChangedFieldReportsPreviousAndCurrent(t *testing.T) {
	fn := Node()
	prior := &domain.NodeState{HeadTrackerHeadsInQueue: ptr(3.0)}
	raw := json.RawMessage(`{"head_tracker_heads_in_queue": 7}`)

	_, changed, err := fn(prior, raw, domain.MetaData{Time: 1010})
	require.NoError(t, err)
	require.Contains(t, changed, "head_tracker_heads_in_queue")
	assert.Equal(t, 3.0, changed["head_tracker_heads_in_queue"].Previous)
	assert.Equal(t, 7.0, changed["head_tracker_heads_in_queue"].Current)
}

func TestNode_RecoveryClearsWentDownAt(t *testing.T) {
	fn := Node()
	prior := &domain.NodeState{WentDownAt: ptr(900.0)}

	_, changed, err := fn(prior, json.RawMessage(`{}`), domain.MetaData{Time: 1010})
	require.NoError(t, err)
	require.Contains(t, changed, "went_down_at")
	assert.Equal(t, 900.0, changed["went_down_at"].Previous)
	assert.Nil(t, changed["went_down_at"].Current)
}

func TestNodeError_StampsOnFirstFailureOnly(t *testing.T) {
	fn := NodeError()

	next, changed := fn(nil, domain.RawError{MetaData: domain.MetaData{Time: 1000}})
	require.NotNil(t, next.WentDownAt)
	assert.Contains(t, changed, "went_down_at")

	_, changed2 := fn(next, domain.RawError{MetaData: domain.MetaData{Time: 1010}})
	assert.Empty(t, changed2)
}
