package chainlink

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeSubmission_FindsOperatorByValueNotOffset(t *testing.T) {
	// observers[2] == 5, i.e. the operator at transmitter index 5 reported
	// the observation at slot 2 — not the observation at slot 5.
	observers := []byte{3, 9, 5, 1}
	observations := []*big.Int{big.NewInt(100), big.NewInt(200), big.NewInt(300), big.NewInt(400)}

	got := nodeSubmission(observers, observations, 5)
	assert.Equal(t, big.NewInt(300), got)
}

func TestNodeSubmission_AbsentIndexReturnsNil(t *testing.T) {
	observers := []byte{3, 9, 1}
	observations := []*big.Int{big.NewInt(100), big.NewInt(200), big.NewInt(300)}

	got := nodeSubmission(observers, observations, 42)
	assert.Nil(t, got)
}

func TestNodeSubmission_OutOfRangePositionIsIgnored(t *testing.T) {
	observers := []byte{7}
	observations := []*big.Int{} // malformed event: no matching observation slot

	got := nodeSubmission(observers, observations, 7)
	assert.Nil(t, got)
}
