package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewatch/sentinel/internal/domain"
)

func TestRepository_FirstSighting_AlwaysReportsRelease(t *testing.T) {
	fn := Repository()
	raw := json.RawMessage(`{"no_of_releases": 5, "last_release_tag": "v1.0.0", "last_release_name": "v1.0.0", "last_release_date": 1000}`)

	next, changed, err := fn(nil, raw, domain.MetaData{Time: 1000})
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", *next.LastReleaseTag)
	assert.Contains(t, changed, "last_release_tag")
}

func TestRepository_SameTagDoesNotReportChange(t *testing.T) {
	fn := Repository()
	prior := &domain.RepositoryState{LastReleaseTag: ptr("v1.0.0")}
	raw := json.RawMessage(`{"last_release_tag": "v1.0.0"}`)

	_, changed, err := fn(prior, raw, domain.MetaData{Time: 1010})
	require.NoError(t, err)
	assert.NotContains(t, changed, "last_release_tag")
}

func TestRepository_NewTagReportsChangeWithPrevious(t *testing.T) {
	fn := Repository()
	prior := &domain.RepositoryState{LastReleaseTag: ptr("v1.0.0")}
	raw := json.RawMessage(`{"last_release_tag": "v1.1.0"}`)

	_, changed, err := fn(prior, raw, domain.MetaData{Time: 1010})
	require.NoError(t, err)
	require.Contains(t, changed, "last_release_tag")
	assert.Equal(t, "v1.0.0", changed["last_release_tag"].Previous)
	assert.Equal(t, "v1.1.0", changed["last_release_tag"].Current)
}

func TestRepositoryError_StampsOnFirstFailureOnly(t *testing.T) {
	fn := RepositoryError()

	next, changed := fn(nil, domain.RawError{MetaData: domain.MetaData{Time: 1000}})
	require.NotNil(t, next.WentDownAt)
	assert.Contains(t, changed, "went_down_at")

	_, changed2 := fn(next, domain.RawError{MetaData: domain.MetaData{Time: 1010}})
	assert.Empty(t, changed2)
}
