package transform

import (
	"encoding/json"
	"fmt"

	"github.com/nodewatch/sentinel/internal/domain"
)

type repositoryRaw struct {
	NoOfReleases    int64   `json:"no_of_releases"`
	LastReleaseName string  `json:"last_release_name"`
	LastReleaseTag  string  `json:"last_release_tag"`
	LastReleaseDate float64 `json:"last_release_date"`
}

// Repository builds the Func that turns raw repository-monitor payloads
// into RepositoryState, flagging the release fields only when a new release
// appears, and went_down_at when a round succeeds after an outage.
func Repository() Func[domain.RepositoryState] {
	return func(prior *domain.RepositoryState, raw json.RawMessage, meta domain.MetaData) (*domain.RepositoryState, map[string]domain.FieldDelta, error) {
		var r repositoryRaw
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, nil, fmt.Errorf("transform: decoding repository payload: %w", err)
		}

		next := &domain.RepositoryState{
			NoOfReleases:    ptr(r.NoOfReleases),
			LastReleaseName: ptr(r.LastReleaseName),
			LastReleaseTag:  ptr(r.LastReleaseTag),
			LastReleaseDate: ptr(r.LastReleaseDate),
			LastMonitored:   meta.Time,
			WentDownAt:      nil,
		}

		changed := make(map[string]domain.FieldDelta)
		if prior == nil || prior.LastReleaseTag == nil || *prior.LastReleaseTag != r.LastReleaseTag {
			var previous any
			if prior != nil && prior.LastReleaseTag != nil {
				previous = *prior.LastReleaseTag
			}
			changed["last_release_tag"] = domain.FieldDelta{Previous: previous, Current: r.LastReleaseTag}
			changed["last_release_name"] = domain.FieldDelta{Previous: nil, Current: r.LastReleaseName}
			changed["last_release_date"] = domain.FieldDelta{Previous: nil, Current: r.LastReleaseDate}
		}
		if prior != nil && prior.WentDownAt != nil {
			changed["went_down_at"] = domain.FieldDelta{Previous: *prior.WentDownAt, Current: nil}
		}

		return next, changed, nil
	}
}

// RepositoryError mirrors SystemError's downtime-marker semantics for
// repository monitoring (e.g. the GitHub API became unreachable).
func RepositoryError() ErrorFunc[domain.RepositoryState] {
	return func(prior *domain.RepositoryState, raw domain.RawError) (*domain.RepositoryState, map[string]domain.FieldDelta) {
		next := &domain.RepositoryState{LastMonitored: raw.MetaData.Time}
		if prior != nil {
			*next = *prior
		}
		if next.WentDownAt != nil {
			return next, nil
		}
		next.WentDownAt = ptr(raw.MetaData.Time)
		return next, map[string]domain.FieldDelta{
			"went_down_at": {Previous: nil, Current: raw.MetaData.Time},
		}
	}
}
