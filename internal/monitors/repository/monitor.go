// Package repository monitors a GitHub repository's release history via
// go-github, matching the repository-alerter pairing on the Python side.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-github/v58/github"

	"github.com/nodewatch/sentinel/internal/domain"
)

// Monitor polls one GitHub repository's latest releases.
type Monitor struct {
	name     string
	nodeID   string
	parentID string
	owner    string
	repo     string
	client   *github.Client
}

// New builds a Monitor for owner/repo. client may be an unauthenticated
// github.NewClient(nil) for public repositories, or one built with a token
// to raise the rate limit.
func New(name, nodeID, parentID, owner, repo string, client *github.Client) *Monitor {
	if client == nil {
		client = github.NewClient(nil)
	}
	return &Monitor{name: name, nodeID: nodeID, parentID: parentID, owner: owner, repo: repo, client: client}
}

// Name implements monitors.Source.
func (m *Monitor) Name() string { return m.name }

// MetaData implements monitors.Source.
func (m *Monitor) MetaData() domain.MetaData {
	return domain.MetaData{NodeName: m.name, NodeID: m.nodeID, NodeParentID: m.parentID}
}

type repositoryData struct {
	NoOfReleases    int     `json:"no_of_releases"`
	LastReleaseName string  `json:"last_release_name"`
	LastReleaseTag  string  `json:"last_release_tag"`
	LastReleaseDate float64 `json:"last_release_date"`
}

// Fetch implements monitors.Source.
func (m *Monitor) Fetch(ctx context.Context) (json.RawMessage, *domain.RawError) {
	releases, resp, err := m.client.Repositories.ListReleases(ctx, m.owner, m.repo, &github.ListOptions{PerPage: 100})
	if err != nil {
		code := domain.ErrCannotAccessSource
		if resp != nil && resp.StatusCode == 404 {
			code = domain.ErrReceivedUnexpectedData
		}
		return nil, &domain.RawError{
			Code:    code,
			Message: fmt.Sprintf("listing releases for %s/%s: %v", m.owner, m.repo, err),
		}
	}

	out := repositoryData{NoOfReleases: len(releases)}
	if len(releases) > 0 {
		latest := releases[0]
		out.LastReleaseName = latest.GetName()
		out.LastReleaseTag = latest.GetTagName()
		out.LastReleaseDate = float64(latest.GetPublishedAt().Unix())
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, &domain.RawError{Code: domain.ErrJSONDecode, Message: err.Error()}
	}
	return raw, nil
}
