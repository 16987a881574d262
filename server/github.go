package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/gantry/gantry/models"
)

// gitHubAPI is a package variable so tests can point the client at a local
// server.
var gitHubAPI = "https://api.github.com"

type GitHubCommit struct {
	Sha string `json:"sha"`
}

type GitHubBranch struct {
	Name   string        `json:"name"`
	Commit *GitHubCommit `json:"commit"`
}

// GitHubStatus is the commit status gantry attaches to the deployed
// revision. See https://docs.github.com/en/rest/commits/statuses
type GitHubStatus struct {
	State       string `json:"state"`
	TargetUrl   string `json:"target_url"`
	Description string `json:"description"`
	Context     string `json:"context"`
}

type GitHubClient struct {
	*http.Client
}

// NewGitHubClient builds a client authenticated with the configured access
// token. Without a token requests go out unauthenticated, which is enough
// for public repositories.
func NewGitHubClient(accessToken string) *GitHubClient {
	if accessToken == "" {
		return &GitHubClient{http.DefaultClient}
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	return &GitHubClient{oauth2.NewClient(context.Background(), source)}
}

func (gh *GitHubClient) GetBranch(a *models.Application, name string) (*GitHubBranch, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/branches/%s", gitHubAPI, a.GitHubOwner, a.GitHubRepo, name)

	branch := &GitHubBranch{}
	err := gh.GetDecode(u, branch)
	if err != nil {
		return nil, err
	}

	return branch, nil
}

func (gh *GitHubClient) GetBranches(a *models.Application) ([]*GitHubBranch, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/branches", gitHubAPI, a.GitHubOwner, a.GitHubRepo)

	branches := []*GitHubBranch{}
	err := gh.GetDecode(u, &branches)
	if err != nil {
		return nil, err
	}

	return branches, nil
}

func (gh *GitHubClient) CreateStatus(a *models.Application, sha string, status *GitHubStatus) error {
	u := fmt.Sprintf("%s/repos/%s/%s/statuses/%s", gitHubAPI, a.GitHubOwner, a.GitHubRepo, sha)

	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}

	resp, err := gh.Post(u, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("creating status for %s failed: %s", sha, resp.Status)
	}

	return nil
}

func (gh *GitHubClient) GetDecode(u string, v interface{}) error {
	resp, err := gh.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s failed: %s", u, resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
