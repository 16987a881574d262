package main

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gantry/gantry/models"
)

func TestNotifyGitHubStatus(t *testing.T) {
	swapConfig(t, newHooksConfig())

	received := make(chan *GitHubStatus, 1)
	fakeGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/gantry/shipyard/statuses/1337f00d1337f00d1337f00d1337f00d1337f00d" {
			t.Errorf("wrong path requested. got=%s", r.URL.Path)
		}

		status := &GitHubStatus{}
		if err := json.NewDecoder(r.Body).Decode(status); err != nil {
			t.Errorf("decoding failed: %s", err)
		}
		w.WriteHeader(http.StatusCreated)

		received <- status
	})

	event := buildTestEvent(models.DEPLOYMENT_ROLLED_BACK)
	event.Target.GitHubStatus = true

	NotifyGitHubStatus(nil, event)

	status := <-received
	if status.State != "error" {
		t.Errorf("wrong status state. got=%s", status.State)
	}
	if status.Context != "gantry/production" {
		t.Errorf("wrong status context. got=%s", status.Context)
	}
	if status.TargetUrl != "http://deploy.example.com/shipyard/deployments/7" {
		t.Errorf("wrong target url. got=%s", status.TargetUrl)
	}
	if status.Description != "gantry deployment to production failed and was rolled back" {
		t.Errorf("wrong description. got=%s", status.Description)
	}
}

func TestNotifyGitHubStatusStates(t *testing.T) {
	swapConfig(t, newHooksConfig())

	received := make(chan string, 1)
	fakeGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		status := &GitHubStatus{}
		if err := json.NewDecoder(r.Body).Decode(status); err != nil {
			t.Errorf("decoding failed: %s", err)
		}
		w.WriteHeader(http.StatusCreated)

		received <- status.State
	})

	tests := []struct {
		state    models.DeploymentState
		expected string
	}{
		{models.DEPLOYMENT_ACTIVE, "pending"},
		{models.DEPLOYMENT_SUCCESSFUL, "success"},
		{models.DEPLOYMENT_FAILED, "failure"},
		{models.DEPLOYMENT_ROLLED_BACK, "error"},
	}

	for _, tt := range tests {
		event := buildTestEvent(tt.state)
		event.Target.GitHubStatus = true

		NotifyGitHubStatus(nil, event)

		got := <-received
		if got != tt.expected {
			t.Errorf("wrong GitHub state for %s. want=%s, got=%s", tt.state, tt.expected, got)
		}
	}
}

func TestNotifyGitHubStatusDisabled(t *testing.T) {
	swapConfig(t, newHooksConfig())

	fakeGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("status sent for a target without github_status")
	})

	event := buildTestEvent(models.DEPLOYMENT_SUCCESSFUL)
	event.Target.GitHubStatus = false

	// must be a no-op
	NotifyGitHubStatus(nil, event)
}
