package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gantry/gantry/models"
)

const zeroSha = "0000000000000000000000000000000000000000"

// pushEvent is the part of GitHub's push payload gantry cares about.
type pushEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Deleted    bool   `json:"deleted"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func (ev *pushEvent) Branch() string {
	return strings.TrimPrefix(ev.Ref, "refs/heads/")
}

// githubEventHandler turns push events into deployments on every watched
// target of the pushed repository. Events are authenticated with the shared
// webhook secret; everything gantry does not deploy is acknowledged with
// 200 so GitHub stops redelivering it.
func githubEventHandler(w http.ResponseWriter, r *http.Request) {
	if config.GitHubWebhookSecret == "" {
		log.Println("rejected webhook: no github_webhook_secret configured")
		http.Error(w, "webhooks not configured", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "could not read request", http.StatusBadRequest)
		return
	}

	if !validSignature(body, r.Header.Get("X-Hub-Signature-256"), config.GitHubWebhookSecret) {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	if event := r.Header.Get("X-GitHub-Event"); event != "push" {
		w.Write([]byte("event ignored\n"))
		return
	}

	ev := &pushEvent{}
	if err := json.Unmarshal(body, ev); err != nil {
		http.Error(w, "could not parse push event", http.StatusBadRequest)
		return
	}

	application := config.FindApplicationByRepository(ev.Repository.FullName)
	if application == nil {
		http.Error(w, "unknown repository", http.StatusNotFound)
		return
	}

	if ev.Deleted || ev.After == zeroSha || ev.Branch() != application.TrackedBranch {
		w.Write([]byte("push ignored\n"))
		return
	}

	launched := []int{}
	for _, target := range application.Targets {
		if !target.Watch {
			continue
		}

		d := &models.Deployment{
			CommitSha:       ev.After,
			Branch:          application.TrackedBranch,
			TriggerSource:   models.TRIGGER_PUSH,
			Comment:         "push event from GitHub",
			ApplicationName: application.Name,
			TargetName:      target.Name,
		}

		err := launchDeployment(db, d, application, target)
		if err != nil {
			log.Printf("push event for %s did not start a deployment on %s: %s\n",
				application.Name, target.Name, err)
			continue
		}
		launched = append(launched, d.Id)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string][]int{"deployments": launched})
}

func validSignature(body []byte, header, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(want), []byte(header))
}
