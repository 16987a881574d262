package main

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/gantry/gantry/models"
)

// gitHubStates maps deployment states onto the states the GitHub commit
// status API accepts. A rollback counts as an error: the revision never
// ended up serving traffic.
var gitHubStates = map[models.DeploymentState]string{
	models.DEPLOYMENT_ACTIVE:      "pending",
	models.DEPLOYMENT_SUCCESSFUL:  "success",
	models.DEPLOYMENT_FAILED:      "failure",
	models.DEPLOYMENT_ROLLED_BACK: "error",
}

func NotifyGitHubStatus(db *sql.DB, ev *DeploymentEvent) {
	if !ev.Target.GitHubStatus {
		return
	}

	state, ok := gitHubStates[ev.State]
	if !ok {
		return
	}

	status := &GitHubStatus{
		State:       state,
		TargetUrl:   deploymentURL(ev.Deployment),
		Description: fmt.Sprintf("gantry deployment to %s %s", ev.Target.Name, stateVerb(ev.State)),
		Context:     fmt.Sprintf("gantry/%s", ev.Target.Name),
	}

	client := NewGitHubClient(config.GitHubApiToken)
	err := client.CreateStatus(ev.Application, ev.Deployment.CommitSha, status)
	if err != nil {
		log.Printf("updating GitHub status for %s failed: %s\n", ev.Deployment.CommitSha, err)
		return
	}

	log.Printf("set GitHub status %q on %s\n", state, ev.Deployment.CommitSha)
}
