package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gantry/gantry/models"
)

// WebhookMsg is the flat JSON document POSTed to every webhook a target
// subscribed to the deployment's outcome.
type WebhookMsg struct {
	DeploymentId  int                    `json:"deployment_id"`
	Application   string                 `json:"application"`
	Target        string                 `json:"target"`
	Branch        string                 `json:"branch"`
	CommitSha     string                 `json:"commit_sha"`
	TriggerSource models.TriggerSource   `json:"trigger_source"`
	State         models.DeploymentState `json:"state"`
	Reason        string                 `json:"reason"`
	DeploymentURL string                 `json:"deployment_url"`
	NotifiedAt    time.Time              `json:"notified_at"`
}

func NotifyWebhooks(db *sql.DB, ev *DeploymentEvent) {
	if len(ev.Target.Webhooks) == 0 {
		return
	}

	msg := &WebhookMsg{
		DeploymentId:  ev.Deployment.Id,
		Application:   ev.Application.Name,
		Target:        ev.Target.Name,
		Branch:        ev.Deployment.Branch,
		CommitSha:     ev.Deployment.CommitSha,
		TriggerSource: ev.Deployment.TriggerSource,
		State:         ev.State,
		Reason:        ev.Deployment.Reason,
		DeploymentURL: deploymentURL(ev.Deployment),
		NotifiedAt:    time.Now(),
	}

	for _, hook := range ev.Target.Webhooks {
		if !hook.IsEventWanted(ev.State) {
			continue
		}
		sendWebhookMsg(hook.URL, msg)
	}
}

func sendWebhookMsg(url string, msg *WebhookMsg) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("error creating webhook notification %s\n", err)
		return
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		log.Printf("notifying webhook %s failed (%s on %s, %s): err=%s\n",
			url, msg.Application, msg.Target, msg.CommitSha, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("notifying webhook %s failed (%s on %s, %s): status=%d\n",
			url, msg.Application, msg.Target, msg.CommitSha, resp.StatusCode)
		return
	}

	log.Printf("notified webhook %s about deployment of %s on %s, %s\n",
		url, msg.Application, msg.Target, msg.CommitSha)
}
