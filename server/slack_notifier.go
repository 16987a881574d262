package main

import (
	"bytes"
	"database/sql"
	"encoding/json"

	"github.com/gantry/gantry/models"

	"log"
	"net/http"
	"text/template"
)

const slackSummaryTmplStr = `Deployment of {{.Application}} to {{.Target}} {{.State}} ({{.Branch}} @ {{.ShortSha}}, triggered by {{.Trigger}}).
{{if .Reason}}> {{.Reason}}
{{end}}<{{.URL}}|Open deployment in gantry>`

var slackTemplate = template.Must(template.New("slackSummary").Parse(slackSummaryTmplStr))

type slackMsg struct {
	Text string `json:"text"`
}

func NotifySlack(db *sql.DB, ev *DeploymentEvent) {
	if ev.Target.SlackUrl == "" {
		return
	}

	summary, err := generateSummary(slackTemplate, ev)
	if err != nil {
		log.Printf("could not generate Slack deployment summary: %s\n", err)
		return
	}

	SendSlackRequest(ev.Deployment, ev.Target, summary)
}

func SendSlackRequest(d *models.Deployment, t *models.Target, summary string) {
	payload, err := json.Marshal(slackMsg{Text: summary})
	if err != nil {
		log.Printf("error creating Slack notification %s\n", err)
		return
	}

	resp, err := http.Post(t.SlackUrl, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		log.Printf("notifying Slack failed (%s on %s, %s): err=%s\n",
			d.ApplicationName, d.TargetName, d.CommitSha, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		log.Printf("notifying Slack failed (%s on %s, %s): status=%d\n",
			d.ApplicationName, d.TargetName, d.CommitSha, resp.StatusCode)
		return
	}

	log.Printf("notified Slack about deployment of %s on %s, %s\n",
		d.ApplicationName, d.TargetName, d.CommitSha)
}
