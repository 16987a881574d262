package main

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/gantry/gantry/models"
)

func deploymentURL(d *models.Deployment) string {
	return fmt.Sprintf("%s://%s/%s/deployments/%d", config.Scheme(), config.Host, d.ApplicationName, d.Id)
}

func generateSummary(tmpl *template.Template, ev *DeploymentEvent) (string, error) {
	var summary bytes.Buffer

	err := tmpl.Execute(&summary, map[string]interface{}{
		"Application": ev.Application.Name,
		"Target":      ev.Target.Name,
		"Branch":      ev.Deployment.Branch,
		"ShortSha":    ev.Deployment.ShortSha(),
		"State":       stateVerb(ev.State),
		"Reason":      ev.Deployment.Reason,
		"Trigger":     string(ev.Deployment.TriggerSource),
		"URL":         deploymentURL(ev.Deployment),
	})
	if err != nil {
		return "", err
	}

	return summary.String(), nil
}

func stateVerb(state models.DeploymentState) string {
	switch state {
	case models.DEPLOYMENT_NEW:
		return "was requested"
	case models.DEPLOYMENT_ACTIVE:
		return "started"
	case models.DEPLOYMENT_SUCCESSFUL:
		return "succeeded"
	case models.DEPLOYMENT_FAILED:
		return "failed"
	case models.DEPLOYMENT_ROLLED_BACK:
		return "failed and was rolled back"
	default:
		return string(state)
	}
}
