package models

import "time"

const defaultPollInterval = 60

type Target struct {
	Name             string     `json:"name"`
	Host             string     `json:"host"`
	DeploymentUser   string     `json:"deployment_user"`
	DeploymentSshKey string     `json:"deployment_ssh_key"`
	Workspace        string     `json:"workspace"`
	Watch            bool       `json:"watch"`
	PollInterval     int        `json:"poll_interval"`
	Stack            *Stack     `json:"stack"`
	SlackUrl         string     `json:"slack_url"`
	Webhooks         []*Webhook `json:"webhooks"`
	GitHubStatus     bool       `json:"github_status"`
}

func (t *Target) IsRemote() bool {
	return t.Host != ""
}

func (t *Target) PollIntervalDuration() time.Duration {
	interval := t.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return time.Duration(interval) * time.Second
}
