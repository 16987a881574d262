package models

import "time"

type DeploymentState string

const (
	DEPLOYMENT_NEW         DeploymentState = "new"
	DEPLOYMENT_ACTIVE      DeploymentState = "active"
	DEPLOYMENT_SUCCESSFUL  DeploymentState = "successful"
	DEPLOYMENT_FAILED      DeploymentState = "failed"
	DEPLOYMENT_ROLLED_BACK DeploymentState = "rolled_back"
)

func (s DeploymentState) Terminal() bool {
	return s == DEPLOYMENT_SUCCESSFUL || s == DEPLOYMENT_FAILED || s == DEPLOYMENT_ROLLED_BACK
}

type TriggerSource string

const (
	TRIGGER_MANUAL TriggerSource = "manual"
	TRIGGER_PUSH   TriggerSource = "push-event"
)

type DeploymentStage string

const (
	STAGE_CLONE    DeploymentStage = "CLONE"
	STAGE_BUILD    DeploymentStage = "BUILD"
	STAGE_DEPLOY   DeploymentStage = "DEPLOY"
	STAGE_ROLLBACK DeploymentStage = "ROLLBACK"
)

type Deployment struct {
	Id              int             `json:"id"`
	CommitSha       string          `json:"commit_sha"`
	Branch          string          `json:"branch"`
	TriggerSource   TriggerSource   `json:"trigger_source"`
	State           DeploymentState `json:"state"`
	Reason          string          `json:"reason"`
	Comment         string          `json:"comment"`
	CreatedAt       time.Time       `json:"created_at"`
	ApplicationName string          `json:"application_name"`
	TargetName      string          `json:"target_name"`
}

func (d *Deployment) ShortSha() string {
	return ShortSha(d.CommitSha)
}

func ShortSha(sha string) string {
	if len(sha) <= 12 {
		return sha
	}
	return sha[:12]
}
