package models

import (
	"fmt"
	"path"
	"strconv"
	"time"
)

func NewDeploymentConfig(d *Deployment, a *Application, t *Target, prior *LiveStack) *DeploymentConfig {
	return &DeploymentConfig{
		Deployment:  d,
		Application: a,
		Target:      t,
		Prior:       prior,
		StartTime:   time.Now(),
	}
}

type DeploymentConfig struct {
	Deployment  *Deployment
	Application *Application
	Target      *Target
	Prior       *LiveStack
	StartTime   time.Time
}

func (dc *DeploymentConfig) Stack() *Stack {
	return dc.Target.Stack
}

func (dc *DeploymentConfig) ImageTag() string {
	return fmt.Sprintf("%s:%s", dc.Stack().App.ImageRepo, dc.Deployment.ShortSha())
}

func (dc *DeploymentConfig) ReleaseProject() string {
	return fmt.Sprintf("%s-app-%s", dc.Application.Name, dc.Deployment.ShortSha())
}

func (dc *DeploymentConfig) AppContainerName() string {
	return dc.ReleaseProject()
}

func (dc *DeploymentConfig) DatabaseProject() string {
	return fmt.Sprintf("%s-database", dc.Application.Name)
}

func (dc *DeploymentConfig) DatabaseContainerName() string {
	return dc.DatabaseProject()
}

func (dc *DeploymentConfig) SourceDir() string {
	return path.Join(dc.Target.Workspace, "src")
}

func (dc *DeploymentConfig) ManifestPath(project string) string {
	return path.Join(dc.Target.Workspace, "manifests", project+".yml")
}

func (dc *DeploymentConfig) LockPath() string {
	return path.Join(dc.Target.Workspace, ".gantry.lock")
}

func (dc *DeploymentConfig) EnvOptions() map[string]string {
	return map[string]string{
		"CommitSha":    dc.Deployment.CommitSha,
		"ShortSha":     dc.Deployment.ShortSha(),
		"Branch":       dc.Deployment.Branch,
		"Application":  dc.Application.Name,
		"Target":       dc.Target.Name,
		"DatabaseHost": dc.DatabaseContainerName(),
		"DatabasePort": strconv.Itoa(dc.Stack().Database.ContainerPort),
	}
}
