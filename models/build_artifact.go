package models

import "time"

type BuildArtifact struct {
	Id           int       `json:"id"`
	DeploymentId int       `json:"deployment_id"`
	ImageTag     string    `json:"image_tag"`
	CommitSha    string    `json:"commit_sha"`
	BuiltAt      time.Time `json:"built_at"`
}
