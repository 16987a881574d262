package models

import "time"

// LiveStack records which release of an application is serving traffic on a
// target. There is at most one per application/target pair and every update
// must compare-and-swap on Version.
type LiveStack struct {
	ApplicationName     string    `json:"application_name"`
	TargetName          string    `json:"target_name"`
	Version             int       `json:"version"`
	DeploymentId        int       `json:"deployment_id"`
	ImageTag            string    `json:"image_tag"`
	Project             string    `json:"project"`
	AppContainerId      string    `json:"app_container_id"`
	DatabaseContainerId string    `json:"database_container_id"`
	PromotedAt          time.Time `json:"promoted_at"`
}
