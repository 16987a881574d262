package main

import (
	"database/sql"
	"errors"
	"log"

	"github.com/gantry/gantry/deploy"
	"github.com/gantry/gantry/models"
)

// launchDeployment is a package variable so handler and watcher tests can
// record launches instead of running pipelines.
var launchDeployment = LaunchDeployment

// LaunchDeployment accepts the deployment request and starts its pipeline.
// It returns once the deployment is accepted and running; the pipeline
// finishes in the background and records exactly one outcome.
func LaunchDeployment(db *sql.DB, d *models.Deployment, a *models.Application, t *models.Target) error {
	prior, err := getLiveStack(db, a.Name, t.Name)
	if err != nil {
		return err
	}

	err = createDeployment(db, d)
	if err != nil {
		return err
	}

	eventHub.Publish(models.DEPLOYMENT_NEW, d)

	killChan := killRegistry.Add(d.Id)

	err = updateDeploymentState(db, d, models.DEPLOYMENT_ACTIVE)
	if err != nil {
		killRegistry.Remove(d.Id)
		if ferr := finalizeDeployment(db, d, models.DEPLOYMENT_FAILED, "could not activate deployment"); ferr != nil {
			log.Printf("finalizing deployment %d failed: %s\n", d.Id, ferr)
		}
		return err
	}

	deploymentConfig := models.NewDeploymentConfig(d, a, t, prior)
	pipeline := deploy.NewPipeline(deploymentConfig, logRouter, killChan)
	pipeline.AnnounceStart()

	eventHub.Publish(models.DEPLOYMENT_ACTIVE, d)

	go finishDeployment(db, pipeline, d, prior)

	return nil
}

func finishDeployment(db *sql.DB, pipeline *deploy.Pipeline, d *models.Deployment, prior *models.LiveStack) {
	defer killRegistry.Remove(d.Id)

	result := pipeline.Run()

	if result.Artifact != nil {
		if err := createBuildArtifact(db, result.Artifact); err != nil {
			log.Printf("saving build artifact for deployment %d failed: %s\n", d.Id, err)
		}
	}

	if result.Live != nil {
		if err := saveLiveStack(db, result.Live, prior); err != nil {
			log.Printf("saving live stack for deployment %d failed: %s\n", d.Id, err)
		}
	}

	if err := finalizeDeployment(db, d, result.State, result.Reason); err != nil {
		log.Printf("finalizing deployment %d failed: %s\n", d.Id, err)
		return
	}

	eventHub.Publish(result.State, d)
}

// saveLiveStack persists what the pipeline left serving. The write is
// guarded by the version the deployment started from so two racing writers
// cannot clobber each other's record.
func saveLiveStack(db *sql.DB, live *models.LiveStack, prior *models.LiveStack) error {
	if prior == nil {
		return createLiveStack(db, live)
	}

	err := updateLiveStackCAS(db, live, prior.Version)
	if errors.Is(err, ErrStackConflict) {
		log.Printf("live stack for %s on %s moved from version %d. record kept as is\n",
			live.ApplicationName, live.TargetName, prior.Version)
	}
	return err
}
