package main

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/gantry/gantry/models"
)

// DeploymentEvent is handed to every subscriber of a deployment state
// change, together with the configuration the deployment ran under.
type DeploymentEvent struct {
	State       models.DeploymentState
	Deployment  *models.Deployment
	Application *models.Application
	Target      *models.Target
}

type Subscriber func(*sql.DB, *DeploymentEvent)

type DeploymentEventHub struct {
	db          *sql.DB
	Subscribers map[models.DeploymentState][]Subscriber
}

func NewDeploymentEventHub(db *sql.DB) *DeploymentEventHub {
	hub := &DeploymentEventHub{
		db:          db,
		Subscribers: make(map[models.DeploymentState][]Subscriber),
	}
	return hub
}

func (h *DeploymentEventHub) Subscribe(states []models.DeploymentState, s Subscriber) {
	for _, state := range states {
		h.Subscribers[state] = append(h.Subscribers[state], s)
	}
}

func (h *DeploymentEventHub) Publish(state models.DeploymentState, d *models.Deployment) {
	subscribers := h.Subscribers[state]
	if len(subscribers) == 0 {
		return
	}

	event, err := h.buildDeploymentEvent(state, d)
	if err != nil {
		log.Printf("could not build deployment event for %d: %s", d.Id, err)
		return
	}

	for _, subscriber := range subscribers {
		go subscriber(h.db, event)
	}
}

func (h *DeploymentEventHub) buildDeploymentEvent(state models.DeploymentState, d *models.Deployment) (*DeploymentEvent, error) {
	application := config.FindApplication(d.ApplicationName)
	if application == nil {
		return nil, fmt.Errorf("application %q not configured", d.ApplicationName)
	}

	target := application.FindTarget(d.TargetName)
	if target == nil {
		return nil, fmt.Errorf("target %q not configured for %q", d.TargetName, d.ApplicationName)
	}

	return &DeploymentEvent{
		State:       state,
		Deployment:  d,
		Application: application,
		Target:      target,
	}, nil
}
