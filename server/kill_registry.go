package main

import (
	"fmt"
	"sync"
)

// KillRegistry hands out the kill channel of every running deployment so
// HTTP handlers can abort a pipeline by deployment id.
type KillRegistry struct {
	mutex sync.RWMutex
	chans map[int]chan struct{}
}

func NewKillRegistry() *KillRegistry {
	return &KillRegistry{chans: make(map[int]chan struct{})}
}

// Add registers a kill channel for the deployment. The channel is buffered
// so a kill arriving while the pipeline is busy with a command stays pending
// until the next stage boundary checks for it.
func (r *KillRegistry) Add(deploymentId int) chan struct{} {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	killChan := make(chan struct{}, 1)
	r.chans[deploymentId] = killChan
	return killChan
}

func (r *KillRegistry) Remove(deploymentId int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	killChan, ok := r.chans[deploymentId]
	if !ok {
		return
	}

	delete(r.chans, deploymentId)
	close(killChan)
}

// Kill signals the pipeline running the deployment. The send happens under
// the read lock so Remove cannot close the channel underneath it, and it
// never blocks: if a signal is already pending there is nothing to add.
func (r *KillRegistry) Kill(deploymentId int) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	killChan, ok := r.chans[deploymentId]
	if !ok {
		return fmt.Errorf("no running deployment with id %d found", deploymentId)
	}

	select {
	case killChan <- struct{}{}:
	default:
	}
	return nil
}
