package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gantry/gantry/models"
)

// maxBackoffFactor caps how far polling slows down while GitHub keeps
// failing.
const maxBackoffFactor = 10

// SourceWatcher polls the tracked branch of every watched target and turns
// new head revisions into push-triggered deployments.
type SourceWatcher struct {
	db     *sql.DB
	github *GitHubClient
	stop   chan struct{}
}

func NewSourceWatcher(db *sql.DB, github *GitHubClient) *SourceWatcher {
	return &SourceWatcher{
		db:     db,
		github: github,
		stop:   make(chan struct{}),
	}
}

func (w *SourceWatcher) Start() {
	for _, application := range config.Applications {
		for _, target := range application.Targets {
			if !target.Watch {
				continue
			}

			log.Printf("watching %s (%s) for pushes to %s, polling every %s\n",
				application.Name, target.Name, application.TrackedBranch,
				target.PollIntervalDuration())
			go w.watch(application, target)
		}
	}
}

func (w *SourceWatcher) Stop() {
	close(w.stop)
}

// watch is the poll loop for one application target. Polling failures back
// the timer off until GitHub answers again.
func (w *SourceWatcher) watch(a *models.Application, t *models.Target) {
	interval := t.PollIntervalDuration()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	var lastSeen string
	failures := 0

	for {
		select {
		case <-w.stop:
			return
		case <-timer.C:
		}

		seen, err := w.checkOnce(a, t, lastSeen)
		if err != nil {
			failures++
			log.Printf("polling %s failed: %s\n", a.GitHubFullName(), err)
			timer.Reset(backoff(interval, failures))
			continue
		}
		failures = 0
		lastSeen = seen

		timer.Reset(interval)
	}
}

// checkOnce polls the head of the tracked branch once and returns the
// revision to remember as seen. A head is only remembered once it was
// accepted or turned out to be already deployed; while another deployment
// blocks the target the head is retried on the next tick.
func (w *SourceWatcher) checkOnce(a *models.Application, t *models.Target, lastSeen string) (string, error) {
	sha, err := w.head(a)
	if err != nil {
		return lastSeen, err
	}

	if sha == lastSeen {
		return lastSeen, nil
	}

	err = w.trigger(a, t, sha)
	switch {
	case err == nil:
		return sha, nil
	case errors.Is(err, ErrDuplicateDeployment):
		return sha, nil
	case errors.Is(err, ErrDeployInProgress):
		// retry on the next tick
		return lastSeen, nil
	default:
		log.Printf("triggering deployment of %s (%s) failed: %s\n", a.Name, t.Name, err)
		return lastSeen, nil
	}
}

func (w *SourceWatcher) head(a *models.Application) (string, error) {
	branch, err := w.github.GetBranch(a, a.TrackedBranch)
	if err != nil {
		return "", err
	}

	if branch.Commit == nil || branch.Commit.Sha == "" {
		return "", fmt.Errorf("branch %s of %s has no head commit", a.TrackedBranch, a.GitHubFullName())
	}

	return branch.Commit.Sha, nil
}

func (w *SourceWatcher) trigger(a *models.Application, t *models.Target, sha string) error {
	d := &models.Deployment{
		CommitSha:       sha,
		Branch:          a.TrackedBranch,
		TriggerSource:   models.TRIGGER_PUSH,
		Comment:         fmt.Sprintf("new head on %s", a.TrackedBranch),
		ApplicationName: a.Name,
		TargetName:      t.Name,
	}

	err := launchDeployment(w.db, d, a, t)
	if err == nil {
		log.Printf("deployment %d of %s (%s) triggered by push to %s\n", d.Id, a.Name, t.Name, a.TrackedBranch)
	}
	return err
}

func backoff(interval time.Duration, failures int) time.Duration {
	factor := 1 << uint(failures)
	if factor > maxBackoffFactor || factor <= 0 {
		factor = maxBackoffFactor
	}
	return time.Duration(factor) * interval
}
