package main

import (
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/gantry/gantry/deploy"
	"github.com/gantry/gantry/models"

	"database/sql"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	deploymentStmt               = `SELECT id, application_name, target_name, commit_sha, branch, trigger_source, state, reason, comment, created_at FROM deployments WHERE deployments.id = ?`
	deploymentInsertStmt         = `INSERT INTO deployments (application_name, target_name, commit_sha, branch, trigger_source, state, comment, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`
	deploymentUpdateStateStmt    = `UPDATE deployments SET state = ? WHERE deployments.id = ?`
	deploymentFinalizeStmt       = `UPDATE deployments SET state = ?, reason = ? WHERE deployments.id = ? AND deployments.state IN (?, ?)`
	deploymentFailUnfinishedStmt = `UPDATE deployments SET state = ?, reason = ? WHERE deployments.state = ? OR deployments.state = ?`
	applicationDeploymentsStmt   = `SELECT id, application_name, target_name, commit_sha, branch, trigger_source, state, reason, comment, created_at FROM deployments WHERE deployments.application_name = ? ORDER BY created_at DESC LIMIT ?`
	activeDeploymentsStmt        = `SELECT state FROM deployments WHERE application_name = ? AND target_name = ? AND (state = 'new' OR state = 'active') LIMIT 1;`
	duplicateDeploymentStmt      = `SELECT id FROM deployments WHERE application_name = ? AND target_name = ? AND commit_sha = ? AND trigger_source = ? LIMIT 1;`

	logEntryInsertStmt       = `INSERT INTO log_entries (deployment_id, entry_type, origin, message, timestamp) VALUES (?, ?, ?, ?, ?);`
	deploymentLogEntriesStmt = `SELECT id, deployment_id, entry_type, origin, message, timestamp FROM log_entries WHERE log_entries.deployment_id = ? ORDER BY timestamp ASC`

	buildArtifactInsertStmt     = `INSERT INTO build_artifacts (deployment_id, image_tag, commit_sha, built_at) VALUES (?, ?, ?, ?);`
	deploymentBuildArtifactStmt = `SELECT id, deployment_id, image_tag, commit_sha, built_at FROM build_artifacts WHERE build_artifacts.deployment_id = ? LIMIT 1`

	liveStackStmt       = `SELECT application_name, target_name, version, deployment_id, image_tag, project, app_container_id, database_container_id, promoted_at FROM live_stacks WHERE application_name = ? AND target_name = ?`
	liveStackInsertStmt = `INSERT INTO live_stacks (application_name, target_name, version, deployment_id, image_tag, project, app_container_id, database_container_id, promoted_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`
	liveStackUpdateStmt = `UPDATE live_stacks SET version = ?, deployment_id = ?, image_tag = ?, project = ?, app_container_id = ?, database_container_id = ?, promoted_at = ? WHERE application_name = ? AND target_name = ? AND version = ?`
)

var ErrDeployInProgress = errors.New("another deployment to target already in progress")
var ErrDuplicateDeployment = errors.New("revision already deployed by this trigger")
var ErrStackConflict = errors.New("live stack was changed by another deployment")

func migrateDatabase(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.Up(db, "migrations")
}

// createDeployment accepts a deployment request. Requests against a target
// that already has a deployment underway are rejected, as are push-triggered
// requests for a revision that was already accepted once. Manual requests
// are never deduplicated so an operator can always deploy a revision again.
func createDeployment(db *sql.DB, d *models.Deployment) error {
	var id int64
	var state models.DeploymentState = models.DEPLOYMENT_NEW
	var createdAt time.Time = time.Now()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	exists, err := activeDeploymentExists(tx, d.ApplicationName, d.TargetName)
	if err != nil {
		tx.Rollback()
		return err
	}
	if exists {
		tx.Rollback()
		return ErrDeployInProgress
	}

	if d.TriggerSource == models.TRIGGER_PUSH {
		duplicate, err := deploymentExists(tx, d)
		if err != nil {
			tx.Rollback()
			return err
		}
		if duplicate {
			tx.Rollback()
			return ErrDuplicateDeployment
		}
	}

	result, err := tx.Exec(deploymentInsertStmt, d.ApplicationName,
		d.TargetName, d.CommitSha, d.Branch, string(d.TriggerSource),
		string(state), d.Comment, createdAt)
	if err != nil {
		tx.Rollback()
		return err
	}

	id, err = result.LastInsertId()
	if err != nil {
		tx.Rollback()
		return err
	}

	d.Id = int(id)
	d.State = state
	d.CreatedAt = createdAt

	return tx.Commit()
}

func updateDeploymentState(db *sql.DB, d *models.Deployment, state models.DeploymentState) error {
	_, err := db.Exec(deploymentUpdateStateStmt, string(state), d.Id)
	if err != nil {
		return err
	}

	d.State = state
	return nil
}

// finalizeDeployment records the single outcome of a deployment. Only a
// deployment that has not reached a terminal state yet can be finalized; a
// second outcome for the same deployment is an error.
func finalizeDeployment(db *sql.DB, d *models.Deployment, state models.DeploymentState, reason string) error {
	result, err := db.Exec(deploymentFinalizeStmt, string(state), reason, d.Id,
		string(models.DEPLOYMENT_NEW), string(models.DEPLOYMENT_ACTIVE))
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("deployment %d already has an outcome", d.Id)
	}

	d.State = state
	d.Reason = reason
	return nil
}

func getRecentApplicationDeployments(db *sql.DB, a *models.Application) ([]*models.Deployment, error) {
	return getApplicationDeployments(db, a, 25)
}

func getApplicationDeployments(db *sql.DB, a *models.Application, limit int) ([]*models.Deployment, error) {
	rows, err := db.Query(applicationDeploymentsStmt, a.Name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return readDeployments(rows)
}

func readDeployments(rows *sql.Rows) ([]*models.Deployment, error) {
	deployments := []*models.Deployment{}

	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return deployments, err
		}

		deployments = append(deployments, d)
	}

	if err := rows.Err(); err != nil {
		return deployments, err
	}

	return deployments, nil
}

func getDeployment(db *sql.DB, id int) (*models.Deployment, error) {
	d, err := scanDeployment(db.QueryRow(deploymentStmt, id))
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, err
	default:
		return d, nil
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDeployment(row rowScanner) (*models.Deployment, error) {
	var state, trigger string
	d := &models.Deployment{}

	err := row.Scan(&d.Id, &d.ApplicationName, &d.TargetName, &d.CommitSha,
		&d.Branch, &trigger, &state, &d.Reason, &d.Comment, &d.CreatedAt)
	if err != nil {
		return nil, err
	}

	d.State = models.DeploymentState(state)
	d.TriggerSource = models.TriggerSource(trigger)
	return d, nil
}

// failUnfinishedDeployments marks deployments the server lost when it went
// down. Their pipelines are gone, so the only honest outcome is a failure.
func failUnfinishedDeployments(db *sql.DB) error {
	_, err := db.Exec(deploymentFailUnfinishedStmt,
		string(models.DEPLOYMENT_FAILED), "server restarted during deployment",
		string(models.DEPLOYMENT_NEW), string(models.DEPLOYMENT_ACTIVE))

	return err
}

func createLogEntry(db *sql.DB, entry *deploy.LogEntry) error {
	result, err := db.Exec(logEntryInsertStmt, entry.DeploymentId,
		string(entry.EntryType), entry.Origin, entry.Message, entry.Timestamp)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	entry.Id = int(id)
	return nil
}

func getDeploymentLogEntries(db *sql.DB, d *models.Deployment) ([]*deploy.LogEntry, error) {
	entries := []*deploy.LogEntry{}

	rows, err := db.Query(deploymentLogEntriesStmt, d.Id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var entryType string
		entry := &deploy.LogEntry{}

		err := rows.Scan(&entry.Id, &entry.DeploymentId, &entryType,
			&entry.Origin, &entry.Message, &entry.Timestamp)
		if err != nil {
			return entries, err
		}

		entry.EntryType = deploy.LogEntryType(entryType)

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return entries, err
	}

	return entries, nil
}

// newLogEntrySaver persists every log entry the router broadcasts.
func newLogEntrySaver(db *sql.DB) deploy.Listener {
	return func(logs <-chan deploy.LogEntry) {
		for entry := range logs {
			err := createLogEntry(db, &entry)
			if err != nil {
				log.Printf("could not save log entry for deployment %d: %s", entry.DeploymentId, err)
			}
		}
	}
}

func createBuildArtifact(db *sql.DB, a *models.BuildArtifact) error {
	result, err := db.Exec(buildArtifactInsertStmt, a.DeploymentId, a.ImageTag,
		a.CommitSha, a.BuiltAt)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	a.Id = int(id)
	return nil
}

func getDeploymentBuildArtifact(db *sql.DB, deploymentId int) (*models.BuildArtifact, error) {
	a := &models.BuildArtifact{}

	err := db.QueryRow(deploymentBuildArtifactStmt, deploymentId).Scan(&a.Id,
		&a.DeploymentId, &a.ImageTag, &a.CommitSha, &a.BuiltAt)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, err
	default:
		return a, nil
	}
}

func getLiveStack(db *sql.DB, applicationName, targetName string) (*models.LiveStack, error) {
	s := &models.LiveStack{}

	err := db.QueryRow(liveStackStmt, applicationName, targetName).Scan(
		&s.ApplicationName, &s.TargetName, &s.Version, &s.DeploymentId,
		&s.ImageTag, &s.Project, &s.AppContainerId, &s.DatabaseContainerId,
		&s.PromotedAt)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, err
	default:
		return s, nil
	}
}

// createLiveStack records the first promoted release of an application on a
// target. A concurrent first deployment trips the unique constraint and is
// reported as a stack conflict.
func createLiveStack(db *sql.DB, s *models.LiveStack) error {
	_, err := db.Exec(liveStackInsertStmt, s.ApplicationName, s.TargetName,
		s.Version, s.DeploymentId, s.ImageTag, s.Project, s.AppContainerId,
		s.DatabaseContainerId, s.PromotedAt)

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return ErrStackConflict
	}

	return err
}

// updateLiveStackCAS replaces the live stack record only if it still has the
// version this deployment started from. A zero-row update means somebody
// else promoted in between and the record must not be overwritten.
func updateLiveStackCAS(db *sql.DB, s *models.LiveStack, expectedVersion int) error {
	result, err := db.Exec(liveStackUpdateStmt, s.Version, s.DeploymentId,
		s.ImageTag, s.Project, s.AppContainerId, s.DatabaseContainerId,
		s.PromotedAt, s.ApplicationName, s.TargetName, expectedVersion)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStackConflict
	}

	return nil
}

func activeDeploymentExists(tx *sql.Tx, applicationName, targetName string) (bool, error) {
	var state string

	err := tx.QueryRow(activeDeploymentsStmt, applicationName, targetName).Scan(&state)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, err
	default:
		return true, nil
	}
}

func deploymentExists(tx *sql.Tx, d *models.Deployment) (bool, error) {
	var id int

	err := tx.QueryRow(duplicateDeploymentStmt, d.ApplicationName, d.TargetName,
		d.CommitSha, string(d.TriggerSource)).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, err
	default:
		return true, nil
	}
}
