package deploy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gantry/gantry/models"
)

// ErrNoPriorRelease is returned when a failed deployment asks for a rollback
// but no release was ever promoted on the target. There is nothing to
// restore; the target is down until an operator deploys a working revision.
var ErrNoPriorRelease = errors.New("no previous successful release to restore")

// RollbackController re-establishes the last promoted release after a failed
// deployment. It only ever uses the image tag recorded at promotion time and
// never rebuilds.
type RollbackController struct {
	runner Runner
	config *models.DeploymentConfig
	logger *DeploymentLogger
	kill   <-chan struct{}
}

func NewRollbackController(runner Runner, config *models.DeploymentConfig, logger *DeploymentLogger, kill <-chan struct{}) *RollbackController {
	return &RollbackController{runner: runner, config: config, logger: logger, kill: kill}
}

// Verify checks that the previous release kept serving through the failed
// deployment. It returns a non-nil stack only when the release had to be
// restored and its containers changed.
func (rc *RollbackController) Verify(prior *models.LiveStack) (*models.LiveStack, error) {
	if prior == nil {
		return nil, ErrNoPriorRelease
	}

	inspect := fmt.Sprintf("docker inspect --format '{{.State.Status}}' %s", shellQuote(prior.AppContainerId))
	out, err := rc.runner.Output(inspect)
	if err == nil && out == "running" {
		rc.logger.LogStageResult(fmt.Sprintf("previous release %s still serving on port %d",
			prior.ImageTag, rc.config.Stack().App.Port))
		return nil, nil
	}

	rc.logger.LogStageResult(fmt.Sprintf("previous release %s is not running, restoring it", prior.ImageTag))
	return rc.Restore(prior)
}

// Restore brings the previous release back onto the live port using the
// exact image tag it was promoted with.
func (rc *RollbackController) Restore(prior *models.LiveStack) (*models.LiveStack, error) {
	if prior == nil {
		return nil, ErrNoPriorRelease
	}

	dc := rc.config
	stack := dc.Stack()
	app := stack.App
	manifestPath := dc.ManifestPath(prior.Project)

	env, err := models.RenderEnv(app.Env, restoreEnvOptions(dc, prior))
	if err != nil {
		return nil, fmt.Errorf("rendering app environment failed: %v", err)
	}

	manifest, err := AppManifest(stack, prior.Project, prior.ImageTag, app.Port, env)
	if err != nil {
		return nil, fmt.Errorf("rendering app manifest failed: %v", err)
	}

	if err := writeFile(rc.runner, manifestPath, string(manifest)); err != nil {
		return nil, err
	}
	if err := composeUp(rc.runner, prior.Project, manifestPath); err != nil {
		return nil, err
	}

	containerId, err := composeContainerId(rc.runner, prior.Project, manifestPath, "app")
	if err != nil {
		return nil, err
	}
	rc.logger.LogTierStarting(models.TIER_APP, containerId)

	probe := newAppProbe(appURL(dc.Target, app.Port, app.Health.Path), time.Duration(app.Health.Timeout)*probeTick)
	if err := WaitHealthy(models.TIER_APP, probe, app.Health, rc.kill, rc.logger); err != nil {
		return nil, fmt.Errorf("restoring previous release failed: %v", err)
	}

	restored := &models.LiveStack{
		ApplicationName:     prior.ApplicationName,
		TargetName:          prior.TargetName,
		Version:             prior.Version + 1,
		DeploymentId:        prior.DeploymentId,
		ImageTag:            prior.ImageTag,
		Project:             prior.Project,
		AppContainerId:      containerId,
		DatabaseContainerId: prior.DatabaseContainerId,
		PromotedAt:          time.Now(),
	}

	rc.logger.LogStageResult(fmt.Sprintf("release %s restored on port %d", restored.Project, app.Port))
	return restored, nil
}

// restoreEnvOptions renders the template options for the revision being
// restored, not the revision that just failed.
func restoreEnvOptions(dc *models.DeploymentConfig, prior *models.LiveStack) map[string]string {
	short := prior.ImageTag
	if i := strings.LastIndex(prior.ImageTag, ":"); i != -1 {
		short = prior.ImageTag[i+1:]
	}

	options := dc.EnvOptions()
	options["CommitSha"] = short
	options["ShortSha"] = short
	return options
}
