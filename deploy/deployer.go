package deploy

import (
	"fmt"
	"net"
	"time"

	"github.com/gantry/gantry/models"
)

// StagedStack is a release that is up and gated on the staging port but not
// yet promoted to the live port.
type StagedStack struct {
	Project  string
	ImageTag string
	App      *models.StackState
	Database *models.StackState

	// set once Promote has touched the previous live container; from that
	// point on a failure requires an active restore, not just a verify
	PriorStopped bool
}

type Deployer struct {
	runner Runner
	config *models.DeploymentConfig
	logger *DeploymentLogger
	kill   <-chan struct{}
}

func NewDeployer(runner Runner, config *models.DeploymentConfig, logger *DeploymentLogger, kill <-chan struct{}) *Deployer {
	return &Deployer{runner: runner, config: config, logger: logger, kill: kill}
}

// Stage brings the new stack up without touching the previous release: the
// database tier is reconciled and gated first, then the application tier is
// started on the staging port and gated there. The old application container
// keeps serving the live port throughout.
func (d *Deployer) Stage(artifact *models.BuildArtifact) (*StagedStack, error) {
	dc := d.config
	stack := dc.Stack()

	staged := &StagedStack{
		Project:  dc.ReleaseProject(),
		ImageTag: artifact.ImageTag,
	}

	if err := d.ensureNetwork(stack.Network); err != nil {
		return staged, err
	}
	if err := d.ensureVolume(stack.Database.Volume); err != nil {
		return staged, err
	}

	dbState, err := d.deployDatabase()
	staged.Database = dbState
	if err != nil {
		return staged, err
	}

	appState, err := d.deployApp(staged, stack.App.StagingPort)
	staged.App = appState
	if err != nil {
		return staged, err
	}

	d.logger.LogStageResult(fmt.Sprintf("release %s staged on port %d", staged.Project, stack.App.StagingPort))
	return staged, nil
}

// Promote swaps the gated release onto the live port: stop the previous
// container, re-create the new one bound to the live port, and gate it
// again. The previous container is removed only after the final gate passes.
func (d *Deployer) Promote(staged *StagedStack) (*models.LiveStack, error) {
	dc := d.config
	app := dc.Stack().App
	prior := dc.Prior

	if prior != nil && prior.AppContainerId != "" {
		staged.PriorStopped = true
		d.logger.LogStageResult(fmt.Sprintf("stopping previous release %s", prior.Project))
		stop := fmt.Sprintf("docker stop %s", shellQuote(prior.AppContainerId))
		if err := d.runner.Execute(stop); err != nil {
			return nil, fmt.Errorf("stopping previous app container failed: %v", err)
		}
	}

	appState, err := d.deployApp(staged, app.Port)
	if appState != nil {
		staged.App = appState
	}
	if err != nil {
		return nil, err
	}

	if prior != nil && prior.AppContainerId != "" {
		rm := fmt.Sprintf("docker rm %s", shellQuote(prior.AppContainerId))
		if err := d.runner.Execute(rm); err != nil {
			// the new release is healthy; a leftover stopped container
			// is not worth failing the deployment over
			d.logger.LogStageResult(fmt.Sprintf("removing previous app container failed: %s", err))
		}
	}

	version := 1
	if prior != nil {
		version = prior.Version + 1
	}

	live := &models.LiveStack{
		ApplicationName:     dc.Application.Name,
		TargetName:          dc.Target.Name,
		Version:             version,
		DeploymentId:        dc.Deployment.Id,
		ImageTag:            staged.ImageTag,
		Project:             staged.Project,
		AppContainerId:      staged.App.ContainerId,
		DatabaseContainerId: staged.Database.ContainerId,
		PromotedAt:          time.Now(),
	}

	d.logger.LogStageResult(fmt.Sprintf("release %s live on port %d", live.Project, app.Port))
	return live, nil
}

// Discard removes the containers a failed deployment started. The database
// tier is shared with the previous release and its volume is persistent, so
// only the new application container is touched.
func (d *Deployer) Discard(staged *StagedStack) {
	if staged == nil || staged.App == nil {
		return
	}

	rm := fmt.Sprintf("docker rm -f %s", shellQuote(d.config.AppContainerName()))
	if err := d.runner.Execute(rm); err != nil {
		d.logger.LogStageResult(fmt.Sprintf("discarding app container failed: %s", err))
		return
	}
	staged.App.Status = models.TIER_STOPPED
}

func (d *Deployer) deployDatabase() (*models.StackState, error) {
	dc := d.config
	stack := dc.Stack()
	project := dc.DatabaseProject()
	manifestPath := dc.ManifestPath(project)

	env, err := models.RenderEnv(stack.Database.Env, dc.EnvOptions())
	if err != nil {
		return nil, fmt.Errorf("rendering database environment failed: %v", err)
	}

	manifest, err := DatabaseManifest(stack, dc.DatabaseContainerName(), env)
	if err != nil {
		return nil, fmt.Errorf("rendering database manifest failed: %v", err)
	}

	if err := writeFile(d.runner, manifestPath, string(manifest)); err != nil {
		return nil, err
	}
	if err := composeUp(d.runner, project, manifestPath); err != nil {
		return nil, err
	}

	containerId, err := composeContainerId(d.runner, project, manifestPath, "database")
	if err != nil {
		return nil, err
	}

	state := &models.StackState{Tier: models.TIER_DATABASE, ContainerId: containerId, Status: models.TIER_STARTING}
	d.logger.LogTierStarting(state.Tier, containerId)

	probe := NewContainerProbe(d.runner, containerId)
	if err := WaitHealthy(state.Tier, probe, stack.Database.Health, d.kill, d.logger); err != nil {
		state.Status = models.TIER_UNHEALTHY
		return state, err
	}

	state.Status = models.TIER_HEALTHY
	return state, nil
}

func (d *Deployer) deployApp(staged *StagedStack, hostPort int) (*models.StackState, error) {
	dc := d.config
	stack := dc.Stack()
	manifestPath := dc.ManifestPath(staged.Project)

	env, err := models.RenderEnv(stack.App.Env, dc.EnvOptions())
	if err != nil {
		return nil, fmt.Errorf("rendering app environment failed: %v", err)
	}

	manifest, err := AppManifest(stack, dc.AppContainerName(), staged.ImageTag, hostPort, env)
	if err != nil {
		return nil, fmt.Errorf("rendering app manifest failed: %v", err)
	}

	if err := writeFile(d.runner, manifestPath, string(manifest)); err != nil {
		return nil, err
	}
	if err := composeUp(d.runner, staged.Project, manifestPath); err != nil {
		return nil, err
	}

	containerId, err := composeContainerId(d.runner, staged.Project, manifestPath, "app")
	if err != nil {
		return nil, err
	}

	state := &models.StackState{Tier: models.TIER_APP, ContainerId: containerId, Status: models.TIER_STARTING}
	d.logger.LogTierStarting(state.Tier, containerId)

	probe := newAppProbe(appURL(dc.Target, hostPort, stack.App.Health.Path), time.Duration(stack.App.Health.Timeout)*probeTick)
	if err := WaitHealthy(state.Tier, probe, stack.App.Health, d.kill, d.logger); err != nil {
		state.Status = models.TIER_UNHEALTHY
		return state, err
	}

	state.Status = models.TIER_HEALTHY
	return state, nil
}

func (d *Deployer) ensureNetwork(network string) error {
	cmd := fmt.Sprintf("docker network inspect %s >/dev/null 2>&1 || docker network create %s",
		shellQuote(network), shellQuote(network))
	return d.runner.Execute(cmd)
}

func (d *Deployer) ensureVolume(volume string) error {
	return d.runner.Execute(fmt.Sprintf("docker volume create %s", shellQuote(volume)))
}

func composeUp(r Runner, project, manifestPath string) error {
	cmd := fmt.Sprintf("docker compose -p %s -f %s up -d", shellQuote(project), shellQuote(manifestPath))
	return r.Execute(cmd)
}

func composeContainerId(r Runner, project, manifestPath, service string) (string, error) {
	cmd := fmt.Sprintf("docker compose -p %s -f %s ps -q %s", shellQuote(project), shellQuote(manifestPath), service)
	id, err := r.Output(cmd)
	if err != nil {
		return "", fmt.Errorf("resolving %s container failed: %v", service, err)
	}
	if id == "" {
		return "", fmt.Errorf("no %s container in project %s", service, project)
	}
	return id, nil
}

// appURL is probed from the gantry process, so reachability through the
// published host port is part of the gate.
func appURL(target *models.Target, port int, path string) string {
	return fmt.Sprintf("http://%s:%d%s", probeHost(target), port, path)
}

func probeHost(target *models.Target) string {
	if !target.IsRemote() {
		return "127.0.0.1"
	}
	host, _, err := net.SplitHostPort(target.Host)
	if err != nil {
		return target.Host
	}
	return host
}
