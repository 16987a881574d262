package deploy

import (
	"errors"
	"fmt"
	"time"

	"github.com/gantry/gantry/models"
)

// ErrKilled is returned by stages that were aborted through the pipeline's
// kill channel.
var ErrKilled = errors.New("deployment killed")

// Result is the single outcome of a pipeline run. Live is the stack record
// to persist; it is nil when the run did not change what is serving.
type Result struct {
	State    models.DeploymentState
	Reason   string
	Artifact *models.BuildArtifact
	Live     *models.LiveStack
}

// Pipeline runs one deployment from source checkout to promotion. Runs on
// the same target are serialized twice: the server launches one pipeline per
// target at a time and the target host is locked for the duration of the
// run, so concurrent gantry instances cannot interleave either.
type Pipeline struct {
	config   *models.DeploymentConfig
	logger   *DeploymentLogger
	killChan chan struct{}

	// set by tests; Run dials the target when nil
	runner Runner
}

func NewPipeline(config *models.DeploymentConfig, router *LogRouter, killChan chan struct{}) *Pipeline {
	return &Pipeline{
		config:   config,
		logger:   NewDeploymentLogger(config.Deployment, router),
		killChan: killChan,
	}
}

// AnnounceStart opens the log stream for this deployment. Callers subscribe
// to the router between AnnounceStart and Run to receive every entry.
func (p *Pipeline) AnnounceStart() {
	p.logger.BroadcastLogs()
	p.logger.LogDeploymentStart()
}

// Run executes the pipeline and always produces exactly one Result, whatever
// stage fails. It never panics the deployment into an unfinished state.
func (p *Pipeline) Run() *Result {
	defer p.logger.Flush()

	runner := p.runner
	if runner == nil {
		var err error
		runner, err = NewRunner(p.config.Target, p.logger)
		if err != nil {
			return p.fail(fmt.Errorf("connecting to target %s failed: %v", p.config.Target.Name, err))
		}
	}
	defer runner.Close()

	if err := acquireHostLock(runner, p.config.LockPath()); err != nil {
		return p.fail(err)
	}
	defer releaseHostLock(runner, p.config.LockPath())

	builder := NewBuilder(runner, p.config, p.logger)
	deployer := NewDeployer(runner, p.config, p.logger, p.killChan)
	rollback := NewRollbackController(runner, p.config, p.logger, p.killChan)

	if err := p.executeStage(models.STAGE_CLONE, builder.SyncSource); err != nil {
		return p.fail(err)
	}

	var artifact *models.BuildArtifact
	err := p.executeStage(models.STAGE_BUILD, func() error {
		var err error
		artifact, err = builder.BuildImage()
		return err
	})
	if err != nil {
		return p.fail(err)
	}

	var staged *StagedStack
	var live *models.LiveStack
	err = p.executeStage(models.STAGE_DEPLOY, func() error {
		var err error
		staged, err = deployer.Stage(artifact)
		if err != nil {
			return err
		}
		live, err = deployer.Promote(staged)
		return err
	})
	if err != nil {
		result := p.recover(deployer, rollback, staged, err)
		result.Artifact = artifact
		return result
	}

	p.logger.LogDeploymentSuccess()
	return &Result{State: models.DEPLOYMENT_SUCCESSFUL, Artifact: artifact, Live: live}
}

// recover handles a failed deploy stage. The new release's containers are
// discarded and the previous release is verified or, when the promotion had
// already stopped it, actively restored.
func (p *Pipeline) recover(deployer *Deployer, rollback *RollbackController, staged *StagedStack, cause error) *Result {
	deployer.Discard(staged)

	prior := p.config.Prior
	touched := staged != nil && staged.PriorStopped

	var restored *models.LiveStack
	rollbackErr := p.executeStage(models.STAGE_ROLLBACK, func() error {
		var err error
		if touched {
			restored, err = rollback.Restore(prior)
		} else {
			restored, err = rollback.Verify(prior)
		}
		return err
	})

	if rollbackErr != nil {
		reason := fmt.Sprintf("%s; %s", cause, rollbackErr)
		p.logger.LogDeploymentFail(errors.New(reason))
		return &Result{State: models.DEPLOYMENT_FAILED, Reason: reason}
	}

	if touched {
		p.logger.LogDeploymentRollback(cause.Error())
		return &Result{State: models.DEPLOYMENT_ROLLED_BACK, Reason: cause.Error(), Live: restored}
	}

	p.logger.LogDeploymentFail(cause)
	return &Result{State: models.DEPLOYMENT_FAILED, Reason: cause.Error(), Live: restored}
}

func (p *Pipeline) fail(err error) *Result {
	p.logger.LogDeploymentFail(err)
	return &Result{State: models.DEPLOYMENT_FAILED, Reason: err.Error()}
}

func (p *Pipeline) executeStage(stage models.DeploymentStage, fn func() error) error {
	select {
	case <-p.killChan:
		p.logger.LogKillReceived()
		return ErrKilled
	default:
	}

	p.logger.LogStageStart(stage)
	start := time.Now()

	if err := fn(); err != nil {
		p.logger.LogStageResult(fmtStageFailure(stage, time.Since(start), err))
		p.logger.LogStageFail(stage)
		return err
	}

	p.logger.LogStageResult(fmtStageSuccess(stage, time.Since(start)))
	p.logger.LogStageSuccess(stage)
	return nil
}

func fmtStageSuccess(stage models.DeploymentStage, timeTaken time.Duration) string {
	return fmt.Sprintf("execution of %s stage successful (took %v)", stage, timeTaken)
}

func fmtStageFailure(stage models.DeploymentStage, timeTaken time.Duration, err error) string {
	return fmt.Sprintf("execution of %s stage failed (took %v): %s", stage, timeTaken, err)
}
