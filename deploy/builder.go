package deploy

import (
	"fmt"
	"path"
	"time"

	"github.com/gantry/gantry/models"
)

// BuildError is fatal to the deployment run: no deploy step executes after
// it and the currently live artifact stays untouched.
type BuildError struct {
	ImageTag string
	Err      error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building image %s failed: %s", e.ImageTag, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

type Builder struct {
	runner Runner
	config *models.DeploymentConfig
	logger *DeploymentLogger
}

func NewBuilder(runner Runner, config *models.DeploymentConfig, logger *DeploymentLogger) *Builder {
	return &Builder{runner: runner, config: config, logger: logger}
}

// BuildImage builds the application image from the synced source tree. The
// tag derives from the revision, so rebuilding a revision produces the same
// reference and `latest` never enters the system.
func (b *Builder) BuildImage() (*models.BuildArtifact, error) {
	app := b.config.Stack().App
	tag := b.config.ImageTag()

	context := path.Join(b.config.SourceDir(), app.BuildContext)
	dockerfile := path.Join(context, app.Dockerfile)

	build := fmt.Sprintf("docker build -t %s -f %s %s",
		shellQuote(tag), shellQuote(dockerfile), shellQuote(context))
	if err := b.runner.Execute(build); err != nil {
		return nil, &BuildError{ImageTag: tag, Err: err}
	}

	artifact := &models.BuildArtifact{
		DeploymentId: b.config.Deployment.Id,
		ImageTag:     tag,
		CommitSha:    b.config.Deployment.CommitSha,
		BuiltAt:      time.Now(),
	}

	b.logger.LogStageResult(fmt.Sprintf("built image %s from revision %s", tag, artifact.CommitSha))

	return artifact, nil
}
