package deploy

import (
	"fmt"

	"gopkg.in/yaml.v2"

	"github.com/gantry/gantry/models"
)

// The manifest types mirror the compose file schema. Networks and the
// database volume are declared external: gantry creates them once and no
// compose invocation may ever remove them.
type composeFile struct {
	Services map[string]*composeService `yaml:"services"`
	Networks map[string]*composeNetwork `yaml:"networks,omitempty"`
	Volumes  map[string]*composeVolume  `yaml:"volumes,omitempty"`
}

type composeService struct {
	Image         string              `yaml:"image"`
	ContainerName string              `yaml:"container_name"`
	Environment   map[string]string   `yaml:"environment,omitempty"`
	Ports         []string            `yaml:"ports,omitempty"`
	Volumes       []string            `yaml:"volumes,omitempty"`
	Networks      []string            `yaml:"networks"`
	Restart       string              `yaml:"restart"`
	Healthcheck   *composeHealthcheck `yaml:"healthcheck,omitempty"`
}

type composeHealthcheck struct {
	Test        []string `yaml:"test"`
	Interval    string   `yaml:"interval"`
	Timeout     string   `yaml:"timeout"`
	Retries     int      `yaml:"retries"`
	StartPeriod string   `yaml:"start_period"`
}

type composeNetwork struct {
	External bool `yaml:"external"`
}

type composeVolume struct {
	External bool `yaml:"external"`
}

// DatabaseManifest renders the long-lived database tier project. The
// container name and network are stable across releases so application
// containers of any release reach the database under the same address.
func DatabaseManifest(stack *models.Stack, containerName string, env map[string]string) ([]byte, error) {
	db := stack.Database

	manifest := &composeFile{
		Services: map[string]*composeService{
			"database": {
				Image:         db.Image,
				ContainerName: containerName,
				Environment:   env,
				Ports:         []string{fmt.Sprintf("%d:%d", db.Port, db.ContainerPort)},
				Volumes:       []string{fmt.Sprintf("%s:%s", db.Volume, db.DataDir)},
				Networks:      []string{stack.Network},
				Restart:       "unless-stopped",
				Healthcheck:   renderHealthcheck(db.Health, db.Health.Cmd),
			},
		},
		Networks: map[string]*composeNetwork{
			stack.Network: {External: true},
		},
		Volumes: map[string]*composeVolume{
			db.Volume: {External: true},
		},
	}

	return yaml.Marshal(manifest)
}

// AppManifest renders one application release as its own project. hostPort
// decides whether the container serves on the staging or the live port.
func AppManifest(stack *models.Stack, containerName, imageTag string, hostPort int, env map[string]string) ([]byte, error) {
	app := stack.App

	manifest := &composeFile{
		Services: map[string]*composeService{
			"app": {
				Image:         imageTag,
				ContainerName: containerName,
				Environment:   env,
				Ports:         []string{fmt.Sprintf("%d:%d", hostPort, app.ContainerPort)},
				Networks:      []string{stack.Network},
				Restart:       "unless-stopped",
				Healthcheck:   renderHealthcheck(app.Health, appHealthCmd(app)),
			},
		},
		Networks: map[string]*composeNetwork{
			stack.Network: {External: true},
		},
	}

	return yaml.Marshal(manifest)
}

func appHealthCmd(app *models.AppTier) string {
	if app.Health.Cmd != "" {
		return app.Health.Cmd
	}
	return fmt.Sprintf("curl -fsS http://localhost:%d%s || exit 1", app.ContainerPort, app.Health.Path)
}

func renderHealthcheck(policy *models.HealthPolicy, cmd string) *composeHealthcheck {
	return &composeHealthcheck{
		Test:        []string{"CMD-SHELL", cmd},
		Interval:    fmt.Sprintf("%ds", policy.Interval),
		Timeout:     fmt.Sprintf("%ds", policy.Timeout),
		Retries:     policy.Retries,
		StartPeriod: fmt.Sprintf("%ds", policy.StartPeriod),
	}
}
