package models

import (
	"bytes"
	"fmt"
	"text/template"
)

type TierName string

const (
	TIER_APP      TierName = "app"
	TIER_DATABASE TierName = "database"
)

type TierStatus string

const (
	TIER_STARTING  TierStatus = "starting"
	TIER_HEALTHY   TierStatus = "healthy"
	TIER_UNHEALTHY TierStatus = "unhealthy"
	TIER_STOPPED   TierStatus = "stopped"
)

type StackState struct {
	Tier        TierName   `json:"tier"`
	ContainerId string     `json:"container_id"`
	Status      TierStatus `json:"status"`
}

type Stack struct {
	Network  string        `json:"network"`
	App      *AppTier      `json:"app"`
	Database *DatabaseTier `json:"database"`
}

type AppTier struct {
	ImageRepo     string            `json:"image_repo"`
	BuildContext  string            `json:"build_context"`
	Dockerfile    string            `json:"dockerfile"`
	Port          int               `json:"port"`
	StagingPort   int               `json:"staging_port"`
	ContainerPort int               `json:"container_port"`
	Env           map[string]string `json:"env"`
	Health        *HealthPolicy     `json:"health"`
}

type DatabaseTier struct {
	Image         string            `json:"image"`
	Port          int               `json:"port"`
	ContainerPort int               `json:"container_port"`
	Volume        string            `json:"volume"`
	DataDir       string            `json:"data_dir"`
	Env           map[string]string `json:"env"`
	Health        *HealthPolicy     `json:"health"`
}

// HealthPolicy bounds the health gate of a tier: probe every Interval
// seconds, allow Retries failed probes after StartPeriod seconds of grace.
type HealthPolicy struct {
	Path        string `json:"path"`
	Cmd         string `json:"cmd"`
	Interval    int    `json:"interval"`
	Timeout     int    `json:"timeout"`
	Retries     int    `json:"retries"`
	StartPeriod int    `json:"start_period"`
}

func (s *Stack) normalize(applicationName string) {
	if s.Network == "" {
		s.Network = fmt.Sprintf("%s-net", applicationName)
	}

	if s.App == nil {
		s.App = &AppTier{}
	}
	app := s.App
	if app.ImageRepo == "" {
		app.ImageRepo = fmt.Sprintf("gantry/%s", applicationName)
	}
	if app.BuildContext == "" {
		app.BuildContext = "."
	}
	if app.Dockerfile == "" {
		app.Dockerfile = "Dockerfile"
	}
	if app.Port == 0 {
		app.Port = 5000
	}
	if app.ContainerPort == 0 {
		app.ContainerPort = app.Port
	}
	if app.StagingPort == 0 {
		app.StagingPort = app.Port + 10000
	}
	if app.Health == nil {
		app.Health = &HealthPolicy{}
	}
	if app.Health.Path == "" {
		app.Health.Path = "/health"
	}
	app.Health.normalize(10)

	if s.Database == nil {
		s.Database = &DatabaseTier{}
	}
	db := s.Database
	if db.Image == "" {
		db.Image = "mysql:8.0"
	}
	if db.Port == 0 {
		db.Port = 3306
	}
	if db.ContainerPort == 0 {
		db.ContainerPort = 3306
	}
	if db.Volume == "" {
		db.Volume = fmt.Sprintf("%s-dbdata", applicationName)
	}
	if db.DataDir == "" {
		db.DataDir = "/var/lib/mysql"
	}
	if db.Health == nil {
		db.Health = &HealthPolicy{}
	}
	if db.Health.Cmd == "" {
		db.Health.Cmd = "mysqladmin ping -h 127.0.0.1 --silent"
	}
	db.Health.normalize(30)
}

func (h *HealthPolicy) normalize(startPeriod int) {
	if h.Interval == 0 {
		h.Interval = 5
	}
	if h.Timeout == 0 {
		h.Timeout = 3
	}
	if h.Retries == 0 {
		h.Retries = 12
	}
	if h.StartPeriod == 0 {
		h.StartPeriod = startPeriod
	}
}

func RenderEnv(env map[string]string, options map[string]string) (map[string]string, error) {
	rendered := make(map[string]string, len(env))

	for name, valueTemplate := range env {
		tmpl, err := template.New(name).Parse(valueTemplate)
		if err != nil {
			return nil, err
		}

		var b bytes.Buffer
		err = tmpl.Execute(&b, options)
		if err != nil {
			return nil, err
		}

		rendered[name] = b.String()
	}

	return rendered, nil
}
