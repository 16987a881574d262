package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/gantry/gantry/models"
)

type Configuration struct {
	Host                string                `json:"host"`
	SSLEnabled          bool                  `json:"ssl_enabled"`
	ApiToken            string                `json:"api_token"`
	GitHubApiToken      string                `json:"github_api_token"`
	GitHubWebhookSecret string                `json:"github_webhook_secret"`
	Applications        []*models.Application `json:"applications"`
}

func (c *Configuration) Scheme() string {
	if c.SSLEnabled {
		return "https"
	}
	return "http"
}

func (c *Configuration) FindApplication(name string) *models.Application {
	for _, a := range c.Applications {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// FindApplicationByRepository matches the "owner/repo" name GitHub sends in
// push events.
func (c *Configuration) FindApplicationByRepository(fullName string) *models.Application {
	for _, a := range c.Applications {
		if a.GitHubFullName() == fullName {
			return a
		}
	}
	return nil
}

func readConfiguration(path string) (*Configuration, error) {
	c := &Configuration{}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(content, c)
	if err != nil {
		return nil, err
	}

	for _, application := range c.Applications {
		application.Normalize()
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	if c.ApiToken == "" {
		c.ApiToken = uuid.NewString()
		log.Printf("no api_token configured. generated one for this run: %s", c.ApiToken)
	}

	return c, nil
}

func (c *Configuration) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host missing in configuration")
	}

	if len(c.Applications) == 0 {
		return fmt.Errorf("no applications configured")
	}

	seen := map[string]bool{}
	for _, application := range c.Applications {
		if application.Name == "" {
			return fmt.Errorf("application without a name")
		}
		if seen[application.Name] {
			return fmt.Errorf("duplicate application name %q", application.Name)
		}
		seen[application.Name] = true

		if application.GitHubOwner == "" || application.GitHubRepo == "" {
			return fmt.Errorf("application %q: github_owner and github_repo are required", application.Name)
		}

		if len(application.Targets) == 0 {
			return fmt.Errorf("application %q has no targets", application.Name)
		}

		targets := map[string]bool{}
		for _, target := range application.Targets {
			if target.Name == "" {
				return fmt.Errorf("application %q: target without a name", application.Name)
			}
			if targets[target.Name] {
				return fmt.Errorf("application %q: duplicate target %q", application.Name, target.Name)
			}
			targets[target.Name] = true

			if target.Workspace == "" {
				return fmt.Errorf("application %q: target %q needs a workspace", application.Name, target.Name)
			}
		}
	}

	return nil
}
