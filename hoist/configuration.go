package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Configuration struct {
	Host        string   `yaml:"host"`
	Application string   `yaml:"application"`
	ApiToken    string   `yaml:"api_token"`
	Targets     []string `yaml:"targets"`
}

func (c *Configuration) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("empty `host` field in configuration file")
	}

	if c.Application == "" {
		return fmt.Errorf("empty `application` field in configuration file")
	}

	if c.ApiToken == "" {
		return fmt.Errorf("empty `api_token` field in configuration file")
	}

	if len(c.Targets) == 0 {
		return fmt.Errorf("empty `targets` field in configuration file")
	}

	return nil
}

func (c *Configuration) HasTarget(name string) bool {
	for _, t := range c.Targets {
		if t == name {
			return true
		}
	}
	return false
}

func readConfiguration(path string) (*Configuration, error) {
	var config Configuration

	configFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(configFile, &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
