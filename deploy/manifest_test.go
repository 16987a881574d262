package deploy

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v2"
)

func TestDatabaseManifest(t *testing.T) {
	config := testConfig(nil)
	stack := config.Stack()

	data, err := DatabaseManifest(stack, config.DatabaseContainerName(), map[string]string{"MYSQL_DATABASE": "shipyard"})
	if err != nil {
		t.Fatalf("DatabaseManifest failed: %s", err)
	}

	var manifest composeFile
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("manifest is not valid yaml: %s", err)
	}

	service := manifest.Services["database"]
	if service == nil {
		t.Fatal("no database service in manifest")
	}

	if service.Image != "mysql:8.0" {
		t.Errorf("wrong image. want mysql:8.0, got %s", service.Image)
	}
	if service.ContainerName != "shipyard-database" {
		t.Errorf("wrong container name. want shipyard-database, got %s", service.ContainerName)
	}
	if len(service.Ports) != 1 || service.Ports[0] != "3306:3306" {
		t.Errorf("wrong ports. got %v", service.Ports)
	}
	if len(service.Volumes) != 1 || service.Volumes[0] != "shipyard-dbdata:/var/lib/mysql" {
		t.Errorf("wrong volumes. got %v", service.Volumes)
	}
	if service.Environment["MYSQL_DATABASE"] != "shipyard" {
		t.Errorf("environment not rendered. got %v", service.Environment)
	}

	if service.Healthcheck == nil {
		t.Fatal("no healthcheck in database service")
	}
	if service.Healthcheck.Test[0] != "CMD-SHELL" || !strings.Contains(service.Healthcheck.Test[1], "mysqladmin ping") {
		t.Errorf("wrong healthcheck test. got %v", service.Healthcheck.Test)
	}
	if service.Healthcheck.Interval != "5s" || service.Healthcheck.StartPeriod != "30s" {
		t.Errorf("wrong healthcheck timing. got %+v", service.Healthcheck)
	}

	if network := manifest.Networks["shipyard-net"]; network == nil || !network.External {
		t.Errorf("network not declared external. got %v", manifest.Networks)
	}
	if volume := manifest.Volumes["shipyard-dbdata"]; volume == nil || !volume.External {
		t.Errorf("volume not declared external. got %v", manifest.Volumes)
	}
}

func TestAppManifest(t *testing.T) {
	config := testConfig(nil)
	stack := config.Stack()

	data, err := AppManifest(stack, config.AppContainerName(), "gantry/shipyard:abc123abc123", stack.App.StagingPort, nil)
	if err != nil {
		t.Fatalf("AppManifest failed: %s", err)
	}

	var manifest composeFile
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("manifest is not valid yaml: %s", err)
	}

	service := manifest.Services["app"]
	if service == nil {
		t.Fatal("no app service in manifest")
	}

	if service.Image != "gantry/shipyard:abc123abc123" {
		t.Errorf("wrong image. got %s", service.Image)
	}
	if service.ContainerName != "shipyard-app-abc123abc123" {
		t.Errorf("wrong container name. got %s", service.ContainerName)
	}
	if len(service.Ports) != 1 || service.Ports[0] != "15000:5000" {
		t.Errorf("wrong ports. got %v", service.Ports)
	}
	if len(service.Volumes) != 0 {
		t.Errorf("app service mounts volumes: %v", service.Volumes)
	}

	if service.Healthcheck == nil {
		t.Fatal("no healthcheck in app service")
	}
	if !strings.Contains(service.Healthcheck.Test[1], "http://localhost:5000/health") {
		t.Errorf("healthcheck does not probe the health path. got %v", service.Healthcheck.Test)
	}

	if network := manifest.Networks["shipyard-net"]; network == nil || !network.External {
		t.Errorf("network not declared external. got %v", manifest.Networks)
	}
	if len(manifest.Volumes) != 0 {
		t.Errorf("app manifest declares volumes: %v", manifest.Volumes)
	}
}

func TestAppManifestLivePort(t *testing.T) {
	config := testConfig(nil)
	stack := config.Stack()

	data, err := AppManifest(stack, config.AppContainerName(), "gantry/shipyard:abc123abc123", stack.App.Port, nil)
	if err != nil {
		t.Fatalf("AppManifest failed: %s", err)
	}

	var manifest composeFile
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("manifest is not valid yaml: %s", err)
	}

	if ports := manifest.Services["app"].Ports; len(ports) != 1 || ports[0] != "5000:5000" {
		t.Errorf("wrong live ports. got %v", ports)
	}
}

func TestAppManifestHealthCmdOverride(t *testing.T) {
	config := testConfig(nil)
	stack := config.Stack()
	stack.App.Health.Cmd = "wget -q -O /dev/null http://localhost:5000/ping"

	data, err := AppManifest(stack, config.AppContainerName(), "gantry/shipyard:abc123abc123", stack.App.Port, nil)
	if err != nil {
		t.Fatalf("AppManifest failed: %s", err)
	}

	var manifest composeFile
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("manifest is not valid yaml: %s", err)
	}

	if got := manifest.Services["app"].Healthcheck.Test[1]; got != stack.App.Health.Cmd {
		t.Errorf("configured healthcheck not used. want %q, got %q", stack.App.Health.Cmd, got)
	}
}
