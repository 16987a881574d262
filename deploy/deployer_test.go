package deploy

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gantry/gantry/models"
)

// fakeAppGate replaces the app tier's HTTP gate. Every gate consumes the
// next scripted probe and records the probed URL; gates beyond the script
// report healthy immediately.
type fakeAppGate struct {
	urls  []string
	queue []*scriptedProbe
}

func installAppGate(t *testing.T, probes ...*scriptedProbe) *fakeAppGate {
	gate := &fakeAppGate{queue: probes}

	old := newAppProbe
	newAppProbe = func(url string, timeout time.Duration) Probe {
		gate.urls = append(gate.urls, url)
		if len(gate.queue) == 0 {
			return &scriptedProbe{}
		}
		probe := gate.queue[0]
		gate.queue = gate.queue[1:]
		return probe
	}
	t.Cleanup(func() { newAppProbe = old })

	return gate
}

func failingProbe(failures int) *scriptedProbe {
	errs := make([]error, failures)
	for i := range errs {
		errs[i] = errors.New("connection refused")
	}
	return &scriptedProbe{errs: errs}
}

func assertVolumeNeverRemoved(t *testing.T, runner *fakeRunner) {
	t.Helper()
	for _, cmd := range runner.commands {
		if strings.Contains(cmd, "volume rm") || strings.Contains(cmd, "down -v") || strings.Contains(cmd, "down --volumes") {
			t.Errorf("command removes a volume: %s", cmd)
		}
	}
}

func TestStage(t *testing.T) {
	fastTicks(t, time.Millisecond)

	config := testConfig(nil)
	logger, stop := testLogger(config.Deployment)
	defer stop()

	runner := newFakeRunner()
	runner.scriptOutput("ps -q database", "db1")
	runner.scriptOutput("'db1'", "running starting", "running starting", "running healthy")
	runner.scriptOutput("ps -q app", "app1")

	gate := installAppGate(t, failingProbe(1))

	deployer := NewDeployer(runner, config, logger, nil)

	staged, err := deployer.Stage(&models.BuildArtifact{ImageTag: "gantry/shipyard:abc123abc123"})
	if err != nil {
		t.Fatalf("Stage failed: %s", err)
	}

	if staged.Project != "shipyard-app-abc123abc123" {
		t.Errorf("wrong project. got %s", staged.Project)
	}

	if staged.Database == nil || staged.Database.ContainerId != "db1" {
		t.Fatalf("wrong database state: %+v", staged.Database)
	}
	if staged.Database.Status != models.TIER_HEALTHY {
		t.Errorf("database not healthy. got %s", staged.Database.Status)
	}

	if staged.App == nil || staged.App.ContainerId != "app1" {
		t.Fatalf("wrong app state: %+v", staged.App)
	}
	if staged.App.Status != models.TIER_HEALTHY {
		t.Errorf("app not healthy. got %s", staged.App.Status)
	}

	if len(gate.urls) != 1 || gate.urls[0] != "http://127.0.0.1:15000/health" {
		t.Errorf("app not gated on the staging port. probed %v", gate.urls)
	}

	if !runner.ran("docker network create 'shipyard-net'") {
		t.Errorf("network not ensured. commands: %v", runner.commands)
	}
	if !runner.ran("docker volume create 'shipyard-dbdata'") {
		t.Errorf("volume not ensured. commands: %v", runner.commands)
	}

	// the app tier may only start once the database tier probed healthy
	appUp := runner.commandIndex("-p 'shipyard-app-abc123abc123' -f")
	dbGate := runner.commandIndex("'db1'")
	if appUp < 0 || dbGate < 0 || appUp < dbGate {
		t.Errorf("app started before the database gate. commands: %v", runner.commands)
	}

	assertVolumeNeverRemoved(t, runner)
}

func TestStageDatabaseUnhealthy(t *testing.T) {
	fastTicks(t, time.Millisecond)

	config := testConfig(nil)
	logger, stop := testLogger(config.Deployment)
	defer stop()

	runner := newFakeRunner()
	runner.scriptOutput("ps -q database", "db1")
	// inspect script exhausted: the probe keeps failing

	installAppGate(t)

	deployer := NewDeployer(runner, config, logger, nil)

	staged, err := deployer.Stage(&models.BuildArtifact{ImageTag: "gantry/shipyard:abc123abc123"})

	if _, ok := err.(*HealthTimeoutError); !ok {
		t.Fatalf("wrong error type: %T (%v)", err, err)
	}
	if staged.Database == nil || staged.Database.Status != models.TIER_UNHEALTHY {
		t.Errorf("database state not unhealthy: %+v", staged.Database)
	}

	if runner.ran("shipyard-app") {
		t.Errorf("app tier touched although the database never got healthy. commands: %v", runner.commands)
	}
	if staged.App != nil {
		t.Errorf("app state recorded although the app never started: %+v", staged.App)
	}
}

func TestPromote(t *testing.T) {
	fastTicks(t, time.Millisecond)

	prior := &models.LiveStack{
		ApplicationName: "shipyard",
		TargetName:      "production",
		Version:         3,
		ImageTag:        "gantry/shipyard:oldsha000000",
		Project:         "shipyard-app-oldsha000000",
		AppContainerId:  "oldapp",
	}

	config := testConfig(prior)
	logger, stop := testLogger(config.Deployment)
	defer stop()

	runner := newFakeRunner()
	runner.scriptOutput("ps -q app", "app2")

	gate := installAppGate(t)

	deployer := NewDeployer(runner, config, logger, nil)

	staged := &StagedStack{
		Project:  config.ReleaseProject(),
		ImageTag: "gantry/shipyard:abc123abc123",
		App:      &models.StackState{Tier: models.TIER_APP, ContainerId: "app1", Status: models.TIER_HEALTHY},
		Database: &models.StackState{Tier: models.TIER_DATABASE, ContainerId: "db1", Status: models.TIER_HEALTHY},
	}

	live, err := deployer.Promote(staged)
	if err != nil {
		t.Fatalf("Promote failed: %s", err)
	}

	if !staged.PriorStopped {
		t.Error("PriorStopped not set")
	}

	stop1 := runner.commandIndex("docker stop 'oldapp'")
	up := runner.commandIndex("-p 'shipyard-app-abc123abc123' -f")
	rm := runner.commandIndex("docker rm 'oldapp'")
	if stop1 < 0 || up < 0 || rm < 0 {
		t.Fatalf("promotion commands missing. commands: %v", runner.commands)
	}
	if !(stop1 < up && up < rm) {
		t.Errorf("wrong promotion order: stop=%d up=%d rm=%d", stop1, up, rm)
	}

	if len(gate.urls) != 1 || gate.urls[0] != "http://127.0.0.1:5000/health" {
		t.Errorf("promotion not gated on the live port. probed %v", gate.urls)
	}

	if live.Version != 4 {
		t.Errorf("wrong version. want 4, got %d", live.Version)
	}
	if live.AppContainerId != "app2" {
		t.Errorf("wrong app container. want app2, got %s", live.AppContainerId)
	}
	if live.ImageTag != staged.ImageTag {
		t.Errorf("wrong image tag. want %s, got %s", staged.ImageTag, live.ImageTag)
	}
	if live.DatabaseContainerId != "db1" {
		t.Errorf("wrong database container. got %s", live.DatabaseContainerId)
	}

	assertVolumeNeverRemoved(t, runner)
}

func TestPromoteFirstDeploy(t *testing.T) {
	fastTicks(t, time.Millisecond)

	config := testConfig(nil)
	logger, stop := testLogger(config.Deployment)
	defer stop()

	runner := newFakeRunner()
	runner.scriptOutput("ps -q app", "app2")

	installAppGate(t)

	deployer := NewDeployer(runner, config, logger, nil)

	staged := &StagedStack{
		Project:  config.ReleaseProject(),
		ImageTag: "gantry/shipyard:abc123abc123",
		App:      &models.StackState{Tier: models.TIER_APP, ContainerId: "app1", Status: models.TIER_HEALTHY},
		Database: &models.StackState{Tier: models.TIER_DATABASE, ContainerId: "db1", Status: models.TIER_HEALTHY},
	}

	live, err := deployer.Promote(staged)
	if err != nil {
		t.Fatalf("Promote failed: %s", err)
	}

	if staged.PriorStopped {
		t.Error("PriorStopped set without a previous release")
	}
	if runner.ran("docker stop") || runner.ran("docker rm") {
		t.Errorf("previous release commands ran on a first deploy. commands: %v", runner.commands)
	}
	if live.Version != 1 {
		t.Errorf("wrong version. want 1, got %d", live.Version)
	}
}

func TestPromoteGateFailure(t *testing.T) {
	fastTicks(t, time.Millisecond)

	prior := &models.LiveStack{
		Version:        3,
		ImageTag:       "gantry/shipyard:oldsha000000",
		Project:        "shipyard-app-oldsha000000",
		AppContainerId: "oldapp",
	}

	config := testConfig(prior)
	logger, stop := testLogger(config.Deployment)
	defer stop()

	runner := newFakeRunner()
	runner.scriptOutput("ps -q app", "app2")

	installAppGate(t, failingProbe(1000))

	deployer := NewDeployer(runner, config, logger, nil)

	staged := &StagedStack{
		Project:  config.ReleaseProject(),
		ImageTag: "gantry/shipyard:abc123abc123",
		App:      &models.StackState{Tier: models.TIER_APP, ContainerId: "app1", Status: models.TIER_HEALTHY},
		Database: &models.StackState{Tier: models.TIER_DATABASE, ContainerId: "db1", Status: models.TIER_HEALTHY},
	}

	live, err := deployer.Promote(staged)
	if err == nil {
		t.Fatal("Promote did not fail")
	}
	if live != nil {
		t.Errorf("live stack returned for a failed promotion: %+v", live)
	}

	if !staged.PriorStopped {
		t.Error("PriorStopped not set although the previous container was stopped")
	}
	if staged.App.Status != models.TIER_UNHEALTHY {
		t.Errorf("app state not unhealthy. got %s", staged.App.Status)
	}
	if runner.ran("docker rm 'oldapp'") {
		t.Errorf("previous container removed although the gate failed. commands: %v", runner.commands)
	}
}

func TestDiscard(t *testing.T) {
	config := testConfig(nil)
	logger, stop := testLogger(config.Deployment)
	defer stop()

	runner := newFakeRunner()
	deployer := NewDeployer(runner, config, logger, nil)

	staged := &StagedStack{
		Project:  config.ReleaseProject(),
		ImageTag: "gantry/shipyard:abc123abc123",
		App:      &models.StackState{Tier: models.TIER_APP, ContainerId: "app1", Status: models.TIER_UNHEALTHY},
		Database: &models.StackState{Tier: models.TIER_DATABASE, ContainerId: "db1", Status: models.TIER_HEALTHY},
	}

	deployer.Discard(staged)

	if !runner.ran("docker rm -f 'shipyard-app-abc123abc123'") {
		t.Errorf("staged app container not removed. commands: %v", runner.commands)
	}
	if staged.App.Status != models.TIER_STOPPED {
		t.Errorf("app state not stopped. got %s", staged.App.Status)
	}

	if runner.ran("'db1'") || runner.ran("shipyard-database") {
		t.Errorf("database tier touched by discard. commands: %v", runner.commands)
	}
	assertVolumeNeverRemoved(t, runner)
}

func TestDiscardNothingStaged(t *testing.T) {
	config := testConfig(nil)
	logger, stop := testLogger(config.Deployment)
	defer stop()

	runner := newFakeRunner()
	deployer := NewDeployer(runner, config, logger, nil)

	deployer.Discard(nil)
	deployer.Discard(&StagedStack{})

	if len(runner.commands) != 0 {
		t.Errorf("commands ran with nothing staged: %v", runner.commands)
	}
}
