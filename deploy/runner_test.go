package deploy

import (
	"strings"
	"sync"
	"testing"

	"github.com/gantry/gantry/models"
)

// fakeRunner stands in for a target host. It records every command and
// serves scripted responses matched by substring.
type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	outputs  map[string][]string
	failures map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs:  make(map[string][]string),
		failures: make(map[string]error),
	}
}

// scriptOutput queues Output results for commands containing substr. Results
// are consumed in order, one per call.
func (r *fakeRunner) scriptOutput(substr string, outputs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[substr] = append(r.outputs[substr], outputs...)
}

func (r *fakeRunner) failOn(substr string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[substr] = err
}

func (r *fakeRunner) Execute(cmd string) error {
	r.record(cmd)
	return r.errorFor(cmd)
}

func (r *fakeRunner) Output(cmd string) (string, error) {
	r.record(cmd)
	if err := r.errorFor(cmd); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for substr, queue := range r.outputs {
		if strings.Contains(cmd, substr) && len(queue) > 0 {
			out := queue[0]
			r.outputs[substr] = queue[1:]
			return out, nil
		}
	}
	return "", nil
}

func (r *fakeRunner) Origin() string { return "fake" }

func (r *fakeRunner) Close() error { return nil }

func (r *fakeRunner) record(cmd string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
}

func (r *fakeRunner) errorFor(cmd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for substr, err := range r.failures {
		if strings.Contains(cmd, substr) {
			return err
		}
	}
	return nil
}

func (r *fakeRunner) ran(substr string) bool {
	return r.commandIndex(substr) >= 0
}

// commandIndex returns the position of the first command containing substr,
// or -1.
func (r *fakeRunner) commandIndex(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cmd := range r.commands {
		if strings.Contains(cmd, substr) {
			return i
		}
	}
	return -1
}

// testConfig builds a deployment of the shipyard application against a local
// target, with the stack defaults filled in.
func testConfig(prior *models.LiveStack) *models.DeploymentConfig {
	app := &models.Application{
		Name:          "shipyard",
		GitHubOwner:   "gantry",
		GitHubRepo:    "shipyard",
		TrackedBranch: "main",
		Targets: []*models.Target{
			{Name: "production", Workspace: "/srv/gantry/shipyard"},
		},
	}
	app.Normalize()
	target := app.Targets[0]

	deployment := &models.Deployment{
		Id:              7,
		CommitSha:       "abc123abc123abc123abc123abc123abc123abc1",
		Branch:          "main",
		TriggerSource:   models.TRIGGER_MANUAL,
		State:           models.DEPLOYMENT_ACTIVE,
		ApplicationName: app.Name,
		TargetName:      target.Name,
	}

	return models.NewDeploymentConfig(deployment, app, target, prior)
}

// testLogger wires a DeploymentLogger to a running router with no
// subscribers. The returned stop function flushes the logger and stops the
// router.
func testLogger(d *models.Deployment) (*DeploymentLogger, func()) {
	router := NewLogRouter()
	router.Start()

	logger := NewDeploymentLogger(d, router)
	logger.BroadcastLogs()

	return logger, func() {
		logger.Flush()
		router.Stop()
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"with space", "'with space'"},
		{"o'brien", `'o'\''brien'`},
		{"$HOME", "'$HOME'"},
	}

	for _, test := range tests {
		if got := shellQuote(test.in); got != test.want {
			t.Errorf("shellQuote(%q): want %s, got %s", test.in, test.want, got)
		}
	}
}

func TestParentDir(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/srv/gantry/shipyard/manifests/app.yml", "/srv/gantry/shipyard/manifests"},
		{"/app.yml", "/"},
		{"app.yml", "/"},
	}

	for _, test := range tests {
		if got := parentDir(test.in); got != test.want {
			t.Errorf("parentDir(%q): want %q, got %q", test.in, test.want, got)
		}
	}
}

func TestWriteFile(t *testing.T) {
	runner := newFakeRunner()

	err := writeFile(runner, "/srv/gantry/shipyard/manifests/app.yml", "services:\n  app:\n")
	if err != nil {
		t.Fatalf("writeFile failed: %s", err)
	}

	if len(runner.commands) != 1 {
		t.Fatalf("want 1 command, got %d", len(runner.commands))
	}

	cmd := runner.commands[0]
	if !strings.Contains(cmd, "mkdir -p '/srv/gantry/shipyard/manifests'") {
		t.Errorf("command does not create the parent directory: %s", cmd)
	}
	if !strings.Contains(cmd, "cat > '/srv/gantry/shipyard/manifests/app.yml'") {
		t.Errorf("command does not write the manifest path: %s", cmd)
	}
	if !strings.Contains(cmd, "services:\n  app:\n"+heredocDelimiter) {
		t.Errorf("command does not carry the content: %s", cmd)
	}
}

func TestWriteFileAppendsTrailingNewline(t *testing.T) {
	runner := newFakeRunner()

	err := writeFile(runner, "/tmp/file", "no newline")
	if err != nil {
		t.Fatalf("writeFile failed: %s", err)
	}

	if !strings.Contains(runner.commands[0], "no newline\n"+heredocDelimiter) {
		t.Errorf("content not terminated before the delimiter: %s", runner.commands[0])
	}
}
