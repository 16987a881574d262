package deploy

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gantry/gantry/models"
)

// scriptedProbe fails with the scripted errors in order, then reports
// healthy.
type scriptedProbe struct {
	errs  []error
	calls int
}

func (p *scriptedProbe) Check() error {
	i := p.calls
	p.calls++
	if i < len(p.errs) {
		return p.errs[i]
	}
	return nil
}

func (p *scriptedProbe) Describe() string { return "scripted probe" }

func fastTicks(t *testing.T, d time.Duration) {
	old := probeTick
	probeTick = d
	t.Cleanup(func() { probeTick = old })
}

func TestWaitHealthy(t *testing.T) {
	fastTicks(t, time.Millisecond)

	config := testConfig(nil)
	logger, stop := testLogger(config.Deployment)
	defer stop()

	probe := &scriptedProbe{errs: []error{errors.New("refused"), errors.New("refused")}}
	policy := &models.HealthPolicy{Interval: 1, Timeout: 1, Retries: 12, StartPeriod: 0}

	err := WaitHealthy(models.TIER_APP, probe, policy, nil, logger)
	if err != nil {
		t.Fatalf("WaitHealthy failed: %s", err)
	}
	if probe.calls != 3 {
		t.Errorf("wrong number of probes. want 3, got %d", probe.calls)
	}
}

func TestWaitHealthyBudgetExhausted(t *testing.T) {
	fastTicks(t, time.Millisecond)

	config := testConfig(nil)
	logger, stop := testLogger(config.Deployment)
	defer stop()

	errs := make([]error, 20)
	for i := range errs {
		errs[i] = errors.New("refused")
	}
	probe := &scriptedProbe{errs: errs}
	policy := &models.HealthPolicy{Interval: 1, Timeout: 1, Retries: 3, StartPeriod: 0}

	err := WaitHealthy(models.TIER_APP, probe, policy, nil, logger)

	timeoutErr, ok := err.(*HealthTimeoutError)
	if !ok {
		t.Fatalf("wrong error type: %T (%v)", err, err)
	}
	if timeoutErr.Tier != models.TIER_APP {
		t.Errorf("wrong tier. want %s, got %s", models.TIER_APP, timeoutErr.Tier)
	}
	if timeoutErr.Attempts != 3 {
		t.Errorf("wrong attempt count. want 3, got %d", timeoutErr.Attempts)
	}
	if probe.calls != 3 {
		t.Errorf("probing continued past the budget. want 3 probes, got %d", probe.calls)
	}
}

func TestWaitHealthyStartPeriod(t *testing.T) {
	fastTicks(t, 20*time.Millisecond)

	config := testConfig(nil)
	logger, stop := testLogger(config.Deployment)
	defer stop()

	// two failures inside the start period with a budget of one: the wait
	// only succeeds if grace failures are not counted
	probe := &scriptedProbe{errs: []error{errors.New("refused"), errors.New("refused")}}
	policy := &models.HealthPolicy{Interval: 1, Timeout: 1, Retries: 1, StartPeriod: 10}

	err := WaitHealthy(models.TIER_DATABASE, probe, policy, nil, logger)
	if err != nil {
		t.Fatalf("WaitHealthy failed: %s", err)
	}
	if probe.calls != 3 {
		t.Errorf("wrong number of probes. want 3, got %d", probe.calls)
	}
}

func TestWaitHealthyKilled(t *testing.T) {
	fastTicks(t, time.Millisecond)

	config := testConfig(nil)
	logger, stop := testLogger(config.Deployment)
	defer stop()

	errs := make([]error, 10000)
	for i := range errs {
		errs[i] = errors.New("refused")
	}
	probe := &scriptedProbe{errs: errs}
	policy := &models.HealthPolicy{Interval: 1, Timeout: 1, Retries: 10000, StartPeriod: 0}

	kill := make(chan struct{})
	close(kill)

	err := WaitHealthy(models.TIER_APP, probe, policy, kill, logger)
	if err != ErrKilled {
		t.Errorf("wrong error. want %v, got %v", ErrKilled, err)
	}
}

func TestHTTPProbe(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	probe := NewHTTPProbe(server.URL+"/health", time.Second)

	if err := probe.Check(); err != nil {
		t.Errorf("probe failed against a healthy endpoint: %s", err)
	}

	status = http.StatusInternalServerError
	if err := probe.Check(); err == nil {
		t.Error("probe passed against a broken endpoint")
	}

	server.Close()
	if err := probe.Check(); err == nil {
		t.Error("probe passed against a dead endpoint")
	}
}

func TestContainerProbe(t *testing.T) {
	tests := []struct {
		inspect string
		healthy bool
		errPart string
	}{
		{"running healthy", true, ""},
		{"running starting", false, "starting"},
		{"running unhealthy", false, "unhealthy"},
		{"exited", false, "container is exited"},
		{"running", false, "no health status"},
	}

	for _, test := range tests {
		runner := newFakeRunner()
		runner.scriptOutput("docker inspect", test.inspect)

		probe := NewContainerProbe(runner, "0f5ab3cd91e2")

		err := probe.Check()
		if test.healthy {
			if err != nil {
				t.Errorf("inspect %q: probe failed: %s", test.inspect, err)
			}
			continue
		}
		if err == nil {
			t.Errorf("inspect %q: probe passed", test.inspect)
			continue
		}
		if !strings.Contains(err.Error(), test.errPart) {
			t.Errorf("inspect %q: wrong error: %s", test.inspect, err)
		}
	}
}

func TestContainerProbeInspectFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.failOn("docker inspect", errors.New("no such container"))

	probe := NewContainerProbe(runner, "0f5ab3cd91e2")

	if err := probe.Check(); err == nil {
		t.Error("probe passed although inspect failed")
	}
}
