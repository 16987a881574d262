package deploy

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gantry/gantry/models"
)

// probeTick is the unit behind a HealthPolicy's interval/timeout/grace
// seconds. Tests shrink it.
var probeTick = time.Second

// newAppProbe builds the HTTP gate for an app container. Tests swap it out.
var newAppProbe = func(url string, timeout time.Duration) Probe {
	return NewHTTPProbe(url, timeout)
}

// HealthTimeoutError means a tier exhausted its retry budget without ever
// probing healthy. It aborts the deployment and hands control to rollback
// handling; it is not an error in the probe itself.
type HealthTimeoutError struct {
	Tier     models.TierName
	Attempts int
	Elapsed  time.Duration
}

func (e *HealthTimeoutError) Error() string {
	return fmt.Sprintf("%s tier not healthy after %d probes (%s)", e.Tier, e.Attempts, e.Elapsed)
}

type Probe interface {
	Check() error
	Describe() string
}

// ContainerProbe reads the health status the container engine derived from
// the manifest-declared healthcheck.
type ContainerProbe struct {
	runner      Runner
	containerId string
}

func NewContainerProbe(runner Runner, containerId string) *ContainerProbe {
	return &ContainerProbe{runner: runner, containerId: containerId}
}

func (p *ContainerProbe) Describe() string {
	return fmt.Sprintf("container %s health status", models.ShortSha(p.containerId))
}

func (p *ContainerProbe) Check() error {
	cmd := fmt.Sprintf("docker inspect --format '{{.State.Status}} {{if .State.Health}}{{.State.Health.Status}}{{end}}' %s",
		shellQuote(p.containerId))
	out, err := p.runner.Output(cmd)
	if err != nil {
		return fmt.Errorf("docker inspect failed: %s", err)
	}

	fields := strings.Fields(out)
	if len(fields) == 0 {
		return fmt.Errorf("docker inspect returned no state")
	}
	if fields[0] != "running" {
		return fmt.Errorf("container is %s", fields[0])
	}
	if len(fields) < 2 {
		return fmt.Errorf("container has no health status")
	}

	switch fields[1] {
	case "healthy":
		return nil
	case "starting":
		return fmt.Errorf("healthcheck still starting")
	default:
		return fmt.Errorf("container is %s", fields[1])
	}
}

// HTTPProbe checks a tier end to end: through the published host port, the
// way traffic reaches it.
type HTTPProbe struct {
	URL    string
	client *http.Client
}

func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		URL:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProbe) Describe() string {
	return fmt.Sprintf("GET %s", p.URL)
}

func (p *HTTPProbe) Check() error {
	resp, err := p.client.Get(p.URL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s returned %d", p.URL, resp.StatusCode)
	}
	return nil
}

// WaitHealthy blocks until the probe succeeds, the retry budget is spent, or
// the deployment is killed. Probes run at the policy interval; failures
// inside the start period do not count against the budget.
func WaitHealthy(tier models.TierName, probe Probe, policy *models.HealthPolicy, kill <-chan struct{}, logger *DeploymentLogger) error {
	interval := time.Duration(policy.Interval) * probeTick
	grace := time.Duration(policy.StartPeriod) * probeTick

	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	polls := 0
	attempts := 0

	for {
		select {
		case <-ticker.C:
			polls++
			err := probe.Check()
			if err == nil {
				logger.LogTierHealthy(tier, polls)
				return nil
			}

			if time.Since(start) < grace {
				continue
			}

			attempts++
			logger.LogStageResult(fmt.Sprintf("%s not healthy (%d/%d): %s", probe.Describe(), attempts, policy.Retries, err))
			if attempts >= policy.Retries {
				logger.LogTierUnhealthy(tier, attempts)
				return &HealthTimeoutError{Tier: tier, Attempts: attempts, Elapsed: time.Since(start)}
			}
		case <-kill:
			logger.LogKillReceived()
			return ErrKilled
		}
	}
}
