package deploy

import (
	"fmt"
	"sync"
	"time"

	"github.com/gantry/gantry/models"
)

const routerOrigin = "gantry"

type DeploymentLogger struct {
	deployment *models.Deployment
	router     *LogRouter

	// Buffered so logging never blocks the pipeline while the router
	// distributes entries.
	ch chan LogEntry

	// Incremented per queued LogEntry, decremented once the entry reached
	// the router. Flush() waits on it so no entry is lost when the
	// deployment finishes.
	wg sync.WaitGroup
}

func NewDeploymentLogger(d *models.Deployment, r *LogRouter) *DeploymentLogger {
	return &DeploymentLogger{
		deployment: d,
		router:     r,
		ch:         make(chan LogEntry, 100),
	}
}

func (l *DeploymentLogger) BroadcastLogs() {
	l.router.Announce(l.deployment.Id)

	go func() {
		for entry := range l.ch {
			entry.DeploymentId = l.deployment.Id
			l.router.Broadcast <- entry
			l.wg.Done()
		}
	}()
}

func (l *DeploymentLogger) Log(entry LogEntry) {
	l.wg.Add(1)
	l.ch <- entry
}

func (l *DeploymentLogger) Flush() {
	l.wg.Wait() // Wait for `ch` to drain
	close(l.ch)
	l.router.Done <- l.deployment.Id
}

func (l *DeploymentLogger) logf(origin string, t LogEntryType, format string, args ...interface{}) {
	l.Log(LogEntry{
		Origin:    origin,
		EntryType: t,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	})
}

func (l *DeploymentLogger) LogCmdStart(origin, cmd string) {
	l.logf(origin, COMMAND_START, "%s", cmd)
}

func (l *DeploymentLogger) LogCmdFail(origin, cmd string, err error) {
	l.logf(origin, COMMAND_FAIL, "cmd=%q, error=%q", cmd, err)
}

func (l *DeploymentLogger) LogCmdSuccess(origin, cmd string) {
	l.logf(origin, COMMAND_SUCCESS, "%q", cmd)
}

func (l *DeploymentLogger) LogOutput(origin string, t LogEntryType, line string) {
	l.Log(LogEntry{
		Origin:    origin,
		EntryType: t,
		Message:   line,
		Timestamp: time.Now(),
	})
}

func (l *DeploymentLogger) LogStageStart(stage models.DeploymentStage) {
	l.logf(routerOrigin, STAGE_START, "%s", stage)
}

func (l *DeploymentLogger) LogStageResult(msg string) {
	l.logf(routerOrigin, STAGE_RESULT, "%s", msg)
}

func (l *DeploymentLogger) LogStageFail(stage models.DeploymentStage) {
	l.logf(routerOrigin, STAGE_FAIL, "%s", stage)
}

func (l *DeploymentLogger) LogStageSuccess(stage models.DeploymentStage) {
	l.logf(routerOrigin, STAGE_SUCCESS, "%s", stage)
}

func (l *DeploymentLogger) LogTierStarting(tier models.TierName, containerId string) {
	l.logf(routerOrigin, TIER_STARTING, "tier=%s container=%s", tier, models.ShortSha(containerId))
}

func (l *DeploymentLogger) LogTierHealthy(tier models.TierName, polls int) {
	l.logf(routerOrigin, TIER_HEALTHY, "tier=%s healthy after %d polls", tier, polls)
}

func (l *DeploymentLogger) LogTierUnhealthy(tier models.TierName, attempts int) {
	l.logf(routerOrigin, TIER_UNHEALTHY, "tier=%s unhealthy after %d failed probes", tier, attempts)
}

func (l *DeploymentLogger) LogDeploymentStart() {
	l.logf(routerOrigin, DEPLOYMENT_START, "deployment_id=%d", l.deployment.Id)
}

func (l *DeploymentLogger) LogDeploymentSuccess() {
	l.logf(routerOrigin, DEPLOYMENT_SUCCESS, "deployment_id=%d", l.deployment.Id)
}

func (l *DeploymentLogger) LogDeploymentFail(err error) {
	l.logf(routerOrigin, DEPLOYMENT_FAIL, "deployment_id=%d, err=%s", l.deployment.Id, err)
}

func (l *DeploymentLogger) LogDeploymentRollback(reason string) {
	l.logf(routerOrigin, DEPLOYMENT_ROLLBACK, "deployment_id=%d, reason=%s", l.deployment.Id, reason)
}

func (l *DeploymentLogger) LogKillReceived() {
	l.logf(routerOrigin, KILL_RECEIVED, "deployment will be aborted")
}
