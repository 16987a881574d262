package deploy

import (
	"errors"
	"log"
	"sync"
	"time"
)

type LogEntryType string

type Listener func(<-chan LogEntry)

var ErrNoDeployment = errors.New("no deployment with this ID found")
var ErrTimeout = errors.New("sending to listener timed out")
var ListenerTimeout = 200 * time.Millisecond

const (
	COMMAND_STDOUT_OUTPUT LogEntryType = "COMMAND_STDOUT_OUTPUT"
	COMMAND_STDERR_OUTPUT LogEntryType = "COMMAND_STDERR_OUTPUT"
	COMMAND_START         LogEntryType = "COMMAND_START"
	COMMAND_FAIL          LogEntryType = "COMMAND_FAIL"
	COMMAND_SUCCESS       LogEntryType = "COMMAND_SUCCESS"
	STAGE_START           LogEntryType = "STAGE_START"
	STAGE_FAIL            LogEntryType = "STAGE_FAIL"
	STAGE_SUCCESS         LogEntryType = "STAGE_SUCCESS"
	STAGE_RESULT          LogEntryType = "STAGE_RESULT"
	TIER_STARTING         LogEntryType = "TIER_STARTING"
	TIER_HEALTHY          LogEntryType = "TIER_HEALTHY"
	TIER_UNHEALTHY        LogEntryType = "TIER_UNHEALTHY"
	DEPLOYMENT_START      LogEntryType = "DEPLOYMENT_START"
	DEPLOYMENT_SUCCESS    LogEntryType = "DEPLOYMENT_SUCCESS"
	DEPLOYMENT_FAIL       LogEntryType = "DEPLOYMENT_FAIL"
	DEPLOYMENT_ROLLBACK   LogEntryType = "DEPLOYMENT_ROLLBACK"
	KILL_RECEIVED         LogEntryType = "KILL_RECEIVED"
)

type LogEntry struct {
	Id           int          `json:"id"`
	Timestamp    time.Time    `json:"timestamp"`
	DeploymentId int          `json:"deployment_id"`
	Origin       string       `json:"origin"`
	EntryType    LogEntryType `json:"entry_type"`
	Message      string       `json:"message"`
}

type subscription struct {
	DeploymentId int
	Target       chan<- LogEntry
}

// LogRouter fans deployment log entries out to subscribed listeners. Every
// running deployment is announced to the router, every entry broadcast while
// it runs is kept in a backlog so late subscribers catch up, and Done tears
// the backlog and the listener channels down again.
//
// Subscribers that stop draining their channel are dropped after
// ListenerTimeout instead of stalling the stream for everybody else.
type LogRouter struct {
	// LogEntries sent here are routed to all matching subscriptions
	Broadcast chan LogEntry

	// The DeploymentId of a finished deployment, sent after the last
	// Broadcast, closes its subscriptions and deletes its backlog
	Done chan int

	subscribe chan subscription
	stop      chan struct{}

	// guards subscriptions, which Announce/Subscribe touch from other
	// goroutines
	mu            sync.Mutex
	subscriptions map[int][]subscription
	backlog       map[int][]LogEntry
}

func NewLogRouter() *LogRouter {
	return &LogRouter{
		Broadcast:     make(chan LogEntry),
		Done:          make(chan int),
		subscribe:     make(chan subscription),
		stop:          make(chan struct{}),
		subscriptions: make(map[int][]subscription),
		backlog:       make(map[int][]LogEntry),
	}
}

func (r *LogRouter) Start() {
	go func() {
		for {
			select {
			case sub := <-r.subscribe:
				if err := r.sendBacklog(sub); err != nil {
					log.Println("timeout when sending backlog, not adding subscription")
					close(sub.Target)
					continue
				}
				r.addSubscription(sub)
			case entry := <-r.Broadcast:
				r.saveLogEntry(entry)
				r.routeLogEntry(entry)
			case deploymentId := <-r.Done:
				r.deleteSubscriptions(deploymentId)
				r.deleteBacklog(deploymentId)
			case <-r.stop:
				return
			}
		}
	}()
}

func (r *LogRouter) Stop() {
	r.stop <- struct{}{}
}

// Announce registers a deployment id so listeners can subscribe to it before
// the first entry is broadcast.
func (r *LogRouter) Announce(deploymentId int) {
	r.mu.Lock()
	r.subscriptions[deploymentId] = []subscription{}
	r.mu.Unlock()
}

func (r *LogRouter) Subscribe(deploymentId int, l Listener) error {
	r.mu.Lock()
	_, announced := r.subscriptions[deploymentId]
	r.mu.Unlock()
	if !announced && deploymentId != 0 {
		return ErrNoDeployment
	}

	ch := make(chan LogEntry)
	r.subscribe <- subscription{Target: ch, DeploymentId: deploymentId}
	go l(ch)

	return nil
}

// SubscribeAll registers a listener for the entries of every deployment.
// Subscriptions under id 0 live until the router stops.
func (r *LogRouter) SubscribeAll(l Listener) {
	r.Subscribe(0, l)
}

func (r *LogRouter) addSubscription(sub subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := sub.DeploymentId
	r.subscriptions[id] = append(r.subscriptions[id], sub)
}

func (r *LogRouter) saveLogEntry(entry LogEntry) {
	id := entry.DeploymentId
	r.backlog[id] = append(r.backlog[id], entry)
}

func (r *LogRouter) sendBacklog(sub subscription) error {
	for _, entry := range r.backlog[sub.DeploymentId] {
		if err := r.sendWithTimeout(sub, entry); err != nil {
			return err
		}
	}
	return nil
}

func (r *LogRouter) routeLogEntry(entry LogEntry) {
	if entry.DeploymentId == 0 {
		log.Println("ERROR routing LogEntry: DeploymentId is 0")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.subscriptions[entry.DeploymentId] = r.sendToAll(r.subscriptions[entry.DeploymentId], entry)
	r.subscriptions[0] = r.sendToAll(r.subscriptions[0], entry)
}

// sendToAll delivers the entry to every subscription and returns the ones
// that kept up. Timed out subscriptions are closed and dropped.
func (r *LogRouter) sendToAll(subs []subscription, entry LogEntry) []subscription {
	kept := subs[:0]

	for _, sub := range subs {
		if err := r.sendWithTimeout(sub, entry); err != nil {
			log.Println("timeout when routing log entry, deleting subscription")
			close(sub.Target)
			continue
		}
		kept = append(kept, sub)
	}

	return kept
}

func (r *LogRouter) deleteSubscriptions(deploymentId int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subscriptions[deploymentId] {
		close(sub.Target)
	}
	delete(r.subscriptions, deploymentId)
}

func (r *LogRouter) deleteBacklog(deploymentId int) {
	delete(r.backlog, deploymentId)
}

func (r *LogRouter) sendWithTimeout(s subscription, entry LogEntry) error {
	select {
	case s.Target <- entry:
	case <-time.After(ListenerTimeout):
		return ErrTimeout
	}
	return nil
}
