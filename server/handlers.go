package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/gantry/gantry/deploy"
	"github.com/gantry/gantry/models"
)

func homeHandler(w http.ResponseWriter, r *http.Request) {
	renderTemplate(w, "home.tmpl", map[string]interface{}{
		"Applications": config.Applications,
	})
}

func applicationHandler(w http.ResponseWriter, r *http.Request, application *models.Application) {
	deployments, err := getRecentApplicationDeployments(db, application)
	if err != nil {
		log.Println("error loading deployments", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stacks := map[string]*models.LiveStack{}
	for _, target := range application.Targets {
		stack, err := getLiveStack(db, application.Name, target.Name)
		if err != nil {
			log.Println("error loading live stack", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if stack != nil {
			stacks[target.Name] = stack
		}
	}

	renderTemplate(w, "application.tmpl", map[string]interface{}{
		"Applications": config.Applications,
		"Application":  application,
		"Deployments":  deployments,
		"LiveStacks":   stacks,
	})
}

// createDeploymentHandler accepts a manual deployment request and starts
// its pipeline. The client is redirected to the deployment page, where the
// log websocket picks up the running deployment.
func createDeploymentHandler(w http.ResponseWriter, r *http.Request, application *models.Application) {
	target := application.FindTarget(r.FormValue("target"))
	if target == nil {
		http.Error(w, "target not found", http.StatusNotFound)
		return
	}

	commitSha := r.FormValue("commitsha")
	if !isValidCommitSha(commitSha) {
		http.Error(w, "invalid commit sha", 422)
		return
	}

	deployment := &models.Deployment{
		CommitSha:       commitSha,
		Branch:          r.FormValue("branch"),
		TriggerSource:   models.TRIGGER_MANUAL,
		Comment:         r.FormValue("comment"),
		ApplicationName: application.Name,
		TargetName:      target.Name,
	}

	err := launchDeployment(db, deployment, application, target)
	switch {
	case errors.Is(err, ErrDeployInProgress):
		http.Error(w, err.Error(), 422)
		return
	case errors.Is(err, ErrDuplicateDeployment):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		log.Println("could not launch deployment", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, deploymentPath(application, deployment), http.StatusSeeOther)
}

func killDeploymentHandler(w http.ResponseWriter, r *http.Request, application *models.Application) {
	id, err := deploymentId(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	if err := killRegistry.Kill(id); err != nil {
		http.Error(w, err.Error(), 422)
		return
	}

	fmt.Fprintln(w, "kill signal sent")
}

func listDeploymentsHandler(w http.ResponseWriter, r *http.Request, application *models.Application) {
	limit := 25
	if param := r.URL.Query().Get("limit"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid limit", 422)
			return
		}
		limit = parsed
	}

	deployments, err := getApplicationDeployments(db, application, limit)
	if err != nil {
		log.Println("error loading deployments", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, deployments)
}

func deploymentHandler(w http.ResponseWriter, r *http.Request, application *models.Application) {
	deployment, err := loadDeployment(w, r)
	if deployment == nil {
		if err != nil {
			log.Println("error loading deployment", err)
		}
		return
	}

	logEntries, err := getDeploymentLogEntries(db, deployment)
	if err != nil {
		log.Println("error loading log entries", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	artifact, err := getDeploymentBuildArtifact(db, deployment.Id)
	if err != nil {
		log.Println("error loading build artifact", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	renderTemplate(w, "deployment.tmpl", map[string]interface{}{
		"Applications": config.Applications,
		"Application":  application,
		"Deployment":   deployment,
		"LogEntries":   logEntries,
		"Artifact":     artifact,
	})
}

// deploymentWsHandler streams the log of a deployment over a websocket. A
// running deployment is tailed live through the log router; a finished one
// is replayed from the database.
func deploymentWsHandler(w http.ResponseWriter, r *http.Request, application *models.Application) {
	deployment, err := loadDeployment(w, r)
	if deployment == nil {
		if err != nil {
			log.Println("error loading deployment", err)
		}
		return
	}

	upgrader := &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("error upgrading the connection to websocket", err)
		return
	}

	go keepWsAlive(ws)

	doneStreaming := make(chan struct{})

	err = logRouter.Subscribe(deployment.Id, makeWebsocketListener(ws, doneStreaming))
	if err == deploy.ErrNoDeployment {
		logEntries, err := getDeploymentLogEntries(db, deployment)
		if err != nil {
			log.Println("error loading log entries", err)
			ws.Close()
			return
		}

		go streamLogEntries(ws, doneStreaming, logEntries)
	}

	<-doneStreaming
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	ws.WriteMessage(websocket.CloseMessage, closeMsg)
	ws.Close()
}

// stackHandler reports which release is live on a target.
func stackHandler(w http.ResponseWriter, r *http.Request, application *models.Application) {
	target := application.FindTarget(r.URL.Query().Get("target"))
	if target == nil {
		http.Error(w, "target not found", http.StatusNotFound)
		return
	}

	stack, err := getLiveStack(db, application.Name, target.Name)
	if err != nil {
		log.Println("error loading live stack", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if stack == nil {
		http.Error(w, "nothing deployed to this target yet", http.StatusNotFound)
		return
	}

	writeJSON(w, stack)
}

func branchesHandler(w http.ResponseWriter, r *http.Request, application *models.Application) {
	branches, err := github.GetBranches(application)
	if err != nil {
		log.Println("error loading branches", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, branches)
}

func loadDeployment(w http.ResponseWriter, r *http.Request) (*models.Deployment, error) {
	id, err := deploymentId(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, nil
	}

	deployment, err := getDeployment(db, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, err
	}
	if deployment == nil {
		http.Error(w, "deployment not found", http.StatusNotFound)
		return nil, nil
	}

	return deployment, nil
}

func deploymentId(r *http.Request) (int, error) {
	vars := mux.Vars(r)

	id, err := strconv.Atoi(vars["deploymentId"])
	if err != nil {
		return 0, fmt.Errorf("invalid deployment id %q", vars["deploymentId"])
	}

	return id, nil
}

func deploymentPath(a *models.Application, d *models.Deployment) string {
	return fmt.Sprintf("/%s/deployments/%d", a.Name, d.Id)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}

func makeWebsocketListener(ws *websocket.Conn, done chan struct{}) deploy.Listener {
	return func(logs <-chan deploy.LogEntry) {
		defer func() {
			done <- struct{}{}
		}()
		for entry := range logs {
			err := ws.WriteJSON(entry)
			if err != nil {
				log.Printf("error writing to websocket: %s. (remote address=%s)\n", err, ws.RemoteAddr())
				return
			}
		}
	}
}

func streamLogEntries(ws *websocket.Conn, done chan struct{}, logs []*deploy.LogEntry) {
	defer func() {
		done <- struct{}{}
	}()
	for _, entry := range logs {
		err := ws.WriteJSON(entry)
		if err != nil {
			return
		}
	}
}

func isValidCommitSha(sha string) bool {
	validSha := regexp.MustCompile(`^[0-9a-f]{40}$`)

	return validSha.MatchString(sha)
}

func keepWsAlive(ws *websocket.Conn) {
	// Read and discard incoming frames so the websocket's ping/pong
	// control messages keep being processed.
	for {
		_, _, err := ws.NextReader()
		if err != nil {
			ws.Close()
			break
		}
	}
}
