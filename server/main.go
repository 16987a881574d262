package main

import (
	"flag"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"

	"github.com/gantry/gantry/deploy"
	"github.com/gantry/gantry/models"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

const VERSION = "0.3.0"

var (
	outputVersion         = flag.Bool("v", false, "output the version of gantry")
	configurationFilePath = flag.String("conf", "configuration.json", "path to configuration file")
	port                  = flag.String("port", ":8080", "port to listen on")
	databasePath          = flag.String("db", "./gantry.db", "path to sqlite3 database file")
	templatesPath         = flag.String("templates", "./assets/templates", "path to template files, embedded ones are used if missing")
)

var (
	logRouter    *deploy.LogRouter
	config       *Configuration
	db           *sql.DB
	templates    map[string]*template.Template
	killRegistry *KillRegistry
	eventHub     *DeploymentEventHub
	github       *GitHubClient
)

var templatesFiles = [][]string{
	{"layout.tmpl", "partials.tmpl", "home.tmpl"},
	{"layout.tmpl", "partials.tmpl", "application.tmpl"},
	{"layout.tmpl", "partials.tmpl", "deployment.tmpl"},
}

func main() {
	flag.Parse()

	if *outputVersion {
		fmt.Println(VERSION)
		return
	}

	var err error
	config, err = readConfiguration(*configurationFilePath)
	if err != nil {
		log.Fatal("could not read configuration: ", err)
	}

	templates, err = parseTemplates(templatesFS(*templatesPath), templatesFiles)
	if err != nil {
		log.Fatal("parsing templates failed: ", err)
	}

	db, err = sql.Open("sqlite3", *databasePath)
	if err != nil {
		log.Fatal("could not open sqlite3 database file: ", err)
	}
	defer db.Close()

	err = migrateDatabase(db)
	if err != nil {
		log.Fatal("migrating database failed: ", err)
	}

	// Deployments in state 'new'/'active' at boot are leftovers of a crash
	// with a pipeline running. Fail them so their targets accept
	// deployments again.
	err = failUnfinishedDeployments(db)
	if err != nil {
		log.Fatal("failing unfinished deployments failed: ", err)
	}

	killRegistry = NewKillRegistry()

	github = NewGitHubClient(config.GitHubApiToken)

	logRouter = deploy.NewLogRouter()
	defer logRouter.Stop()
	logRouter.Start()

	// Print the logs of all deployments to the server's stdout
	logRouter.SubscribeAll(deploy.ConsoleLogger)
	// Persist every log entry for later replay
	logRouter.SubscribeAll(newLogEntrySaver(db))

	terminalStates := []models.DeploymentState{
		models.DEPLOYMENT_SUCCESSFUL,
		models.DEPLOYMENT_FAILED,
		models.DEPLOYMENT_ROLLED_BACK,
	}

	eventHub = NewDeploymentEventHub(db)
	eventHub.Subscribe(terminalStates, NotifySlack)
	eventHub.Subscribe(terminalStates, NotifyWebhooks)
	eventHub.Subscribe(append([]models.DeploymentState{models.DEPLOYMENT_ACTIVE}, terminalStates...), NotifyGitHubStatus)

	watcher := NewSourceWatcher(db, github)
	watcher.Start()
	defer watcher.Stop()

	r := mux.NewRouter()

	r.HandleFunc("/hooks/github", githubEventHandler).Methods("POST")

	r.HandleFunc("/{application}/deployments", requireToken(applicationScoped(createDeploymentHandler))).Methods("POST")
	r.HandleFunc("/{application}/deployments", applicationScoped(listDeploymentsHandler)).Methods("GET")
	r.HandleFunc("/{application}/deployments/{deploymentId}", applicationScoped(deploymentHandler)).Methods("GET")
	r.HandleFunc("/{application}/deployments/{deploymentId}/log", applicationScoped(deploymentWsHandler)).Methods("GET")
	r.HandleFunc("/{application}/deployments/{deploymentId}/kill", requireToken(applicationScoped(killDeploymentHandler))).Methods("POST")
	r.HandleFunc("/{application}/stack", applicationScoped(stackHandler)).Methods("GET")
	r.HandleFunc("/{application}/branches", applicationScoped(branchesHandler)).Methods("GET")
	r.HandleFunc("/{application}", applicationScoped(applicationHandler)).Methods("GET")

	r.HandleFunc("/", homeHandler).Methods("GET")

	log.Printf("gantry %s listening on %s\n", VERSION, *port)
	err = http.ListenAndServe(*port, handlers.LoggingHandler(os.Stdout, r))
	if err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}
