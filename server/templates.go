package main

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gantry/gantry/models"
)

//go:embed assets/templates
var embeddedAssets embed.FS

// templatesFS serves templates from dir when it exists, which is handy
// while editing them, and falls back to the files embedded in the binary.
func templatesFS(dir string) fs.FS {
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return os.DirFS(dir)
	}

	sub, err := fs.Sub(embeddedAssets, "assets/templates")
	if err != nil {
		log.Fatal(err)
	}
	return sub
}

func fmtCommit(d *models.Deployment) template.HTML {
	sha := template.HTMLEscapeString(d.ShortSha())

	if d.Branch == "" {
		return template.HTML("<code>" + sha + "</code>")
	}
	return template.HTML("<code>" + sha + " (" + template.HTMLEscapeString(d.Branch) + ")</code>")
}

func fmtDeploymentState(state models.DeploymentState) template.HTML {
	var s string

	switch state {
	case models.DEPLOYMENT_NEW:
		s = `<span data-attr="state-info" class="label label-primary">New</span>`
	case models.DEPLOYMENT_ACTIVE:
		s = `<span data-attr="state-info" class="label label-info">Active</span>`
	case models.DEPLOYMENT_SUCCESSFUL:
		s = `<span data-attr="state-info" class="label label-success">Successful</span>`
	case models.DEPLOYMENT_FAILED:
		s = `<span data-attr="state-info" class="label label-danger">Failed</span>`
	case models.DEPLOYMENT_ROLLED_BACK:
		s = `<span data-attr="state-info" class="label label-warning">Rolled back</span>`
	}

	return template.HTML(s)
}

func fmtTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func newlineToBreak(input string) template.HTML {
	output := template.HTMLEscapeString(input)
	return template.HTML(strings.Replace(output, "\n", "\n<br/>", -1))
}

func renderTemplate(w http.ResponseWriter, name string, data map[string]interface{}) {
	tmpl := templates[name]
	if tmpl == nil {
		log.Printf("template %s not found\n", name)
		return
	}

	err := tmpl.Execute(w, data)
	if err != nil {
		log.Printf("rendering %s failed: %s\n", name, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseTemplates(fsys fs.FS, templateSets [][]string) (map[string]*template.Template, error) {
	parsed := map[string]*template.Template{}

	for _, set := range templateSets {
		templateName := set[len(set)-1]
		t := template.New(templateName)

		t.Funcs(template.FuncMap{
			"fmtCommit":          fmtCommit,
			"fmtDeploymentState": fmtDeploymentState,
			"fmtTime":            fmtTime,
			"newlineToBreak":     newlineToBreak,
		})

		_, err := t.ParseFS(fsys, set...)
		if err != nil {
			return nil, err
		}

		t = t.Lookup("layout")
		if t == nil {
			return nil, fmt.Errorf("layout not found in %v", set)
		}
		parsed[templateName] = t
	}

	return parsed, nil
}
