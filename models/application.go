package models

import "fmt"

type Application struct {
	Name          string    `json:"name"`
	GitHubOwner   string    `json:"github_owner"`
	GitHubRepo    string    `json:"github_repo"`
	TrackedBranch string    `json:"tracked_branch"`
	Targets       []*Target `json:"targets"`
}

func (a *Application) RepositoryURL() string {
	return fmt.Sprintf("git@github.com:%s/%s.git", a.GitHubOwner, a.GitHubRepo)
}

func (a *Application) GitHubFullName() string {
	return fmt.Sprintf("%s/%s", a.GitHubOwner, a.GitHubRepo)
}

func (a *Application) FindTarget(name string) *Target {
	for _, target := range a.Targets {
		if target.Name == name {
			return target
		}
	}
	return nil
}

func (a *Application) Normalize() {
	if a.TrackedBranch == "" {
		a.TrackedBranch = "main"
	}
	for _, target := range a.Targets {
		if target.Stack == nil {
			target.Stack = &Stack{}
		}
		target.Stack.normalize(a.Name)
	}
}
