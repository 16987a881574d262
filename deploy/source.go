package deploy

import (
	"fmt"
)

// SourceFetchError wraps failures talking to the version control remote.
// Callers treat it as retriable: a later run against the same revision may
// succeed once the remote is reachable again.
type SourceFetchError struct {
	Repository string
	Err        error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetching source from %s failed: %s", e.Repository, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// SyncSource materializes the deployment's revision in the workspace source
// directory: clone on first use, then fetch and hard-checkout the exact SHA.
func (b *Builder) SyncSource() error {
	repoURL := b.config.Application.RepositoryURL()
	src := shellQuote(b.config.SourceDir())
	sha := b.config.Deployment.CommitSha

	clone := fmt.Sprintf("[ -d %s/.git ] || git clone %s %s", src, repoURL, src)
	if err := b.runner.Execute(clone); err != nil {
		return &SourceFetchError{Repository: repoURL, Err: err}
	}

	fetch := fmt.Sprintf("cd %s && git fetch --prune origin", src)
	if err := b.runner.Execute(fetch); err != nil {
		return &SourceFetchError{Repository: repoURL, Err: err}
	}

	checkout := fmt.Sprintf("cd %s && git checkout --force %s", src, sha)
	if err := b.runner.Execute(checkout); err != nil {
		return &SourceFetchError{Repository: repoURL, Err: err}
	}

	head, err := b.runner.Output(fmt.Sprintf("cd %s && git rev-parse HEAD", src))
	if err != nil {
		return &SourceFetchError{Repository: repoURL, Err: err}
	}
	if head != sha {
		err := fmt.Errorf("workspace is at %s, wanted %s", head, sha)
		return &SourceFetchError{Repository: repoURL, Err: err}
	}

	return nil
}
