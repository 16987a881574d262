package deploy

import (
	"errors"
	"fmt"
	"strings"
)

var ErrHostLocked = errors.New("another deployment holds the host lock")

// acquireHostLock creates the lock directory in the target workspace. mkdir
// is atomic, so two pipelines racing for the same host cannot both win, no
// matter which process they run in.
func acquireHostLock(r Runner, lockPath string) error {
	cmd := fmt.Sprintf("mkdir -p %s && mkdir %s", shellQuote(parentDir(lockPath)), shellQuote(lockPath))
	if err := r.Execute(cmd); err != nil {
		return ErrHostLocked
	}
	return nil
}

func releaseHostLock(r Runner, lockPath string) error {
	if !strings.HasSuffix(lockPath, ".gantry.lock") {
		return fmt.Errorf("refusing to remove %q: not a lock path", lockPath)
	}
	return r.Execute(fmt.Sprintf("rmdir %s", shellQuote(lockPath)))
}
