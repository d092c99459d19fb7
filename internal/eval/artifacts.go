package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/open-access-policies/policy-crew/internal/config"
	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

// Artifact file names written under paths.results_dir.
const (
	MetricsFileName         = "metrics.json"
	EffectiveConfigJSONName = "effective_config.json"

	runLockFileName = ".run.lock"
)

// RunLock serializes artifact writers on one results directory. It is
// advisory and cross-process; evaluate and tune both take it before
// writing anything.
type RunLock struct {
	lock *flock.Flock
}

// AcquireRunLock takes the results-directory lock without blocking.
// A lock held by another process reports ErrCodeRunLockHeld.
func AcquireRunLock(resultsDir string) (*RunLock, error) {
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return nil, herrors.New(herrors.ErrCodeArtifactWrite,
			fmt.Sprintf("cannot create results directory %s", resultsDir), err)
	}

	lock := flock.New(filepath.Join(resultsDir, runLockFileName))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, herrors.New(herrors.ErrCodeRunLockHeld,
			fmt.Sprintf("cannot acquire run lock in %s", resultsDir), err)
	}
	if !acquired {
		return nil, herrors.Newf(herrors.ErrCodeRunLockHeld,
			"another run holds the lock in %s", resultsDir).
			WithSuggestion("Wait for the other run to finish or use a different results_dir")
	}
	return &RunLock{lock: lock}, nil
}

// Release drops the lock. Safe to call on an already released lock.
func (r *RunLock) Release() error {
	return r.lock.Unlock()
}

// Path returns the lock file path.
func (r *RunLock) Path() string {
	return r.lock.Path()
}

// WriteArtifacts persists the evaluation result and the effective
// configuration it was produced with.
func WriteArtifacts(resultsDir string, result *Result, cfg *config.Config) error {
	if err := WriteJSON(filepath.Join(resultsDir, MetricsFileName), result); err != nil {
		return err
	}
	return WriteJSON(filepath.Join(resultsDir, EffectiveConfigJSONName), cfg)
}

// WriteJSON writes v as indented JSON through a temp file and rename,
// so a reader never observes a partial artifact.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return herrors.New(herrors.ErrCodeArtifactWrite,
			fmt.Sprintf("cannot encode %s", filepath.Base(path)), err)
	}
	return WriteBytes(path, append(data, '\n'))
}

// WriteBytes writes raw artifact bytes atomically.
func WriteBytes(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return herrors.New(herrors.ErrCodeArtifactWrite,
			fmt.Sprintf("cannot create directory for %s", path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return herrors.New(herrors.ErrCodeArtifactWrite,
			fmt.Sprintf("cannot write %s", path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return herrors.New(herrors.ErrCodeArtifactWrite,
			fmt.Sprintf("cannot finalize %s", path), err)
	}
	return nil
}
