package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/shipsure/shipsure/internal/faults"
	"github.com/shipsure/shipsure/pkg/types"
)

// ErrResultNotFound is returned when no persisted result exists for a job id
var ErrResultNotFound = errors.New("result not found")

const resultFilePrefix = "results_"

// ResultStore persists one JSON file per completed job, named
// deterministically from the job id, so results survive a process restart.
type ResultStore struct {
	dir string
}

// NewResultStore creates the store, making the directory if needed
func NewResultStore(dir string) (*ResultStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &faults.PersistenceError{Op: "create results dir", Err: err}
	}
	return &ResultStore{dir: dir}, nil
}

// Path returns the result file location for a job id
func (s *ResultStore) Path(jobID string) string {
	return filepath.Join(s.dir, resultFilePrefix+jobID+".json")
}

// Save writes the aggregate result durably. The write goes to a temp file
// first and is renamed into place so readers never observe a partial file.
func (s *ResultStore) Save(jobID string, result *types.AggregateResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return &faults.PersistenceError{Op: "marshal result", Err: err}
	}

	tmp := s.Path(jobID) + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &faults.PersistenceError{Op: "write result", Err: err}
	}
	if err := os.Rename(tmp, s.Path(jobID)); err != nil {
		_ = os.Remove(tmp)
		return &faults.PersistenceError{Op: "rename result", Err: err}
	}
	return nil
}

// Load reads a persisted result. Returns ErrResultNotFound when the job has
// no result file.
func (s *ResultStore) Load(jobID string) (*types.AggregateResult, error) {
	data, err := os.ReadFile(s.Path(jobID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, &faults.PersistenceError{Op: "read result", Err: err}
	}

	var result types.AggregateResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &faults.PersistenceError{Op: "decode result", Err: err}
	}
	return &result, nil
}

// Latest returns the job id of the most recently written result file,
// ordered by modification time. Convenience path for single-job deployments.
func (s *ResultStore) Latest() (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", &faults.PersistenceError{Op: "list results", Err: err}
	}

	var newest string
	var newestMod int64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, resultFilePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest = name
			newestMod = mod
		}
	}

	if newest == "" {
		return "", ErrResultNotFound
	}
	jobID := strings.TrimSuffix(strings.TrimPrefix(newest, resultFilePrefix), ".json")
	return jobID, nil
}

// String describes the store location, useful in log fields
func (s *ResultStore) String() string {
	return fmt.Sprintf("ResultStore(%s)", s.dir)
}
