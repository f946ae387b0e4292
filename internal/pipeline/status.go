package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
)

// ReadStatus loads the status record of the run in root. A missing record
// returns an error wrapping fs.ErrNotExist.
func ReadStatus(root string) (domain.RunStatus, error) {
	var st domain.RunStatus
	data, err := os.ReadFile(filepath.Join(root, domain.StatusFile))
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("decode %s: %w", domain.StatusFile, err)
	}
	return st, nil
}

// WriteStatus replaces the status record of the run in root atomically.
func WriteStatus(root string, st domain.RunStatus) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	tmp, err := os.CreateTemp(root, ".status-*.json")
	if err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(root, domain.StatusFile)); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}
