package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clustersched/logstorage/pkg/schema"
)

// writeSnapshotFile dumps snap as indented JSON under dir for human
// inspection, independent of the inline snapshot record the engine already
// appended to the log. It writes to a temp file, then os.Rename into place
// so a reader never observes a partially written file.
func writeSnapshotFile(dir string, snap schema.Snapshot) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cli: create snapshot export dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("cli: marshal snapshot export: %w", err)
	}

	finalPath := filepath.Join(dir, fmt.Sprintf("snapshot-%d.json", time.Now().UnixMilli()))
	tmpPath := finalPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("cli: write temp snapshot export: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cli: rename snapshot export into place: %w", err)
	}
	return nil
}
