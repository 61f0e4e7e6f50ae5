// Package sqlitepath locates the SQLite transcript database used by
// "classroom serve --storage sqlite".
package sqlitepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/classroom/pkg/dotdir"
)

// dbFile is the database file name created when no database exists yet.
const dbFile = "classroom.db"

// ResolveSQLitePath returns override when set, else the first existing
// database among the well known locations, else classroom.db inside the
// resolved .classroom/ directory (created when missing).
func ResolveSQLitePath(override, configDir string) (string, error) {
	if override = strings.TrimSpace(override); override != "" {
		return override, nil
	}

	for _, candidate := range sqliteCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	dir, err := dotdir.NewManager().EnsureTarget(configDir)
	if err != nil {
		return "", fmt.Errorf("resolving database directory: %w", err)
	}

	return filepath.Join(dir, dbFile), nil
}

func sqliteCandidates() []string {
	candidates := []string{
		dbFile,
		filepath.Join(".classroom", dbFile),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".classroom", dbFile))
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append([]string{filepath.Join(xdgHome, "classroom", dbFile)}, candidates...)
	}

	return candidates
}
