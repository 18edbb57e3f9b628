package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"warptrace/config"
)

// writeTestFile is created and removed in every data directory at startup, so
// a bad mount or ownership problem fails the boot instead of the first upload.
const writeTestFile = ".warptrace_write_test"

// DataDirectories lists the directories the service writes to.
type DataDirectories struct {
	// DataDir is the base directory for everything WarpTrace persists.
	DataDir string
	// DatabaseDir holds the SQLite database file and its WAL sidecars.
	DatabaseDir string
	// LogDir holds the rotated log file. Empty when logging to stdout only.
	LogDir string
}

// DataDirectoriesFromConfig derives the writable directories from the
// resolved configuration.
func DataDirectoriesFromConfig(cfg *config.Config) DataDirectories {
	dirs := DataDirectories{
		DataDir:     cfg.GetDataDir(),
		DatabaseDir: filepath.Dir(cfg.GetSQLitePath()),
	}
	if cfg.Log.File != "" {
		dirs.LogDir = filepath.Dir(cfg.Log.File)
	}
	return dirs
}

// paths returns the unique non-empty directories, base first.
func (d DataDirectories) paths() []string {
	var out []string
	seen := make(map[string]bool)
	for _, dir := range []string{d.DataDir, d.DatabaseDir, d.LogDir} {
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true
		out = append(out, dir)
	}
	return out
}

// EnsureDataDirectories creates every data directory and proves each one is
// writable with a probe file.
func EnsureDataDirectories(dirs DataDirectories) error {
	for _, dir := range dirs.paths() {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("cannot resolve data directory %s: %w", dir, err)
		}

		if err := os.MkdirAll(abs, 0o755); err != nil {
			return fmt.Errorf("cannot create data directory %s: %w (check the parent directory's ownership, or point WARPTRACE_DATA_DIR at a writable location)", abs, err)
		}

		probe := filepath.Join(abs, writeTestFile)
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			return fmt.Errorf("data directory %s is not writable: %w (check ownership and mount options, or point WARPTRACE_DATA_DIR at a writable location)", abs, err)
		}
		if err := os.Remove(probe); err != nil {
			return fmt.Errorf("cannot remove write probe in %s: %w", abs, err)
		}
	}
	return nil
}

// ClassifyConnectionError turns a dial failure into remediation advice for
// the operator. The returned text is printed as-is, not wrapped into an error.
func ClassifyConnectionError(err error, addr string) string {
	if err == nil {
		return ""
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Sprintf("connection to %s timed out: check that the host is reachable and the port is not firewalled", addr)
	case errors.Is(err, syscall.ECONNREFUSED) || hasAny(err, "connection refused"):
		return fmt.Sprintf("nothing is listening at %s: check that the service is running and that the configured address matches it", addr)
	case hasAny(err, "no such host"):
		return fmt.Sprintf("cannot resolve the host in %s: check the hostname and DNS from this machine", addr)
	case hasAny(err, "authentication failed", "access denied", "invalid password", "wrongpass", "code: 516"):
		return fmt.Sprintf("%s rejected the credentials: check the configured username and password", addr)
	}
	return err.Error()
}

// ClassifySQLiteError maps common SQLite failures to remediation advice.
func ClassifySQLiteError(err error, path string) string {
	if err == nil {
		return ""
	}

	switch {
	case hasAny(err, "permission denied"):
		return fmt.Sprintf("no permission to open %s: check the file and directory ownership against the user running warptrace", path)
	case hasAny(err, "database is locked", "locking protocol"):
		return fmt.Sprintf("%s is locked: another warptrace process is probably using it", path)
	case hasAny(err, "disk full", "database or disk is full", "disk i/o error"):
		return fmt.Sprintf("cannot write %s: the disk is full or failing", path)
	case hasAny(err, "file is not a database", "malformed"):
		return fmt.Sprintf("%s is corrupt or not a SQLite database: restore it from a backup or remove it to start fresh", path)
	case hasAny(err, "read-only", "readonly database"):
		return fmt.Sprintf("%s is read-only: check the mount options and file permissions", path)
	case hasAny(err, "no such file", "unable to open database file"):
		return fmt.Sprintf("cannot open %s: the directory does not exist or is not accessible", path)
	}
	return err.Error()
}

// hasAny reports whether the error text contains any of the fragments,
// case-insensitively. Fragments must be lowercase.
func hasAny(err error, fragments ...string) bool {
	msg := strings.ToLower(err.Error())
	for _, fragment := range fragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
