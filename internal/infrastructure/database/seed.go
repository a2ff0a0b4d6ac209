package database

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// File permissions for seeded databases.
const (
	dirPermissions  = 0o750
	filePermissions = 0o600
)

// Seed copies the template database at src to dst unless dst already exists.
//
// Use it to ship an application with a prebuilt database that is copied
// into a writable location on first run. An existing dst is never
// overwritten.
//
// Parameters:
//   - src: Path to the template database
//   - dst: Path the application opens
//
// Returns:
//   - bool: true if dst was created
//   - error: If the copy fails
func Seed(src, dst string) (bool, error) {
	return SeedFS(os.DirFS(filepath.Dir(src)), filepath.Base(src), dst)
}

// SeedFS is Seed with the template read from fsys, such as an embed.FS.
func SeedFS(fsys fs.FS, name, dst string) (bool, error) {
	if _, err := os.Stat(dst); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking seed destination: %w", err)
	}

	in, err := fsys.Open(name)
	if err != nil {
		return false, fmt.Errorf("opening seed template: %w", err)
	}
	defer in.Close() //nolint:errcheck // Read-only file

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return false, fmt.Errorf("creating database directory: %w", err)
	}

	// Copy to a temporary file first so a failed copy never leaves a
	// truncated database at dst.
	tmp, err := os.CreateTemp(dir, filepath.Base(dst)+".seed-*")
	if err != nil {
		return false, fmt.Errorf("creating seed file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()        //nolint:errcheck // Best effort cleanup on error path
		os.Remove(tmpName) //nolint:errcheck // Best effort cleanup on error path
	}

	if _, err := io.Copy(tmp, in); err != nil {
		cleanup()
		return false, fmt.Errorf("copying seed template: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return false, fmt.Errorf("syncing seed file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // Best effort cleanup on error path
		return false, fmt.Errorf("closing seed file: %w", err)
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		os.Remove(tmpName) //nolint:errcheck // Best effort cleanup on error path
		return false, fmt.Errorf("setting seed file permissions: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName) //nolint:errcheck // Best effort cleanup on error path
		return false, fmt.Errorf("installing seed file: %w", err)
	}

	return true, nil
}
