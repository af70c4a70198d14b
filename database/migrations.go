package database

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationFiles lists the embedded migration file names in apply order.
func MigrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	return names, nil
}

// MigrationsTempDir writes the embedded migrations into a new temporary directory so that
// golang-migrate's file source can read them without shipping the sql files next to the binary.
//
// The caller removes the directory when done.
func MigrationsTempDir() (string, error) {
	names, err := MigrationFiles()
	if err != nil {
		return "", err
	}

	tmpDir, err := os.MkdirTemp("", "xeyes-migrations-*")
	if err != nil {
		return "", err
	}

	for _, name := range names {
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			os.RemoveAll(tmpDir)
			return "", err
		}

		dst := filepath.Join(tmpDir, name)
		if err := os.WriteFile(dst, content, 0600); err != nil {
			os.RemoveAll(tmpDir)
			return "", fmt.Errorf("failed to write migration %q: %w", dst, err)
		}
	}

	return tmpDir, nil
}
