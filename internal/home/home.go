// Package home manages the caselight home directory layout.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the caselight home directory.
	DefaultDirName = ".caselight"

	// RegistryDirName holds the per-case document registries.
	RegistryDirName = "registry"

	// ScratchDirName holds per-job working areas.
	ScratchDirName = "scratch"

	// QdrantDirName holds the managed Qdrant container's storage.
	QdrantDirName = "qdrant"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the caselight home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.caselight).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// RegistryPath returns the path to the document registry directory.
func (d *Dir) RegistryPath() string {
	return filepath.Join(d.path, RegistryDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// QdrantDataPath returns the host path mounted into the managed Qdrant
// container.
func (d *Dir) QdrantDataPath() string {
	return filepath.Join(d.path, QdrantDirName)
}

// EnsureExists creates the home directory and subdirectories if they don't
// exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.RegistryPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(d.path, ScratchDirName), 0o755); err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	if err := os.MkdirAll(d.QdrantDataPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create qdrant data directory: %w", err)
	}
	return nil
}

// JobScratch is a per-job working area. The owning job registers Release as
// its single cleanup hook and calls it on terminal transition.
type JobScratch struct {
	path string
}

// NewJobScratch creates a working area for the given processing id.
func (d *Dir) NewJobScratch(processingID string) (*JobScratch, error) {
	path := filepath.Join(d.path, ScratchDirName, processingID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create job scratch: %w", err)
	}
	return &JobScratch{path: path}, nil
}

// Path returns the scratch directory path.
func (s *JobScratch) Path() string {
	return s.path
}

// Release removes the working area. Safe to call more than once.
func (s *JobScratch) Release() error {
	if s.path == "" {
		return nil
	}
	err := os.RemoveAll(s.path)
	s.path = ""
	return err
}
