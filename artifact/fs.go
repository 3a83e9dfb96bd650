package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FileStore is an ArtifactStore writing one file per artifact below Root.
// Writes go through a temporary file and a rename, so readers never observe a
// partially written transcript.
type FileStore struct {
	root string
	perm fs.FileMode
}

// FileStoreOptions configures a FileStore.
type FileStoreOptions struct {
	// Perm is the mode of created files. Directories get Perm plus the
	// execute bits.
	Perm fs.FileMode
}

// NewFileStore creates a store rooted at root. The directory is created on
// first save.
func NewFileStore(root string, optFns ...func(o *FileStoreOptions)) *FileStore {
	opts := FileStoreOptions{Perm: 0o644}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &FileStore{root: root, perm: opts.Perm}
}

// Root returns the store directory.
func (s *FileStore) Root() string { return s.root }

// Path returns the file path of an artifact.
func (s *FileStore) Path(sessionID, artifactID string) (string, error) {
	if err := checkName(sessionID); err != nil {
		return "", err
	}
	if err := checkName(artifactID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, sessionID, artifactID), nil
}

// Save implements core.ArtifactStore.
func (s *FileStore) Save(sessionID, artifactID string, data []byte) error {
	path, err := s.Path(sessionID, artifactID)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.perm|0o111); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+artifactID+".*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Chmod(s.perm); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// Get implements core.ArtifactStore.
func (s *FileStore) Get(sessionID, artifactID string) ([]byte, error) {
	path, err := s.Path(sessionID, artifactID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// List implements core.ArtifactStore. Temporary files of in-flight saves are
// skipped.
func (s *FileStore) List(sessionID string) ([]string, error) {
	if err := checkName(sessionID); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	slices.Sort(ids)
	return ids, nil
}

// Delete implements core.ArtifactStore.
func (s *FileStore) Delete(sessionID, artifactID string) error {
	path, err := s.Path(sessionID, artifactID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
