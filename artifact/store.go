package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/hupe1980/dexgo/codec"
	"github.com/hupe1980/dexgo/internal/fs"
)

const tmpPrefix = ".tmp-"

var (
	// ErrNotFound is returned when no artifact exists under the requested
	// name. It aliases os.ErrNotExist so errors.Is works with either.
	ErrNotFound = os.ErrNotExist

	// ErrInvalidName is returned for names that cannot be stored as a single
	// file in the artifact directory.
	ErrInvalidName = errors.New("invalid artifact name")
)

// Store manages the artifact directory and atomic updates.
type Store struct {
	fs    fs.FileSystem
	dir   string
	codec codec.Codec
}

// NewStore creates a store rooted at dir, creating the directory if needed.
// A nil fsys selects the local filesystem, a nil c the default codec.
func NewStore(fsys fs.FileSystem, dir string, c codec.Codec) (*Store, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	if c == nil {
		c = codec.Default
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{fs: fsys, dir: dir, codec: c}, nil
}

// Dir returns the directory the store persists into.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

// Exists reports whether an artifact is present under name.
func (s *Store) Exists(name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	if _, err := s.fs.Stat(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Read returns the raw persisted bytes of the named artifact.
func (s *Store) Read(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	f, err := s.fs.OpenFile(s.path(name), os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact %q: %w", name, ErrNotFound)
		}
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

// ReadIndex reads and decodes the named artifact.
func (s *Store) ReadIndex(name string) (*Index, error) {
	data, err := s.Read(name)
	if err != nil {
		return nil, err
	}

	var ix Index
	if err := s.codec.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("decode artifact %q: %w", name, err)
	}

	return &ix, nil
}

// Write atomically persists ix under name, replacing any previous artifact.
func (s *Store) Write(name string, ix *Index) error {
	if err := validateName(name); err != nil {
		return err
	}

	data, err := s.codec.Marshal(ix)
	if err != nil {
		return fmt.Errorf("encode artifact %q: %w", name, err)
	}

	// Unique temp name in the same directory keeps concurrent writers off
	// each other's toes; the rename below is the commit point.
	tmpPath := filepath.Join(s.dir, tmpPrefix+name+"-"+uuid.NewString())

	f, err := s.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmpPath)
		return err
	}

	if err := s.fs.Rename(tmpPath, s.path(name)); err != nil {
		s.fs.Remove(tmpPath)
		return err
	}

	// Sync directory to persist the rename.
	return s.syncDir()
}

// Delete removes the named artifact. Deleting an absent artifact returns
// ErrNotFound.
func (s *Store) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	if err := s.fs.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("artifact %q: %w", name, ErrNotFound)
		}
		return err
	}

	return nil
}

// List returns the names of all persisted artifacts in sorted order.
// In-flight temp files are skipped.
func (s *Store) List() ([]string, error) {
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	return names, nil
}

func (s *Store) syncDir() error {
	f, err := s.fs.OpenFile(s.dir, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
