package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Scratch layout, recreated by Reset.
const (
	VideosDir = "videos"
	AudioDir  = "audio"
	OutputDir = "output"
)

// ErrUnsafeDir is returned when the scratch root would wipe a filesystem root.
var ErrUnsafeDir = errors.New("refusing to use filesystem root as scratch directory")

// LocalStorage implements Scratch on local disk.
type LocalStorage struct {
	dir string
}

// NewLocalStorage creates the scratch root and its layout.
// If dir is empty, a reelforge directory under os.TempDir() is used.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "reelforge")
	}
	dir = filepath.Clean(dir)
	if dir == filepath.Dir(dir) {
		return nil, fmt.Errorf("%w: %s", ErrUnsafeDir, dir)
	}

	s := &LocalStorage{dir: dir}
	if err := s.mkdirs(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the scratch root.
func (s *LocalStorage) Dir() string {
	return s.dir
}

// Path joins parts under the scratch root.
func (s *LocalStorage) Path(parts ...string) string {
	return filepath.Join(append([]string{s.dir}, parts...)...)
}

// Reset deletes the scratch root and recreates it empty.
func (s *LocalStorage) Reset(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove scratch directory: %w", err)
	}
	return s.mkdirs()
}

func (s *LocalStorage) mkdirs() error {
	for _, sub := range []string{VideosDir, AudioDir, OutputDir} {
		if err := os.MkdirAll(filepath.Join(s.dir, sub), 0750); err != nil {
			return fmt.Errorf("create scratch directory: %w", err)
		}
	}
	return nil
}

var _ Scratch = (*LocalStorage)(nil)
