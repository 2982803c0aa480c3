package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// DirSource reads the site from a directory on disk
type DirSource struct {
	root string
	fsys fs.FS
}

var _ Source = (*DirSource)(nil)

// NewDirSource creates a source rooted at dir
func NewDirSource(dir string) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening content dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("content dir %s is not a directory", dir)
	}
	return &DirSource{root: dir, fsys: os.DirFS(dir)}, nil
}

// Open implements Source
func (s *DirSource) Open(_ context.Context, name string) (*Object, error) {
	if !fs.ValidPath(name) {
		return nil, ErrNotFound
	}
	f, err := s.fsys.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}
	return &Object{
		Body:    f,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// List implements Source
func (s *DirSource) List(_ context.Context) ([]string, error) {
	var names []string
	err := fs.WalkDir(s.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			names = append(names, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.root, err)
	}
	return names, nil
}
