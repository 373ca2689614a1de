package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ilinovom/stream-announce-bot/internal/model"
)

// FileStateRepository stores the state document in a JSON file.
type FileStateRepository struct {
	path string
}

func NewFileStateRepository(path string) *FileStateRepository {
	return &FileStateRepository{path: path}
}

// Path returns the file the repository reads and writes.
func (r *FileStateRepository) Path() string { return r.path }

// Load reads the JSON file. A missing file yields an empty document.
func (r *FileStateRepository) Load(ctx context.Context) (*model.State, error) {
	file, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.NewState(), nil
		}
		return nil, err
	}
	defer file.Close()
	state, err := DecodeState(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.path, err)
	}
	return state, nil
}

// Save replaces the file with the full document. The data goes to a temp
// file in the same directory first so readers never see a partial write.
func (r *FileStateRepository) Save(ctx context.Context, state *model.State) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := EncodeState(tmp, state); err != nil {
		tmp.Close()
		return fmt.Errorf("encode state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
