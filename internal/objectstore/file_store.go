package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/fileutil"
	"github.com/google/uuid"
)

const filePermissions = 0o640

// FileStore implements core.ObjectStore on a directory. Keys are plain file names.
type FileStore struct {
	dir string
}

// NewFileStore creates dir when missing.
func NewFileStore(dir string) (*FileStore, error) {
	err := fileutil.EnsureDir(dir)
	if err != nil {
		return nil, err
	}

	return &FileStore{dir: dir}, nil
}

// Dir returns the backing directory.
func (f *FileStore) Dir() string {
	return f.dir
}

// Download reads a file. Missing files yield core.ErrObjectNotFound.
func (f *FileStore) Download(_ context.Context, key string) ([]byte, error) {
	name, err := fileutil.SafeName(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: '%s'", core.ErrObjectNotFound, key)
		}

		return nil, fmt.Errorf("failed to read object '%s': %w", key, err)
	}

	return data, nil
}

// Upload writes through a uniquely named temp file and renames it into place,
// so readers never see a partial file. The temp file is removed on any failure.
func (f *FileStore) Upload(_ context.Context, key string, data []byte) (err error) {
	name, err := fileutil.SafeName(key)
	if err != nil {
		return err
	}

	tempPath := filepath.Join(f.dir, "."+uuid.NewString()+".tmp")

	defer func() {
		if err != nil {
			_ = os.Remove(tempPath)
		}
	}()

	err = os.WriteFile(tempPath, data, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write object '%s': %w", key, err)
	}

	err = os.Rename(tempPath, filepath.Join(f.dir, name))
	if err != nil {
		return fmt.Errorf("failed to commit object '%s': %w", key, err)
	}

	return nil
}
