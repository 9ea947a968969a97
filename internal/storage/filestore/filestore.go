package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jgivc/giblets/internal/common"
	"github.com/spf13/afero"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

type fileStore struct {
	fs  afero.Fs
	log *slog.Logger
}

func NewFileStore(log *slog.Logger) *fileStore {
	return NewFileStoreWithFS(afero.NewOsFs(), log)
}

func NewFileStoreWithFS(fs afero.Fs, log *slog.Logger) *fileStore {
	return &fileStore{
		fs:  fs,
		log: log.With(slog.String("item", "FileStore")),
	}
}

// Read returns the file content or common.ErrFileNotFound when the file does not exist.
func (s *fileStore) Read(path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrFileNotFound, path)
		}

		return nil, fmt.Errorf("cannot read file %s: %w", path, err)
	}

	return data, nil
}

// Write stores data at path, creating parent directories as needed.
func (s *fileStore) Write(path string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("cannot create directory for %s: %w", path, err)
	}

	if err := afero.WriteFile(s.fs, path, data, filePerm); err != nil {
		return fmt.Errorf("cannot write file %s: %w", path, err)
	}

	s.log.Debug("Write file", slog.String("path", path), slog.Int("size", len(data)))

	return nil
}
