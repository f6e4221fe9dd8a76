package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const globalFileName = "global_data.txt"

// FileStore keeps one text file per worker plus one global file in a directory.
// Each worker writes only its own file, so no locking is needed.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// WorkerPath returns the file holding the record of workerID.
func (s *FileStore) WorkerPath(workerID int) string {
	return filepath.Join(s.dir, fmt.Sprintf("client_%d_data.txt", workerID))
}

// GlobalPath returns the file holding the global record.
func (s *FileStore) GlobalPath() string {
	return filepath.Join(s.dir, globalFileName)
}

func (s *FileStore) WriteWorker(ctx context.Context, rec WorkerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeAtomic(s.WorkerPath(rec.WorkerID), EncodeWorker(rec)); err != nil {
		return fmt.Errorf("write worker record %d: %w", rec.WorkerID, err)
	}
	return nil
}

func (s *FileStore) WriteGlobal(ctx context.Context, rec GlobalRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeAtomic(s.GlobalPath(), EncodeGlobal(rec)); err != nil {
		return fmt.Errorf("write global record: %w", err)
	}
	return nil
}

func (s *FileStore) ReadWorker(ctx context.Context, workerID int) (WorkerRecord, error) {
	path := s.WorkerPath(workerID)
	data, info, err := readFile(path)
	if err != nil {
		return WorkerRecord{}, err
	}
	rec, err := DecodeWorker(data)
	if err != nil {
		return WorkerRecord{}, fmt.Errorf("%s: %w", path, err)
	}
	rec.WorkerID = workerID
	rec.CreatedAt = info.ModTime().UTC()
	return rec, nil
}

func (s *FileStore) ReadGlobal(ctx context.Context) (GlobalRecord, error) {
	path := s.GlobalPath()
	data, info, err := readFile(path)
	if err != nil {
		return GlobalRecord{}, err
	}
	rec, err := DecodeGlobal(data)
	if err != nil {
		return GlobalRecord{}, fmt.Errorf("%s: %w", path, err)
	}
	rec.CreatedAt = info.ModTime().UTC()
	return rec, nil
}

func (s *FileStore) Close() error {
	return nil
}

func readFile(path string) ([]byte, fs.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return data, info, nil
}

// writeAtomic replaces path via a temp file so readers never see a partial record.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

var _ Store = (*FileStore)(nil)
