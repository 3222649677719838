package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"topicsync/pkg/logger"
)

// ReadError is returned when an existing checkpoint cannot be read or
// its content is not a single identifier. It is fatal to a run.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("checkpoint read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError is returned when a checkpoint cannot be persisted.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("checkpoint write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Sentinel causes wrapped by ReadError and WriteError.
var (
	ErrCorrupt   = errors.New("corrupt checkpoint")
	ErrInvalidID = errors.New("invalid checkpoint id")
)

// ValidID reports whether id can be stored as a checkpoint: it must be
// non-empty valid UTF-8 on a single line.
func ValidID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "\r\n\x00") || !utf8.ValidString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Info describes a stored checkpoint
type Info struct {
	ID        string
	Path      string
	UpdatedAt time.Time
}

// Age returns how long ago the checkpoint was written.
func (i *Info) Age() time.Duration {
	return time.Since(i.UpdatedAt)
}

// Store persists the id of the last completed row in a plain-text file
type Store struct {
	path   string
	logger logger.Logger
}

// NewStore creates a store for the checkpoint file at path
func NewStore(path string, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{path: path, logger: log}
}

// Path returns the checkpoint file path
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored id. ok is false when the file does not exist or
// holds only whitespace.
func (s *Store) Load() (id string, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil // No checkpoint exists
		}
		return "", false, &ReadError{Path: s.path, Err: err}
	}

	id, err = decode(data)
	if err != nil {
		return "", false, &ReadError{Path: s.path, Err: err}
	}
	if id == "" {
		return "", false, nil
	}

	s.logger.DebugWithFields("Checkpoint loaded", map[string]interface{}{
		"path":    s.path,
		"last_id": id,
	})
	return id, true, nil
}

func decode(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrCorrupt)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: contains NUL bytes", ErrCorrupt)
	}
	content := strings.TrimSpace(string(data))
	if strings.ContainsAny(content, "\r\n") {
		return "", fmt.Errorf("%w: more than one line", ErrCorrupt)
	}
	return content, nil
}

// Save replaces the stored id atomically. A crash leaves either the old or
// the new id on disk, never a partial write.
func (s *Store) Save(id string) error {
	id = strings.TrimSpace(id)
	if err := ValidID(id); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	file, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &WriteError{Path: s.path, Err: fmt.Errorf("failed to create temporary checkpoint file: %w", err)}
	}
	tempPath := file.Name()

	if _, err := io.WriteString(file, id+"\n"); err != nil {
		file.Close()
		os.Remove(tempPath)
		return &WriteError{Path: s.path, Err: fmt.Errorf("failed to write checkpoint: %w", err)}
	}

	// Ensure data is written to disk
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return &WriteError{Path: s.path, Err: fmt.Errorf("failed to sync checkpoint file: %w", err)}
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return &WriteError{Path: s.path, Err: fmt.Errorf("failed to close checkpoint file: %w", err)}
	}

	// Atomically replace the old checkpoint file
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return &WriteError{Path: s.path, Err: fmt.Errorf("failed to replace checkpoint file: %w", err)}
	}

	if err := syncDir(dir); err != nil {
		return &WriteError{Path: s.path, Err: fmt.Errorf("failed to sync checkpoint directory: %w", err)}
	}

	s.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"path":    s.path,
		"last_id": id,
	})
	return nil
}

// syncDir makes the rename durable. Windows cannot fsync a directory.
func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// Exists checks if a checkpoint file exists
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Clear removes the checkpoint file. Clearing a missing checkpoint is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	s.logger.InfoWithFields("Checkpoint cleared", map[string]interface{}{"path": s.path})
	return nil
}

// BackupPath returns where Backup copies the checkpoint to
func (s *Store) BackupPath() string {
	return s.path + ".backup"
}

// Backup copies the current checkpoint next to itself
func (s *Store) Backup() error {
	if !s.Exists() {
		return nil // Nothing to backup
	}

	src, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(s.BackupPath())
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to copy checkpoint to backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close backup file: %w", err)
	}

	s.logger.DebugWithFields("Checkpoint backed up", map[string]interface{}{"backup": s.BackupPath()})
	return nil
}

// Info returns the stored checkpoint and its modification time, or nil
// when there is none.
func (s *Store) Info() (*Info, error) {
	id, ok, err := s.Load()
	if err != nil || !ok {
		return nil, err
	}

	stat, err := os.Stat(s.path)
	if err != nil {
		return nil, &ReadError{Path: s.path, Err: err}
	}

	return &Info{ID: id, Path: s.path, UpdatedAt: stat.ModTime()}, nil
}
