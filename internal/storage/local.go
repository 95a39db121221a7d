// Package storage stages uploaded documents on the local filesystem. Staged
// names embed the upload time, a random suffix, and the original filename, so
// concurrent uploads of the same resume never collide and cleanup can still
// find files by their original name.
package storage

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Local struct {
	dir    string
	logger *zap.Logger
}

func NewLocal(dir string, logger *zap.Logger) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	logger.Info("upload storage initialized", zap.String("dir", dir))
	return &Local{dir: dir, logger: logger}, nil
}

func (l *Local) Dir() string { return l.dir }

// Save writes data under a collision-resistant name and returns the stored
// name and its path.
func (l *Local) Save(data []byte, originalName string) (string, string, error) {
	base := filepath.Base(originalName)
	storedName := fmt.Sprintf("%d-%d-%s", time.Now().UnixMilli(), rand.Intn(1_000_000_000), base)
	path := filepath.Join(l.dir, storedName)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write staged file: %w", err)
	}

	l.logger.Debug("staged uploaded file",
		zap.String("stored_name", storedName),
		zap.Int("bytes", len(data)))
	return storedName, path, nil
}

func (l *Local) Exists(storedName string) bool {
	path, err := l.Resolve(storedName)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (l *Local) Delete(storedName string) error {
	path, err := l.Resolve(storedName)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// RemoveByOriginalName deletes the first staged file whose name ends with the
// given original filename and reports the stored name it removed.
func (l *Local) RemoveByOriginalName(originalName string) (string, bool) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		l.logger.Warn("failed to read uploads directory", zap.Error(err))
		return "", false
	}
	base := filepath.Base(originalName)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), base) {
			continue
		}
		if err := os.Remove(filepath.Join(l.dir, entry.Name())); err != nil {
			l.logger.Warn("failed to remove staged file",
				zap.String("stored_name", entry.Name()), zap.Error(err))
			continue
		}
		return entry.Name(), true
	}
	return "", false
}

// Resolve maps a stored name to an absolute path inside the uploads
// directory, rejecting traversal attempts.
func (l *Local) Resolve(storedName string) (string, error) {
	if storedName == "" || storedName != filepath.Base(storedName) {
		return "", fmt.Errorf("invalid stored file name: %q", storedName)
	}
	abs, err := filepath.Abs(filepath.Join(l.dir, storedName))
	if err != nil {
		return "", err
	}
	return abs, nil
}
