package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultLogFilePath  = "./logs/schoolboard.log"
	defaultMaxSizeBytes = 20 * 1024 * 1024
)

// rotatingFile appends to path and renames it aside once it would grow past
// maxSize. Callers serialize access.
type rotatingFile struct {
	path    string
	maxSize int64
	file    *os.File
}

func newRotatingFileFromEnv() *rotatingFile {
	path := strings.TrimSpace(os.Getenv(envLogFilePath))
	if path == "-" {
		return nil
	}
	if path == "" {
		path = defaultLogFilePath
	}
	maxSize := int64(defaultMaxSizeBytes)
	if mb, err := strconv.Atoi(strings.TrimSpace(os.Getenv(envLogMaxSizeMB))); err == nil && mb > 0 {
		maxSize = int64(mb) * 1024 * 1024
	}
	return &rotatingFile{path: path, maxSize: maxSize}
}

func (r *rotatingFile) write(line string) error {
	if err := r.open(os.O_APPEND); err != nil {
		return err
	}
	if err := r.rotateIfNeeded(int64(len(line))); err != nil {
		return err
	}
	if _, err := r.file.WriteString(line); err != nil {
		return err
	}
	return r.file.Sync()
}

func (r *rotatingFile) open(mode int) error {
	if r.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return err
	}
	r.file = f
	return nil
}

func (r *rotatingFile) rotateIfNeeded(incoming int64) error {
	stat, err := r.file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() == 0 || stat.Size()+incoming <= r.maxSize {
		return nil
	}
	if err := r.file.Close(); err != nil {
		return err
	}
	r.file = nil
	target, err := rotatedName(r.path, time.Now())
	if err != nil {
		return err
	}
	if err := os.Rename(r.path, target); err != nil {
		return err
	}
	return r.open(os.O_TRUNC)
}

func rotatedName(path string, now time.Time) (string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	stamp := now.Format("20060102_150405")
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%s_%d%s", base, stamp, i, ext)
		_, err := os.Stat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
}
