// Package storage writes uploaded files under a single upload root.
package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"telegramd/internal/domain"
)

// Config configures a Sink.
type Config struct {
	Root         string
	MaxFileBytes int64 // 0 = unlimited
	Logger       *slog.Logger
}

// Sink stores byte streams as files inside its root directory. It holds no
// mutable state and is safe for concurrent use.
type Sink struct {
	root     string
	maxBytes int64
	logger   *slog.Logger
}

func New(cfg Config) *Sink {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		root:     cfg.Root,
		maxBytes: cfg.MaxFileBytes,
		logger:   logger.With("component", "storage"),
	}
}

func (s *Sink) Root() string { return s.root }

// EnsureRoot creates the upload root and its parents. It is idempotent and
// fails if the root exists but is not a directory.
func (s *Sink) EnsureRoot() error {
	info, err := os.Stat(s.root)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%w: upload root %s is not a directory", domain.ErrIO, s.root)
		}
		return nil
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("%w: create upload root %s: %w", domain.ErrIO, s.root, err)
	}
	s.logger.Info("created upload directory", "path", s.root)
	return nil
}

// Write streams r into root/filename, replacing any existing file of that name,
// and returns the stored location. The data lands in a temporary file first and
// is renamed into place, so concurrent writers of one name never interleave.
func (s *Sink) Write(filename string, r io.Reader) (domain.StoredFile, error) {
	name, err := SanitizeFilename(filename)
	if err != nil {
		return domain.StoredFile{}, err
	}
	dst := filepath.Join(s.root, name)

	tmp, err := os.CreateTemp(s.root, "."+name+".*.part")
	if err != nil {
		return domain.StoredFile{}, fmt.Errorf("%w: create %s: %w", domain.ErrIO, name, err)
	}
	tmpPath := tmp.Name()

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	written, copyErr := io.Copy(tmp, src)
	closeErr := tmp.Close()

	switch {
	case copyErr != nil:
		os.Remove(tmpPath)
		return domain.StoredFile{}, fmt.Errorf("%w: write %s: %w", domain.ErrIO, name, copyErr)
	case closeErr != nil:
		os.Remove(tmpPath)
		return domain.StoredFile{}, fmt.Errorf("%w: close %s: %w", domain.ErrIO, name, closeErr)
	case s.maxBytes > 0 && written > s.maxBytes:
		os.Remove(tmpPath)
		return domain.StoredFile{}, fmt.Errorf("%w: %s is larger than %d bytes", domain.ErrIO, name, s.maxBytes)
	}

	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return domain.StoredFile{}, fmt.Errorf("%w: chmod %s: %w", domain.ErrIO, name, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return domain.StoredFile{}, fmt.Errorf("%w: rename %s: %w", domain.ErrIO, name, err)
	}

	s.logger.Debug("stored file", "name", name, "path", dst, "bytes", written)
	return domain.StoredFile{Name: name, Path: dst, Size: written}, nil
}

// SanitizeFilename reduces a client supplied filename to a bare base name.
// Directory components are dropped; names that would escape the root or
// cannot be represented on disk are rejected.
func SanitizeFilename(name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidFilename, name)
	}
	// Browsers on Windows may send full paths with backslashes.
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	switch base {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidFilename, name)
	}
	return base, nil
}
