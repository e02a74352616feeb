package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/OpenGG/rc4me/internal/rc/storage"
)

// Service preserves real files into the init snapshot before they are
// replaced. A preserved copy overwrites any earlier copy of the same name.
type Service struct {
	storage *storage.Storage
	initDir string
	logger  *slog.Logger
}

// New creates a new backup Service writing into initDir.
func New(storage *storage.Storage, initDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		storage: storage,
		initDir: initDir,
		logger:  logger,
	}
}

// CalculateHash returns the SHA-256 hash of the given file.
// Empty files return a special "empty" marker.
// Missing files return an empty string without error.
func (s *Service) CalculateHash(path string) (string, error) {
	if err := s.storage.ValidatePathSafety(path); err != nil {
		return "", fmt.Errorf("path validation failed: %w", err)
	}

	info, err := s.storage.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to stat file for hashing: %w", err)
	}
	if info.Size() == 0 {
		return "empty", nil
	}

	f, err := s.storage.FileSystem().Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Preserve copies the real file at path to init/<name>.
//
// The copy is skipped when init already holds identical bytes. It reports
// whether anything was written. Symlinks are refused: only files the tool
// does not manage need preserving.
func (s *Service) Preserve(path, name string) (bool, error) {
	// Note: CalculateHash validates path safety for both sides
	sourceHash, err := s.CalculateHash(path)
	if err != nil {
		return false, err
	}
	if sourceHash == "" {
		return false, fmt.Errorf("failed to back up %s: %w", path, os.ErrNotExist)
	}

	backupPath := s.BackupPath(name)
	existingHash, err := s.CalculateHash(backupPath)
	if err != nil {
		return false, err
	}
	if existingHash == sourceHash {
		s.logger.Debug("backup already up to date",
			"path", path,
			"backup_path", backupPath)
		return false, nil
	}

	if err := s.storage.CopyFile(path, backupPath); err != nil {
		return false, fmt.Errorf("failed to create backup: %w", err)
	}

	s.logger.Info("backed up file",
		"path", path,
		"backup_path", backupPath,
		"replaced", existingHash != "")
	return true, nil
}

// BackupPath returns where a file named name is preserved.
func (s *Service) BackupPath(name string) string {
	return filepath.Join(s.initDir, name)
}
