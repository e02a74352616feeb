package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/OpenGG/rc4me/internal/rc/domain"
)

// maxSymlinkHops bounds link chains followed by Resolve.
const maxSymlinkHops = 255

// Storage provides low-level file operations, including the symlink
// primitives the slot structure is built on.
type Storage struct {
	fs afero.Fs
}

// New creates a new Storage instance.
func New(fs afero.Fs) *Storage {
	return &Storage{fs: fs}
}

// FileSystem returns the underlying filesystem.
func (s *Storage) FileSystem() afero.Fs {
	return s.fs
}

// SupportsSymlinks reports whether the filesystem can create and read links.
func (s *Storage) SupportsSymlinks() bool {
	_, ok := s.fs.(afero.Symlinker)
	return ok
}

// Lstat returns file information without following a final symlink.
// Filesystems without Lstat support fall back to Stat.
func (s *Storage) Lstat(path string) (os.FileInfo, error) {
	if lstater, ok := s.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(path)
		return info, err
	}
	return s.fs.Stat(path)
}

// IsSymlink reports whether path is a symlink. Missing paths return an error
// matching os.ErrNotExist.
func (s *Storage) IsSymlink(path string) (bool, error) {
	info, err := s.Lstat(path)
	if err != nil {
		return false, err
	}
	return info.Mode()&os.ModeSymlink != 0, nil
}

// LExists checks if a path exists without following a final symlink, so a
// dangling link counts as present.
func (s *Storage) LExists(path string) (bool, error) {
	_, err := s.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ValidatePathSafety checks that the path is not a symlink, preventing symlink attacks.
// It returns nil if the path doesn't exist or is a regular file/directory.
func (s *Storage) ValidatePathSafety(path string) error {
	isLink, err := s.IsSymlink(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to check path: %w", err)
	}
	if isLink {
		return fmt.Errorf("refusing to operate on symlink: %s", path)
	}
	return nil
}

// Symlink creates newname as a symbolic link to oldname.
func (s *Storage) Symlink(oldname, newname string) error {
	linker, ok := s.fs.(afero.Linker)
	if !ok {
		return fmt.Errorf("symlink %s: %w", newname, domain.ErrSymlinkUnsupported)
	}
	return linker.SymlinkIfPossible(oldname, newname)
}

// Readlink returns the stored target of a symlink.
func (s *Storage) Readlink(name string) (string, error) {
	reader, ok := s.fs.(afero.LinkReader)
	if !ok {
		return "", fmt.Errorf("readlink %s: %w", name, domain.ErrSymlinkUnsupported)
	}
	return reader.ReadlinkIfPossible(name)
}

// ReplaceSymlink points link at target. The new link is created under the
// staging name first and renamed over link, so link is never missing.
func (s *Storage) ReplaceSymlink(target, link, staging string) error {
	if exists, err := s.LExists(staging); err != nil {
		return fmt.Errorf("inspect staging link: %w", err)
	} else if exists {
		if err := s.fs.Remove(staging); err != nil {
			return fmt.Errorf("remove stale staging link: %w", err)
		}
	}
	if err := s.Symlink(target, staging); err != nil {
		return fmt.Errorf("create staging link: %w", err)
	}
	if err := s.fs.Rename(staging, link); err != nil {
		s.fs.Remove(staging)
		return fmt.Errorf("rename staging link: %w", err)
	}
	return nil
}

// Resolve returns the absolute path with every symlink component followed,
// like realpath(3). All components must exist.
func (s *Storage) Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	lstater, canLstat := s.fs.(afero.Lstater)
	reader, canRead := s.fs.(afero.LinkReader)
	if !canLstat || !canRead {
		return filepath.Clean(abs), nil
	}

	volume := filepath.VolumeName(abs)
	root := volume + string(filepath.Separator)
	resolved := root
	pending := splitPath(abs[len(volume):])
	hops := 0

	for len(pending) > 0 {
		part := pending[0]
		pending = pending[1:]
		if part == ".." {
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, part)
		info, _, err := lstater.LstatIfPossible(next)
		if err != nil {
			return "", err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			resolved = next
			continue
		}

		hops++
		if hops > maxSymlinkHops {
			return "", fmt.Errorf("too many levels of symbolic links: %s", path)
		}
		target, err := reader.ReadlinkIfPossible(next)
		if err != nil {
			return "", err
		}
		if filepath.IsAbs(target) {
			resolved = root
		}
		pending = append(splitPath(target), pending...)
	}
	return resolved, nil
}

func splitPath(p string) []string {
	raw := strings.Split(filepath.ToSlash(p), "/")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		if part == "" || part == "." {
			continue
		}
		parts = append(parts, part)
	}
	return parts
}

// CopyFile copies a file from src to dst, atomically replacing the destination.
// The destination keeps the permission bits of the source.
func (s *Storage) CopyFile(src, dst string) (err error) {
	// Validate that paths are not symlinks
	if err := s.ValidatePathSafety(src); err != nil {
		return fmt.Errorf("validate source: %w", err)
	}
	if err := s.ValidatePathSafety(dst); err != nil {
		return fmt.Errorf("validate destination: %w", err)
	}

	source, err := s.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if cerr := source.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close source: %w", cerr)
		}
	}()

	info, err := source.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	dir := filepath.Dir(dst)
	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	// Create temp file in same directory (enables atomic rename)
	dest, err := afero.TempFile(s.fs, dir, "."+filepath.Base(dst)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := dest.Name()

	_, copyErr := io.Copy(dest, source)
	closeErr := dest.Close()

	if copyErr != nil || closeErr != nil {
		s.fs.Remove(tmp)
		if copyErr != nil {
			return fmt.Errorf("copy data: %w", copyErr)
		}
		return fmt.Errorf("close temp file: %w", closeErr)
	}

	if err := s.fs.Chmod(tmp, info.Mode().Perm()); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("set permissions: %w", err)
	}

	// Atomic rename: Unix rename() atomically replaces the destination
	if err := s.fs.Rename(tmp, dst); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("atomic rename: %w", err)
	}

	return nil
}

// Exists checks if a path exists, following symlinks.
func (s *Storage) Exists(path string) (bool, error) {
	return afero.Exists(s.fs, path)
}

// IsDir reports whether path is a directory, following symlinks.
func (s *Storage) IsDir(path string) (bool, error) {
	return afero.IsDir(s.fs, path)
}

// Stat returns file information.
func (s *Storage) Stat(path string) (os.FileInfo, error) {
	return s.fs.Stat(path)
}

// Mkdir creates a single directory. The parent must already exist.
func (s *Storage) Mkdir(path string) error {
	return s.fs.Mkdir(path, 0o755)
}

// ReadDir reads directory contents sorted by name. Symlinks are reported as
// links, not as their targets.
func (s *Storage) ReadDir(path string) ([]os.FileInfo, error) {
	return afero.ReadDir(s.fs, path)
}

// Remove deletes a file or an empty directory. Symlinks are removed, not
// followed.
func (s *Storage) Remove(path string) error {
	return s.fs.Remove(path)
}

// RemoveAll deletes path and any children it contains.
func (s *Storage) RemoveAll(path string) error {
	return s.fs.RemoveAll(path)
}
