package domain

import (
	"errors"
	"fmt"
)

// Exported error variables allow callers to use errors.Is() for error checking.
var (
	ErrTargetMissing      = errors.New("activation target does not exist")
	ErrNotFound           = errors.New("not found")
	ErrFilesystem         = errors.New("filesystem operation failed")
	ErrFetch              = errors.New("fetch failed")
	ErrSymlinkUnsupported = errors.New("filesystem does not support symlinks")
)

var (
	ErrConfigNameEmpty        = errors.New("configuration name cannot be empty")
	ErrConfigNameDot          = errors.New("configuration name cannot be '.' or '..'")
	ErrConfigNameNonPrintable = errors.New("configuration name contains non-printable characters")
	ErrConfigNameInvalidChars = errors.New("configuration name contains invalid characters (<>:\"/\\|?*)")
	ErrConfigNameReserved     = errors.New("configuration name is reserved")
	ErrConfigNameNullByte     = errors.New("configuration name contains null byte")
)

// FilesystemError tags err as a failed filesystem primitive so callers can
// match it with errors.Is(err, ErrFilesystem).
func FilesystemError(err error) error {
	if err == nil || errors.Is(err, ErrFilesystem) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFilesystem, err)
}

// FetchError tags err as a failed fetch of a configuration source.
func FetchError(err error) error {
	if err == nil || errors.Is(err, ErrFetch) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFetch, err)
}
