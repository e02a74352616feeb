package paths

import (
	"path/filepath"
	"strings"
)

// Directory and link names inside the management root.
const (
	RootDirName     = ".rc4me"
	InitDirName     = "init"
	PrevLinkName    = "prev"
	CurrentLinkName = "current"

	// StagingPrefix marks temporary symlinks created while a slot is swapped.
	StagingPrefix = ".rc4me-tmp-"

	// ReadmeMarker excludes any entry whose name contains it from projection.
	ReadmeMarker = "README"
)

// Layout provides methods to construct paths inside a management root.
type Layout struct {
	root string
}

// New creates a Layout for the given management root.
func New(root string) *Layout {
	return &Layout{root: filepath.Clean(root)}
}

// DefaultRoot returns the management root used when none is configured.
func DefaultRoot(homeDir string) string {
	return filepath.Join(homeDir, RootDirName)
}

// Root returns the management root directory.
func (l *Layout) Root() string {
	return l.root
}

// InitDir returns the path of the init snapshot directory.
func (l *Layout) InitDir() string {
	return filepath.Join(l.root, InitDirName)
}

// PrevLink returns the path of the prev slot symlink.
func (l *Layout) PrevLink() string {
	return filepath.Join(l.root, PrevLinkName)
}

// CurrentLink returns the path of the current slot symlink.
func (l *Layout) CurrentLink() string {
	return filepath.Join(l.root, CurrentLinkName)
}

// ConfigDir returns the directory holding the named configuration.
func (l *Layout) ConfigDir(name string) string {
	return filepath.Join(l.root, name)
}

// StagingLink returns the temporary link used while replacing the named slot.
func (l *Layout) StagingLink(slot string) string {
	return filepath.Join(l.root, StagingPrefix+slot)
}

// IsSlotName reports whether name is one of the two slot symlinks.
func IsSlotName(name string) bool {
	return name == PrevLinkName || name == CurrentLinkName
}

// IsStagingName reports whether name is a leftover staging link.
func IsStagingName(name string) bool {
	return strings.HasPrefix(name, StagingPrefix)
}

// DestinationFor maps a source file name to its hidden counterpart in dest.
func DestinationFor(dest, sourceName string) string {
	return filepath.Join(dest, "."+sourceName)
}

// Projectable reports whether a directory entry takes part in projection.
func Projectable(name string, isDir bool) bool {
	if isDir {
		return false
	}
	return !strings.Contains(name, ReadmeMarker)
}
