package store

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/samber/oops"

	"github.com/OpenGG/rc4me/internal/rc/domain"
	"github.com/OpenGG/rc4me/internal/rc/paths"
	"github.com/OpenGG/rc4me/internal/rc/storage"
)

// Store owns the slot structure of a management root: the real init
// directory and the prev and current symlinks.
type Store struct {
	storage *storage.Storage
	layout  *paths.Layout
	logger  *slog.Logger
}

// New creates a Store for the root described by layout. The root path must
// be absolute since slot links store absolute targets.
func New(storage *storage.Storage, layout *paths.Layout, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		storage: storage,
		layout:  layout,
		logger:  logger,
	}
}

// Layout returns the paths of the managed root.
func (s *Store) Layout() *paths.Layout {
	return s.layout
}

// Initialize scaffolds the root on first use. It is a no-op once init exists.
//
// The root itself is created when missing, but its parent must already exist;
// otherwise the call fails with domain.ErrNotFound.
func (s *Store) Initialize() error {
	initDir := s.layout.InitDir()
	exists, err := s.storage.Exists(initDir)
	if err != nil {
		return oops.Wrapf(domain.FilesystemError(err), "inspect %s", initDir)
	}
	if exists {
		return nil
	}

	root := s.layout.Root()
	if err := s.storage.Mkdir(root); err != nil && !errors.Is(err, os.ErrExist) {
		if errors.Is(err, os.ErrNotExist) {
			return oops.Wrapf(domain.ErrNotFound, "parent of management root %s", root)
		}
		return oops.Wrapf(domain.FilesystemError(err), "create management root %s", root)
	}
	if err := s.storage.Mkdir(initDir); err != nil {
		return oops.Wrapf(domain.FilesystemError(err), "create %s", initDir)
	}
	if err := s.replaceSlot(paths.PrevLinkName, initDir); err != nil {
		return err
	}
	if err := s.replaceSlot(paths.CurrentLinkName, initDir); err != nil {
		return err
	}

	s.logger.Info("initialized management root", "root", root)
	return nil
}

// Activate makes target the current configuration and records the
// configuration it replaces in prev.
//
// A missing target fails with domain.ErrTargetMissing before anything is
// touched. prev receives the fully resolved path of current, never the
// current link itself, so the two slots cannot chain. Each slot is swapped
// by renaming a staging link over it; the two swaps are not transactional.
func (s *Store) Activate(target string) error {
	abs, err := filepath.Abs(target)
	if err != nil {
		return oops.Wrapf(domain.FilesystemError(err), "absolute path of %s", target)
	}
	exists, err := s.storage.Exists(abs)
	if err != nil {
		return oops.Wrapf(domain.FilesystemError(err), "inspect %s", abs)
	}
	if !exists {
		return oops.Wrapf(domain.ErrTargetMissing, "activate %s", abs)
	}

	previous, err := s.resolveSlot(s.layout.CurrentLink())
	if err != nil {
		return err
	}
	if err := s.replaceSlot(paths.PrevLinkName, previous); err != nil {
		return err
	}
	if err := s.replaceSlot(paths.CurrentLinkName, abs); err != nil {
		return err
	}

	s.logger.Info("activated configuration",
		"current", abs,
		"prev", previous)
	return nil
}

// ActivatePrevious swaps back to whatever prev points to. Calling it twice
// toggles between the same two configurations.
func (s *Store) ActivatePrevious() error {
	previous, err := s.resolveSlot(s.layout.PrevLink())
	if err != nil {
		return err
	}
	return s.Activate(previous)
}

// ActivateInit makes the init snapshot the current configuration.
func (s *Store) ActivateInit() error {
	return s.Activate(s.layout.InitDir())
}

// ListConfigurations maps every entry directly under the root to its path,
// skipping the prev and current links. init is included.
func (s *Store) ListConfigurations() (map[string]string, error) {
	root := s.layout.Root()
	entries, err := s.storage.ReadDir(root)
	if err != nil {
		return nil, oops.Wrapf(domain.FilesystemError(err), "read management root %s", root)
	}
	configs := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if paths.IsSlotName(name) || paths.IsStagingName(name) {
			continue
		}
		configs[name] = filepath.Join(root, name)
	}
	return configs, nil
}

// Names returns the configuration names, sorted lexicographically.
func (s *Store) Names() ([]string, error) {
	configs, err := s.ListConfigurations()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Lookup resolves a configuration name to its directory.
func (s *Store) Lookup(name string) (string, error) {
	configs, err := s.ListConfigurations()
	if err != nil {
		return "", err
	}
	path, ok := configs[name]
	if !ok {
		return "", oops.Wrapf(domain.ErrNotFound, "configuration %q", name)
	}
	return path, nil
}

// Current returns the resolved directory of the current slot.
func (s *Store) Current() (string, error) {
	return s.resolveSlot(s.layout.CurrentLink())
}

// Previous returns the resolved directory of the prev slot.
func (s *Store) Previous() (string, error) {
	return s.resolveSlot(s.layout.PrevLink())
}

// IsInitActive reports whether current resolves to the init snapshot.
func (s *Store) IsInitActive() (bool, error) {
	current, err := s.Current()
	if err != nil {
		return false, err
	}
	return s.IsInit(current)
}

// IsInit reports whether the resolved path is the init snapshot.
func (s *Store) IsInit(resolved string) (bool, error) {
	initDir, err := s.storage.Resolve(s.layout.InitDir())
	if err != nil {
		return false, oops.Wrapf(domain.FilesystemError(err), "resolve %s", s.layout.InitDir())
	}
	return resolved == initDir, nil
}

// resolveSlot follows a slot link to a real path. A slot whose target was
// removed from disk yields the stored target so that history stays usable.
func (s *Store) resolveSlot(link string) (string, error) {
	resolved, err := s.storage.Resolve(link)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", oops.Wrapf(domain.FilesystemError(err), "resolve %s", link)
	}

	target, rerr := s.storage.Readlink(link)
	if rerr != nil {
		return "", oops.Wrapf(domain.FilesystemError(err), "resolve %s", link)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(link), target)
	}
	s.logger.Warn("slot points to a missing directory",
		"slot", filepath.Base(link),
		"target", target)
	return filepath.Clean(target), nil
}

func (s *Store) replaceSlot(slot, target string) error {
	link := filepath.Join(s.layout.Root(), slot)
	if err := s.storage.ReplaceSymlink(target, link, s.layout.StagingLink(slot)); err != nil {
		return oops.Wrapf(domain.FilesystemError(err), "point %s at %s", slot, target)
	}
	s.logger.Debug("relinked slot", "slot", slot, "target", target)
	return nil
}
