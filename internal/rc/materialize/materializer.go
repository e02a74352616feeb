package materialize

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/OpenGG/rc4me/internal/rc/backup"
	"github.com/OpenGG/rc4me/internal/rc/domain"
	"github.com/OpenGG/rc4me/internal/rc/paths"
	"github.com/OpenGG/rc4me/internal/rc/storage"
	"github.com/OpenGG/rc4me/internal/rc/store"
)

// Mode selects how files reach the destination.
type Mode int

const (
	// ModeLink symlinks each destination file to its source.
	ModeLink Mode = iota
	// ModeCopy writes real copies; used when init is active so the
	// management root can be deleted afterwards.
	ModeCopy
)

func (m Mode) String() string {
	if m == ModeCopy {
		return "copy"
	}
	return "link"
}

// Existing describes what occupies a destination path before projection.
type Existing int

const (
	ExistingNone Existing = iota
	ExistingLink
	ExistingFile
	ExistingDir
)

func (e Existing) String() string {
	switch e {
	case ExistingLink:
		return "symlink"
	case ExistingFile:
		return "file"
	case ExistingDir:
		return "directory"
	default:
		return "none"
	}
}

// Op is the projection of one source file.
type Op struct {
	Name     string
	Source   string
	Target   string
	Mode     Mode
	Existing Existing
	// InPlace is set when the destination already matches the source: a
	// link to it in link mode, identical bytes in copy mode.
	InPlace bool
}

// NeedsBackup reports whether the destination holds a real file that must be
// preserved under init before it is replaced.
func (o Op) NeedsBackup() bool {
	return o.Existing == ExistingFile
}

// Plan is the ordered set of operations that makes a destination match the
// current configuration.
type Plan struct {
	Source      string
	Destination string
	Mode        Mode
	Ops         []Op
}

// Result summarises an executed plan.
type Result struct {
	Plan     *Plan
	Linked   int
	Copied   int
	BackedUp int
}

// Materializer projects the current slot into a destination directory.
type Materializer struct {
	storage *storage.Storage
	store   *store.Store
	backup  *backup.Service
	logger  *slog.Logger
}

// New creates a Materializer.
func New(storage *storage.Storage, store *store.Store, backup *backup.Service, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Materializer{
		storage: storage,
		store:   store,
		backup:  backup,
		logger:  logger,
	}
}

// Plan computes the operations Project would perform, without touching
// the destination.
func (m *Materializer) Plan(destination string) (*Plan, error) {
	source, err := m.store.Current()
	if err != nil {
		return nil, err
	}
	return m.PlanSource(source, destination)
}

// PlanSource computes the plan for projecting source, which need not be the
// current slot. Used to preview a switch before it happens.
func (m *Materializer) PlanSource(source, destination string) (*Plan, error) {
	resolved, err := m.storage.Resolve(source)
	if err != nil {
		return nil, oops.Wrapf(domain.FilesystemError(err), "resolve %s", source)
	}
	source = resolved
	isInit, err := m.store.IsInit(source)
	if err != nil {
		return nil, err
	}
	mode := ModeLink
	if isInit {
		mode = ModeCopy
	}

	entries, err := m.storage.ReadDir(source)
	if err != nil {
		return nil, oops.Wrapf(domain.FilesystemError(err), "read configuration %s", source)
	}

	plan := &Plan{Source: source, Destination: destination, Mode: mode}
	for _, entry := range entries {
		name := entry.Name()
		sourcePath := filepath.Join(source, name)
		isDir := entry.IsDir()
		if entry.Mode()&os.ModeSymlink != 0 {
			if isDir, err = m.storage.IsDir(sourcePath); err != nil {
				isDir = false
			}
		}
		if !paths.Projectable(name, isDir) {
			continue
		}

		target := paths.DestinationFor(destination, name)
		existing, err := m.inspect(target)
		if err != nil {
			return nil, err
		}
		plan.Ops = append(plan.Ops, Op{
			Name:     name,
			Source:   sourcePath,
			Target:   target,
			Mode:     mode,
			Existing: existing,
			InPlace:  m.inPlace(mode, existing, sourcePath, target),
		})
	}
	return plan, nil
}

func (m *Materializer) inPlace(mode Mode, existing Existing, source, target string) bool {
	switch {
	case mode == ModeLink && existing == ExistingLink:
		link, err := m.storage.Readlink(target)
		return err == nil && link == source
	case mode == ModeCopy && existing == ExistingFile:
		want, err := m.backup.CalculateHash(source)
		if err != nil {
			return false
		}
		got, err := m.backup.CalculateHash(target)
		return err == nil && got == want
	}
	return false
}

// Project makes destination reflect the current configuration.
//
// Real files in the way are preserved under init before removal. Failure on
// one file leaves the earlier files migrated; re-running is safe.
func (m *Materializer) Project(destination string) (*Result, error) {
	plan, err := m.Plan(destination)
	if err != nil {
		return nil, err
	}

	result := &Result{Plan: plan}
	for _, op := range plan.Ops {
		if err := m.apply(op, result); err != nil {
			return result, err
		}
	}

	m.logger.Info("projected configuration",
		"source", plan.Source,
		"destination", destination,
		"mode", plan.Mode.String(),
		"files", len(plan.Ops))
	return result, nil
}

func (m *Materializer) apply(op Op, result *Result) error {
	switch op.Existing {
	case ExistingDir:
		return oops.Wrapf(domain.FilesystemError(fmt.Errorf("%s is a directory", op.Target)), "replace %s", op.Target)
	case ExistingFile:
		m.logger.Info("backing up file", "path", op.Target, "backup_path", m.backup.BackupPath(op.Name))
		written, err := m.backup.Preserve(op.Target, op.Name)
		if err != nil {
			return oops.Wrapf(domain.FilesystemError(err), "back up %s", op.Target)
		}
		if written {
			result.BackedUp++
		}
	}

	if op.Existing != ExistingNone {
		if err := m.storage.Remove(op.Target); err != nil {
			return oops.Wrapf(domain.FilesystemError(err), "remove %s", op.Target)
		}
	}

	if op.Mode == ModeCopy {
		m.logger.Info("copying file", "source", op.Source, "target", op.Target)
		if err := m.storage.CopyFile(op.Source, op.Target); err != nil {
			return oops.Wrapf(domain.FilesystemError(err), "copy %s", op.Source)
		}
		result.Copied++
		return nil
	}

	m.logger.Info("linking file", "source", op.Source, "target", op.Target)
	if err := m.storage.Symlink(op.Source, op.Target); err != nil {
		return oops.Wrapf(domain.FilesystemError(err), "link %s", op.Target)
	}
	result.Linked++
	return nil
}

func (m *Materializer) inspect(target string) (Existing, error) {
	info, err := m.storage.Lstat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ExistingNone, nil
		}
		return ExistingNone, oops.Wrapf(domain.FilesystemError(err), "inspect %s", target)
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return ExistingLink, nil
	case info.IsDir():
		return ExistingDir, nil
	default:
		return ExistingFile, nil
	}
}
