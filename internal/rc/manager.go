package rc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/afero"

	"github.com/OpenGG/rc4me/internal/rc/backup"
	"github.com/OpenGG/rc4me/internal/rc/domain"
	"github.com/OpenGG/rc4me/internal/rc/fetch"
	"github.com/OpenGG/rc4me/internal/rc/materialize"
	"github.com/OpenGG/rc4me/internal/rc/paths"
	"github.com/OpenGG/rc4me/internal/rc/storage"
	"github.com/OpenGG/rc4me/internal/rc/store"
	"github.com/OpenGG/rc4me/internal/rc/validator"
)

// Options configure a Manager.
type Options struct {
	// Root is the management root, usually ~/.rc4me.
	Root string
	// Destination receives the dotfiles, usually the home directory.
	Destination string
	// RemoteBaseURL hosts owner/name references.
	RemoteBaseURL string
	// Branch overrides the remote HEAD for new clones.
	Branch string
	// AssumeYes pulls upstream changes without asking.
	AssumeYes bool
	// DryRun computes plans without switching slots or touching the
	// destination.
	DryRun bool
	// Confirmer is asked before pulling into an existing clone.
	Confirmer fetch.Confirmer
}

// Status describes the slots of the management root.
type Status struct {
	Root         string
	Destination  string
	Current      string
	CurrentName  string
	Previous     string
	PreviousName string
	Mode         materialize.Mode
}

// Manager sequences fetching, slot switching and projection for the CLI.
type Manager struct {
	opts         Options
	storage      *storage.Storage
	layout       *paths.Layout
	store        *store.Store
	materializer *materialize.Materializer
	fetcher      *fetch.Fetcher
	validator    *validator.Validator
	logger       *slog.Logger
}

// NewManager wires a Manager over fs. Root and Destination are made absolute.
func NewManager(fs afero.Fs, opts Options, logger *slog.Logger) (*Manager, error) {
	if fs == nil {
		return nil, errors.New("filesystem cannot be nil")
	}
	if strings.TrimSpace(opts.Root) == "" {
		return nil, errors.New("root cannot be empty")
	}
	if strings.TrimSpace(opts.Destination) == "" {
		return nil, errors.New("destination cannot be empty")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var err error
	if opts.Root, err = filepath.Abs(opts.Root); err != nil {
		return nil, oops.Wrapf(err, "resolve root")
	}
	if opts.Destination, err = filepath.Abs(opts.Destination); err != nil {
		return nil, oops.Wrapf(err, "resolve destination")
	}

	stor := storage.New(fs)
	if !stor.SupportsSymlinks() {
		return nil, oops.Wrapf(domain.ErrSymlinkUnsupported, "filesystem %s", fs.Name())
	}
	layout := paths.New(opts.Root)
	st := store.New(stor, layout, logger)
	bak := backup.New(stor, layout.InitDir(), logger)

	return &Manager{
		opts:         opts,
		storage:      stor,
		layout:       layout,
		store:        st,
		materializer: materialize.New(stor, st, bak, logger),
		fetcher: fetch.New(stor, layout, fetch.Options{
			RemoteBaseURL: opts.RemoteBaseURL,
			Branch:        opts.Branch,
			AssumeYes:     opts.AssumeYes,
			Confirmer:     opts.Confirmer,
		}, logger),
		validator: validator.New(),
		logger:    logger,
	}, nil
}

// Layout returns the paths of the management root.
func (m *Manager) Layout() *paths.Layout {
	return m.layout
}

// DryRun reports whether mutations are disabled.
func (m *Manager) DryRun() bool {
	return m.opts.DryRun
}

// ValidateName checks a configuration name given on the command line.
func (m *Manager) ValidateName(name string) (bool, error) {
	if name == paths.InitDirName {
		return true, nil
	}
	return m.validator.ValidateName(name)
}

// Apply fetches ref into the root, makes it current and projects it.
func (m *Manager) Apply(ctx context.Context, ref string) (*materialize.Result, error) {
	src, err := fetch.ParseSource(m.storage, ref)
	if err != nil {
		return nil, err
	}
	if valid, err := m.validator.ValidateName(src.DirName()); !valid {
		return nil, oops.Wrapf(err, "configuration name for %s", src)
	}
	if err := m.store.Initialize(); err != nil {
		return nil, err
	}

	dir, err := m.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	m.logger.Info("fetched configuration", "source", src.String(), "path", dir)
	return m.activate(dir)
}

// Revert swaps back to the previous configuration.
func (m *Manager) Revert() (*materialize.Result, error) {
	if err := m.store.Initialize(); err != nil {
		return nil, err
	}
	if m.opts.DryRun {
		prev, err := m.store.Previous()
		if err != nil {
			return nil, err
		}
		return m.plan(prev)
	}
	if err := m.store.ActivatePrevious(); err != nil {
		return nil, err
	}
	return m.materializer.Project(m.opts.Destination)
}

// Reset restores the init snapshot. Files are copied, so the root can be
// removed afterwards.
func (m *Manager) Reset() (*materialize.Result, error) {
	if err := m.store.Initialize(); err != nil {
		return nil, err
	}
	if m.opts.DryRun {
		return m.plan(m.layout.InitDir())
	}
	if err := m.store.ActivateInit(); err != nil {
		return nil, err
	}
	return m.materializer.Project(m.opts.Destination)
}

// Use switches to a configuration already present under the root. Any name
// the root lists is accepted, even one the validator would refuse for a new
// fetch.
func (m *Manager) Use(name string) (*materialize.Result, error) {
	name = strings.TrimSpace(name)
	if name == paths.InitDirName {
		return m.Reset()
	}
	if err := m.store.Initialize(); err != nil {
		return nil, err
	}
	dir, err := m.store.Lookup(name)
	if errors.Is(err, domain.ErrNotFound) {
		if _, verr := m.validator.NormalizeName(name); verr != nil {
			return nil, verr
		}
	}
	if err != nil {
		return nil, err
	}
	return m.activate(dir)
}

// List returns the configurations under the root for display.
func (m *Manager) List() ([]store.ListEntry, error) {
	if err := m.store.Initialize(); err != nil {
		return nil, err
	}
	return m.store.Entries()
}

// Names returns the selectable configuration names, init included.
func (m *Manager) Names() ([]string, error) {
	if err := m.store.Initialize(); err != nil {
		return nil, err
	}
	return m.store.Names()
}

// CurrentName returns the name of the current configuration, or its path
// when it lives outside the root.
func (m *Manager) CurrentName() (string, error) {
	current, err := m.store.Current()
	if err != nil {
		return "", err
	}
	return m.nameOf(current), nil
}

// Status reports the slots without changing anything.
func (m *Manager) Status() (*Status, error) {
	if err := m.store.Initialize(); err != nil {
		return nil, err
	}
	current, err := m.store.Current()
	if err != nil {
		return nil, err
	}
	prev, err := m.store.Previous()
	if err != nil {
		return nil, err
	}
	isInit, err := m.store.IsInitActive()
	if err != nil {
		return nil, err
	}
	mode := materialize.ModeLink
	if isInit {
		mode = materialize.ModeCopy
	}
	return &Status{
		Root:         m.layout.Root(),
		Destination:  m.opts.Destination,
		Current:      current,
		CurrentName:  m.nameOf(current),
		Previous:     prev,
		PreviousName: m.nameOf(prev),
		Mode:         mode,
	}, nil
}

// Preview plans the projection of the current configuration.
func (m *Manager) Preview() (*materialize.Plan, error) {
	if err := m.store.Initialize(); err != nil {
		return nil, err
	}
	return m.materializer.Plan(m.opts.Destination)
}

// activate makes dir current and projects it. In dry-run mode only the plan
// is computed.
func (m *Manager) activate(dir string) (*materialize.Result, error) {
	if m.opts.DryRun {
		return m.plan(dir)
	}
	if err := m.store.Activate(dir); err != nil {
		return nil, err
	}
	return m.materializer.Project(m.opts.Destination)
}

// plan checks dir the way Activate would and plans its projection without
// touching the slots or the destination.
func (m *Manager) plan(dir string) (*materialize.Result, error) {
	exists, err := m.storage.Exists(dir)
	if err != nil {
		return nil, oops.Wrapf(domain.FilesystemError(err), "inspect %s", dir)
	}
	if !exists {
		return nil, oops.Wrapf(domain.ErrTargetMissing, "%s", dir)
	}
	plan, err := m.materializer.PlanSource(dir, m.opts.Destination)
	if err != nil {
		return nil, err
	}
	return &materialize.Result{Plan: plan}, nil
}

func (m *Manager) nameOf(path string) string {
	rel, err := filepath.Rel(m.layout.Root(), path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return path
	}
	return rel
}
