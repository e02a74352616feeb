package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/samber/oops"

	"github.com/OpenGG/rc4me/internal/rc/domain"
	"github.com/OpenGG/rc4me/internal/rc/paths"
	"github.com/OpenGG/rc4me/internal/rc/storage"
)

const remoteName = "origin"

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(message string) (bool, error)
}

// Options tune how repositories are fetched.
type Options struct {
	// RemoteBaseURL hosts owner/name references. Empty means GitHub.
	RemoteBaseURL string
	// Branch overrides the remote HEAD when set.
	Branch string
	// AssumeYes pulls new upstream commits without asking.
	AssumeYes bool
	// Confirmer is asked before pulling into an existing clone.
	Confirmer Confirmer
	// Auth overrides credentials found in the environment.
	Auth transport.AuthMethod
}

// Fetcher materialises sources as configuration directories under the root.
type Fetcher struct {
	storage *storage.Storage
	layout  *paths.Layout
	opts    Options
	auth    transport.AuthMethod
	logger  *slog.Logger
}

// New creates a Fetcher. Git operations run against the real filesystem.
func New(storage *storage.Storage, layout *paths.Layout, opts Options, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	auth := opts.Auth
	if auth == nil {
		auth = authFromEnv()
	}
	return &Fetcher{
		storage: storage,
		layout:  layout,
		opts:    opts,
		auth:    auth,
		logger:  logger,
	}
}

// Fetch makes the configuration for src present under the root and returns
// its directory.
//
// An existing clone is fetched and, once confirmed, fast-forwarded. A copy
// of a plain local directory is refreshed from that directory; files removed
// from the source stay in the copy. Other existing directories are used as
// they are.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (string, error) {
	dest := f.layout.ConfigDir(src.DirName())

	exists, err := f.storage.Exists(dest)
	if err != nil {
		return "", oops.Wrapf(domain.FilesystemError(err), "inspect %s", dest)
	}
	if exists {
		if local, ok := src.(Local); ok && f.isPlainDir(local.Path) && !isRepository(dest) {
			f.logger.Info("refreshing copy", "source", local.Path, "path", dest)
			return dest, f.copyFiles(local.Path, dest)
		}
		if err := f.update(ctx, dest, src); err != nil {
			return "", err
		}
		return dest, nil
	}

	switch s := src.(type) {
	case Local:
		if isRepository(s.Path) {
			return dest, f.clone(ctx, s.Path, dest, false)
		}
		return dest, f.copyDir(s.Path, dest)
	case Remote:
		return dest, f.clone(ctx, s.URL(f.opts.RemoteBaseURL), dest, true)
	default:
		return "", oops.Wrapf(domain.ErrFetch, "unsupported source %T", src)
	}
}

func (f *Fetcher) update(ctx context.Context, dest string, src Source) error {
	repo, err := git.PlainOpen(dest)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		f.logger.Debug("configuration is not a repository, using as is", "path", dest)
		return nil
	}
	if err != nil {
		return oops.Wrapf(domain.FetchError(err), "open %s", dest)
	}

	f.logger.Info("fetching updates", "repository", src.String(), "path", dest)
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		Auth:       f.authFor(src),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return oops.Wrapf(domain.FetchError(err), "fetch %s", src)
	}

	head, err := repo.Head()
	if err != nil {
		return oops.Wrapf(domain.FetchError(err), "read HEAD of %s", dest)
	}
	if !head.Name().IsBranch() {
		f.logger.Warn("detached HEAD, not pulling", "path", dest)
		return nil
	}
	tracking, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, head.Name().Short()), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil
	}
	if err != nil {
		return oops.Wrapf(domain.FetchError(err), "read remote branch of %s", dest)
	}
	if tracking.Hash() == head.Hash() {
		f.logger.Debug("repository up to date", "path", dest)
		return nil
	}

	pull, err := f.confirmPull(src)
	if err != nil || !pull {
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return oops.Wrapf(domain.FetchError(err), "open worktree %s", dest)
	}
	f.logger.Info("pulling updates", "repository", src.String(), "branch", head.Name().Short())
	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    remoteName,
		ReferenceName: head.Name(),
		SingleBranch:  true,
		Auth:          f.authFor(src),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return oops.Wrapf(domain.FetchError(err), "pull %s", src)
	}
	return nil
}

func (f *Fetcher) confirmPull(src Source) (bool, error) {
	if f.opts.AssumeYes {
		return true, nil
	}
	if f.opts.Confirmer == nil {
		f.logger.Warn("repository has new updates, not pulling", "repository", src.String())
		return false, nil
	}
	ok, err := f.opts.Confirmer.Confirm(fmt.Sprintf("Repository %s has new updates. Pull changes?", src))
	if err != nil {
		return false, oops.Wrapf(err, "confirm pull")
	}
	return ok, nil
}

func (f *Fetcher) clone(ctx context.Context, url, dest string, remote bool) error {
	opts := &git.CloneOptions{
		URL:        url,
		RemoteName: remoteName,
	}
	if remote {
		opts.Auth = f.auth
		opts.Depth = 1
	}
	if f.opts.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(f.opts.Branch)
		opts.SingleBranch = true
	}

	f.logger.Info("cloning repository", "url", url, "path", dest)
	if _, err := git.PlainCloneContext(ctx, dest, false, opts); err != nil {
		// a failed clone must not be mistaken for a configuration later
		_ = f.storage.RemoveAll(dest)
		return oops.Wrapf(domain.FetchError(err), "clone %s", url)
	}
	return nil
}

// copyDir copies the top-level regular files of a plain directory into a
// new configuration directory.
func (f *Fetcher) copyDir(src, dest string) error {
	if err := f.storage.Mkdir(dest); err != nil {
		return oops.Wrapf(domain.FilesystemError(err), "create %s", dest)
	}
	f.logger.Info("copying directory", "source", src, "path", dest)
	if err := f.copyFiles(src, dest); err != nil {
		_ = f.storage.RemoveAll(dest)
		return err
	}
	return nil
}

// copyFiles overwrites dest's copies of src's top-level regular files.
func (f *Fetcher) copyFiles(src, dest string) error {
	entries, err := f.storage.ReadDir(src)
	if err != nil {
		return oops.Wrapf(domain.FetchError(err), "read %s", src)
	}
	for _, entry := range entries {
		if !entry.Mode().IsRegular() {
			continue
		}
		from := filepath.Join(src, entry.Name())
		if err := f.storage.CopyFile(from, filepath.Join(dest, entry.Name())); err != nil {
			return oops.Wrapf(domain.FetchError(err), "copy %s", from)
		}
	}
	return nil
}

// isPlainDir reports whether path is an existing directory that is not a
// repository.
func (f *Fetcher) isPlainDir(path string) bool {
	isDir, err := f.storage.IsDir(path)
	return err == nil && isDir && !isRepository(path)
}

func (f *Fetcher) authFor(src Source) transport.AuthMethod {
	if _, ok := src.(Remote); ok {
		return f.auth
	}
	return nil
}

func isRepository(path string) bool {
	_, err := git.PlainOpen(path)
	return err == nil
}

// authFromEnv builds HTTP credentials from the usual token variables.
// Public repositories need none.
func authFromEnv() transport.AuthMethod {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return &http.BasicAuth{Username: "x-access-token", Password: token}
	}
	if token := os.Getenv("GITLAB_TOKEN"); token != "" {
		return &http.BasicAuth{Username: "gitlab-ci-token", Password: token}
	}
	if token := os.Getenv("GIT_TOKEN"); token != "" {
		return &http.BasicAuth{Username: "git", Password: token}
	}
	return nil
}
