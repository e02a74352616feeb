package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenGG/rc4me/internal/rc/domain"
	"github.com/OpenGG/rc4me/internal/rc/paths"
	"github.com/OpenGG/rc4me/internal/rc/storage"
)

type stubConfirmer struct {
	answer   bool
	err      error
	messages []string
}

func (s *stubConfirmer) Confirm(message string) (bool, error) {
	s.messages = append(s.messages, message)
	return s.answer, s.err
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func newTestFetcher(t *testing.T, opts Options) (*Fetcher, *paths.Layout) {
	t.Helper()
	layout := paths.New(filepath.Join(tempDir(t), paths.RootDirName))
	require.NoError(t, os.MkdirAll(layout.Root(), 0o755))
	return New(storage.New(afero.NewOsFs()), layout, opts, nil), layout
}

func initRepo(t *testing.T, files map[string]string) (string, *git.Repository) {
	t.Helper()
	dir := filepath.Join(tempDir(t), "dotfiles")
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	commitFiles(t, repo, dir, files)
	return dir, repo
}

func commitFiles(t *testing.T, repo *git.Repository, dir string, files map[string]string) {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	_, err = wt.Commit("update dotfiles", &git.CommitOptions{
		Author: &object.Signature{Name: "rc4me", Email: "rc4me@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestFetch_ClonesLocalRepository(t *testing.T) {
	f, layout := newTestFetcher(t, Options{})
	src, _ := initRepo(t, map[string]string{"bashrc": "foo"})

	dir, err := f.Fetch(context.Background(), Local{Path: src})
	require.NoError(t, err)
	assert.Equal(t, layout.ConfigDir("dotfiles"), dir)
	assert.Equal(t, "foo", readFile(t, filepath.Join(dir, "bashrc")))
	assert.DirExists(t, filepath.Join(dir, ".git"))
}

func TestFetch_CopiesPlainDirectory(t *testing.T) {
	f, layout := newTestFetcher(t, Options{})
	src := filepath.Join(tempDir(t), "plain")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "vimrc"), []byte("blah"), 0o644))

	dir, err := f.Fetch(context.Background(), Local{Path: src})
	require.NoError(t, err)
	assert.Equal(t, layout.ConfigDir("plain"), dir)
	assert.Equal(t, "blah", readFile(t, filepath.Join(dir, "vimrc")))
	assert.NoDirExists(t, filepath.Join(dir, "nested"))
}

func TestFetch_ExistingPlainDirectoryUsedAsIs(t *testing.T) {
	f, layout := newTestFetcher(t, Options{})
	existing := layout.ConfigDir("plain")
	require.NoError(t, os.Mkdir(existing, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(existing, "bashrc"), []byte("kept"), 0o644))

	dir, err := f.Fetch(context.Background(), Local{Path: "/elsewhere/plain"})
	require.NoError(t, err)
	assert.Equal(t, existing, dir)
	assert.Equal(t, "kept", readFile(t, filepath.Join(dir, "bashrc")))
}

func TestFetch_RefreshesCopyOfPlainDirectory(t *testing.T) {
	f, _ := newTestFetcher(t, Options{})
	src := filepath.Join(tempDir(t), "plain")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "vimrc"), []byte("blah"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "inputrc"), []byte("old"), 0o644))

	dir, err := f.Fetch(context.Background(), Local{Path: src})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(src, "vimrc"), []byte("edited"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "bashrc"), []byte("new"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(src, "inputrc")))

	again, err := f.Fetch(context.Background(), Local{Path: src})
	require.NoError(t, err)
	assert.Equal(t, dir, again)
	assert.Equal(t, "edited", readFile(t, filepath.Join(dir, "vimrc")))
	assert.Equal(t, "new", readFile(t, filepath.Join(dir, "bashrc")))
	assert.Equal(t, "old", readFile(t, filepath.Join(dir, "inputrc")), "removed files stay in the copy")
}

func TestFetch_UpToDateCloneDoesNotAsk(t *testing.T) {
	confirmer := &stubConfirmer{answer: true}
	f, _ := newTestFetcher(t, Options{Confirmer: confirmer})
	src, _ := initRepo(t, map[string]string{"bashrc": "foo"})

	_, err := f.Fetch(context.Background(), Local{Path: src})
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), Local{Path: src})
	require.NoError(t, err)

	assert.Empty(t, confirmer.messages)
}

func TestFetch_PullsAfterConfirmation(t *testing.T) {
	confirmer := &stubConfirmer{answer: true}
	f, _ := newTestFetcher(t, Options{Confirmer: confirmer})
	src, repo := initRepo(t, map[string]string{"bashrc": "foo"})

	dir, err := f.Fetch(context.Background(), Local{Path: src})
	require.NoError(t, err)
	commitFiles(t, repo, src, map[string]string{"bashrc": "bar"})

	_, err = f.Fetch(context.Background(), Local{Path: src})
	require.NoError(t, err)

	require.Len(t, confirmer.messages, 1)
	assert.Contains(t, confirmer.messages[0], "has new updates")
	assert.Equal(t, "bar", readFile(t, filepath.Join(dir, "bashrc")))
}

func TestFetch_DeclinedPullKeepsWorktree(t *testing.T) {
	confirmer := &stubConfirmer{answer: false}
	f, _ := newTestFetcher(t, Options{Confirmer: confirmer})
	src, repo := initRepo(t, map[string]string{"bashrc": "foo"})

	dir, err := f.Fetch(context.Background(), Local{Path: src})
	require.NoError(t, err)
	commitFiles(t, repo, src, map[string]string{"bashrc": "bar"})

	_, err = f.Fetch(context.Background(), Local{Path: src})
	require.NoError(t, err)

	assert.Len(t, confirmer.messages, 1)
	assert.Equal(t, "foo", readFile(t, filepath.Join(dir, "bashrc")))
}

func TestFetch_AssumeYesSkipsConfirmation(t *testing.T) {
	confirmer := &stubConfirmer{answer: false}
	f, _ := newTestFetcher(t, Options{Confirmer: confirmer, AssumeYes: true})
	src, repo := initRepo(t, map[string]string{"bashrc": "foo"})

	dir, err := f.Fetch(context.Background(), Local{Path: src})
	require.NoError(t, err)
	commitFiles(t, repo, src, map[string]string{"bashrc": "bar"})

	_, err = f.Fetch(context.Background(), Local{Path: src})
	require.NoError(t, err)

	assert.Empty(t, confirmer.messages)
	assert.Equal(t, "bar", readFile(t, filepath.Join(dir, "bashrc")))
}

func TestFetch_ConfirmerError(t *testing.T) {
	cancelled := errors.New("cancelled")
	confirmer := &stubConfirmer{err: cancelled}
	f, _ := newTestFetcher(t, Options{Confirmer: confirmer})
	src, repo := initRepo(t, map[string]string{"bashrc": "foo"})

	_, err := f.Fetch(context.Background(), Local{Path: src})
	require.NoError(t, err)
	commitFiles(t, repo, src, map[string]string{"bashrc": "bar"})

	_, err = f.Fetch(context.Background(), Local{Path: src})
	assert.ErrorIs(t, err, cancelled)
}

func TestFetch_UnreachableRemote(t *testing.T) {
	f, layout := newTestFetcher(t, Options{RemoteBaseURL: "file://" + tempDir(t)})

	_, err := f.Fetch(context.Background(), Remote{Owner: "nobody", Name: "nothing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFetch)
	assert.NoDirExists(t, layout.ConfigDir("nobody_nothing"))
}

func TestAuthFromEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GITLAB_TOKEN", "")
	t.Setenv("GIT_TOKEN", "")
	assert.Nil(t, authFromEnv())

	t.Setenv("GIT_TOKEN", "generic")
	assert.Equal(t, &http.BasicAuth{Username: "git", Password: "generic"}, authFromEnv())

	t.Setenv("GITHUB_TOKEN", "gh")
	assert.Equal(t, &http.BasicAuth{Username: "x-access-token", Password: "gh"}, authFromEnv())
}
