package rc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenGG/rc4me/internal/rc/domain"
	"github.com/OpenGG/rc4me/internal/rc/materialize"
)

type testEnv struct {
	mgr  *Manager
	home string
	src  string
}

func newTestEnv(t *testing.T, configure func(*Options)) *testEnv {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	home := filepath.Join(dir, "home")
	src := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(home, 0o755))
	require.NoError(t, os.Mkdir(src, 0o755))

	opts := Options{
		Root:        filepath.Join(home, ".rc4me"),
		Destination: home,
	}
	if configure != nil {
		configure(&opts)
	}
	mgr, err := NewManager(afero.NewOsFs(), opts, nil)
	require.NoError(t, err)
	return &testEnv{mgr: mgr, home: home, src: src}
}

// source creates a plain directory of dotfiles outside the root.
func (e *testEnv) source(t *testing.T, name string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(e.src, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for file, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
	}
	return dir
}

func (e *testEnv) read(t *testing.T, name string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(e.home, name))
	require.NoError(t, err)
	return string(content)
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(nil, Options{Root: "/r", Destination: "/d"}, nil)
	assert.Error(t, err)

	_, err = NewManager(afero.NewOsFs(), Options{Destination: "/d"}, nil)
	assert.Error(t, err)

	_, err = NewManager(afero.NewOsFs(), Options{Root: "/r"}, nil)
	assert.Error(t, err)

	_, err = NewManager(afero.NewMemMapFs(), Options{Root: "/r", Destination: "/d"}, nil)
	assert.ErrorIs(t, err, domain.ErrSymlinkUnsupported)
}

func TestManager_EndToEnd(t *testing.T) {
	e := newTestEnv(t, nil)
	a := e.source(t, "A", map[string]string{"bashrc": "foo", "vimrc": "blah"})
	b := e.source(t, "B", map[string]string{"bashrc": "bar"})
	ctx := context.Background()

	_, err := e.mgr.Apply(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "foo", e.read(t, ".bashrc"))
	assert.Equal(t, "blah", e.read(t, ".vimrc"))

	_, err = e.mgr.Apply(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "bar", e.read(t, ".bashrc"))
	assert.Equal(t, "blah", e.read(t, ".vimrc"), "files missing from B keep pointing at A")

	_, err = e.mgr.Revert()
	require.NoError(t, err)
	assert.Equal(t, "foo", e.read(t, ".bashrc"))

	status, err := e.mgr.Status()
	require.NoError(t, err)
	assert.Equal(t, "A", status.CurrentName)
	assert.Equal(t, "B", status.PreviousName)
	assert.Equal(t, materialize.ModeLink, status.Mode)
}

func TestManager_ApplyBacksUpExistingFiles(t *testing.T) {
	e := newTestEnv(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(e.home, ".bashrc"), []byte("mine"), 0o644))
	a := e.source(t, "A", map[string]string{"bashrc": "foo"})

	result, err := e.mgr.Apply(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BackedUp)
	assert.Equal(t, 1, result.Linked)

	backup, err := os.ReadFile(filepath.Join(e.mgr.Layout().InitDir(), "bashrc"))
	require.NoError(t, err)
	assert.Equal(t, "mine", string(backup))
}

func TestManager_ResetRestoresOriginals(t *testing.T) {
	e := newTestEnv(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(e.home, ".bashrc"), []byte("mine"), 0o644))
	a := e.source(t, "A", map[string]string{"bashrc": "foo"})

	_, err := e.mgr.Apply(context.Background(), a)
	require.NoError(t, err)

	result, err := e.mgr.Reset()
	require.NoError(t, err)
	assert.Equal(t, materialize.ModeCopy, result.Plan.Mode)
	assert.Equal(t, "mine", e.read(t, ".bashrc"))

	require.NoError(t, os.RemoveAll(e.mgr.Layout().Root()))
	assert.Equal(t, "mine", e.read(t, ".bashrc"))
}

func TestManager_Use(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	_, err := e.mgr.Apply(ctx, e.source(t, "A", map[string]string{"bashrc": "foo"}))
	require.NoError(t, err)
	_, err = e.mgr.Apply(ctx, e.source(t, "B", map[string]string{"bashrc": "bar"}))
	require.NoError(t, err)

	_, err = e.mgr.Use("A")
	require.NoError(t, err)
	assert.Equal(t, "foo", e.read(t, ".bashrc"))

	name, err := e.mgr.CurrentName()
	require.NoError(t, err)
	assert.Equal(t, "A", name)

	_, err = e.mgr.Use("init")
	require.NoError(t, err)
	name, err = e.mgr.CurrentName()
	require.NoError(t, err)
	assert.Equal(t, "init", name)

	_, err = e.mgr.Use("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.mgr.Use("current")
	assert.ErrorIs(t, err, domain.ErrConfigNameReserved)
}

func TestManager_UseListedDirectoryWithUnusualName(t *testing.T) {
	e := newTestEnv(t, nil)
	names, err := e.mgr.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"init"}, names)

	dir := filepath.Join(e.mgr.Layout().Root(), "dötfiles")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bashrc"), []byte("hand"), 0o644))

	names, err = e.mgr.Names()
	require.NoError(t, err)
	require.Contains(t, names, "dötfiles")

	_, err = e.mgr.Use("dötfiles")
	require.NoError(t, err)
	assert.Equal(t, "hand", e.read(t, ".bashrc"))

	_, err = e.mgr.Use("nöne")
	assert.ErrorIs(t, err, domain.ErrConfigNameNonPrintable)
}

func TestManager_RevertToggles(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	_, err := e.mgr.Apply(ctx, e.source(t, "A", map[string]string{"bashrc": "foo"}))
	require.NoError(t, err)
	_, err = e.mgr.Apply(ctx, e.source(t, "B", map[string]string{"bashrc": "bar"}))
	require.NoError(t, err)

	_, err = e.mgr.Revert()
	require.NoError(t, err)
	status, err := e.mgr.Status()
	require.NoError(t, err)
	assert.Equal(t, "A", status.CurrentName)
	assert.Equal(t, "B", status.PreviousName)
	assert.Equal(t, "foo", e.read(t, ".bashrc"))

	_, err = e.mgr.Revert()
	require.NoError(t, err)
	status, err = e.mgr.Status()
	require.NoError(t, err)
	assert.Equal(t, "B", status.CurrentName)
	assert.Equal(t, "A", status.PreviousName)
	assert.Equal(t, "bar", e.read(t, ".bashrc"))

	_, err = e.mgr.Reset()
	require.NoError(t, err)
	status, err = e.mgr.Status()
	require.NoError(t, err)
	assert.Equal(t, "init", status.CurrentName)
	assert.Equal(t, "B", status.PreviousName)
	assert.Equal(t, materialize.ModeCopy, status.Mode)
}

func TestManager_DryRunRevertAndReset(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	home := filepath.Join(dir, "home")
	require.NoError(t, os.Mkdir(home, 0o755))
	a := filepath.Join(dir, "A")
	require.NoError(t, os.Mkdir(a, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(a, "bashrc"), []byte("foo"), 0o644))
	opts := Options{Root: filepath.Join(home, ".rc4me"), Destination: home}

	live, err := NewManager(afero.NewOsFs(), opts, nil)
	require.NoError(t, err)
	_, err = live.Apply(context.Background(), a)
	require.NoError(t, err)

	opts.DryRun = true
	dry, err := NewManager(afero.NewOsFs(), opts, nil)
	require.NoError(t, err)

	result, err := dry.Revert()
	require.NoError(t, err)
	assert.Equal(t, materialize.ModeCopy, result.Plan.Mode)

	result, err = dry.Reset()
	require.NoError(t, err)
	assert.Equal(t, materialize.ModeCopy, result.Plan.Mode)
	assert.Zero(t, result.Copied)

	name, err := dry.CurrentName()
	require.NoError(t, err)
	assert.Equal(t, "A", name)
	link, err := os.Readlink(filepath.Join(home, ".bashrc"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(opts.Root, "A", "bashrc"), link)
}

func TestManager_ApplyRejectsReservedName(t *testing.T) {
	e := newTestEnv(t, nil)
	src := e.source(t, "current", map[string]string{"bashrc": "foo"})

	_, err := e.mgr.Apply(context.Background(), src)
	assert.ErrorIs(t, err, domain.ErrConfigNameReserved)
	_, err = os.Lstat(filepath.Join(e.home, ".bashrc"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestManager_ApplyUnknownReference(t *testing.T) {
	e := newTestEnv(t, nil)
	_, err := e.mgr.Apply(context.Background(), "not a repo")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManager_ApplyFetchFailureLeavesSlots(t *testing.T) {
	e := newTestEnv(t, func(o *Options) {
		o.RemoteBaseURL = "file:///nonexistent-rc4me-remote"
	})
	ctx := context.Background()
	a := e.source(t, "A", map[string]string{"bashrc": "foo"})
	_, err := e.mgr.Apply(ctx, a)
	require.NoError(t, err)

	_, err = e.mgr.Apply(ctx, "someone/dotfiles")
	assert.ErrorIs(t, err, domain.ErrFetch)

	name, err := e.mgr.CurrentName()
	require.NoError(t, err)
	assert.Equal(t, "A", name)
	assert.Equal(t, "foo", e.read(t, ".bashrc"))
}

func TestManager_DryRunLeavesEverything(t *testing.T) {
	e := newTestEnv(t, func(o *Options) { o.DryRun = true })
	require.NoError(t, os.WriteFile(filepath.Join(e.home, ".bashrc"), []byte("mine"), 0o644))
	a := e.source(t, "A", map[string]string{"bashrc": "foo", "vimrc": "blah"})

	result, err := e.mgr.Apply(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, result.Plan.Ops, 2)
	assert.True(t, result.Plan.Ops[0].NeedsBackup())
	assert.Zero(t, result.Linked)

	assert.Equal(t, "mine", e.read(t, ".bashrc"))
	name, err := e.mgr.CurrentName()
	require.NoError(t, err)
	assert.Equal(t, "init", name)
}

func TestManager_ListAndNames(t *testing.T) {
	e := newTestEnv(t, nil)
	_, err := e.mgr.Apply(context.Background(), e.source(t, "A", map[string]string{"bashrc": "foo"}))
	require.NoError(t, err)

	names, err := e.mgr.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "init"}, names)

	entries, err := e.mgr.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].IsCurrent())
	assert.Equal(t, []string{"previous", "snapshot"}, entries[1].Qualifiers)
}

func TestManager_Preview(t *testing.T) {
	e := newTestEnv(t, nil)
	_, err := e.mgr.Apply(context.Background(), e.source(t, "A", map[string]string{"bashrc": "foo", "README.md": "x"}))
	require.NoError(t, err)

	plan, err := e.mgr.Preview()
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)
	assert.Equal(t, materialize.ExistingLink, plan.Ops[0].Existing)
	assert.Equal(t, filepath.Join(e.home, ".bashrc"), plan.Ops[0].Target)
}

func TestManager_ValidateName(t *testing.T) {
	e := newTestEnv(t, nil)
	ok, err := e.mgr.ValidateName("init")
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = e.mgr.ValidateName("prev")
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrConfigNameReserved)
}
