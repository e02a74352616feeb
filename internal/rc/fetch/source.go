package fetch

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/adrg/xdg"
	"github.com/samber/oops"

	"github.com/OpenGG/rc4me/internal/rc/domain"
	"github.com/OpenGG/rc4me/internal/rc/storage"
)

// DefaultRemoteBaseURL hosts owner/name references.
const DefaultRemoteBaseURL = "https://github.com"

var remotePattern = regexp.MustCompile(`^([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)$`)

// Source is where a configuration comes from. It is either Local or Remote.
type Source interface {
	// DirName is the name of the configuration directory under the root.
	DirName() string
	String() string
	isSource()
}

// Local is a directory on this machine, a git repository or plain files.
type Local struct {
	Path string
}

func (l Local) DirName() string { return filepath.Base(l.Path) }
func (l Local) String() string  { return l.Path }
func (Local) isSource()         {}

// Remote is an owner/name repository on the remote host.
type Remote struct {
	Owner string
	Name  string
}

func (r Remote) DirName() string { return r.Owner + "_" + r.Name }
func (r Remote) String() string  { return r.Owner + "/" + r.Name }
func (Remote) isSource()         {}

// URL returns the clone URL of the repository under baseURL.
func (r Remote) URL(baseURL string) string {
	if baseURL == "" {
		baseURL = DefaultRemoteBaseURL
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(baseURL, "/"), r.Owner, r.Name)
}

// ParseSource decides once whether ref names a local directory or a remote
// repository. Existing paths win over the owner/name form.
func ParseSource(st *storage.Storage, ref string) (Source, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, oops.Wrapf(domain.ErrNotFound, "empty repository reference")
	}

	path := expandHome(ref)
	exists, err := st.Exists(path)
	if err != nil {
		return nil, oops.Wrapf(domain.FilesystemError(err), "inspect %s", path)
	}
	if exists {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, oops.Wrapf(domain.FilesystemError(err), "resolve %s", path)
		}
		return Local{Path: abs}, nil
	}

	if m := remotePattern.FindStringSubmatch(ref); m != nil {
		return Remote{Owner: m[1], Name: strings.TrimSuffix(m[2], ".git")}, nil
	}
	return nil, oops.Wrapf(domain.ErrNotFound, "%q is neither a local path nor an owner/name repository", ref)
}

func expandHome(path string) string {
	if path == "~" {
		return xdg.Home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(xdg.Home, path[2:])
	}
	return path
}
