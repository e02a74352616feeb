package store

import (
	"path/filepath"

	"github.com/OpenGG/rc4me/internal/rc/paths"
)

// ListEntry describes a configuration for list output.
type ListEntry struct {
	Name       string
	Path       string
	Prefix     string
	Qualifiers []string
}

// IsCurrent reports whether the entry is the active configuration.
func (e ListEntry) IsCurrent() bool {
	return e.Prefix == "*" || e.Prefix == "!"
}

// Entries computes formatted entries for display in the list command.
//
// Each entry includes:
//   - Name: The configuration directory name
//   - Prefix: Visual indicator (* = current, ! = current but missing, space = other)
//   - Qualifiers: Tags like "current", "previous", "snapshot", "missing!"
//
// When current points outside the root, a trailing entry describes it, marked
// missing if the directory no longer exists.
func (s *Store) Entries() ([]ListEntry, error) {
	names, err := s.Names()
	if err != nil {
		return nil, err
	}
	current, err := s.Current()
	if err != nil {
		return nil, err
	}
	previous, err := s.Previous()
	if err != nil {
		return nil, err
	}

	entries := make([]ListEntry, 0, len(names)+1)
	currentHandled := false
	for _, name := range names {
		path := s.layout.ConfigDir(name)
		resolved, err := s.storage.Resolve(path)
		if err != nil {
			resolved = path
		}
		entry := ListEntry{Name: name, Path: path, Prefix: " "}
		if resolved == current {
			entry.Prefix = "*"
			entry.Qualifiers = append(entry.Qualifiers, "current")
			currentHandled = true
		}
		if resolved == previous {
			entry.Qualifiers = append(entry.Qualifiers, "previous")
		}
		if name == paths.InitDirName {
			entry.Qualifiers = append(entry.Qualifiers, "snapshot")
		}
		entries = append(entries, entry)
	}

	if !currentHandled {
		entry := ListEntry{
			Name:       filepath.Base(current),
			Path:       current,
			Prefix:     "*",
			Qualifiers: []string{"current", "external"},
		}
		if exists, err := s.storage.Exists(current); err != nil || !exists {
			entry.Prefix = "!"
			entry.Qualifiers = []string{"current", "missing!"}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
