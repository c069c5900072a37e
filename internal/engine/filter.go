package engine

import (
	"io/fs"
	"strings"
)

// DefaultExtensions is the set of name suffixes eligible for classification.
var DefaultExtensions = []string{"png"}

// ExtensionFilter selects directory entries by name suffix.
// Suffixes are matched literally: "png" also matches "foo.xpng", while ".png"
// requires the dot.
type ExtensionFilter struct {
	Extensions      []string
	CaseInsensitive bool
}

// Match reports whether a file name ends with one of the configured suffixes.
func (f ExtensionFilter) Match(name string) bool {
	exts := f.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	if f.CaseInsensitive {
		name = strings.ToLower(name)
	}
	for _, ext := range exts {
		if f.CaseInsensitive {
			ext = strings.ToLower(ext)
		}
		if ext != "" && strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// Eligible returns the names of the non-directory entries that match.
func (f ExtensionFilter) Eligible(entries []fs.DirEntry) []string {
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if f.Match(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	return names
}
