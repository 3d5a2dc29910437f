package sourcemap

import (
	"path/filepath"
	"strings"
)

// ToRelative rewrites the sources of "m" to be relative to the directory of
// "filename". Relative sources are left alone. A nil map is ignored.
func ToRelative(m *Map, filename string) {
	if m == nil {
		return
	}
	dir := filepath.Dir(filename)
	for i, source := range m.Sources {
		if source == "" {
			continue
		}
		sourcePath := source
		if strings.HasPrefix(source, "file://") {
			sourcePath = filepath.FromSlash(strings.TrimPrefix(source, "file://"))
		} else if m.SourceRoot != "" {
			sourcePath = filepath.Join(m.SourceRoot, source)
		}
		if filepath.IsAbs(sourcePath) {
			if rel, err := filepath.Rel(dir, sourcePath); err == nil {
				sourcePath = rel
			}
		}
		m.Sources[i] = filepath.ToSlash(sourcePath)
	}
	if m.File != "" {
		m.File = filepath.Base(filename)
	}
	m.SourceRoot = ""
}

// StripSuffix removes "suffix" from the end of the file and every source of
// "m". Running it twice is the same as running it once.
func StripSuffix(m *Map, suffix string) {
	if m == nil || suffix == "" {
		return
	}
	m.File = strings.TrimSuffix(m.File, suffix)
	for i, source := range m.Sources {
		m.Sources[i] = strings.TrimSuffix(source, suffix)
	}
}
