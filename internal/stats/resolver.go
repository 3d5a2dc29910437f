package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// PackageResolver attributes files to the package that owns them. The owner
// is the nearest "package.json" above the file that declares a name. Known
// package directories are remembered so files under them need no lookup.
type PackageResolver struct {
	ReadFile func(path string) ([]byte, error)

	mutex    sync.RWMutex
	packages map[string]string
	group    singleflight.Group
}

func NewPackageResolver() *PackageResolver {
	return &PackageResolver{ReadFile: os.ReadFile}
}

// Resolve returns the package name for a file, or "" if no named manifest
// exists above it
func (r *PackageResolver) Resolve(filename string) string {
	dir := filepath.Dir(filename)

	if name, ok := r.cached(dir); ok {
		return name
	}

	value, _, _ := r.group.Do(dir, func() (interface{}, error) {
		pkgDir, name := r.lookup(dir)
		if name != "" {
			r.mutex.Lock()
			if r.packages == nil {
				r.packages = make(map[string]string)
			}
			r.packages[pkgDir] = name
			r.mutex.Unlock()
		}
		return name, nil
	})
	return value.(string)
}

// The longest known directory wins. A directory behind a nested
// "node_modules" never matches the outer package.
func (r *PackageResolver) cached(dir string) (string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	best, bestName := "", ""
	for pkgDir, name := range r.packages {
		if len(pkgDir) > len(best) && isWithin(pkgDir, dir) {
			best, bestName = pkgDir, name
		}
	}
	return bestName, best != ""
}

func (r *PackageResolver) lookup(dir string) (string, string) {
	readFile := r.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}

	for {
		if data, err := readFile(filepath.Join(dir, "package.json")); err == nil {
			var manifest struct {
				Name string `json:"name"`
			}
			if json.Unmarshal(data, &manifest) == nil && manifest.Name != "" {
				return dir, manifest.Name
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ""
		}
		dir = parent
	}
}

func isWithin(parent string, dir string) bool {
	if dir == parent {
		return true
	}
	prefix := parent
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(dir, prefix) {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(dir[len(prefix):]), "/") {
		if part == "node_modules" {
			return false
		}
	}
	return true
}
