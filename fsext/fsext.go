// Package fsext is a thin layer over afero used everywhere the server
// touches a filesystem, so tests can swap in an in-memory tree. It adds
// the Perl-specific helpers: workspace walking for indexable files,
// file↔URI mapping, and @INC-style module path resolution.
package fsext

import (
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/afero"
)

// Fs is the filesystem abstraction used throughout.
type Fs = afero.Fs

// NewOsFs returns the real filesystem.
func NewOsFs() Fs { return afero.NewOsFs() }

// NewMemMapFs returns an in-memory filesystem for tests.
func NewMemMapFs() Fs { return afero.NewMemMapFs() }

// ReadFile reads a whole file.
func ReadFile(fs Fs, name string) ([]byte, error) { return afero.ReadFile(fs, name) }

// WriteFile writes a whole file.
func WriteFile(fs Fs, name string, data []byte, perm os.FileMode) error {
	return afero.WriteFile(fs, name, data, perm)
}

// Exists reports whether a path exists.
func Exists(fs Fs, name string) bool {
	ok, err := afero.Exists(fs, name)
	return err == nil && ok
}

// perlExtensions are the file suffixes the workspace indexer cares about.
var perlExtensions = map[string]bool{
	".pl": true, ".pm": true, ".t": true, ".psgi": true, ".cgi": true,
}

// IsPerlFile reports whether path looks like a Perl source file.
func IsPerlFile(path string) bool {
	return perlExtensions[strings.ToLower(filepath.Ext(path))]
}

// WalkPerlFiles walks root and calls fn for every Perl source file.
// Dotted directories and common dependency dirs are skipped.
func WalkPerlFiles(fs Fs, root string, fn func(path string) error) error {
	return afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if info.IsDir() {
			base := filepath.Base(path)
			if path != root && (strings.HasPrefix(base, ".") || base == "blib" || base == "local" || base == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsPerlFile(path) {
			return nil
		}
		return fn(path)
	})
}

// FileURI converts a filesystem path to a file:// URI.
func FileURI(path string) string {
	path = filepath.ToSlash(path)
	if runtime.GOOS == "windows" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "file://" + (&url.URL{Path: path}).EscapedPath()
}

// URIToPath converts a file:// URI back to a filesystem path. Non-file
// URIs come back unchanged with ok=false.
func URIToPath(uri string) (string, bool) {
	if !strings.HasPrefix(uri, "file://") {
		return uri, false
	}
	u, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "file://"), true
	}
	p := u.Path
	if runtime.GOOS == "windows" {
		p = strings.TrimPrefix(p, "/")
		p = filepath.FromSlash(p)
	}
	return p, true
}

// ModuleRelPath converts Foo::Bar::Baz to Foo/Bar/Baz.pm.
func ModuleRelPath(module string) string {
	return filepath.FromSlash(strings.ReplaceAll(module, "::", "/")) + ".pm"
}

// PathToModule converts a path ending in .pm under any of the given roots
// back to a Module::Name; falls back to the bare basename.
func PathToModule(path string, roots []string) string {
	for _, root := range roots {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			rel = strings.TrimSuffix(filepath.ToSlash(rel), ".pm")
			return strings.ReplaceAll(rel, "/", "::")
		}
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return base
}

// ResolveModule finds the file for `use Module` by probing the workspace
// roots and include paths in order.
func ResolveModule(fs Fs, module string, roots, includePaths []string) (string, bool) {
	rel := ModuleRelPath(module)
	probe := make([]string, 0, len(roots)*2+len(includePaths))
	for _, r := range roots {
		probe = append(probe, filepath.Join(r, rel), filepath.Join(r, "lib", rel))
	}
	for _, inc := range includePaths {
		probe = append(probe, filepath.Join(inc, rel))
	}
	for _, cand := range probe {
		if Exists(fs, cand) {
			return cand, true
		}
	}
	return "", false
}
