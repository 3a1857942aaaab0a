// Package workdir resolves the directory the local store lives under,
// following .qlog-root redirect files.
package workdir

import (
	"os"
	"path/filepath"
	"strings"
)

// RootFile redirects a directory to another data root. Its content is a path,
// absolute or relative to the directory holding the file.
const RootFile = ".qlog-root"

// ResolveBaseDir returns the directory named by a RootFile in baseDir, or
// baseDir itself when there is none. Only one redirect is followed.
func ResolveBaseDir(baseDir string) string {
	content, err := os.ReadFile(filepath.Join(baseDir, RootFile))
	if err != nil {
		return baseDir
	}
	resolved := strings.TrimSpace(string(content))
	if resolved == "" {
		return baseDir
	}
	if strings.HasPrefix(resolved, "~"+string(filepath.Separator)) || resolved == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			resolved = filepath.Join(home, strings.TrimPrefix(resolved, "~"))
		}
	}
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(baseDir, resolved)
	}
	return filepath.Clean(resolved)
}
