// Package discover finds the source files `treedeco check` analyses.
package discover

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/treedeco/internal/lang"
)

// DefaultMaxFileSize skips generated bundles that are too large to be
// useful to decorate.
const DefaultMaxFileSize = 1 << 20

// FileEntry represents a discovered source file.
type FileEntry struct {
	Path     string // Relative to the walk root, or as given for file arguments
	Abs      string
	Language string // LSP language id
}

// Options filter discovered files.
type Options struct {
	// Languages restricts results to these LSP language ids. Empty means all.
	Languages []string
	// MaxFileSize skips larger files. Zero means DefaultMaxFileSize, negative
	// disables the limit.
	MaxFileSize int64
}

func (o Options) accepts(language string, size int64) bool {
	if language == "" {
		return false
	}
	if len(o.Languages) > 0 {
		found := false
		for _, l := range o.Languages {
			if l == language {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	limit := o.MaxFileSize
	if limit == 0 {
		limit = DefaultMaxFileSize
	}
	return limit < 0 || size <= limit
}

var skipDirs = map[string]struct{}{
	"node_modules":     {},
	"bower_components": {},
	".git":             {},
	".hg":              {},
	".svn":             {},
	"build":            {},
	"dist":             {},
	"out":              {},
	"coverage":         {},
	".next":            {},
	".nuxt":            {},
	".turbo":           {},
	".cache":           {},
	"vendor":           {},
}

// Language returns the LSP language id for a file name, or "" when it is
// not analysable. Minified bundles are never analysable.
func Language(name string) string {
	base := filepath.Base(name)
	if strings.Contains(base, ".min.") {
		return ""
	}
	return lang.ForExtension(filepath.Ext(base))
}

// Paths expands command-line arguments: directories are walked with Files,
// files are taken as given when their language is supported.
func Paths(args []string, opts Options) ([]FileEntry, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	var out []FileEntry
	seen := make(map[string]struct{})
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", arg, err)
		}
		var entries []FileEntry
		if info.IsDir() {
			entries, err = Files(arg, opts)
			if err != nil {
				return nil, err
			}
			for i := range entries {
				entries[i].Path = filepath.Join(arg, entries[i].Path)
			}
		} else if l := Language(arg); opts.accepts(l, info.Size()) {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return nil, err
			}
			entries = []FileEntry{{Path: filepath.Clean(arg), Abs: abs, Language: l}}
		}
		for _, e := range entries {
			if _, dup := seen[e.Abs]; dup {
				continue
			}
			seen[e.Abs] = struct{}{}
			out = append(out, e)
		}
	}
	return out, nil
}

// Files discovers analysable source files under root, sorted by path.
func Files(root string, opts Options) ([]FileEntry, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	var results []FileEntry

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		if gitFiles != nil {
			if _, ok := gitFiles[filepath.ToSlash(rel)]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		language := Language(name)
		if !opts.accepts(language, info.Size()) {
			return nil
		}

		results = append(results, FileEntry{Path: rel, Abs: filepath.Join(absRoot, rel), Language: language})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
