package index

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"mira/internal/logging"
)

const (
	maxIndexableFileBytes = 2 * 1024 * 1024
	binarySniffBytes      = 4096
)

// alwaysSkippedDirs mirrors the teacher's fs.go hidden-directory denylist:
// these VCS/tooling directories are skipped by name. Discover also skips
// every other directory whose name starts with a dot.
var alwaysSkippedDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	".mira":        true,
}

// Discover walks root and returns every file path whose extension the
// registry recognizes, applying spec.md §4.4's discovery rules:
// .gitignore-style skip, >2MB skip, and a null-byte-in-first-4KB binary
// heuristic.
func Discover(root string, reg *Registry) ([]string, error) {
	ignore := loadGitignore(root)

	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			logging.IndexDebug("discovery: walk error at %s: %v", path, err)
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}

		if info.IsDir() {
			name := info.Name()
			if alwaysSkippedDirs[name] || (strings.HasPrefix(name, ".") && name != ".") {
				return filepath.SkipDir
			}
			if ignore.matches(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if ignore.matches(rel, false) {
			return nil
		}
		if reg.For(path) == nil {
			return nil
		}
		if info.Size() > maxIndexableFileBytes {
			logging.IndexDebug("discovery: skipping %s (%d bytes > cap)", path, info.Size())
			return nil
		}
		if looksBinary(path) {
			logging.IndexDebug("discovery: skipping %s (binary heuristic)", path)
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// looksBinary applies the null-byte-in-first-4KB heuristic.
func looksBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, binarySniffBytes)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) != -1
}

// gitignoreSet is a minimal .gitignore matcher: exact path and glob
// patterns relative to the project root. It doesn't implement the full
// gitignore grammar (negation, nested scoping) — a deliberate
// simplification the teacher's own scanner also doesn't attempt.
type gitignoreSet struct {
	patterns []string
}

func loadGitignore(root string) gitignoreSet {
	var set gitignoreSet
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return set
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set.patterns = append(set.patterns, strings.TrimSuffix(line, "/"))
	}
	return set
}

func (s gitignoreSet) matches(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	base := filepath.Base(rel)
	for _, pat := range s.patterns {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, rel); ok {
			return true
		}
		if strings.HasPrefix(rel, pat+"/") {
			return true
		}
	}
	return false
}
