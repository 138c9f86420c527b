package hooks

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"mira/internal/merr"
)

// validateTranscriptPath implements spec.md §4.10's constraint that a
// subagent_stop transcript path must live under the user home directory
// or /tmp, resolving symlinks first so a crafted path can't escape
// either root, mirroring internal/netfetch's per-hop resolve-then-check
// idiom.
func validateTranscriptPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return merr.BadRequestf("hooks.SubagentStop", "invalid transcript path: %v", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		resolved = abs // path may not exist yet; fall back to the cleaned absolute form
	}

	home, err := os.UserHomeDir()
	if err == nil && withinRoot(resolved, home) {
		return nil
	}
	if withinRoot(resolved, os.TempDir()) || withinRoot(resolved, "/tmp") {
		return nil
	}
	return merr.BadRequestf("hooks.SubagentStop", "transcript path %q is outside the user home directory and /tmp", path)
}

func withinRoot(path, root string) bool {
	rootClean := filepath.Clean(root)
	rel, err := filepath.Rel(rootClean, path)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

func readTranscriptText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// entityRe matches backtick-quoted code spans (the common way an
// assistant's output references a symbol) and bare qualified
// identifiers like pkg.Func or object.method.
var entityRe = regexp.MustCompile("`([A-Za-z_][A-Za-z0-9_./]{2,})`|\\b([A-Z][A-Za-z0-9_]*\\.[A-Za-z_][A-Za-z0-9_]*|[a-z_][a-z0-9_]*\\.[A-Za-z_][A-Za-z0-9_]*)\\b")

// extractEntities returns the distinct code-entity-like tokens found in
// text, per spec.md §4.10's "extract code entities from subagent output".
func extractEntities(text string) map[string]bool {
	out := make(map[string]bool)
	for _, m := range entityRe.FindAllStringSubmatch(text, -1) {
		entity := m[1]
		if entity == "" {
			entity = m[2]
		}
		if entity != "" {
			out[entity] = true
		}
	}
	return out
}
