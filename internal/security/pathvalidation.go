// Package security validates user supplied paths and names before they
// reach the filesystem.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// canonical resolves p to an absolute path with symlinks evaluated. For a
// path that does not exist yet the deepest existing ancestor is resolved
// and the remainder re-attached, so a symlinked parent cannot be used to
// escape.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rest), nil
		}
		if dir == filepath.Dir(dir) {
			return abs, nil
		}
	}
}

// ValidatePathWithinDirectory returns an error if path resolves outside
// baseDir. baseDir must exist.
func ValidatePathWithinDirectory(path, baseDir string) error {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}
	base, err := filepath.EvalSymlinks(absBase)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory symlinks: %w", err)
	}
	target, err := canonical(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", baseDir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", path, baseDir)
	}
	return nil
}

// ResolveOutputDir joins dir onto baseDir when dir is relative, validates
// the result stays inside baseDir and returns it.
func ResolveOutputDir(baseDir, dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("output directory is empty")
	}
	p := dir
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	if err := ValidatePathWithinDirectory(p, baseDir); err != nil {
		return "", err
	}
	return filepath.Clean(p), nil
}

// SanitizeFilename maps s to a filename-safe token: ASCII letters, digits,
// dot, underscore and dash are kept and runs of anything else become a
// single underscore. Empty results become "unknown".
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
