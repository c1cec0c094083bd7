package analyzer

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// expandInputs resolves the bundle arguments of a pass. Plain paths are kept
// as given (missing ones are reported when read); globs are expanded and
// duplicates dropped.
func expandInputs(inputs []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, in := range inputs {
		in = strings.TrimSpace(in)
		if in == "" {
			continue
		}
		if !hasGlobMeta(in) {
			add(in)
			continue
		}
		matches, err := globRecursive(in)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			add(m)
		}
	}
	return out, nil
}

func hasGlobMeta(p string) bool {
	if _, err := os.Stat(p); err == nil {
		return false
	}
	return strings.ContainsAny(p, "*?[")
}

// globRecursive expands a bundle pattern. A single "**" segment matches any
// depth below the directory before it; the remainder is matched against the
// file's base name, or against the path relative to that directory when it
// contains a slash. Unreadable subdirectories are skipped so that one locked
// folder in a log dump does not hide the rest. Results are sorted.
func globRecursive(pattern string) ([]string, error) {
	root, rest, ok := strings.Cut(filepath.ToSlash(pattern), "**")
	if !ok {
		return filepath.Glob(pattern)
	}
	switch trimmed := strings.TrimRight(root, "/"); {
	case trimmed != "":
		root = trimmed
	case root == "":
		root = "."
	default:
		root = "/"
	}
	rest = strings.TrimLeft(rest, "/")
	if rest == "" {
		rest = "*"
	}
	if _, err := path.Match(rest, ""); err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	byBase := !strings.Contains(rest, "/")

	base := filepath.FromSlash(root)
	var found []string
	err := fs.WalkDir(os.DirFS(base), ".", func(rel string, d fs.DirEntry, err error) error {
		if err != nil {
			if rel != "." && d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		subject := rel
		if byBase {
			subject = path.Base(rel)
		}
		if hit, _ := path.Match(rest, subject); hit {
			found = append(found, filepath.Join(base, filepath.FromSlash(rel)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(found)
	return found, nil
}
