package sqlar

import (
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf8"
)

// normalizePath turns a caller supplied path into the form stored in the
// name column: relative, forward slashes, no trailing slash.
func normalizePath(p string) (string, error) {
	if p == "" {
		return "", errorf(InvalidArgs, "this path is empty")
	}

	if !utf8.ValidString(p) {
		return "", errorf(InvalidArgs, "this path is not valid unicode: %q", p)
	}

	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") || strings.HasPrefix(p, string(filepath.Separator)) {
		return "", errorf(InvalidArgs, "this path is absolute, but archives only hold relative paths: %s", p)
	}

	if runtime.GOOS == "windows" {
		p = strings.ReplaceAll(p, `\`, "/")
	}

	return strings.TrimRight(p, "/"), nil
}

// parentPath returns the parent of a normalized path, or "" for a path with
// a single segment
func parentPath(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}

// ancestors returns p followed by each of its parents, deepest first
func ancestors(p string) []string {
	var out []string
	for p != "" {
		out = append(out, p)
		p = parentPath(p)
	}
	return out
}

// normalizeScope is normalizePath for list scopes, where "" is the archive root
func normalizeScope(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	return normalizePath(p)
}

func utf8Valid(s string) bool {
	return utf8.ValidString(s)
}

func trimSeparators(s string) string {
	return strings.TrimRight(s, string(filepath.Separator))
}
