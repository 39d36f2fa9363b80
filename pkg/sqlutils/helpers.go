package sqlutils

import "strings"

var globEscaper = strings.NewReplacer("[", "[[]", "*", "[*]", "?", "[?]")

// GlobEscape returns s with GLOB metacharacters escaped, so it matches itself
// literally when used as a prefix of a GLOB pattern.
func GlobEscape(s string) string {
	return globEscaper.Replace(s)
}

// DescendantsGlob matches every path strictly below dir
func DescendantsGlob(dir string) string {
	return GlobEscape(dir) + "/?*"
}

// GrandchildrenGlob matches every path at least two levels below dir
func GrandchildrenGlob(dir string) string {
	return GlobEscape(dir) + "/?*/*"
}
