// Package sanitize normalizes filenames for publication while preserving
// non-ASCII characters.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	forbiddenChars = regexp.MustCompile(`[<>:"|?*\\/\x00-\x1f\x7f]`)
	multiSpace     = regexp.MustCompile(`\s+`)
)

// Filename replaces characters that are unsafe in asset names with
// underscores, collapses whitespace, and trims leading/trailing spaces and
// dots. Unicode letters and digits pass through unchanged.
func Filename(name string) string {
	base, ext := splitExt(name)

	base = forbiddenChars.ReplaceAllString(base, "_")
	base = multiSpace.ReplaceAllString(base, " ")
	base = strings.Trim(base, " .")

	if base == "" {
		base = "file"
	}
	if ext != "" {
		return base + "." + ext
	}
	return base
}

func splitExt(name string) (base, ext string) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}
