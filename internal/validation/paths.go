package validation

import (
	"regexp"
	"strings"
)

var (
	multiSlash = regexp.MustCompile(`/{2,}`)
	// Characters a panel-managed path must never carry
	unsafePathChars = regexp.MustCompile("[\\x00-\\x1f`'\"$;|&<>*?{}\\[\\]\\\\]")
)

// MakeSecurePath removes traversal segments, shell metacharacters and
// repeated slashes from p.
func MakeSecurePath(p string) string {
	p = unsafePathChars.ReplaceAllString(p, "")
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == ".." || part == "." {
			continue
		}
		kept = append(kept, part)
	}
	return multiSlash.ReplaceAllString(strings.Join(kept, "/"), "/")
}

// MakeCorrectDir returns dir as an absolute, secure path with a trailing
// slash. An empty input stays empty.
func MakeCorrectDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return ""
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	if !strings.HasPrefix(dir, "/") {
		dir = "/" + dir
	}
	return MakeSecurePath(dir)
}

// MakeCorrectFile returns file as an absolute, secure path without a
// trailing slash. An empty input stays empty.
func MakeCorrectFile(file string) string {
	file = strings.TrimSpace(file)
	if file == "" {
		return ""
	}
	if !strings.HasPrefix(file, "/") {
		file = "/" + file
	}
	return strings.TrimSuffix(MakeSecurePath(file), "/")
}
