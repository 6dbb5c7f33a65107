// Package fsutil provides small filesystem helpers shared by the GitSync
// and CodeParse tasks for filtering the files a job touches.
package fsutil

import (
	"os"
	"path/filepath"
	"strings"
)

// binaryExts are extensions CodeParse and GitSync never treat as source.
var binaryExts = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".pdf": true,
	".zip": true, ".tar": true, ".gz": true, ".iso": true, ".class": true,
	".jar": true, ".woff": true, ".woff2": true, ".ttf": true, ".ico": true,
}

// IsBinaryExt reports whether ext (as returned by filepath.Ext) names a
// known binary file type.
func IsBinaryExt(ext string) bool {
	return binaryExts[strings.ToLower(ext)]
}

// IsBinaryContent reports whether content looks like binary data by
// scanning the first 512 bytes for a NUL byte.
func IsBinaryContent(content []byte) bool {
	limit := 512
	if len(content) < limit {
		limit = len(content)
	}
	for i := 0; i < limit; i++ {
		if content[i] == 0 {
			return true
		}
	}
	return false
}

// ExceedsMaxBytes reports whether the file at path is larger than maxBytes.
// maxBytes <= 0 disables the check.
func ExceedsMaxBytes(path string, maxBytes int64) (bool, error) {
	if maxBytes <= 0 {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.Size() > maxBytes, nil
}

// MatchesAnyGlob reports whether path matches any of the given glob
// patterns, evaluated against both the full path and its base name.
func MatchesAnyGlob(path string, globs []string) bool {
	base := filepath.Base(path)
	for _, g := range globs {
		if ok, _ := filepath.Match(g, path); ok {
			return true
		}
		if ok, _ := filepath.Match(g, base); ok {
			return true
		}
	}
	return false
}

// NormalizePath cleans p and converts it to forward-slash (POSIX) form,
// matching the format GitSync records in data.gitSync file lists. It
// does not make an absolute path relative.
func NormalizePath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}
