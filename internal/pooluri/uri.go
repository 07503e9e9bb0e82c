// Package pooluri normalizes between filesystem paths and file:// URIs
// the way the language-server pool needs to (§4.3, testable property
// "URI normalization is idempotent").
package pooluri

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Normalize turns an absolute path into a file:// URL; an existing
// file:// URL is returned unchanged. Normalize is idempotent:
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(s string) string {
	if strings.HasPrefix(s, "file://") {
		return s
	}
	abs, err := filepath.Abs(s)
	if err != nil {
		abs = s
	}
	return PathToFileURI(abs)
}

// PathToFileURI converts an absolute filesystem path to a file:// URL,
// handling Windows drive letters (file:///C:/...).
func PathToFileURI(path string) string {
	p := filepath.ToSlash(path)
	if len(p) >= 2 && p[1] == ':' {
		// Windows drive letter: file:///C:/Users/...
		return "file:///" + url.PathEscape(p[:2]) + strings.ReplaceAll(escapeSegments(p[2:]), "%2F", "/")
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + escapeSegments(p)
}

func escapeSegments(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// FileURIToPath converts a file:// URL back to a filesystem path.
func FileURIToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	p := u.Path
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		// /C:/Users/... -> C:/Users/...
		p = p[1:]
	}
	return filepath.FromSlash(p), nil
}

// ExtensionOf returns the lowercased extension (without the leading dot)
// of a file:// URI or plain path, or "" if there is none.
func ExtensionOf(uriOrPath string) string {
	ext := filepath.Ext(uriOrPath)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
