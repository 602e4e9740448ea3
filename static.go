package cinder

import (
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/cinder-go/cinder/pkg/files"
	"github.com/cinder-go/cinder/pkg/message"
)

// =============================================================================
// Static File Serving
// =============================================================================

// staticMount serves files from dir under a URL prefix.
type staticMount struct {
	prefix  string
	dir     files.Dir
	cache   CacheControlStrategy
	headers map[string]string
}

func newStaticMount(cfg StaticConfig) *staticMount {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &staticMount{
		prefix:  prefix,
		dir:     files.Dir{Root: cfg.Dir},
		cache:   cfg.CacheControl,
		headers: cfg.Headers,
	}
}

// relPath returns the sanitized path of urlPath below the mount. Traversal,
// absolute-path tricks and NUL bytes are rejected rather than cleaned away.
func (m *staticMount) relPath(urlPath string) (string, bool) {
	if !strings.HasPrefix(urlPath, m.prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(urlPath, m.prefix)
	if rel == "" {
		return "", false
	}

	// Reject NUL early (can appear via %00).
	if strings.IndexByte(rel, 0) != -1 || strings.Contains(rel, "\\") {
		return "", false
	}

	// "/static//etc/passwd" leaves an absolute path after the prefix.
	if strings.HasPrefix(rel, "/") {
		return "", false
	}

	for _, seg := range strings.Split(rel, "/") {
		if seg == "." || seg == ".." {
			return "", false
		}
	}

	clean := path.Clean(rel)
	osPath := filepath.FromSlash(clean)
	if filepath.IsAbs(osPath) || filepath.VolumeName(osPath) != "" {
		return "", false
	}
	return clean, true
}

// serve fills resp with the file req names. It reports false when the
// request is not for an existing file under the mount, so the route tree
// gets its turn.
func (m *staticMount) serve(req *message.Request, resp *message.Response) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}
	rel, ok := m.relPath(req.Path)
	if !ok {
		return false
	}
	stream, err := m.dir.Lookup(rel)
	if err != nil {
		return false
	}

	resp.SetContentType(stream.ContentType)
	m.applyCacheHeaders(resp, rel)
	for key, value := range m.headers {
		resp.Header.Set(key, value)
	}
	if req.Method == http.MethodGet {
		resp.Body = message.ReaderBody(stream.Open)
	}
	return true
}

// applyCacheHeaders applies cache control headers for the mount's strategy.
func (m *staticMount) applyCacheHeaders(resp *message.Response, filePath string) {
	switch m.cache {
	case CacheControlDisabled:
		resp.Header.Set("cache-control", "no-store, no-cache, must-revalidate")

	case CacheControlProduction:
		if isFingerprinted(filePath) {
			resp.Header.Set("cache-control", "public, max-age=31536000, immutable")
		} else {
			resp.Header.Set("cache-control", "public, max-age=3600, must-revalidate")
		}
	}
}

// isFingerprinted reports whether a file name carries a content hash, as in
// "app.a1b2c3d4.css": eight or more hex digits before the extension.
func isFingerprinted(filePath string) bool {
	parts := strings.Split(path.Base(filePath), ".")
	if len(parts) < 3 {
		return false
	}

	hash := parts[len(parts)-2]
	if len(hash) < 8 {
		return false
	}
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
