// Package contenttype holds the MIME names the framework produces and a
// classifier from file names to content types.
package contenttype

import (
	"mime"
	"path/filepath"
	"strings"
)

// Text types.
const (
	TextHTML       = "text/html; charset=utf-8"
	TextPlain      = "text/plain; charset=utf-8"
	TextCSS        = "text/css; charset=utf-8"
	TextCSV        = "text/csv; charset=utf-8"
	TextJavaScript = "text/javascript; charset=utf-8"
	TextXML        = "text/xml; charset=utf-8"
)

// Application types.
const (
	JSON        = "application/json"
	LDJSON      = "application/ld+json"
	OctetStream = "application/octet-stream"
	PDF         = "application/pdf"
	XML         = "application/xml"
	ZIP         = "application/zip"
	Form        = "application/x-www-form-urlencoded"
	JavaScript  = "application/javascript"
)

// Image and audio types.
const (
	PNG  = "image/png"
	JPEG = "image/jpeg"
	GIF  = "image/gif"
	SVG  = "image/svg+xml"
	ICO  = "image/x-icon"
	WEBP = "image/webp"
	MP3  = "audio/mpeg"
	WAV  = "audio/wav"
	OGG  = "audio/ogg"
)

// byExtension covers the names the system MIME table is known to get wrong or
// leave out on minimal images.
var byExtension = map[string]string{
	".html":   TextHTML,
	".htm":    TextHTML,
	".txt":    TextPlain,
	".css":    TextCSS,
	".csv":    TextCSV,
	".js":     TextJavaScript,
	".mjs":    TextJavaScript,
	".xml":    TextXML,
	".json":   JSON,
	".jsonld": LDJSON,
	".pdf":    PDF,
	".zip":    ZIP,
	".png":    PNG,
	".jpg":    JPEG,
	".jpeg":   JPEG,
	".gif":    GIF,
	".svg":    SVG,
	".ico":    ICO,
	".webp":   WEBP,
	".mp3":    MP3,
	".wav":    WAV,
	".ogg":    OGG,
}

// ForPath classifies a file by extension. Unknown extensions fall back to
// the system MIME table and then to OctetStream.
func ForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return OctetStream
	}
	if ct, ok := byExtension[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return OctetStream
}

// Base strips parameters: "text/html; charset=utf-8" becomes "text/html".
func Base(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// IsJSON reports whether ct names a JSON encoding. Any type mentioning json
// counts, which covers vendor types like application/vnd.api+json.
func IsJSON(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "json")
}

// IsForm reports whether ct is exactly the urlencoded form type.
func IsForm(ct string) bool {
	return Base(ct) == Form
}
