package mirror

import (
	"mime"
	"sort"
	"strings"
)

// preferredExt fixes the extension for common web media types, where the
// system MIME table may list several candidates or none.
var preferredExt = map[string]string{
	"text/html":                 ".html",
	"application/xhtml+xml":     ".html",
	"text/css":                  ".css",
	"text/javascript":           ".js",
	"application/javascript":    ".js",
	"application/x-javascript":  ".js",
	"application/json":          ".json",
	"application/ld+json":       ".json",
	"application/manifest+json": ".webmanifest",
	"application/xml":           ".xml",
	"text/xml":                  ".xml",
	"text/plain":                ".txt",
	"image/png":                 ".png",
	"image/jpeg":                ".jpg",
	"image/gif":                 ".gif",
	"image/webp":                ".webp",
	"image/avif":                ".avif",
	"image/svg+xml":             ".svg",
	"image/x-icon":              ".ico",
	"image/vnd.microsoft.icon":  ".ico",
	"font/woff":                 ".woff",
	"font/woff2":                ".woff2",
	"font/ttf":                  ".ttf",
	"font/otf":                  ".otf",
	"application/font-woff":     ".woff",
	"application/wasm":          ".wasm",
	"application/pdf":           ".pdf",
	"video/mp4":                 ".mp4",
	"video/webm":                ".webm",
	"audio/mpeg":                ".mp3",
	"audio/ogg":                 ".ogg",
	"audio/wav":                 ".wav",
}

// ExtensionForType returns the file extension (with the dot) for a media
// type such as "text/css; charset=utf-8", or "" when none is known.
// Generic binary types yield "".
func ExtensionForType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	if mediaType == "" || mediaType == "application/octet-stream" {
		return ""
	}
	if ext, ok := preferredExt[mediaType]; ok {
		return ext
	}

	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	sort.Strings(exts)
	for _, ext := range exts {
		if hasExtension("x" + ext) {
			return ext
		}
	}
	return ""
}
