package handlers

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// contentTypes is the extension lookup table; unmatched extensions fall
// back to application/octet-stream.
var contentTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".txt":  "text/plain",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".pdf":  "application/pdf",
	".xml":  "application/xml",
	".woff": "font/woff",
	".woff2": "font/woff2",
}

// ContentTypeFor resolves a path's extension to its MIME type.
func ContentTypeFor(path string) string {
	ext := ""
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			ext = path[i:]
			break
		}
		if path[i] == '/' {
			break
		}
	}
	if ct, ok := contentTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// StaticResult is the outcome of serving a GET/HEAD disposition.
type StaticResult struct {
	Status        int
	ContentType   string
	Body          []byte
	ContentLength int
	IsHead        bool
}

// ServeStatic reads the file and sets Content-Type from the extension
// table; HEAD returns an empty body but preserves the computed
// Content-Length.
func ServeStatic(fs FileSystem, path string, head bool) (StaticResult, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return StaticResult{}, err
	}
	res := StaticResult{Status: 200, ContentType: ContentTypeFor(path), Body: data, ContentLength: len(data), IsHead: head}
	if head {
		res.Body = nil
	}
	return res, nil
}

// Autoindex renders a directory listing: entries excluding `.`/`..`, sizes,
// href=uri[/]name, trailing `/` for subdirectories.
func Autoindex(fs FileSystem, dirPath, uriPath string) ([]byte, error) {
	entries, err := fs.ListDir(dirPath)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	prefix := uriPath
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>Index of %s</title></head><body>\n", uriPath)
	fmt.Fprintf(&b, "<h1>Index of %s</h1>\n<ul>\n", uriPath)
	for _, e := range entries {
		name := e.Name
		href := prefix + name
		size := strconv.FormatInt(e.Size, 10)
		if e.IsDir {
			name += "/"
			href += "/"
			size = "-"
		}
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a> (%s)</li>\n", href, name, size)
	}
	b.WriteString("</ul></body></html>\n")
	return []byte(b.String()), nil
}
