// Package errorpage implements error-response resolution: a vhost's
// explicit error-page mapping, then error_page_dir, then a built-in
// default, then a synthesized inline body.
package errorpage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Maruffly/webserv-sub000/pkg/config"
	"github.com/Maruffly/webserv-sub000/pkg/handlers"
)

var statusText = map[int]string{
	200: "OK", 201: "Created", 204: "No Content",
	301: "Moved Permanently", 302: "Found",
	400: "Bad Request", 403: "Forbidden", 404: "Not Found",
	405: "Method Not Allowed", 408: "Request Timeout",
	411: "Length Required", 413: "Payload Too Large",
	500: "Internal Server Error", 503: "Service Unavailable",
	504: "Gateway Timeout", 505: "HTTP Version Not Supported",
}

// StatusText returns the reason phrase for code, falling back to "Error".
func StatusText(code int) string {
	if t, ok := statusText[code]; ok {
		return t
	}
	return "Error"
}

// Response is a fully-formed error response body plus its content type.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Resolve walks the fallback chain. fs is used to probe the vhost's
// explicit mapping and error_page_dir.
func Resolve(fs handlers.FileSystem, vhost *config.VHostConfig, status int) Response {
	if vhost != nil {
		if uri, ok := vhost.ErrorPages[status]; ok {
			path := joinRoot(vhost.Root, uri)
			if exists, isDir := fs.Stat(path); exists && !isDir {
				if data, err := fs.ReadFile(path); err == nil {
					return Response{Status: status, ContentType: handlers.ContentTypeFor(path), Body: data}
				}
			}
		}
		if vhost.ErrorPageDir != "" {
			path := strings.TrimRight(vhost.ErrorPageDir, "/") + "/" + strconv.Itoa(status) + ".html"
			if exists, isDir := fs.Stat(path); exists && !isDir {
				if data, err := fs.ReadFile(path); err == nil {
					return Response{Status: status, ContentType: "text/html", Body: data}
				}
			}
		}
	}

	const builtinDefault = "/usr/share/webserv/errors/default.html"
	if exists, isDir := fs.Stat(builtinDefault); exists && !isDir {
		if data, err := fs.ReadFile(builtinDefault); err == nil {
			return Response{Status: status, ContentType: "text/html", Body: data}
		}
	}

	return Response{Status: status, ContentType: "text/html", Body: synthesize(status)}
}

func synthesize(status int) []byte {
	text := StatusText(status)
	return []byte(fmt.Sprintf(
		"<html><head><title>%d %s</title></head><body><center><h1>%d %s</h1></center></body></html>\n",
		status, text, status, text,
	))
}

func joinRoot(root, uri string) string {
	root = strings.TrimRight(root, "/")
	if !strings.HasPrefix(uri, "/") {
		uri = "/" + uri
	}
	return root + uri
}

// Headers returns the headers an error response always carries: Server,
// Date, and Connection: close (an error response always forces the
// connection closed).
func Headers() map[string]string {
	return map[string]string{
		"Server":     "webserv/1.0",
		"Date":       time.Now().UTC().Format(http1123),
		"Connection": "close",
	}
}

const http1123 = "Mon, 02 Jan 2006 15:04:05 GMT"
