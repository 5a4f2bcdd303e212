package handlers

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/Maruffly/webserv-sub000/pkg/config"
)

// UploadResult is the outcome of a POST disposition.
type UploadResult struct {
	Status int
	Body   []byte
}

// ResolveUploadTarget applies the target-selection rule: upload_store if
// set on the location (auto-creating its directory when upload_create_dirs
// is on), else the router-resolved path.
func ResolveUploadTarget(fs FileSystem, loc *config.LocationConfig, resolvedPath string) (string, error) {
	if loc != nil && loc.Upload != nil && loc.Upload.Store != "" {
		if loc.Upload.CreateDirs {
			if err := fs.MkdirAll(loc.Upload.Store); err != nil {
				return "", err
			}
		}
		return loc.Upload.Store, nil
	}
	return resolvedPath, nil
}

// HandleUpload dispatches multipart/form-data to per-part file writes,
// else treats the body as a raw overwrite-or-create of the target file.
func HandleUpload(fs FileSystem, target, contentType string, body []byte) (UploadResult, error) {
	if strings.HasPrefix(strings.ToLower(contentType), "multipart/form-data") {
		boundary, ok := boundaryOf(contentType)
		if !ok {
			return UploadResult{Status: 400}, nil
		}
		exists, isDir := fs.Stat(target)
		if exists && !isDir {
			return UploadResult{Status: 400}, nil
		}
		if !exists {
			if err := fs.MkdirAll(target); err != nil {
				return UploadResult{}, err
			}
		}
		parts := parseMultipart(body, boundary)
		if len(parts) == 0 {
			return UploadResult{Status: 400}, nil
		}
		anyCreated := false
		var summary strings.Builder
		summary.WriteString("<html><body><h1>Upload complete</h1><ul>\n")
		for _, p := range parts {
			name := sanitizeFilename(p.filename)
			path := JoinUnderRoot(target, name)
			created, err := fs.WriteFile(path, p.content)
			if err != nil {
				return UploadResult{}, err
			}
			anyCreated = anyCreated || created
			fmt.Fprintf(&summary, "<li>%s (%d bytes)</li>\n", name, len(p.content))
		}
		summary.WriteString("</ul></body></html>\n")
		status := 200
		if anyCreated {
			status = 201
		}
		return UploadResult{Status: status, Body: []byte(summary.String())}, nil
	}

	exists, isDir := fs.Stat(target)
	if isDir {
		return UploadResult{Status: 400}, nil
	}
	created, err := fs.WriteFile(target, body)
	if err != nil {
		return UploadResult{}, err
	}
	status := 200
	if created || !exists {
		status = 201
	}
	return UploadResult{Status: status, Body: []byte("<html><body>upload stored</body></html>\n")}, nil
}

func boundaryOf(contentType string) (string, bool) {
	idx := strings.Index(contentType, "boundary=")
	if idx < 0 {
		return "", false
	}
	b := contentType[idx+len("boundary="):]
	if semi := strings.IndexByte(b, ';'); semi >= 0 {
		b = b[:semi]
	}
	b = strings.Trim(strings.TrimSpace(b), `"`)
	if b == "" {
		return "", false
	}
	return b, true
}

type multipartPart struct {
	filename string
	content  []byte
}

// parseMultipart performs minimal MIME parsing: each part starts with
// `--boundary\r\n`, then headers, then `\r\n`, then content up to the next
// `\r\n--boundary`; the closing delimiter is `--boundary--`.
func parseMultipart(body []byte, boundary string) []multipartPart {
	delim := []byte("--" + boundary)
	var parts []multipartPart

	rest := body
	// Skip up to and past the first delimiter line.
	idx := bytes.Index(rest, delim)
	if idx < 0 {
		return nil
	}
	rest = rest[idx+len(delim):]

	for {
		if bytes.HasPrefix(rest, []byte("--")) {
			break
		}
		rest = bytes.TrimPrefix(rest, []byte("\r\n"))

		headerEnd := bytes.Index(rest, []byte("\r\n\r\n"))
		if headerEnd < 0 {
			break
		}
		headerBlock := rest[:headerEnd]
		content := rest[headerEnd+4:]

		nextIdx := bytes.Index(content, []byte("\r\n"+string(delim)))
		if nextIdx < 0 {
			break
		}
		partBody := content[:nextIdx]
		rest = content[nextIdx+2+len(delim):]

		parts = append(parts, multipartPart{
			filename: filenameFromHeaders(headerBlock),
			content:  partBody,
		})
	}
	return parts
}

func filenameFromHeaders(headerBlock []byte) string {
	for _, line := range bytes.Split(headerBlock, []byte("\r\n")) {
		lower := strings.ToLower(string(line))
		if !strings.HasPrefix(lower, "content-disposition:") {
			continue
		}
		idx := strings.Index(lower, "filename=")
		if idx < 0 {
			continue
		}
		v := string(line)[idx+len("filename="):]
		v = strings.Trim(v, `"`)
		if semi := strings.IndexByte(v, ';'); semi >= 0 {
			v = v[:semi]
		}
		return strings.TrimSpace(v)
	}
	return ""
}

// sanitizeFilename strips path separators and replaces characters outside
// [A-Za-z0-9._-] with `_`; empty names become upload.bin.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, "\\", "")
	if name == "" {
		return "upload.bin"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "upload.bin"
	}
	return b.String()
}
