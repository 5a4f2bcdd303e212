// Package wire implements the HTTP/1.x framing state machine: header-block
// scanning, the request line, header folding, and fixed/chunked body
// decoding. It never blocks and never
// rescans bytes a caller has already handed it — callers feed it additional
// bytes as they arrive and trim what has been consumed.
package wire

import (
	"bytes"
	"errors"
	"strings"
)

// ErrBadRequest signals a malformed request line, headers, or version that
// must surface as 400 Bad Request with the connection forced closed.
var ErrBadRequest = errors.New("malformed request")

// RequestHead is the parsed request line and header block.
type RequestHead struct {
	Method  string
	Target  string
	Version string
	// Headers holds header values keyed by lowercased name, OWS-trimmed.
	Headers map[string]string
}

// Header looks up a header by case-insensitive name.
func (h *RequestHead) Header(name string) (string, bool) {
	v, ok := h.Headers[strings.ToLower(name)]
	return v, ok
}

// FindHeaderBlock scans buf for the terminating CRLFCRLF sequence. It
// returns the byte offset just past the blank line, or -1 if not yet
// present (the caller should wait for more data).
func FindHeaderBlock(buf []byte) int {
	idx := bytes.Index(buf, []byte("\r\n\r\n"))
	if idx < 0 {
		return -1
	}
	return idx + 4
}

// ParseRequestHead parses the request line and headers out of headerBlock,
// which must include the terminating CRLFCRLF (as returned by
// FindHeaderBlock). A missing request line, empty method, empty target, or
// missing version is a parse error.
func ParseRequestHead(headerBlock []byte) (*RequestHead, error) {
	block := headerBlock
	if bytes.HasSuffix(block, []byte("\r\n\r\n")) {
		block = block[:len(block)-2]
	}
	lineEnd := bytes.Index(block, []byte("\r\n"))
	if lineEnd < 0 {
		return nil, ErrBadRequest
	}
	requestLine := block[:lineEnd]
	rest := block[lineEnd+2:]

	parts := strings.SplitN(string(requestLine), " ", 3)
	if len(parts) != 3 {
		return nil, ErrBadRequest
	}
	method, target, version := parts[0], parts[1], parts[2]
	if method == "" || target == "" || version == "" {
		return nil, ErrBadRequest
	}

	head := &RequestHead{
		Method:  method,
		Target:  target,
		Version: version,
		Headers: make(map[string]string),
	}

	if len(rest) == 0 {
		return head, nil
	}
	for _, line := range bytes.Split(rest, []byte("\r\n")) {
		if len(line) == 0 {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return nil, ErrBadRequest
		}
		name := strings.ToLower(string(bytes.TrimSpace(line[:colon])))
		value := strings.TrimSpace(string(line[colon+1:]))
		if existing, ok := head.Headers[name]; ok {
			head.Headers[name] = existing + ", " + value
		} else {
			head.Headers[name] = value
		}
	}
	return head, nil
}
