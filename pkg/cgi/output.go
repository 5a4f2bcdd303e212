package cgi

import (
	"bytes"
	"strconv"
	"strings"
)

// Output is the decoded result of a finished CGI invocation.
type Output struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// ParseOutput splits raw on the first CRLFCRLF or LFLF. A leading Status
// header sets the status line; everything else passes through verbatim. No
// delimiter means the whole output is the body with defaults 200/text/html.
func ParseOutput(raw []byte) Output {
	sep, sepLen := findSeparator(raw)
	if sep < 0 {
		return Output{Status: 200, Headers: map[string]string{"Content-Type": "text/html"}, Body: raw}
	}

	headerBlock := raw[:sep]
	body := raw[sep+sepLen:]

	headers := make(map[string]string)
	status := 200
	for _, line := range splitLines(headerBlock) {
		if len(line) == 0 {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		name := strings.TrimSpace(string(line[:colon]))
		value := strings.TrimSpace(string(line[colon+1:]))
		if strings.EqualFold(name, "Status") {
			status = parseStatusValue(value)
			continue
		}
		headers[name] = value
	}
	if _, ok := headers["Content-Type"]; !ok {
		headers["Content-Type"] = "text/html"
	}
	return Output{Status: status, Headers: headers, Body: body}
}

func findSeparator(raw []byte) (idx int, length int) {
	crlf := bytes.Index(raw, []byte("\r\n\r\n"))
	lf := bytes.Index(raw, []byte("\n\n"))
	switch {
	case crlf < 0 && lf < 0:
		return -1, 0
	case crlf < 0:
		return lf, 2
	case lf < 0:
		return crlf, 4
	case lf < crlf:
		return lf, 2
	default:
		return crlf, 4
	}
}

func splitLines(block []byte) [][]byte {
	normalized := bytes.ReplaceAll(block, []byte("\r\n"), []byte("\n"))
	return bytes.Split(normalized, []byte("\n"))
}

func parseStatusValue(value string) int {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 200
	}
	if n, err := strconv.Atoi(fields[0]); err == nil {
		return n
	}
	return 200
}
