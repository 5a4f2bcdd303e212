package wire

import (
	"fmt"
	"sort"
	"strings"
)

// EncodeResponse serializes a status line, header map, and body into a
// wire-ready HTTP/1.1 response. Content-Length is added automatically
// unless the caller already supplied one; headers are emitted in sorted
// order for deterministic output.
func EncodeResponse(status int, reason string, headers map[string]string, body []byte) []byte {
	if _, ok := headers["Content-Length"]; !ok {
		headers["Content-Length"] = fmt.Sprintf("%d", len(body))
	}

	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, reason)
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\r\n", name, headers[name])
	}
	b.WriteString("\r\n")

	out := make([]byte, 0, b.Len()+len(body))
	out = append(out, b.String()...)
	out = append(out, body...)
	return out
}
