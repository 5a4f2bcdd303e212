// Package connection implements the per-connection request state machine:
// header framing, fixed/chunked body accumulation, the outbound response
// queue, and keep-alive reset.
package connection

import (
	"strings"
	"time"

	"github.com/Maruffly/webserv-sub000/pkg/wire"
)

// State is the connection's parse state.
type State int

const (
	ReadingHeaders State = iota
	ReadingBody
	Ready
)

// Limits bounds the request body a connection may accumulate before the
// router gets a chance to react. GlobalMaxBody is compared with the body
// after each append, so the body can pass it by the bytes of that last
// append; bytes still held in the inbound buffer (headers, unread data) are
// not counted against it.
type Limits struct {
	GlobalMaxBody int64
}

// Connection owns one client socket's framing state. It never performs I/O
// itself; the event loop feeds it bytes read from the socket and drains its
// outbound buffer to the socket.
type Connection struct {
	Fd         int
	RemoteAddr string

	inbound []byte
	state   State

	Head         *wire.RequestHead
	bodyType     wire.BodyType
	bodyLen      int64
	bodyReceived int64
	chunked      *wire.ChunkedDecoder
	Body         []byte

	// LimitExceeded is set once accumulated body bytes exceed the global
	// ceiling (Limits.GlobalMaxBody); the event loop answers it with 413.
	// The per-route limit is checked later by the router.
	LimitExceeded bool

	OutBuffer   []byte
	OutOffset   int
	HasResponse bool

	KeepAlive       bool
	SessionID       string
	ShouldSetCookie bool

	LastActivity time.Time
	HeaderStart  time.Time

	// VHost and CGI are opaque to this package (set by the router/CGI
	// subsystem) to avoid an import cycle. On keep-alive, remote address,
	// session id, listen-fd, and vhost selection are NOT reset — VHost is
	// therefore intentionally left untouched by ResetForKeepAlive, while CGI
	// is cleared since it is per-request.
	VHost any
	CGI   any

	limits Limits
}

// New creates a connection freshly accepted on fd.
func New(fd int, remoteAddr string, limits Limits) *Connection {
	return &Connection{
		Fd:           fd,
		RemoteAddr:   remoteAddr,
		state:        ReadingHeaders,
		LastActivity: time.Now(),
		limits:       limits,
	}
}

// State reports the current parse state.
func (c *Connection) State() State { return c.state }

// Feed appends newly-read socket bytes to the inbound buffer.
func (c *Connection) Feed(data []byte) {
	c.inbound = append(c.inbound, data...)
	c.LastActivity = time.Now()
}

// ParseError is returned by Advance when the wire codec rejects the input.
type ParseError struct {
	Status int
	Err    error
}

func (e *ParseError) Error() string { return e.Err.Error() }

// Advance drives the state machine as far as currently-buffered bytes
// allow. It returns true once a complete request is ready for routing
// (state == Ready); routing must only happen once per request, so callers
// should check State() == Ready rather than the return value across
// repeated calls after dispatch.
func (c *Connection) Advance() (bool, *ParseError) {
	if c.state == ReadingHeaders {
		if c.HeaderStart.IsZero() {
			c.HeaderStart = time.Now()
		}
		end := wire.FindHeaderBlock(c.inbound)
		if end < 0 {
			return false, nil
		}
		head, err := wire.ParseRequestHead(c.inbound[:end])
		if err != nil {
			return false, &ParseError{Status: 400, Err: err}
		}
		c.Head = head
		c.inbound = c.inbound[end:]

		bt, n := wire.ClassifyBody(head.Headers)
		c.bodyType = bt
		c.bodyLen = n
		if bt == wire.BodyChunked {
			c.chunked = &wire.ChunkedDecoder{}
		}
		if bt == wire.BodyNone {
			c.state = Ready
			return true, nil
		}
		c.state = ReadingBody
	}

	if c.state == ReadingBody {
		switch c.bodyType {
		case wire.BodyFixed:
			need := c.bodyLen - c.bodyReceived
			take := int64(len(c.inbound))
			if take > need {
				take = need
			}
			c.Body = append(c.Body, c.inbound[:take]...)
			c.inbound = c.inbound[take:]
			c.bodyReceived += take
			if c.limitExceeded() {
				c.LimitExceeded = true
				c.state = Ready
				return true, nil
			}
			if c.bodyReceived >= c.bodyLen {
				c.state = Ready
				return true, nil
			}
			return false, nil
		case wire.BodyChunked:
			consumed, done, err := c.chunked.Decode(c.inbound)
			c.inbound = c.inbound[consumed:]
			c.Body = c.chunked.Body
			if err != nil {
				return false, &ParseError{Status: 400, Err: err}
			}
			if c.limitExceeded() {
				c.LimitExceeded = true
				c.state = Ready
				return true, nil
			}
			if done {
				c.state = Ready
				return true, nil
			}
			return false, nil
		}
	}
	return c.state == Ready, nil
}

func (c *Connection) limitExceeded() bool {
	if c.limits.GlobalMaxBody <= 0 {
		return false
	}
	return int64(len(c.Body)) > c.limits.GlobalMaxBody
}

// EnqueueResponse stages bytes for writing and marks the connection as
// having a pending response. Write interest is armed by the event loop
// whenever HasResponse && OutOffset < len(OutBuffer).
func (c *Connection) EnqueueResponse(data []byte) {
	c.OutBuffer = data
	c.OutOffset = 0
	c.HasResponse = true
}

// WriteArmed reports whether the connection still has unwritten response
// bytes: write interest holds iff HasResponse and OutOffset < len(OutBuffer).
func (c *Connection) WriteArmed() bool {
	return c.HasResponse && c.OutOffset < len(c.OutBuffer)
}

// Advanced reports the number of bytes written so the loop can advance
// OutOffset after a successful partial or full socket write.
func (c *Connection) Advanced(n int) {
	c.OutOffset += n
}

// ResponseFullyWritten reports whether the staged response has been fully
// drained to the socket.
func (c *Connection) ResponseFullyWritten() bool {
	return c.HasResponse && c.OutOffset >= len(c.OutBuffer)
}

// ResetForKeepAlive clears request/response fields between requests on a
// keep-alive connection. RemoteAddr, Fd, and VHost are intentionally left
// untouched.
func (c *Connection) ResetForKeepAlive() {
	c.state = ReadingHeaders
	c.Head = nil
	c.bodyType = wire.BodyNone
	c.bodyLen = 0
	c.bodyReceived = 0
	c.chunked = nil
	c.Body = nil
	c.LimitExceeded = false
	c.OutBuffer = nil
	c.OutOffset = 0
	c.HasResponse = false
	c.ShouldSetCookie = false
	c.CGI = nil
	c.HeaderStart = time.Time{}
}

// DeriveKeepAlive decides whether the connection should stay open after
// the current response, based on the request's HTTP version and any
// Connection header token.
func (c *Connection) DeriveKeepAlive() bool {
	if c.Head == nil {
		return false
	}
	conn, hasConn := c.Head.Header("connection")
	switch c.Head.Version {
	case "HTTP/1.1":
		return !hasConn || !containsToken(conn, "close")
	case "HTTP/1.0":
		return hasConn && containsToken(conn, "keep-alive")
	default:
		return false
	}
}

func containsToken(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
