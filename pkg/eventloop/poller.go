// Package eventloop implements the single-threaded readiness-driven I/O
// loop: one poller multiplexing listening sockets, client connections, and
// CGI pipe file descriptors, dispatching each readiness event to the
// connection/router/handlers/cgi collaborators without ever blocking.
package eventloop

// Event is one readiness notification from the poller.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	Error    bool
}

// Poller is the minimal readiness-notification surface the event loop
// needs: level-triggered add/modify/remove of interest in a fd's
// readable/writable state, and a blocking wait for the next batch of ready
// fds. Every fd is always registered for read interest; Add/Modify's
// writable argument toggles write interest on top of that.
type Poller interface {
	Add(fd int, writable bool) error
	Modify(fd int, writable bool) error
	Remove(fd int) error
	Wait(timeoutMs int) ([]Event, error)
	Close() error
}
