//go:build !linux

package eventloop

import "golang.org/x/sys/unix"

// pollPoller is the portable fallback backing the event loop on non-Linux
// platforms: the same readiness contract built on poll(2) instead of
// epoll, since BSD/Darwin's kqueue has a different enough shape to not be
// worth a second specialized backend for a single-process origin server.
type pollPoller struct {
	interest map[int]bool // fd -> writable
}

// NewPoller creates the platform poller.
func NewPoller() (Poller, error) {
	return &pollPoller{interest: make(map[int]bool)}, nil
}

func (p *pollPoller) Add(fd int, writable bool) error {
	p.interest[fd] = writable
	return nil
}

func (p *pollPoller) Modify(fd int, writable bool) error {
	p.interest[fd] = writable
	return nil
}

func (p *pollPoller) Remove(fd int) error {
	delete(p.interest, fd)
	return nil
}

func (p *pollPoller) Wait(timeoutMs int) ([]Event, error) {
	if len(p.interest) == 0 {
		return nil, nil
	}
	fds := make([]unix.PollFd, 0, len(p.interest))
	for fd, writable := range p.interest {
		mask := int16(unix.POLLIN)
		if writable {
			mask |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: mask})
	}
	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	events := make([]Event, 0, n)
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		events = append(events, Event{
			Fd:       int(pfd.Fd),
			Readable: pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0,
			Writable: pfd.Revents&unix.POLLOUT != 0,
			Error:    pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0,
		})
	}
	return events, nil
}

func (p *pollPoller) Close() error {
	return nil
}
