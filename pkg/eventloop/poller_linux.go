//go:build linux

package eventloop

import "golang.org/x/sys/unix"

// epollPoller backs the event loop on Linux with epoll in level-triggered
// mode (the default), matching the readiness semantics the connection and
// CGI state machines are written against: an event keeps firing until the
// underlying condition is drained, never edge-triggered.
type epollPoller struct {
	fd int
}

// NewPoller creates the platform poller.
func NewPoller() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{fd: fd}, nil
}

func interestMask(writable bool) uint32 {
	mask := uint32(unix.EPOLLIN)
	if writable {
		mask |= uint32(unix.EPOLLOUT)
	}
	return mask
}

func (p *epollPoller) Add(fd int, writable bool) error {
	ev := unix.EpollEvent{Events: interestMask(writable), Fd: int32(fd)}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Modify(fd int, writable bool) error {
	ev := unix.EpollEvent{Events: interestMask(writable), Fd: int32(fd)}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(timeoutMs int) ([]Event, error) {
	raw := make([]unix.EpollEvent, 256)
	n, err := unix.EpollWait(p.fd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		e := raw[i]
		events = append(events, Event{
			Fd:       int(e.Fd),
			Readable: e.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			Writable: e.Events&unix.EPOLLOUT != 0,
			Error:    e.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		})
	}
	return events, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.fd)
}
