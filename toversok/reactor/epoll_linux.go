package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

type epoller struct {
	epfd   int
	wakefd int

	mu     sync.Mutex
	closed bool

	raw []unix.EpollEvent
}

// NewPoller returns an epoll backed poller, with an eventfd for wakeups.
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	p := &epoller{epfd: epfd, wakefd: wakefd}

	if err := p.ctl(unix.EPOLL_CTL_ADD, wakefd, WakeToken, Readable, Edge); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, err
	}

	return p, nil
}

func toEpoll(interest EventSet, opt PollOpt) uint32 {
	var ev uint32

	if interest.IsReadable() {
		ev |= unix.EPOLLIN
	}
	if interest.IsWritable() {
		ev |= unix.EPOLLOUT
	}
	// EPOLLERR and EPOLLHUP are always reported, asking for them is a no-op.
	if interest.IsError() {
		ev |= unix.EPOLLERR
	}
	if interest.IsHup() {
		ev |= unix.EPOLLHUP
	}

	switch opt {
	case Edge:
		ev |= unix.EPOLLET
	case Oneshot:
		ev |= unix.EPOLLONESHOT
	}

	return ev
}

func fromEpoll(ev uint32) EventSet {
	var set EventSet

	if ev&unix.EPOLLIN != 0 {
		set |= Readable
	}
	if ev&unix.EPOLLOUT != 0 {
		set |= Writable
	}
	if ev&unix.EPOLLERR != 0 {
		set |= Error
	}
	if ev&unix.EPOLLHUP != 0 {
		set |= Hup
	}

	return set
}

func (p *epoller) ctl(op int, fd int, token Token, interest EventSet, opt PollOpt) error {
	ev := &unix.EpollEvent{
		Events: toEpoll(interest, opt),
		// The token rides along in the Fd field, epoll hands it back verbatim.
		Fd: int32(token),
	}

	if err := unix.EpollCtl(p.epfd, op, fd, ev); err != nil {
		return fmt.Errorf("epoll_ctl(%d, fd %d, token %d): %w", op, fd, token, err)
	}
	return nil
}

func (p *epoller) Register(fd int, token Token, interest EventSet, opt PollOpt) error {
	if token == WakeToken {
		return ErrReserved
	}
	return p.ctl(unix.EPOLL_CTL_ADD, fd, token, interest, opt)
}

func (p *epoller) Reregister(fd int, token Token, interest EventSet, opt PollOpt) error {
	if token == WakeToken {
		return ErrReserved
	}
	return p.ctl(unix.EPOLL_CTL_MOD, fd, token, interest, opt)
}

func (p *epoller) Deregister(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl(del, fd %d): %w", fd, err)
	}
	return nil
}

func (p *epoller) Wait(events []Event, timeout time.Duration) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	if cap(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}
	raw := p.raw[:len(events)]

	msec := -1
	if timeout >= 0 {
		msec = int(timeout.Milliseconds())
	}

	n, err := unix.EpollWait(p.epfd, raw, msec)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll_wait: %w", err)
	}

	filled := 0
	for _, ev := range raw[:n] {
		token := Token(ev.Fd)

		if token == WakeToken {
			p.drainWake()
			continue
		}

		events[filled] = Event{Token: token, Events: fromEpoll(ev.Events)}
		filled++
	}

	return filled, nil
}

func (p *epoller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakefd, buf[:]); err != nil {
			return
		}
	}
}

func (p *epoller) Wake() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)

	if _, err := unix.Write(p.wakefd, one[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (p *epoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	return errors.Join(unix.Close(p.wakefd), unix.Close(p.epfd))
}
