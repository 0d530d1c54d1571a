//go:build linux

// File: reactor/epoll_linux.go
//
// Linux epoll(7)-backed Reactor: EpollCreate1/EpollCtl/EpollWait shape, but
// events carry the caller-supplied token (via Epoll_event.Fd reused as an
// index into a local fd->token table, since EpollEvent has no free user-data
// field on the Go syscall binding) instead of dispatching through a stored
// callback — the worker pool, not the reactor, owns connection dispatch.
package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

type epollReactor struct {
	epfd int

	mu     sync.Mutex
	tokens map[int32]uintptr // fd -> token
}

// NewReactor constructs the epoll-backed Reactor for the current platform.
func NewReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollReactor{
		epfd:   epfd,
		tokens: make(map[int32]uintptr),
	}, nil
}

func toEpollEvents(i Interest) uint32 {
	var ev uint32
	if i&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if i&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (r *epollReactor) Register(fd uintptr, token uintptr, interests Interest) error {
	ev := unix.EpollEvent{
		Events: toEpollEvents(interests),
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add: %w", err)
	}
	r.mu.Lock()
	r.tokens[int32(fd)] = token
	r.mu.Unlock()
	return nil
}

func (r *epollReactor) Reregister(fd uintptr, token uintptr, interests Interest) error {
	ev := unix.EpollEvent{
		Events: toEpollEvents(interests),
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl mod: %w", err)
	}
	r.mu.Lock()
	r.tokens[int32(fd)] = token
	r.mu.Unlock()
	return nil
}

func (r *epollReactor) Unregister(fd uintptr) error {
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	r.mu.Lock()
	delete(r.tokens, int32(fd))
	r.mu.Unlock()
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return fmt.Errorf("reactor: epoll_ctl del: %w", err)
	}
	return nil
}

func (r *epollReactor) Poll(timeoutMs int, dst []Event) ([]Event, error) {
	const maxEvents = 256
	var raw [maxEvents]unix.EpollEvent

	n, err := unix.EpollWait(r.epfd, raw[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, fmt.Errorf("reactor: epoll_wait: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < n; i++ {
		fd := raw[i].Fd
		token, ok := r.tokens[fd]
		if !ok {
			continue
		}
		var ready Interest
		if raw[i].Events&unix.EPOLLIN != 0 {
			ready |= Readable
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			ready |= Writable
		}
		isErr := raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0
		dst = append(dst, Event{Token: token, Ready: ready, Err: isErr})
	}
	return dst, nil
}

func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
