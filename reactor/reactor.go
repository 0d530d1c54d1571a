// Package reactor provides the readiness-based poller used by the server
// worker pool: register a file descriptor with a set of interests, block in
// Poll for a bounded time, and receive one Event per descriptor that became
// ready. The only production implementation wraps Linux epoll; the core
// measurement state machine never depends on the poller directly beyond this
// interface.
package reactor

// Interest is a bitmask of I/O readiness a caller wants notified about.
type Interest uint8

const (
	// Readable is set when the descriptor has data available to read.
	Readable Interest = 1 << iota
	// Writable is set when the descriptor can accept a write without blocking.
	Writable
)

// Event reports the interests that became ready for a registered token.
type Event struct {
	Token uintptr
	Ready Interest
	Err   bool // EPOLLERR or EPOLLHUP observed
}

// Reactor is a minimal level-triggered readiness poller. Implementations must
// be safe for use by a single goroutine at a time (the worker event loop);
// they are never shared across workers.
type Reactor interface {
	// Register begins watching fd for the given interests, associated with
	// token (an opaque value returned verbatim in Event.Token).
	Register(fd uintptr, token uintptr, interests Interest) error

	// Reregister changes the interest set for an already-registered fd.
	Reregister(fd uintptr, token uintptr, interests Interest) error

	// Unregister stops watching fd. It is not an error to unregister a fd
	// that was already removed by the kernel (e.g. because it was closed).
	Unregister(fd uintptr) error

	// Poll blocks for up to timeoutMs milliseconds (0 returns immediately,
	// negative blocks indefinitely) and appends ready events to dst,
	// returning the extended slice.
	Poll(timeoutMs int, dst []Event) ([]Event, error)

	// Close releases the underlying poller resource.
	Close() error
}
