// Package reader holds the in-process Reader implementations: a
// worker-pool-backed sequence reader for one-frame-per-file formats
// (PNG/JPEG/EXR/DPX-shaped) and a generator reader for Gap/placeholder
// clips. Both satisfy imageio.Implementation, the same optional-service
// contract the out-of-process plugins in internal/reader/external use.
package reader

import "sync"

// Future is a promise/future pair with cooperative cancellation: the
// worker polls Cancelled() between decode steps rather than being
// interrupted, so cancellation never leaves a goroutine blocked forever
// on I/O it started before the cancel arrived (spec.md §9 "no thread may
// block indefinitely on a future that is not associated with a live
// worker").
type Future[T any] struct {
	done      chan struct{}
	once      sync.Once
	mu        sync.Mutex
	value     T
	err       error
	cancelled bool
}

// NewFuture constructs an unresolved Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve fulfills the future with value, waking any waiter. Calling
// Resolve or Fail more than once is a no-op after the first call.
func (f *Future[T]) Resolve(value T) {
	f.once.Do(func() {
		f.mu.Lock()
		f.value = value
		f.mu.Unlock()
		close(f.done)
	})
}

// Fail fulfills the future with an error.
func (f *Future[T]) Fail(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		close(f.done)
	})
}

// Cancel marks the future cancelled and fails it with err if it has not
// already resolved. The worker servicing this future is expected to poll
// Cancelled and short-circuit; Cancel itself never interrupts work in
// flight, it only guarantees the future resolves.
func (f *Future[T]) Cancel(err error) {
	f.mu.Lock()
	f.cancelled = true
	f.mu.Unlock()
	f.Fail(err)
}

// Cancelled reports whether Cancel has been called, regardless of whether
// the future has resolved yet.
func (f *Future[T]) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// Done returns a channel closed once the future resolves (success, error,
// or cancellation).
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves and returns its value or error.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}
