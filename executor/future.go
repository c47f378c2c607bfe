package executor

// Future is the result of a submitted task that becomes available once a
// worker has run it.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{
		done: make(chan struct{}),
	}
}

func (f *Future[T]) complete(value T, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// Done returns a channel that is closed when the task finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finished and returns its result.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// Err blocks until the task finished and returns its error.
func (f *Future[T]) Err() error {
	<-f.done
	return f.err
}
