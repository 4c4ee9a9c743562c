package client

import "context"

// Call is a pending request. Nothing is sent until Do or Go runs it, and
// each run sends a fresh request.
type Call[T any] struct {
	run func(ctx context.Context) (T, error)
}

// Result is the single outcome delivered by Call.Go.
type Result[T any] struct {
	Value T
	Err   error
}

func newCall[T any](run func(ctx context.Context) (T, error)) *Call[T] {
	return &Call[T]{run: run}
}

// Do performs the request and waits for its outcome.
func (c *Call[T]) Do(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.run(ctx)
}

// Go performs the request on its own goroutine. The channel yields exactly
// one Result and is then closed.
func (c *Call[T]) Go(ctx context.Context) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		defer close(out)
		v, err := c.Do(ctx)
		out <- Result[T]{Value: v, Err: err}
	}()
	return out
}
