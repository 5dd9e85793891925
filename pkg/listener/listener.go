package listener

import (
	"context"
	"sync"
)

// Listener feeds every value received on in to handler from one goroutine,
// so values are handled in arrival order. Handler errors go to onError and do
// not stop the loop.
type Listener[T any] struct {
	handler func(ctx context.Context, input T) error
	onError func(input T, err error)

	in     <-chan T
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New[T any](
	in <-chan T,
	handler func(context.Context, T) error,
	onError func(T, error),
) *Listener[T] {
	if onError == nil {
		onError = func(T, error) {}
	}
	return &Listener[T]{
		in:      in,
		handler: handler,
		onError: onError,
		cancel:  func() {},
	}
}

func (l *Listener[T]) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)

	go func() {
		defer l.wg.Done()
		for {
			select {
			case inp, ok := <-l.in:
				if !ok {
					return
				}
				l.handle(ctx, inp)
			case <-ctx.Done():
				l.drain(context.WithoutCancel(ctx))
				return
			}
		}
	}()
}

// drain handles whatever is already buffered when the listener stops.
func (l *Listener[T]) drain(ctx context.Context) {
	for {
		select {
		case inp, ok := <-l.in:
			if !ok {
				return
			}
			l.handle(ctx, inp)
		default:
			return
		}
	}
}

func (l *Listener[T]) handle(ctx context.Context, inp T) {
	if err := l.handler(ctx, inp); err != nil {
		l.onError(inp, err)
	}
}

// Stop cancels the loop and waits until buffered input is handled.
func (l *Listener[T]) Stop() {
	l.cancel()
	l.wg.Wait()
}
