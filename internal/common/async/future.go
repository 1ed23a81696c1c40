package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Future is the eventual outcome of an asynchronous operation: a value or an error.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns an already settled future holding v.
func Resolved[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Complete(v)
	return f
}

// Failed returns an already settled future holding err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Fail(err)
	return f
}

// Complete settles the future with v. Later calls are ignored.
func (f *Future[T]) Complete(v T) {
	f.once.Do(func() {
		f.val = v
		close(f.done)
	})
}

// Fail settles the future with err. Later calls are ignored.
func (f *Future[T]) Fail(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Go runs fn on pool and returns its outcome as a future.
func Go[T any](pool *Pool, fn func() (T, error)) *Future[T] {
	f := NewFuture[T]()
	err := pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				f.Fail(fmt.Errorf("async: task panicked: %v", r))
			}
		}()
		v, err := fn()
		if err != nil {
			f.Fail(err)
			return
		}
		f.Complete(v)
	})
	if err != nil {
		f.Fail(err)
	}
	return f
}

// Then schedules fn on pool once f completes successfully. A failure of f
// propagates to the returned future without calling fn.
func Then[T, U any](f *Future[T], pool *Pool, fn func(T) (U, error)) *Future[U] {
	out := NewFuture[U]()
	go func() {
		<-f.done
		if f.err != nil {
			out.Fail(f.err)
			return
		}
		next := Go(pool, func() (U, error) { return fn(f.val) })
		<-next.done
		if next.err != nil {
			out.Fail(next.err)
			return
		}
		out.Complete(next.val)
	}()
	return out
}

// AwaitAll waits for every future and joins their errors.
func AwaitAll[T any](ctx context.Context, futures []*Future[T]) error {
	var errs []error
	for _, f := range futures {
		if _, err := f.Await(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
