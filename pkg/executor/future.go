package executor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Future is the handle returned by the SpecExecutor queries. Network backed executors resolve it asynchronously.
type Future interface {
	Ready() bool
	Get(ctx context.Context) (interface{}, error)
}

type SyncFuture struct {
	val interface{}
	err error
}

func (s *SyncFuture) Ready() bool {
	return true
}

func (s *SyncFuture) Get(_ context.Context) (interface{}, error) {
	return s.val, s.err
}

func NewSyncFuture(val interface{}, err error) *SyncFuture {
	return &SyncFuture{
		val: val,
		err: err,
	}
}

var ErrAsyncFutureCanceled = fmt.Errorf("async future was canceled")

type AsyncFuture struct {
	sync.Mutex
	doneChannel chan struct{}
	cancelFn    context.CancelFunc
	val         interface{}
	err         error
}

func (f *AsyncFuture) set(val interface{}, err error) {
	f.Lock()
	defer f.Unlock()
	f.val = val
	f.err = err
	close(f.doneChannel)
}

func (f *AsyncFuture) get() (interface{}, error) {
	f.Lock()
	defer f.Unlock()
	return f.val, f.err
}

func (f *AsyncFuture) Ready() bool {
	select {
	case <-f.doneChannel:
		return true
	default:
		return false
	}
}

// Get blocks until the closure completes or ctx is done. A done ctx cancels the closure.
func (f *AsyncFuture) Get(ctx context.Context) (interface{}, error) {
	select {
	case <-ctx.Done():
		f.cancelFn()
		return nil, ErrAsyncFutureCanceled
	case <-f.doneChannel:
		return f.get()
	}
}

func NewAsyncFuture(ctx context.Context, closure func(context.Context) (interface{}, error)) *AsyncFuture {
	childCtx, cancel := context.WithCancel(ctx)
	f := &AsyncFuture{
		doneChannel: make(chan struct{}),
		cancelFn:    cancel,
	}

	go func(ctx2 context.Context) {
		defer cancel()
		val, err := closure(ctx2)
		f.set(val, err)
	}(childCtx)

	return f
}

// GetWithTimeout waits at most timeout for f.
func GetWithTimeout(ctx context.Context, f Future, timeout time.Duration) (interface{}, error) {
	if f.Ready() {
		return f.Get(ctx)
	}

	tCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return f.Get(tCtx)
}
