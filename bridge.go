package d1

import (
	"context"
	"sync"
)

// Awaitable is the untyped face of a promise: something whose resolution can
// be started and waited for.
type Awaitable interface {
	// Start begins resolution. Safe to call more than once; only the first
	// call runs.
	Start()
	// Done is closed once the value or error is available.
	Done() <-chan struct{}
}

// Promise is a single-shot future around a host call. The binding decides
// when the underlying call actually runs: either a bridge starts it directly
// or the host's task queue runs it while being pumped.
type Promise[T any] struct {
	run  func() (T, error)
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// NewPromise wraps a call into an unresolved promise.
func NewPromise[T any](run func() (T, error)) *Promise[T] {
	return &Promise[T]{run: run, done: make(chan struct{})}
}

func (p *Promise[T]) Start() {
	p.once.Do(func() {
		p.val, p.err = p.run()
		close(p.done)
	})
}

func (p *Promise[T]) Done() <-chan struct{} { return p.done }

// Result returns the resolved value. Valid only after Done is closed.
func (p *Promise[T]) Result() (T, error) { return p.val, p.err }

// Bridge presents an asynchronous transport call as a blocking one. The
// strategy is chosen once per connection, never switched mid-lifetime.
type Bridge interface {
	Await(ctx context.Context, p Awaitable) error
}

// TaskRunner is implemented by bindings whose host schedules work on a
// single-threaded task queue. RunPending executes queued tasks and reports
// how many ran.
type TaskRunner interface {
	RunPending() (int, error)
}

// PumpBridge drives a host task queue until the awaited promise resolves.
// This is the strategy for synchronous-looking calls inside the host runtime,
// where blocking the only thread would deadlock the scheduler instead.
type PumpBridge struct {
	runner TaskRunner
}

// NewPumpBridge builds a bridge over the binding's task queue. The binding
// must implement TaskRunner; if it does not, every Await fails fast with
// ErrNotSupported rather than hanging.
func NewPumpBridge(binding Binding) *PumpBridge {
	runner, _ := binding.(TaskRunner)
	return &PumpBridge{runner: runner}
}

func (b *PumpBridge) Await(ctx context.Context, p Awaitable) error {
	if b.runner == nil {
		return notSupportedError("synchronous execution requires the host task queue; not available outside the host runtime")
	}
	for {
		select {
		case <-p.Done():
			return nil
		default:
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := b.runner.RunPending()
		if err != nil {
			return wrapOperational(err, "host task queue")
		}
		if n == 0 {
			select {
			case <-p.Done():
				return nil
			default:
				return newError(ErrInternal, "host task queue idle while awaiting result")
			}
		}
	}
}

// GoroutineBridge resolves the promise on its own goroutine and blocks the
// caller until completion. This is the strategy for integrating the
// async-only binding with callers that believe they are synchronous; the
// transport buffers the whole result during execute so later fetches never
// re-enter the binding.
type GoroutineBridge struct{}

func (GoroutineBridge) Await(ctx context.Context, p Awaitable) error {
	go p.Start()
	select {
	case <-p.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
