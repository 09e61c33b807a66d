package rate

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/go-core-stack/iolimit/errors"
)

// DefaultInterval is the period of the capacity replenishment tick. The
// limiter maximum is therefore a rate of units per interval.
const DefaultInterval = time.Second

// Option configures a Limiter at construction time.
type Option func(*Limiter)

// WithInterval overrides the replenishment period.
func WithInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithClock overrides the clock driving the replenishment tick, typically
// with a fake clock in tests.
func WithClock(clk clockwork.Clock) Option {
	return func(l *Limiter) {
		if clk != nil {
			l.clk = clk
		}
	}
}

// Limiter maintains rate limiting invariants over a set of limited
// resources sharing one capacity pool. A periodic clock task starts a new
// generation at full capacity on every tick and wakes the callers that
// suspended on exhaustion since the previous one. All methods are safe
// for concurrent use.
type Limiter struct {
	name     string
	bucket   *bucket
	interval time.Duration
	clk      clockwork.Clock

	mu      sync.Mutex
	gen     int
	waiters map[Id]func()

	faulted atomic.Bool
}

// New creates a limiter capping aggregate transfer to max units per
// interval (one second unless overridden) and places its clock task on
// sched. A nil sched falls back to GoScheduler. Cancelling ctx stops the
// clock task and thereby permanently faults the limiter.
func New(ctx context.Context, sched Scheduler, max uint, opts ...Option) (*Limiter, error) {
	if max < 1 {
		return nil, errors.Wrap(errors.InvalidArgument, "limiter maximum must be >= 1")
	}
	l := &Limiter{
		name:     uuid.NewString(),
		bucket:   newBucket(max),
		interval: DefaultInterval,
		clk:      clockwork.NewRealClock(),
		waiters:  make(map[Id]func()),
	}
	for _, o := range opts {
		o(l)
	}
	if sched == nil {
		sched = GoScheduler{}
	}
	if err := sched.Schedule(ctx, l.run); err != nil {
		return nil, errors.Wrapf(errors.SchedulingFailed, "limiter %s: scheduling clock task: %v", l.name, err)
	}
	return l, nil
}

// String identifies the limiter instance in log output.
func (l *Limiter) String() string {
	return fmt.Sprintf("limiter %s", l.name)
}

// run is the periodic clock task. Termination is a permanent fault; the
// limiter never restarts its clock.
func (l *Limiter) run(ctx context.Context) {
	ticker := l.clk.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.fault(ctx.Err())
			return
		case <-ticker.Chan():
			l.tick()
		}
	}
}

// tick advances the generation, restores the pool to full capacity and
// wakes every pending waiter. Wake order is unspecified: the reset is
// uniform, so no waiter gains from being woken first.
func (l *Limiter) tick() {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	drained := l.waiters
	l.waiters = make(map[Id]func())
	l.mu.Unlock()

	l.bucket.reset(gen)
	for _, wake := range drained {
		wake()
	}
}

// fault marks the limiter permanently failed and wakes every pending
// waiter, so that no caller stays suspended for a tick that will never
// come. Woken callers observe TimerFailed on their retry.
func (l *Limiter) fault(cause error) {
	l.mu.Lock()
	if l.faulted.Swap(true) {
		l.mu.Unlock()
		return
	}
	drained := l.waiters
	l.waiters = make(map[Id]func())
	l.mu.Unlock()

	log.Printf("%s: clock task stopped: %v", l, cause)
	for _, wake := range drained {
		wake()
	}
}

// Register adds one consumer to the shared pool and returns its handle.
func (l *Limiter) Register() (Id, error) {
	if l.faulted.Load() {
		return 0, errors.Wrapf(errors.TimerFailed, "%s: clock task is not running", l)
	}
	return l.bucket.addPart()
}

// Deregister removes a consumer, dropping any wake it still has pending.
// Deregistering an unknown or already removed Id is a no-op.
func (l *Limiter) Deregister(id Id) {
	l.mu.Lock()
	delete(l.waiters, id)
	l.mu.Unlock()
	l.bucket.removePart(id)
}

// Acquire claims up to hint units of the current generation's capacity.
// A NoCapacity failure is the signal to Enqueue a wake and suspend.
func (l *Limiter) Acquire(id Id, hint uint) (Token, error) {
	if l.faulted.Load() {
		return Token{}, errors.Wrapf(errors.TimerFailed, "%s: clock task is not running", l)
	}
	return l.bucket.acquire(id, hint)
}

// Release returns a token's unused quantity to the pool so sibling parts
// of the same generation can reuse it. Each token must be released at
// most once; tokens from earlier generations are discarded.
func (l *Limiter) Release(t Token) {
	l.bucket.release(t)
}

// Enqueue records wake to be invoked on the next tick. At most one wake
// is pending per Id; enqueueing again replaces the previous entry. The
// caller must enqueue before suspending, so that no tick can slip between
// the decision to wait and the wait itself.
func (l *Limiter) Enqueue(id Id, wake func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.faulted.Load() {
		return errors.Wrapf(errors.TimerFailed, "%s: clock task is not running", l)
	}
	l.waiters[id] = wake
	return nil
}
