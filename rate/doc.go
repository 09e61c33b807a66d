// Package rate bounds aggregate I/O throughput across a dynamically
// changing set of byte streams that share one capacity pool.
//
// # Overview
//
// A Limiter owns a pool of capacity units that is replenished to its
// maximum by a periodic clock tick. Streams register with the limiter and
// become parts of the pool; every transfer first acquires a Token whose
// quantity is the remaining capacity divided by the number of registered
// parts. The pool is therefore re-divided at every call by the current
// contention, with no per-part bookkeeping.
//
// # Architecture
//
// The package consists of three main components:
//
//   - Limiter: binds the shared pool to a periodic clock task and a
//     registry of suspended callers woken on every tick
//   - Limited / LimitedReader / LimitedWriter: stream adapters turning
//     admission decisions into partial transfers
//   - Scheduler: the executor collaborator the clock task runs on
//
// # Cooperative Suspension
//
// The wrappers never block on exhausted capacity. A Read or Write that
// finds the pool empty registers a wake for the next tick and returns
// ErrLimited; the caller suspends in WaitReady and retries after being
// woken. The wake is registered before ErrLimited is returned and the
// ready channel holds one pending wake, so a tick can never slip through
// unnoticed between the failed attempt and the suspension. ReadContext
// and WriteContext package this retry loop for callers that prefer
// blocking semantics.
//
// # Fairness Trade-offs
//
// Dividing the remaining capacity by the live parts count is a
// simplification, not a precision fairness guarantee:
//
//   - As parts accumulate, per-call shares shrink harmonically; idle but
//     still registered parts slow down active ones even though they hold
//     no capacity.
//   - While any capacity remains, a grant never drops below one unit, so
//     active parts always make forward progress under contention.
//   - Unused grant quantity is credited back for siblings of the same
//     generation; a failed transfer returns nothing, since its true
//     consumption is unknown.
//
// # Failure Model
//
// Exhaustion (NoCapacity under the covers, ErrLimited at the stream
// surface) is transient and absorbed by the suspend/retry cycle. The
// death of a limiter's clock task is permanent: the limiter wakes every
// suspended caller one last time and every subsequent operation fails
// with a TimerFailed error until the process is restarted. Transport
// errors pass through the wrappers untouched.
//
// # Example Usage
//
//	lim, _ := rate.New(ctx, nil, 1024*1024) // 1MB/s shared pool
//
//	conn, _ := net.Dial("tcp", addr)
//	lr, _ := rate.WrapReader(conn, lim)
//	defer lr.Close()
//
//	buf := make([]byte, 4096)
//	for {
//		n, err := lr.Read(buf)
//		if errors.Is(err, rate.ErrLimited) {
//			if err := lr.WaitReady(ctx); err != nil {
//				return err
//			}
//			continue
//		}
//		// handle n, err as usual
//	}
//
// A per-stream ceiling can be layered on top of the shared pool with
// WithStreamLimit, so a single stream cannot monopolize the pool even
// when it is the only active one.
package rate
