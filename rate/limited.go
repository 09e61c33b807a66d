// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package rate

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/go-core-stack/iolimit/errors"
)

// ErrLimited reports that the shared pool is exhausted for the current
// generation. The caller owning the stream must suspend via WaitReady and
// retry the whole operation after being woken. It is never a terminal
// failure.
var ErrLimited = errors.New("stream rate limited")

// StreamOption configures an individual limited stream.
type StreamOption func(*stream)

// WithStreamLimit puts a local ceiling on one stream, layered on top of
// the shared pool: regardless of how much pool capacity the stream is
// granted, it never transfers more than limit units per second with the
// given burst. A burst below one is raised to one.
func WithStreamLimit(limit rate.Limit, burst int) StreamOption {
	return func(s *stream) {
		if burst < 1 {
			burst = 1
		}
		s.local = rate.NewLimiter(limit, burst)
	}
}

// stream carries the per registration state shared by all wrapper kinds.
type stream struct {
	id    Id
	lim   *Limiter
	local *rate.Limiter // optional per stream ceiling
	ready chan struct{}
	once  sync.Once
}

func newStream(lim *Limiter, opts ...StreamOption) (*stream, error) {
	id, err := lim.Register()
	if err != nil {
		return nil, err
	}
	s := &stream{
		id:    id,
		lim:   lim,
		ready: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// wake resumes the owner of this stream. The channel is buffered so a
// wake delivered before the owner reaches WaitReady is kept, not lost.
func (s *stream) wake() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// WaitReady suspends the caller until the next capacity replenishment or
// a limiter fault wakes it, or until ctx ends. Call it after an operation
// returned ErrLimited, then retry that operation.
func (s *stream) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// throttled reports whether the pool grant was handed back because the
// stream's local ceiling denied the transfer right now.
func (s *stream) throttled(k int) bool {
	if s.local == nil {
		return false
	}
	return !s.local.AllowN(time.Now(), k)
}

// transfer runs one admission bounded attempt of op over p.
//
// On a grant of n units the operation is bounded to min(len(p), n) bytes
// and the unused remainder is released for sibling parts of the same
// generation to reuse. When op itself fails its true consumption is
// unknown, so nothing is credited back rather than risking a double
// grant. On exhaustion the wake handle is enqueued before ErrLimited is
// returned, which makes the register-before-suspend ordering a property
// of the wrapper rather than of its caller.
func (s *stream) transfer(p []byte, op func([]byte) (int, error)) (int, error) {
	if len(p) == 0 {
		return op(p)
	}
	t, err := s.lim.Acquire(s.id, uint(len(p)))
	if err != nil {
		if errors.IsNoCapacity(err) {
			if qerr := s.lim.Enqueue(s.id, s.wake); qerr != nil {
				return 0, qerr
			}
			return 0, ErrLimited
		}
		return 0, err
	}
	n := t.Quantity()
	k := len(p)
	if uint(k) > n {
		k = int(n)
	}
	if s.local != nil {
		if b := s.local.Burst(); k > b {
			k = b
		}
	}
	if s.throttled(k) {
		s.lim.Release(t)
		if qerr := s.lim.Enqueue(s.id, s.wake); qerr != nil {
			return 0, qerr
		}
		return 0, ErrLimited
	}
	m, err := op(p[:k])
	if err != nil {
		return m, err
	}
	t.Shrink(n - uint(m))
	s.lim.Release(t)
	return m, nil
}

// readContext retries transfer across replenishment ticks and returns the
// first completed read.
func (s *stream) readContext(ctx context.Context, p []byte, op func([]byte) (int, error)) (int, error) {
	for {
		n, err := s.transfer(p, op)
		if err == ErrLimited {
			if werr := s.WaitReady(ctx); werr != nil {
				return 0, werr
			}
			continue
		}
		return n, err
	}
}

// writeContext pushes all of p through transfer, suspending across
// replenishment ticks, so it satisfies the usual full-write expectation
// of io.Writer consumers.
func (s *stream) writeContext(ctx context.Context, p []byte, op func([]byte) (int, error)) (int, error) {
	written := 0
	for written < len(p) {
		n, err := s.transfer(p[written:], op)
		written += n
		if err == ErrLimited {
			if werr := s.WaitReady(ctx); werr != nil {
				return written, werr
			}
			continue
		}
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// close gives the registration back exactly once, no matter how many
// teardown paths run.
func (s *stream) close() {
	s.once.Do(func() {
		s.lim.Deregister(s.id)
	})
}

// Limited adapts a full-duplex stream to a limiter's admission control.
// Both directions share one registration and draw from the same pool.
type Limited struct {
	*stream
	rw io.ReadWriter
}

// Wrap registers rw with lim and returns the rate limited stream around
// it. A registration failure fails construction as a whole.
func Wrap(rw io.ReadWriter, lim *Limiter, opts ...StreamOption) (*Limited, error) {
	s, err := newStream(lim, opts...)
	if err != nil {
		return nil, err
	}
	return &Limited{stream: s, rw: rw}, nil
}

// Read transfers at most as many bytes as the limiter admits right now.
// It returns ErrLimited when the pool is exhausted; the caller must
// WaitReady and retry.
func (l *Limited) Read(p []byte) (int, error) {
	return l.transfer(p, l.rw.Read)
}

// Write transfers at most as many bytes as the limiter admits right now
// and reports that count with a nil error, so a result below len(p) is
// not a failure here. Use WriteContext where the io.Writer full-write
// convention is required. Returns ErrLimited when the pool is exhausted.
func (l *Limited) Write(p []byte) (int, error) {
	return l.transfer(p, l.rw.Write)
}

// ReadContext reads like Read but absorbs ErrLimited by suspending until
// the next replenishment, so it only surfaces transport and limiter
// faults.
func (l *Limited) ReadContext(ctx context.Context, p []byte) (int, error) {
	return l.readContext(ctx, p, l.rw.Read)
}

// WriteContext writes all of p, suspending across replenishment ticks
// whenever capacity runs out.
func (l *Limited) WriteContext(ctx context.Context, p []byte) (int, error) {
	return l.writeContext(ctx, p, l.rw.Write)
}

// Close deregisters from the limiter and closes the underlying stream
// when it implements io.Closer. Repeated calls deregister only once.
func (l *Limited) Close() error {
	l.close()
	if c, ok := l.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// LimitedReader adapts the read side of a stream; see Limited for the
// admission contract.
type LimitedReader struct {
	*stream
	r io.Reader
}

// WrapReader registers r with lim and returns the rate limited reader
// around it.
func WrapReader(r io.Reader, lim *Limiter, opts ...StreamOption) (*LimitedReader, error) {
	s, err := newStream(lim, opts...)
	if err != nil {
		return nil, err
	}
	return &LimitedReader{stream: s, r: r}, nil
}

func (l *LimitedReader) Read(p []byte) (int, error) {
	return l.transfer(p, l.r.Read)
}

func (l *LimitedReader) ReadContext(ctx context.Context, p []byte) (int, error) {
	return l.readContext(ctx, p, l.r.Read)
}

func (l *LimitedReader) Close() error {
	l.close()
	if c, ok := l.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// LimitedWriter adapts the write side of a stream; see Limited for the
// admission contract.
type LimitedWriter struct {
	*stream
	w io.Writer
}

// WrapWriter registers w with lim and returns the rate limited writer
// around it.
func WrapWriter(w io.Writer, lim *Limiter, opts ...StreamOption) (*LimitedWriter, error) {
	s, err := newStream(lim, opts...)
	if err != nil {
		return nil, err
	}
	return &LimitedWriter{stream: s, w: w}, nil
}

// Write is the partial-write primitive, see Limited.Write.
func (l *LimitedWriter) Write(p []byte) (int, error) {
	return l.transfer(p, l.w.Write)
}

func (l *LimitedWriter) WriteContext(ctx context.Context, p []byte) (int, error) {
	return l.writeContext(ctx, p, l.w.Write)
}

func (l *LimitedWriter) Close() error {
	l.close()
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
