package rate

import (
	"context"
	"net/http"
)

// LimitedHTTPResponseWriter is an http.ResponseWriter whose body writes
// are admitted by a shared limiter. Close must be called once the
// response is done so the registration is given back.
type LimitedHTTPResponseWriter interface {
	http.ResponseWriter
	Close() error
}

type rlWriter struct {
	ctx context.Context
	w   http.ResponseWriter
	lw  *LimitedWriter
}

// WrapHTTPResponseWriter registers w with lim and returns a writer whose
// Write suspends on exhausted capacity instead of failing. The context
// bounds how long a throttled write may stay suspended.
func WrapHTTPResponseWriter(ctx context.Context, w http.ResponseWriter, lim *Limiter, opts ...StreamOption) (LimitedHTTPResponseWriter, error) {
	lw, err := WrapWriter(w, lim, opts...)
	if err != nil {
		return nil, err
	}
	return &rlWriter{ctx: ctx, w: w, lw: lw}, nil
}

func (w *rlWriter) Header() http.Header {
	return w.w.Header()
}

func (w *rlWriter) WriteHeader(code int) {
	w.w.WriteHeader(code)
}

// Write pushes the body through the cooperative write path, suspending on
// exhausted capacity, and flushes after each admitted chunk to keep
// streaming responses moving.
func (w *rlWriter) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := w.lw.Write(p[written:])
		written += n
		if err == ErrLimited {
			if werr := w.lw.WaitReady(w.ctx); werr != nil {
				return written, werr
			}
			continue
		}
		if err != nil {
			return written, err
		}
		if f, ok := w.w.(http.Flusher); ok {
			f.Flush()
		}
	}
	return written, nil
}

func (w *rlWriter) Close() error {
	return w.lw.Close()
}
