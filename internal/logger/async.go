package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

// asyncState is shared by an AsyncHandler and every handler derived from it.
type asyncState struct {
	mu      sync.RWMutex
	closed  bool
	ch      chan slog.Record
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// AsyncHandler wraps an slog.Handler with a buffered channel and worker pool.
// Records are dropped, and counted, when the buffer is full or after Close.
type AsyncHandler struct {
	inner slog.Handler
	state *asyncState
}

// NewAsyncHandler creates an AsyncHandler with the given channel capacity and worker count.
func NewAsyncHandler(inner slog.Handler, chanSize, workers int) *AsyncHandler {
	st := &asyncState{ch: make(chan slog.Record, chanSize)}
	h := &AsyncHandler{inner: inner, state: st}
	for range workers {
		st.wg.Add(1)
		go h.drain()
	}
	return h
}

// drain writes through the root inner handler; derived handlers enqueue
// records whose attrs were already resolved by their own inner handler.
func (h *AsyncHandler) drain() {
	defer h.state.wg.Done()
	for rec := range h.state.ch {
		_ = h.inner.Handle(context.Background(), rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record. Drops if the channel is full or closed.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	h.state.mu.RLock()
	defer h.state.mu.RUnlock()
	if h.state.closed {
		h.state.dropped.Add(1)
		return nil
	}
	select {
	case h.state.ch <- rec:
	default:
		h.state.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler that shares the queue. Attributes are folded
// into each record before it is enqueued.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &attrHandler{async: h, attrs: attrs}
}

// WithGroup is not supported across the queue; the group is flattened.
func (h *AsyncHandler) WithGroup(_ string) slog.Handler {
	return h
}

// DroppedCount returns the number of dropped records.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.state.dropped.Load()
}

// Close stops accepting records and waits for the workers to drain. Safe to call twice.
func (h *AsyncHandler) Close() {
	h.state.mu.Lock()
	if h.state.closed {
		h.state.mu.Unlock()
		return
	}
	h.state.closed = true
	close(h.state.ch)
	h.state.mu.Unlock()
	h.state.wg.Wait()
}

// attrHandler prepends fixed attrs to records before handing them to the queue.
type attrHandler struct {
	async *AsyncHandler
	attrs []slog.Attr
}

func (a *attrHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return a.async.Enabled(ctx, level)
}

func (a *attrHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	out.AddAttrs(a.attrs...)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(attr)
		return true
	})
	return a.async.Handle(ctx, out)
}

func (a *attrHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(a.attrs)+len(attrs))
	merged = append(merged, a.attrs...)
	merged = append(merged, attrs...)
	return &attrHandler{async: a.async, attrs: merged}
}

func (a *attrHandler) WithGroup(_ string) slog.Handler {
	return a
}
