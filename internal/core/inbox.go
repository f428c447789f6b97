package core

import (
	"context"
	"errors"

	"PerpVault/internal/event"
)

var ErrInboxClosed = errors.New("core inbox closed")

// Request is one unit of work for the core goroutine: either a command to
// commit or a read to run against committed state.
type Request struct {
	Event event.Event
	View  func(*Engine)
	reply chan response
}

type response struct {
	out *CoreOutput
	err error
}

// Inbox serializes commands from concurrent ingress (NATS, gRPC) onto the
// single core goroutine.
type Inbox struct {
	ch   chan Request
	done chan struct{}
}

func NewInbox(size int) *Inbox {
	return &Inbox{
		ch:   make(chan Request, size),
		done: make(chan struct{}),
	}
}

// Submit enqueues evt and waits for the core's verdict.
func (in *Inbox) Submit(ctx context.Context, evt event.Event) (*CoreOutput, error) {
	req := Request{Event: evt, reply: make(chan response, 1)}
	if err := in.send(ctx, req); err != nil {
		return nil, err
	}
	select {
	case r := <-req.reply:
		return r.out, r.err
	case <-in.done:
		return nil, ErrInboxClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// View runs fn on the core goroutine and waits for it to return.
func (in *Inbox) View(ctx context.Context, fn func(*Engine)) error {
	req := Request{View: fn, reply: make(chan response, 1)}
	if err := in.send(ctx, req); err != nil {
		return err
	}
	select {
	case r := <-req.reply:
		return r.err
	case <-in.done:
		return ErrInboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (in *Inbox) send(ctx context.Context, req Request) error {
	select {
	case <-in.done:
		return ErrInboxClosed
	default:
	}
	select {
	case in.ch <- req:
		return nil
	case <-in.done:
		return ErrInboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports queued requests.
func (in *Inbox) Len() int { return len(in.ch) }

// Cap reports the queue capacity.
func (in *Inbox) Cap() int { return cap(in.ch) }

// Run drains in until ctx is cancelled. It is the only goroutine that
// touches the engine once started.
func (e *Engine) Run(ctx context.Context, in *Inbox) {
	defer close(in.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-in.ch:
			var r response
			if req.View != nil {
				req.View(e)
			} else {
				r.out, r.err = e.ProcessEvent(req.Event)
			}
			req.reply <- r
			if e.metrics != nil {
				e.metrics.SetChannelMetrics("inbox", len(in.ch), cap(in.ch))
				e.metrics.DedupLRUSize.Set(float64(e.idempotency.lru.Size()))
			}
		}
	}
}
