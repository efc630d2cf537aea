package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kilnforge/filepool/pkg/poolerr"
)

// nextMessageID is the process-wide monotonic message id counter spec.md
// §3 requires ("messageId: a process-wide monotonic positive integer").
var nextMessageID uint64

func newMessageID() uint64 {
	return atomic.AddUint64(&nextMessageID, 1)
}

// Link is the underlying duplex carrier between one Controller and one
// Executor: a pair of Go channels standing in for the platform
// thread-channel spec.md's Message Channel extends. Messages sent on one
// side's outbox arrive as that side's peer's inbox, in order, which gives
// the ordering guarantee spec.md §5 requires for a single request without
// needing any additional bookkeeping.
type Link struct {
	toExecutor  chan Message
	toController chan Message
}

// NewLink creates a Link with the given per-direction buffer size.
func NewLink(buffer int) *Link {
	return &Link{
		toExecutor:   make(chan Message, buffer),
		toController: make(chan Message, buffer),
	}
}

// ControllerSide returns the Channel the Worker Handle uses to talk to the
// Executor on the other end of the Link.
func (l *Link) ControllerSide(onProtocolError func(error)) *Channel {
	return newChannel(l.toExecutor, l.toController, onProtocolError)
}

// ExecutorSide returns the Channel the Executor Runtime uses to talk back
// to the Controller.
func (l *Link) ExecutorSide(onProtocolError func(error)) *Channel {
	return newChannel(l.toController, l.toExecutor, onProtocolError)
}

// Channel is one endpoint of a Link. It frames outgoing messages with a
// monotonic id, correlates replies against a Pending Request Table,
// streams multi-part replies, and rejects every pending request on
// terminate (spec.md §4.3).
type Channel struct {
	out chan<- Message
	in  <-chan Message

	pending   *pendingTable
	completed *completedHistory

	requests chan Message // inbound messages with To == 0, for the receiving side to dispatch

	onProtocolError func(error)

	mu         sync.Mutex
	terminated bool
	done       chan struct{}
}

func newChannel(out chan<- Message, in <-chan Message, onProtocolError func(error)) *Channel {
	if onProtocolError == nil {
		onProtocolError = func(error) {}
	}
	c := &Channel{
		out:             out,
		in:              in,
		pending:         newPendingTable(),
		completed:       newCompletedHistory(4096),
		requests:        make(chan Message, 64),
		onProtocolError: onProtocolError,
		done:            make(chan struct{}),
	}
	go c.dispatchLoop()
	return c
}

// dispatchLoop routes every inbound message to either a registered waiter
// (a reply) or the Requests channel (a fresh request), for as long as the
// underlying link is open.
func (c *Channel) dispatchLoop() {
	for msg := range c.in {
		if msg.To == 0 {
			select {
			case c.requests <- msg:
			case <-c.done:
				return
			}
			continue
		}
		w, ok := c.pending.lookup(msg.To)
		if !ok {
			if c.completed.contains(msg.To) {
				continue // arrived-after-cancel: completed-and-ignored
			}
			c.onProtocolError(poolerr.New(poolerr.ProtocolError,
				fmt.Sprintf("reply refers to unknown message id %d", msg.To)))
			continue
		}
		select {
		case w.ch <- streamItem{Msg: msg}:
		case <-c.done:
			return
		}
		if !w.stream || msg.Kind.isTerminal() {
			c.pending.remove(msg.To)
			c.completed.add(msg.To)
		}
	}
}

// Requests exposes inbound fresh requests (To == 0) for the receiving side
// to dispatch — used by the Executor Runtime.
func (c *Channel) Requests() <-chan Message {
	return c.requests
}

// Send is the fire-and-forget mode (spec.md §4.3, mode 1): it stamps a
// fresh id and posts the message without registering a waiter.
func (c *Channel) Send(kind Kind, payload any) (uint64, error) {
	id := newMessageID()
	if err := c.post(Message{ID: id, Kind: kind, Payload: payload}); err != nil {
		return 0, err
	}
	return id, nil
}

// Reply posts a reply to an already-received request id. Replies are
// always fire-and-forget from the sender's perspective; correlation
// happens on the receiving Channel.
func (c *Channel) Reply(to uint64, kind Kind, payload any) error {
	return c.post(Message{ID: newMessageID(), To: to, Kind: kind, Payload: payload})
}

// SendAwait is the single-reply mode (spec.md §4.3, mode 2): it registers
// a pending entry, sends the request, and resolves on the first reply or
// rejects on an explicit error reply, forced rejection, or ctx
// cancellation.
func (c *Channel) SendAwait(ctx context.Context, kind Kind, payload any) (Message, error) {
	id := newMessageID()
	w := c.pending.register(id, false)
	if err := c.post(Message{ID: id, Kind: kind, Payload: payload}); err != nil {
		c.pending.remove(id)
		return Message{}, err
	}
	select {
	case item := <-w.ch:
		if item.Err != nil {
			return Message{}, item.Err
		}
		if item.Msg.Kind == KindError {
			return Message{}, errorFromReply(item.Msg)
		}
		return item.Msg, nil
	case <-ctx.Done():
		c.pending.remove(id)
		return Message{}, ctx.Err()
	case <-c.done:
		return Message{}, poolerr.New(poolerr.Terminating, "channel terminated")
	}
}

// StreamHandle is returned by SendStream; Next yields each non-terminal
// reply for the request, ending the stream when Next returns ok == false.
type StreamHandle struct {
	ch  chan streamItem
	err error
}

// Next blocks for the next non-terminal reply. It returns ok == false when
// the stream has ended, either because a `finished` reply arrived (h.Err()
// is nil) or because the request failed (h.Err() is non-nil).
func (h *StreamHandle) Next(ctx context.Context) (Message, bool) {
	select {
	case item, open := <-h.ch:
		if !open {
			return Message{}, false
		}
		if item.Err != nil {
			h.err = item.Err
			return Message{}, false
		}
		if item.Msg.Kind == KindFinished {
			return Message{}, false
		}
		if item.Msg.Kind == KindError {
			h.err = errorFromReply(item.Msg)
			return Message{}, false
		}
		return item.Msg, true
	case <-ctx.Done():
		h.err = ctx.Err()
		return Message{}, false
	}
}

// Err returns the error that ended the stream, if any.
func (h *StreamHandle) Err() error { return h.err }

// SendStream is the streamed-reply mode (spec.md §4.3, mode 3). The
// returned StreamHandle stays registered in the pending table for the
// entire stream, so a reply arriving between two calls to Next is
// buffered rather than dropped.
func (c *Channel) SendStream(ctx context.Context, kind Kind, payload any) (*StreamHandle, error) {
	id := newMessageID()
	w := c.pending.register(id, true)
	if err := c.post(Message{ID: id, Kind: kind, Payload: payload}); err != nil {
		c.pending.remove(id)
		return nil, err
	}
	go func() {
		<-ctx.Done()
		// best-effort: if the stream is abandoned, stop buffering for it;
		// later replies for id are treated as completed-and-ignored.
		c.pending.remove(id)
		c.completed.add(id)
	}()
	return &StreamHandle{ch: w.ch}, nil
}

func (c *Channel) post(msg Message) error {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return poolerr.New(poolerr.Terminating, "channel terminated")
	}
	c.mu.Unlock()
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return poolerr.New(poolerr.Terminating, "channel terminated")
	}
}

// RejectAllPending atomically drains the pending table and rejects every
// entry with err (spec.md §4.3). Replies for the drained ids that arrive
// afterward are treated as completed-and-ignored.
func (c *Channel) RejectAllPending(err error) {
	drained := c.pending.drain()
	for id, w := range drained {
		select {
		case w.ch <- streamItem{Err: err}:
		default:
		}
		close(w.ch)
		c.completed.add(id)
	}
}

// Terminate marks the channel terminated, rejects every pending request
// with err, and stops the dispatch loop from delivering further messages.
func (c *Channel) Terminate(err error) {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	c.mu.Unlock()
	c.RejectAllPending(err)
	close(c.done)
}

func errorFromReply(msg Message) error {
	if we, ok := msg.Payload.(interface{ AsError() error }); ok {
		return we.AsError()
	}
	if err, ok := msg.Payload.(error); ok {
		return err
	}
	return poolerr.New(poolerr.Generic, fmt.Sprintf("%v", msg.Payload))
}
