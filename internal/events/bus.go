package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vidslide/internal/logging"
)

// ErrSubscriberDropped is reported by a subscription closed for falling too
// far behind.
var ErrSubscriberDropped = errors.New("subscriber dropped after repeated delivery failures; resubscribe")

// ErrBatchClosed is reported by a subscription whose batch was deleted.
var ErrBatchClosed = errors.New("batch closed")

// SnapshotFunc returns the current state of a batch for init events.
type SnapshotFunc func(batchID string) (any, error)

// Options tune the bus.
type Options struct {
	// Buffer is the channel capacity of each subscription.
	Buffer int
	// MaxDrops closes a subscription after this many lost events.
	MaxDrops int
	// History is the number of events retained per batch for polling.
	History int
	Logger  *slog.Logger
	// OnDrop is called for every event a subscriber loses.
	OnDrop func(batchID string)
}

// Bus is a bounded, non-blocking fan-out of batch events.
type Bus struct {
	mu       sync.Mutex
	cond     *sync.Cond
	opts     Options
	seq      uint64
	subs     map[string]map[*Subscription]struct{}
	history  map[string][]Event
	snapshot SnapshotFunc
	logger   *slog.Logger
	now      func() time.Time
}

// NewBus constructs a bus. snapshot provides init event payloads.
func NewBus(opts Options, snapshot SnapshotFunc) *Bus {
	if opts.Buffer <= 0 {
		opts.Buffer = 200
	}
	if opts.MaxDrops <= 0 {
		opts.MaxDrops = 50
	}
	if opts.History <= 0 {
		opts.History = 256
	}
	b := &Bus{
		opts:     opts,
		subs:     make(map[string]map[*Subscription]struct{}),
		history:  make(map[string][]Event),
		snapshot: snapshot,
		logger:   logging.NewComponentLogger(opts.Logger, "events"),
		now:      time.Now,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Subscription is one subscriber's ordered event stream.
type Subscription struct {
	batchID string
	ch      chan Event
	drops   int
	closed  bool
	err     error
}

// Events returns the stream. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// BatchID returns the subscribed batch.
func (s *Subscription) BatchID() string {
	return s.batchID
}

// Err explains why the stream closed. It is nil for a normal unsubscribe.
// Only valid after Events is closed.
func (s *Subscription) Err() error {
	return s.err
}

// Subscribe attaches to batchID. The first event on the stream is an init
// event carrying the batch snapshot.
func (b *Bus) Subscribe(batchID string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var payload any
	if b.snapshot != nil {
		snap, err := b.snapshot(batchID)
		if err != nil {
			return nil, err
		}
		payload = snap
	}
	sub := &Subscription{batchID: batchID, ch: make(chan Event, b.opts.Buffer)}
	sub.ch <- Event{Seq: b.seq, BatchID: batchID, Type: TypeInit, Time: b.now().UTC(), Payload: payload}
	if b.subs[batchID] == nil {
		b.subs[batchID] = make(map[*Subscription]struct{})
	}
	b.subs[batchID][sub] = struct{}{}
	return sub, nil
}

// Unsubscribe detaches and closes the subscription.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked(sub, nil)
}

func (b *Bus) closeLocked(sub *Subscription, reason error) {
	if sub.closed {
		return
	}
	sub.closed = true
	sub.err = reason
	if set := b.subs[sub.batchID]; set != nil {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.batchID)
		}
	}
	close(sub.ch)
}

// Publish sends an event to every subscriber of batchID without blocking.
func (b *Bus) Publish(batchID string, typ Type, payload any) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.publishLocked(batchID, typ, payload)
}

func (b *Bus) publishLocked(batchID string, typ Type, payload any) Event {
	b.seq++
	evt := Event{Seq: b.seq, BatchID: batchID, Type: typ, Time: b.now().UTC(), Payload: payload}

	hist := b.history[batchID]
	if len(hist) == b.opts.History {
		copy(hist, hist[1:])
		hist = hist[:len(hist)-1]
	}
	b.history[batchID] = append(hist, evt)
	b.cond.Broadcast()

	for sub := range b.subs[batchID] {
		select {
		case sub.ch <- evt:
		default:
			sub.drops++
			if b.opts.OnDrop != nil {
				b.opts.OnDrop(batchID)
			}
			if sub.drops >= b.opts.MaxDrops {
				b.logger.Warn("closing slow event subscriber",
					logging.BatchID(batchID),
					logging.Int("dropped", sub.drops),
				)
				b.closeLocked(sub, ErrSubscriberDropped)
			}
		}
	}
	return evt
}

// CloseBatch publishes a close event, ends every subscription of the batch
// and forgets its history.
func (b *Bus) CloseBatch(batchID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishLocked(batchID, TypeClose, nil)
	for sub := range b.subs[batchID] {
		b.closeLocked(sub, ErrBatchClosed)
	}
	delete(b.history, batchID)
}

// Subscribers reports the number of live subscriptions of batchID.
func (b *Bus) Subscribers(batchID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[batchID])
}

// Fetch returns retained events of batchID with a sequence greater than
// since. When wait is true it blocks until an event arrives or ctx ends.
func (b *Bus) Fetch(ctx context.Context, batchID string, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if limit <= 0 || limit > b.opts.History {
		limit = b.opts.History
	}
	stop := make(chan struct{})
	defer close(stop)
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				b.mu.Lock()
				b.cond.Broadcast()
				b.mu.Unlock()
			case <-stop:
			}
		}()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		events, next := b.sinceLocked(batchID, since, limit)
		if len(events) > 0 || !wait {
			return events, next, nil
		}
		if ctx != nil && ctx.Err() != nil {
			return nil, next, ctx.Err()
		}
		b.cond.Wait()
	}
}

func (b *Bus) sinceLocked(batchID string, since uint64, limit int) ([]Event, uint64) {
	var out []Event
	for _, evt := range b.history[batchID] {
		if evt.Seq <= since {
			continue
		}
		out = append(out, evt)
		if len(out) == limit {
			break
		}
	}
	next := since
	if len(out) > 0 {
		next = out[len(out)-1].Seq
	}
	return out, next
}
