package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Subscription.Next after the subscription ends.
var ErrClosed = errors.New("push subscription closed")

// ErrSlowConsumer ends a broker subscription whose buffer overflowed.
var ErrSlowConsumer = errors.New("push subscriber fell behind")

// Subscription yields raw messages for one list in delivery order.
type Subscription interface {
	// Next blocks until a message arrives, ctx is done or the subscription
	// ends. A clean end returns ErrClosed.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Channel opens subscriptions to a list's push stream.
type Channel interface {
	Subscribe(ctx context.Context, listID string) (Subscription, error)
}

// DefaultBuffer is the per-subscriber backlog of a Broker.
const DefaultBuffer = 256

// Broker is an in-process Channel. The reference server publishes every
// persisted transition through it and fans it out to websocket viewers.
//
// Thread-safety: safe for concurrent use.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[*brokerSub]struct{}
	buffer int
	closed bool
}

// NewBroker creates a broker with the given per-subscriber buffer; zero
// selects DefaultBuffer.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{subs: make(map[string]map[*brokerSub]struct{}), buffer: buffer}
}

// Subscribe implements Channel.
func (b *Broker) Subscribe(_ context.Context, listID string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	s := &brokerSub{
		broker: b,
		listID: listID,
		ch:     make(chan []byte, b.buffer),
		done:   make(chan struct{}),
	}
	if b.subs[listID] == nil {
		b.subs[listID] = make(map[*brokerSub]struct{})
	}
	b.subs[listID][s] = struct{}{}
	return s, nil
}

// Publish delivers raw to every subscriber of listID and returns how many
// received it. A subscriber whose buffer is full is dropped; it sees
// ErrSlowConsumer and is expected to fall back to a full reload.
func (b *Broker) Publish(listID string, raw []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for s := range b.subs[listID] {
		select {
		case s.ch <- raw:
			delivered++
		default:
			slog.Warn("dropping slow push subscriber", "list_id", listID, "buffer", b.buffer)
			b.removeLocked(s)
			s.end(ErrSlowConsumer)
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions to listID.
func (b *Broker) Subscribers(listID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[listID])
}

// Close ends every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, set := range b.subs {
		for s := range set {
			s.end(ErrClosed)
		}
	}
	b.subs = make(map[string]map[*brokerSub]struct{})
}

func (b *Broker) removeLocked(s *brokerSub) {
	set := b.subs[s.listID]
	delete(set, s)
	if len(set) == 0 {
		delete(b.subs, s.listID)
	}
}

type brokerSub struct {
	broker *Broker
	listID string
	ch     chan []byte

	once sync.Once
	done chan struct{}
	err  error
}

func (s *brokerSub) end(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

func (s *brokerSub) Next(ctx context.Context) ([]byte, error) {
	// drain buffered messages before reporting the end
	select {
	case raw := <-s.ch:
		return raw, nil
	default:
	}

	select {
	case raw := <-s.ch:
		return raw, nil
	case <-s.done:
		select {
		case raw := <-s.ch:
			return raw, nil
		default:
		}
		return nil, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *brokerSub) Close() error {
	s.broker.mu.Lock()
	s.broker.removeLocked(s)
	s.broker.mu.Unlock()
	s.end(ErrClosed)
	return nil
}
