// Package router implements ordered, per-topic publish/subscribe delivery
// between group chat containers and the orchestrator.
//
// Every subscriber owns a mailbox drained by a single goroutine, so envelopes
// reach a subscriber in publish order across all the topics it listens on and
// a handler always runs to completion before the next envelope for the same
// subscriber starts. The router is process local: a crash loses in-flight
// envelopes.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentcrew/logging"
)

// ErrClosed is returned when publishing to a closed router.
var ErrClosed = errors.New("router closed")

// Topic is a logical routing channel, independent of any single agent.
type Topic string

// Envelope is a routed payload. Source names the publisher.
type Envelope struct {
	Topic   Topic
	Source  string
	Payload any
}

// Handler processes one envelope. Errors are reported through Options.OnError.
type Handler func(ctx context.Context, env Envelope) error

// Options configures a Router.
type Options struct {
	// MailboxSize is the initial capacity of each subscriber queue.
	MailboxSize int
	// OnError receives handler errors (and recovered panics) with the
	// subscriber that produced them.
	OnError func(subscriber string, env Envelope, err error)
	Logger  logging.Logger
}

// Router delivers envelopes to topic subscribers. It is safe for concurrent use.
type Router struct {
	mu        sync.Mutex
	topics    map[Topic][]*subscription
	mailboxes map[string]*mailbox
	nextID    uint64
	closed    bool
	wg        sync.WaitGroup
	opts      Options
	logger    logging.Logger
}

type subscription struct {
	id      uint64
	mailbox *mailbox
	handler Handler
}

// delivery carries the publisher's context so cancellation of the publishing
// operation reaches the handler.
type delivery struct {
	ctx     context.Context
	env     Envelope
	handler Handler
}

// mailbox is an unbounded FIFO drained by one goroutine. Unbounded so that a
// handler publishing to its own subscriber never deadlocks.
type mailbox struct {
	name    string
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []delivery
	closing bool
	refs    int
}

// New creates a Router.
func New(optFns ...func(o *Options)) *Router {
	opts := Options{
		MailboxSize: 16,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Router{
		topics:    make(map[Topic][]*subscription),
		mailboxes: make(map[string]*mailbox),
		opts:      opts,
		logger:    logging.With(logging.OrNoOp(opts.Logger), "component", "router"),
	}
}

// Subscribe registers handler for topic on behalf of subscriber. Handlers of
// the same subscriber share one mailbox and therefore never run concurrently.
// The returned function removes the subscription.
func (r *Router) Subscribe(topic Topic, subscriber string, handler Handler) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	mb, ok := r.mailboxes[subscriber]
	if !ok {
		mb = &mailbox{name: subscriber, queue: make([]delivery, 0, r.opts.MailboxSize)}
		mb.cond = sync.NewCond(&mb.mu)
		r.mailboxes[subscriber] = mb
		r.wg.Add(1)
		go r.drain(mb)
	}
	mb.refs++

	r.nextID++
	sub := &subscription{id: r.nextID, mailbox: mb, handler: handler}
	r.topics[topic] = append(r.topics[topic], sub)

	var once sync.Once
	return func() {
		once.Do(func() { r.unsubscribe(topic, sub) })
	}, nil
}

func (r *Router) unsubscribe(topic Topic, sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.topics[topic]
	for i, s := range subs {
		if s.id == sub.id {
			r.topics[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}

	sub.mailbox.refs--
	if sub.mailbox.refs == 0 && !r.closed {
		delete(r.mailboxes, sub.mailbox.name)
		sub.mailbox.close()
	}
}

// Publish enqueues env for every current subscriber of topic. It returns once
// the envelope is queued, not once it is handled. Publishing to a topic
// without subscribers is a no-op.
func (r *Router) Publish(ctx context.Context, topic Topic, env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	env.Topic = topic
	for _, sub := range r.topics[topic] {
		sub.mailbox.push(delivery{ctx: ctx, env: env, handler: sub.handler})
	}

	return nil
}

// Close stops accepting envelopes, lets every mailbox finish its queue and
// waits for the drain goroutines to exit. Close is idempotent.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, mb := range r.mailboxes {
		mb.close()
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Router) drain(mb *mailbox) {
	defer r.wg.Done()

	for {
		d, ok := mb.pop()
		if !ok {
			return
		}
		r.dispatch(mb.name, d)
	}
}

func (r *Router) dispatch(subscriber string, d delivery) {
	defer func() {
		if rec := recover(); rec != nil {
			r.report(subscriber, d.env, fmt.Errorf("handler panicked: %v", rec))
		}
	}()

	if err := d.handler(d.ctx, d.env); err != nil {
		r.report(subscriber, d.env, err)
	}
}

func (r *Router) report(subscriber string, env Envelope, err error) {
	r.logger.Error("handler failed", "subscriber", subscriber, "topic", string(env.Topic), "error", err)
	if r.opts.OnError != nil {
		r.opts.OnError(subscriber, env, err)
	}
}

func (m *mailbox) push(d delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return
	}
	m.queue = append(m.queue, d)
	m.cond.Signal()
}

// pop blocks until a delivery is available. It returns false once the mailbox
// is closing and empty.
func (m *mailbox) pop() (delivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.queue) == 0 {
		if m.closing {
			return delivery{}, false
		}
		m.cond.Wait()
	}
	d := m.queue[0]
	m.queue[0] = delivery{}
	m.queue = m.queue[1:]
	return d, true
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closing = true
	m.cond.Broadcast()
}
