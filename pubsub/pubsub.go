// Package pubsub passes messages between goroutines over named channels. Subscription channel
// names may contain '*' globs, so "routes.*" receives everything published to "routes.added".
package pubsub

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrSlowSubscriber is returned by Subscribe when the subscription fell a full buffer behind and was
// disconnected.
var ErrSlowSubscriber = errors.New("pubsub: subscriber too slow")

// Handler is the function executed against an inbound message. Return false to end the subscription.
type Handler func(msg interface{}) bool

// Filter drops messages before they reach a subscription's Handler when it returns false.
type Filter func(msg interface{}) bool

// PubSub is used to asynchronously pass messages between routines.
type PubSub interface {
	// Publish delivers obj to every subscription whose pattern matches channel. It never blocks on a
	// subscriber: one whose buffer is full misses obj and is disconnected with ErrSlowSubscriber.
	Publish(ctx context.Context, channel string, obj interface{}) error
	// Subscribe subscribes to the given channel pattern until the context is cancelled or the handler returns false.
	Subscribe(ctx context.Context, channel string, handler Handler, opts ...SubOpt) error
	// Subscribers returns the number of active subscriptions
	Subscribers() int
	// Close ends all subscriptions
	Close()
}

// SubOptions holds config options for a subscription.
type SubOptions struct {
	filter Filter
	ready  func()
}

// SubOpt configures a subscription.
type SubOpt func(options *SubOptions)

// WithFilter is a subscription option that filters messages.
func WithFilter(filter Filter) SubOpt {
	return func(options *SubOptions) {
		options.filter = filter
	}
}

// WithReady registers a callback invoked once the subscription is registered and able to receive.
func WithReady(fn func()) SubOpt {
	return func(options *SubOptions) {
		options.ready = fn
	}
}

// Opt configures a PubSub.
type Opt func(p *pubSub)

// WithOnDrop registers a callback invoked with the published channel for every message a slow
// subscriber misses.
func WithOnDrop(fn func(channel string)) Opt {
	return func(p *pubSub) {
		p.onDrop = fn
	}
}

// WithBuffer sets the per subscription buffer length. Defaults to 10.
func WithBuffer(length int) Opt {
	return func(p *pubSub) {
		if length > 0 {
			p.buffer = length
		}
	}
}

type subscription struct {
	ch      chan interface{}
	done    chan struct{}
	lagged  chan struct{}
	lagOnce sync.Once
}

func (s *subscription) lag() {
	s.lagOnce.Do(func() {
		close(s.lagged)
	})
}

type pubSub struct {
	subscriptions map[string]map[uint64]*subscription
	subMu         sync.RWMutex
	nextID        uint64
	buffer        int
	onDrop        func(channel string)
	closed        chan struct{}
	closeOnce     sync.Once
}

// New returns an empty PubSub.
func New(opts ...Opt) PubSub {
	p := &pubSub{
		subscriptions: map[string]map[uint64]*subscription{},
		buffer:        10,
		closed:        make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *pubSub) Subscribe(ctx context.Context, channel string, handler Handler, options ...SubOpt) error {
	opts := &SubOptions{}
	for _, o := range options {
		o(opts)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub, closer := p.setupSubscription(channel)
	defer closer()
	if opts.ready != nil {
		opts.ready()
	}
	for {
		select {
		case <-sub.lagged:
			return ErrSlowSubscriber
		default:
		}
		select {
		case <-sub.lagged:
			return ErrSlowSubscriber
		case <-ctx.Done():
			return nil
		case <-p.closed:
			return nil
		case msg := <-sub.ch:
			if opts.filter != nil && !opts.filter(msg) {
				continue
			}
			if !handler(msg) {
				return nil
			}
		}
	}
}

func (p *pubSub) Publish(ctx context.Context, channel string, obj interface{}) error {
	p.subMu.RLock()
	var targets []*subscription
	for pattern, subs := range p.subscriptions {
		if globMatch(pattern, channel) {
			for _, s := range subs {
				targets = append(targets, s)
			}
		}
	}
	p.subMu.RUnlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, s := range targets {
		select {
		case <-s.done:
			continue
		case <-s.lagged:
		case s.ch <- obj:
			continue
		default:
			s.lag()
		}
		if p.onDrop != nil {
			p.onDrop(channel)
		}
	}
	return nil
}

func (p *pubSub) Subscribers() int {
	p.subMu.RLock()
	defer p.subMu.RUnlock()
	count := 0
	for _, subs := range p.subscriptions {
		count += len(subs)
	}
	return count
}

func (p *pubSub) setupSubscription(channel string) (*subscription, func()) {
	subID := atomic.AddUint64(&p.nextID, 1)
	sub := &subscription{
		ch:     make(chan interface{}, p.buffer),
		done:   make(chan struct{}),
		lagged: make(chan struct{}),
	}
	p.subMu.Lock()
	if p.subscriptions[channel] == nil {
		p.subscriptions[channel] = map[uint64]*subscription{}
	}
	p.subscriptions[channel][subID] = sub
	p.subMu.Unlock()
	return sub, func() {
		p.subMu.Lock()
		delete(p.subscriptions[channel], subID)
		if len(p.subscriptions[channel]) == 0 {
			delete(p.subscriptions, channel)
		}
		p.subMu.Unlock()
		close(sub.done)
	}
}

func (p *pubSub) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
}

func globMatch(pattern string, subj string) bool {
	const matchAll = "*"
	if pattern == subj {
		return true
	}
	if pattern == matchAll {
		return true
	}

	parts := strings.Split(pattern, matchAll)
	if len(parts) == 1 {
		return subj == pattern
	}
	leadingGlob := strings.HasPrefix(pattern, matchAll)
	trailingGlob := strings.HasSuffix(pattern, matchAll)
	end := len(parts) - 1
	for i := 0; i < end; i++ {
		idx := strings.Index(subj, parts[i])

		switch i {
		case 0:
			if !leadingGlob && idx != 0 {
				return false
			}
		default:
			if idx < 0 {
				return false
			}
		}
		subj = subj[idx+len(parts[i]):]
	}
	return trailingGlob || strings.HasSuffix(subj, parts[end])
}
