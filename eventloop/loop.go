// Package eventloop provides a single-goroutine executor with readiness
// subscriptions. It's used to deliver asynchronous processing results
// on the same goroutine that drives the processor.
package eventloop

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/topic-embedded-products/dyplo"
	"github.com/topic-embedded-products/dyplo/log"
)

// ErrClosed is returned when loop isn't running anymore.
var ErrClosed = errors.New("event loop is closed")

type (
	// Loop executes posted functions one by one on the goroutine that
	// called Run. Readiness callbacks are executed the same way.
	Loop struct {
		posts chan func()
		done  chan struct{}
		once  sync.Once
		wg    sync.WaitGroup

		mu       sync.Mutex
		watchers map[dyplo.Subscription]*watcher

		log logrus.FieldLogger
	}

	// watcher waits for readiness of a single source.
	watcher struct {
		sub    dyplo.Subscription
		w      dyplo.Waitable
		fn     func()
		stop   chan struct{}
		active bool
	}

	// Option configures the loop.
	Option func(*Loop)
)

// WithLogger sets logger to loop.
func WithLogger(l logrus.FieldLogger) Option {
	return func(lp *Loop) {
		lp.log = l
	}
}

// New returns loop which isn't running yet.
func New(options ...Option) *Loop {
	l := &Loop{
		posts:    make(chan func()),
		done:     make(chan struct{}),
		watchers: make(map[dyplo.Subscription]*watcher),
		log:      log.Discard(),
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Run executes posted functions until context is done or loop is
// closed. All subscriptions are cancelled before it returns. Run must be
// called once.
func (l *Loop) Run(ctx context.Context) error {
	defer l.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.posts:
			fn()
		}
	}
}

// Close cancels all subscriptions and waits for their watchers to
// return. Posted functions which weren't executed are dropped.
func (l *Loop) Close() {
	l.once.Do(func() {
		close(l.done)
		l.mu.Lock()
		for sub, wt := range l.watchers {
			wt.active = false
			close(wt.stop)
			delete(l.watchers, sub)
		}
		l.mu.Unlock()
		l.wg.Wait()
	})
}

// Post schedules fn execution on the loop goroutine. It blocks until
// the loop accepts fn and must not be called from the loop goroutine.
func (l *Loop) Post(fn func()) error {
	if !l.post(fn, nil) {
		return ErrClosed
	}
	return nil
}

// Do executes fn on the loop goroutine and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case l.posts <- func() { defer close(done); fn() }:
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-l.done:
		return ErrClosed
	}
}

func (l *Loop) post(fn func(), stop <-chan struct{}) bool {
	select {
	case l.posts <- fn:
		return true
	case <-l.done:
		return false
	case <-stop:
		return false
	}
}

// SubscribeReadable calls fn on the loop goroutine every time w is
// readable. Readiness is re-checked before each call, so fn is called
// while w stays readable. Safe to call from the loop goroutine.
func (l *Loop) SubscribeReadable(w dyplo.Waitable, fn func()) (dyplo.Subscription, error) {
	select {
	case <-l.done:
		return "", ErrClosed
	default:
	}
	wt := &watcher{
		sub:    dyplo.Subscription(xid.New().String()),
		w:      w,
		fn:     fn,
		stop:   make(chan struct{}),
		active: true,
	}
	l.mu.Lock()
	l.watchers[wt.sub] = wt
	l.wg.Add(1)
	l.mu.Unlock()
	go l.watch(wt)
	l.log.WithField("subscription", wt.sub).Debug("subscribed")
	return wt.sub, nil
}

// Unsubscribe cancels subscription. Callback isn't called after
// Unsubscribe returns if both are executed on the loop goroutine.
// Unknown subscriptions are ignored.
func (l *Loop) Unsubscribe(s dyplo.Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	wt, ok := l.watchers[s]
	if !ok {
		return
	}
	wt.active = false
	close(wt.stop)
	delete(l.watchers, s)
	l.log.WithField("subscription", s).Debug("unsubscribed")
}

// Subscriptions returns the number of active subscriptions.
func (l *Loop) Subscriptions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.watchers)
}

func (l *Loop) isActive(wt *watcher) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return wt.active
}

// watch posts dispatch every time source signals readiness. First
// dispatch happens right away to catch readiness signalled before the
// subscription.
func (l *Loop) watch(wt *watcher) {
	defer l.wg.Done()
	for {
		done := make(chan struct{})
		dispatch := func() {
			defer close(done)
			for l.isActive(wt) && wt.w.Readable() {
				wt.fn()
			}
		}
		if !l.post(dispatch, wt.stop) {
			return
		}
		select {
		case <-done:
		case <-wt.stop:
			return
		case <-l.done:
			return
		}

		select {
		case <-wt.w.Wait():
		case <-wt.stop:
			return
		case <-l.done:
			return
		}
	}
}
