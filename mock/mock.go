// Package mock provides mocks for processor collaborators and allows to
// execute integration tests.
package mock

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/topic-embedded-products/dyplo"
)

// Consumer mocks a dyplo.ResultFunc. Every successful result is copied
// unless Discard is set. It's safe to check consumer while event loop
// delivers results.
type Consumer struct {
	mu sync.Mutex
	counter
	images []dyplo.Image
	views  []dyplo.View
	errs   []error
	notify chan struct{}

	Discard bool
	// Retain keeps views past the callback to check invalidation.
	Retain bool
	// OnResult is called after the result is recorded.
	OnResult func(dyplo.Result)
}

// Consume implements dyplo.ResultFunc.
func (m *Consumer) Consume(r dyplo.Result) {
	m.mu.Lock()
	if r.Err != nil {
		m.errs = append(m.errs, r.Err)
		m.advance(0)
	} else {
		b := r.View.Bytes()
		if !m.Discard {
			m.images = append(m.images, r.View.Clone())
		}
		if m.Retain {
			m.views = append(m.views, r.View)
		}
		m.advance(len(b))
	}
	m.signal()
	m.mu.Unlock()

	if m.OnResult != nil {
		m.OnResult(r)
	}
}

func (m *Consumer) signal() {
	if m.notify == nil {
		m.notify = make(chan struct{}, 1)
	}
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Wait blocks until at least n results are consumed or timeout expires.
func (m *Consumer) Wait(n int, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		m.mu.Lock()
		if m.results >= n {
			m.mu.Unlock()
			return nil
		}
		if m.notify == nil {
			m.notify = make(chan struct{}, 1)
		}
		notify := m.notify
		m.mu.Unlock()

		select {
		case <-notify:
		case <-deadline:
			results, _ := m.Count()
			return fmt.Errorf("consumed %d results of %d in %v", results, n, timeout)
		}
	}
}

// Images returns copies of received images.
func (m *Consumer) Images() []dyplo.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dyplo.Image(nil), m.images...)
}

// Views returns retained views.
func (m *Consumer) Views() []dyplo.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dyplo.View(nil), m.views...)
}

// Errors returns received errors.
func (m *Consumer) Errors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.errs...)
}

// Count returns results and bytes metrics.
func (m *Consumer) Count() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter.Count()
}

// Reset resets consumer's metrics and received data.
func (m *Consumer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images, m.views, m.errs = nil, nil, nil
	m.reset()
}

// EventLoop mocks a dyplo.EventLoop. Callbacks are executed by Fire on
// the calling goroutine.
type EventLoop struct {
	subs         map[dyplo.Subscription]subscription
	next         int
	Subscribed   int
	Unsubscribed int

	ErrorOnSubscribe error
}

type subscription struct {
	w  dyplo.Waitable
	fn func()
}

// SubscribeReadable implements dyplo.EventLoop.
func (m *EventLoop) SubscribeReadable(w dyplo.Waitable, fn func()) (dyplo.Subscription, error) {
	if m.ErrorOnSubscribe != nil {
		return "", m.ErrorOnSubscribe
	}
	if m.subs == nil {
		m.subs = make(map[dyplo.Subscription]subscription)
	}
	m.next++
	s := dyplo.Subscription(fmt.Sprintf("mock-%d", m.next))
	m.subs[s] = subscription{w: w, fn: fn}
	m.Subscribed++
	return s, nil
}

// Unsubscribe implements dyplo.EventLoop.
func (m *EventLoop) Unsubscribe(s dyplo.Subscription) {
	if _, ok := m.subs[s]; !ok {
		return
	}
	delete(m.subs, s)
	m.Unsubscribed++
}

// Active returns the number of live subscriptions.
func (m *EventLoop) Active() int {
	return len(m.subs)
}

// Fire calls callbacks of subscriptions while their sources are
// readable. It returns the number of calls.
func (m *EventLoop) Fire() int {
	keys := make([]string, 0, len(m.subs))
	for s := range m.subs {
		keys = append(keys, string(s))
	}
	sort.Strings(keys)

	calls := 0
	for _, k := range keys {
		for {
			sub, ok := m.subs[dyplo.Subscription(k)]
			if !ok || !sub.w.Readable() {
				break
			}
			sub.fn()
			calls++
		}
	}
	return calls
}

// FireUnchecked calls every callback once regardless of readiness.
func (m *EventLoop) FireUnchecked() int {
	calls := 0
	for _, sub := range m.subs {
		sub.fn()
		calls++
	}
	return calls
}

// counter counts results and bytes.
type counter struct {
	results int
	bytes   int
}

// advance counter's metrics.
func (c *counter) advance(size int) {
	c.results++
	c.bytes = c.bytes + size
}

// Count returns results and bytes metrics.
func (c *counter) Count() (int, int) {
	return c.results, c.bytes
}

// reset resets counter's metrics.
func (c *counter) reset() {
	c.results, c.bytes = 0, 0
}
