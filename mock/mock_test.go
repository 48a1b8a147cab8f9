package mock_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/topic-embedded-products/dyplo"
	"github.com/topic-embedded-products/dyplo/mock"
)

type waitable struct {
	items int
}

func (w *waitable) Wait() <-chan struct{} { return nil }
func (w *waitable) Readable() bool        { return w.items > 0 }

func TestConsumer(t *testing.T) {
	errTest := errors.New("test error")
	c := &mock.Consumer{}
	c.Consume(dyplo.Result{Err: errTest})

	results, bytes := c.Count()
	assert.Equal(t, 1, results)
	assert.Equal(t, 0, bytes)
	assert.Equal(t, []error{errTest}, c.Errors())
	assert.Empty(t, c.Images())
	assert.NoError(t, c.Wait(1, time.Millisecond))
	assert.Error(t, c.Wait(2, time.Millisecond))

	c.Reset()
	results, _ = c.Count()
	assert.Equal(t, 0, results)
	assert.Empty(t, c.Errors())
}

func TestConsumerDiscard(t *testing.T) {
	c := &mock.Consumer{Discard: true}
	c.Consume(dyplo.Result{})

	results, _ := c.Count()
	assert.Equal(t, 1, results)
	assert.Empty(t, c.Images())
	assert.Empty(t, c.Errors())
}

func TestEventLoop(t *testing.T) {
	l := &mock.EventLoop{}
	w := &waitable{items: 3}
	calls := 0
	s, err := l.SubscribeReadable(w, func() {
		calls++
		w.items--
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, l.Active())

	assert.Equal(t, 3, l.Fire())
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, l.Fire())
	assert.Equal(t, 1, l.FireUnchecked())

	l.Unsubscribe(s)
	l.Unsubscribe(s)
	assert.Equal(t, 0, l.Active())
	assert.Equal(t, 1, l.Subscribed)
	assert.Equal(t, 1, l.Unsubscribed)

	l.ErrorOnSubscribe = errors.New("test error")
	_, err = l.SubscribeReadable(w, func() {})
	assert.Error(t, err)
}
