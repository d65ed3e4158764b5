package core

import (
	"sync"
	"sync/atomic"
)

var (
	// Encoded receives the bytes written by each EncoderV4.Encode call.
	Encoded = NewChannel("ctrace:agent:encoder:encoded")

	// Assembled receives every payload returned by EncoderV4.MakePayload.
	Assembled = NewChannel("ctrace:agent:encoder:assembled")
)

// Channel is a named publish/subscribe hook for passive inspection of
// encoder output. Publishing with no subscribers costs one atomic load.
//
// Subscribers are called synchronously on the publishing goroutine, while the
// encoder holds its lock. They must not retain or modify the slice and must
// not call back into the encoder.
type Channel struct {
	name string

	n    int32
	mu   sync.RWMutex
	next uint64
	subs map[uint64]func([]byte)
}

// NewChannel creates a Channel with the given name.
func NewChannel(name string) *Channel {
	return &Channel{name: name, subs: make(map[uint64]func([]byte))}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// HasSubscribers reports whether Publish would reach anyone.
func (c *Channel) HasSubscribers() bool {
	return atomic.LoadInt32(&c.n) > 0
}

// Subscribe registers fn and returns a function that removes it again.
func (c *Channel) Subscribe(fn func([]byte)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = fn
	atomic.StoreInt32(&c.n, int32(len(c.subs)))
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			atomic.StoreInt32(&c.n, int32(len(c.subs)))
			c.mu.Unlock()
		})
	}
}

// Publish hands b to every subscriber.
func (c *Channel) Publish(b []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, fn := range c.subs {
		fn(b)
	}
}
