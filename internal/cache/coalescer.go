package cache

import (
	"sync"

	"github.com/javelinlabs/mcp-validation-gateway/internal/guard"
)

// slot is a pending Guard call for one cache key. done is closed exactly
// once, by the publisher, when the call completes. Subscribers wait on
// done and then read verdict/err/published — safe without further
// locking because the channel close happens-before any receive unblocks,
// per the Go memory model.
type slot struct {
	done      chan struct{}
	verdict   guard.Verdict
	err       error
	published bool
}

// Coalescer ensures at most one Guard call is in flight per cache key at
// a time. Late arrivals for the same key await the in-flight call's
// result instead of issuing their own; if the publisher fails, it
// publishes nothing and every waiter falls through to make its own
// request, per the spec's crash-fallthrough semantics.
type Coalescer struct {
	mu      sync.Mutex
	pending map[string]*slot
}

// NewCoalescer constructs an empty Coalescer.
func NewCoalescer() *Coalescer {
	return &Coalescer{pending: make(map[string]*slot)}
}

// Do runs fn for key, ensuring only one concurrent caller per key
// actually executes fn; others block until fn completes and then
// observe its result. If fn fails, the failure is returned only to the
// caller that ran fn; nothing is published or left behind, and every
// waiter falls through and runs fn itself.
func (c *Coalescer) Do(key string, fn func() (guard.Verdict, error)) (guard.Verdict, error) {
	c.mu.Lock()
	if s, ok := c.pending[key]; ok {
		c.mu.Unlock()
		<-s.done
		if s.published {
			return s.verdict, nil
		}
		// Publisher crashed or failed without publishing: fall through
		// and make our own request rather than propagating its error.
		return c.Do(key, fn)
	}

	s := &slot{done: make(chan struct{})}
	c.pending[key] = s
	c.mu.Unlock()

	verdict, err := fn()

	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()

	if err == nil {
		s.verdict = verdict
		s.published = true
	} else {
		s.err = err
	}
	close(s.done)

	return verdict, err
}

// Pending reports how many keys currently have an in-flight call, for
// cache_stats reporting.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Clear discards every pending slot. Subscribers already waiting on a
// discarded slot are unaffected — they still observe its eventual
// close — but no new subscriber can find it, matching the cache's own
// clear() in invalidating every entry and every pending slot.
func (c *Coalescer) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = make(map[string]*slot)
}
