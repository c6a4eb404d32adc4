package network

import "fmt"

// NodeID identifies a participant. Ids are allocated from zero by the
// Network.
type NodeID = uint64

// Message is the envelope moved by the fabric. Content is opaque to it.
type Message struct {
	Content   string `json:"content"`
	Timestamp uint64 `json:"timestamp"`
}

// Event is a scheduled delivery.
type Event struct {
	Timestamp uint64  `json:"timestamp"`
	Sender    NodeID  `json:"sender"`
	Receiver  NodeID  `json:"receiver"`
	Message   Message `json:"message"`
}

func (e Event) String() string {
	return fmt.Sprintf("%d:%d->%d:%s", e.Timestamp, e.Sender, e.Receiver, e.Message.Content)
}

// Clock is a Lamport logical clock.
type Clock struct {
	time uint64
}

// Tick advances the clock for a local or outbound action.
func (c *Clock) Tick() uint64 {
	c.time++
	return c.time
}

// Observe merges a received timestamp: max(clock, ts) + 1.
func (c *Clock) Observe(ts uint64) uint64 {
	if ts > c.time {
		c.time = ts
	}
	c.time++
	return c.time
}

func (c *Clock) Now() uint64 {
	return c.time
}
