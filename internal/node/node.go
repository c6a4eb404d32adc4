// Package node holds the simulated participants. Every variant exposes the
// same capability set; variants that cannot propose, vote or finalize panic
// when asked to.
package node

import (
	"context"

	"github.com/wx-shi/chainsim/internal/network"
)

// Effect is a unit of local work yielded by a node. It may send messages
// through the node's outbox.
type Effect func(ctx context.Context) error

// Stream yields effects lazily. Once exhausted it can be replaced by a new
// call to Run, which picks up messages handled since.
type Stream interface {
	Next() (Effect, bool)
}

// Outbox is how a bound node reaches its peers.
type Outbox interface {
	Broadcast(from network.NodeID, msg network.Message) error
}

type Node interface {
	// Bind assigns the network id and outbox. It is called once, on
	// registration.
	Bind(id network.NodeID, out Outbox)
	ID() network.NodeID
	Handle(sender network.NodeID, msg network.Message)
	Run() Stream
	Propose(value string) Effect
	Vote(proposalID uint64, value string) Effect
	Finalize(value string) (string, bool)
	Status() Status
}

// Status is a point-in-time view of a node for inspection.
type Status struct {
	ID         network.NodeID `json:"id"`
	Kind       string         `json:"kind"`
	Clock      uint64         `json:"clock"`
	TipEpoch   uint64         `json:"tip_epoch"`
	FinalEpoch uint64         `json:"final_epoch"`
	Finalized  string         `json:"finalized,omitempty"`
	HasFinal   bool           `json:"has_final"`
}

type inbound struct {
	sender network.NodeID
	msg    network.Message
}

type streamFunc func() (Effect, bool)

func (f streamFunc) Next() (Effect, bool) { return f() }

var emptyStream = streamFunc(func() (Effect, bool) { return nil, false })

// Collect drains s into a slice.
func Collect(s Stream) []Effect {
	effects := make([]Effect, 0)
	for {
		eff, ok := s.Next()
		if !ok {
			return effects
		}
		effects = append(effects, eff)
	}
}

func noop(context.Context) error { return nil }
