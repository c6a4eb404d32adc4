package node

import (
	"fmt"

	"github.com/wx-shi/chainsim/internal/network"
	"go.uber.org/zap"
)

// Passive logs what it receives and does nothing else.
type Passive struct {
	id     network.NodeID
	logger *zap.Logger
	clock  network.Clock
}

func NewPassive(logger *zap.Logger) *Passive {
	return &Passive{logger: logger}
}

func (p *Passive) Bind(id network.NodeID, _ Outbox) { p.id = id }
func (p *Passive) ID() network.NodeID               { return p.id }
func (p *Passive) Run() Stream                      { return emptyStream }

func (p *Passive) Handle(sender network.NodeID, msg network.Message) {
	p.clock.Observe(msg.Timestamp)
	p.logger.Info("Passive::Receive",
		zap.Uint64("node", p.id),
		zap.Uint64("sender", sender),
		zap.String("content", msg.Content))
}

func (p *Passive) Propose(string) Effect {
	panic(fmt.Sprintf("node: passive node %d cannot propose", p.id))
}

func (p *Passive) Vote(uint64, string) Effect {
	panic(fmt.Sprintf("node: passive node %d cannot vote", p.id))
}

func (p *Passive) Finalize(string) (string, bool) {
	panic(fmt.Sprintf("node: passive node %d cannot finalize", p.id))
}

func (p *Passive) Status() Status {
	return Status{ID: p.id, Kind: "passive", Clock: p.clock.Now()}
}
