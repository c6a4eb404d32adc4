package node

import (
	"context"

	"github.com/wx-shi/chainsim/internal/network"
	"go.uber.org/zap"
)

// Byzantine ignores what it receives and emits proposals and votes without
// tracking them. It never finalizes.
type Byzantine struct {
	id     network.NodeID
	logger *zap.Logger
	out    Outbox
	epoch  uint64
}

func NewByzantine(logger *zap.Logger) *Byzantine {
	return &Byzantine{logger: logger}
}

func (b *Byzantine) Bind(id network.NodeID, out Outbox) {
	b.id = id
	b.out = out
}

func (b *Byzantine) ID() network.NodeID                     { return b.id }
func (b *Byzantine) Handle(network.NodeID, network.Message) {}
func (b *Byzantine) Run() Stream                            { return emptyStream }

// Propose emits value at the node's private epoch counter, which need not
// match anyone's chain.
func (b *Byzantine) Propose(value string) Effect {
	b.epoch++
	b.logger.Info("Byzantine::Propose",
		zap.Uint64("node", b.id),
		zap.Uint64("epoch", b.epoch),
		zap.String("value", value))
	return b.emit(network.Message{Content: encode(kindPropose, b.epoch, value)})
}

func (b *Byzantine) Vote(proposalID uint64, value string) Effect {
	b.logger.Info("Byzantine::Vote",
		zap.Uint64("node", b.id),
		zap.Uint64("proposal", proposalID),
		zap.String("value", value))
	return b.emit(network.Message{Content: encode(kindVote, proposalID, value)})
}

func (b *Byzantine) Finalize(value string) (string, bool) {
	b.logger.Info("Byzantine::Finalize",
		zap.Uint64("node", b.id),
		zap.String("value", value))
	return "", false
}

func (b *Byzantine) emit(msg network.Message) Effect {
	out, id := b.out, b.id
	return func(context.Context) error {
		if out == nil {
			return nil
		}
		return out.Broadcast(id, msg)
	}
}

func (b *Byzantine) Status() Status {
	return Status{ID: b.id, Kind: "byzantine"}
}
