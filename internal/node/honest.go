package node

import (
	"context"
	"math"

	"github.com/wx-shi/chainsim/internal/network"
	"github.com/wx-shi/chainsim/internal/streamlet"
	"go.uber.org/zap"
)

type pending struct {
	proposal *streamlet.Proposal
	value    string
	packaged bool
}

// Honest follows the protocol: it keeps a Lamport clock, votes for fresh
// proposals, packages notarized proposals into blocks on its tip and
// finalizes the value of the tip's last final block.
type Honest struct {
	id     network.NodeID
	logger *zap.Logger
	out    Outbox

	clock     network.Clock
	mailbox   []inbound
	proposals []string
	votes     map[uint64][]string
	finalized *string

	tip     streamlet.ChainNode
	epoch   uint64 // highest epoch seen
	pending map[uint64]*pending
	early   map[uint64][]network.NodeID
	values  map[uint64]string
}

func NewHonest(logger *zap.Logger, genesis streamlet.Genesis) *Honest {
	return &Honest{
		logger:  logger,
		votes:   make(map[uint64][]string),
		tip:     genesis.Base(),
		pending: make(map[uint64]*pending),
		early:   make(map[uint64][]network.NodeID),
		values:  make(map[uint64]string),
	}
}

func (h *Honest) Bind(id network.NodeID, out Outbox) {
	h.id = id
	h.out = out
}

func (h *Honest) ID() network.NodeID { return h.id }

func (h *Honest) Handle(sender network.NodeID, msg network.Message) {
	h.clock.Observe(msg.Timestamp)
	h.mailbox = append(h.mailbox, inbound{sender: sender, msg: msg})
}

func (h *Honest) Run() Stream {
	return streamFunc(func() (Effect, bool) {
		if len(h.mailbox) == 0 {
			return nil, false
		}
		in := h.mailbox[0]
		h.mailbox = h.mailbox[1:]
		return h.process(in), true
	})
}

func (h *Honest) process(in inbound) Effect {
	kind, epoch, value, ok := decode(in.msg.Content)
	if !ok {
		id, logger := h.id, h.logger
		return func(context.Context) error {
			logger.Info("Honest::Handle",
				zap.Uint64("node", id),
				zap.Uint64("sender", in.sender),
				zap.String("content", in.msg.Content))
			return nil
		}
	}
	switch kind {
	case kindPropose:
		if epoch <= h.tip.Epoch() || h.pending[epoch] != nil {
			h.logger.Debug("Honest::StaleProposal",
				zap.Uint64("node", h.id),
				zap.Uint64("epoch", epoch),
				zap.Uint64("tip_epoch", h.tip.Epoch()))
			return noop
		}
		pd := h.track(epoch, value)
		pd.proposal.AddSignature(in.sender)
		if epoch > h.epoch {
			h.epoch = epoch
		}
		eff := h.Vote(epoch, value)
		h.tryPackage(epoch)
		return eff
	case kindVote:
		h.votes[epoch] = append(h.votes[epoch], value)
		if pd := h.pending[epoch]; pd != nil {
			pd.proposal.AddSignature(in.sender)
			h.tryPackage(epoch)
		} else {
			h.early[epoch] = append(h.early[epoch], in.sender)
		}
	}
	return noop
}

// track opens a proposal on the current tip and applies votes that arrived
// before it.
func (h *Honest) track(epoch uint64, value string) *pending {
	pd := &pending{
		proposal: streamlet.NewProposal(h.tip, epoch),
		value:    value,
	}
	for _, id := range h.early[epoch] {
		pd.proposal.AddSignature(id)
	}
	delete(h.early, epoch)
	h.pending[epoch] = pd
	return pd
}

func (h *Honest) tryPackage(epoch uint64) {
	pd := h.pending[epoch]
	if pd == nil || pd.packaged || !pd.proposal.IsNotarized() || epoch <= h.tip.Epoch() {
		return
	}
	block := streamlet.NewBlock(pd.proposal, h.tip)
	pd.packaged = true
	h.tip = block
	h.values[epoch] = pd.value

	final, ok := block.LastFinal().(*streamlet.Block)
	if !ok {
		return
	}
	value := h.values[final.Epoch()]
	if h.finalized == nil || *h.finalized != value {
		h.Finalize(value)
	}
}

// Propose opens a proposal for value at the next epoch and returns the
// effect broadcasting it. Once the epoch space is exhausted the proposal is
// dropped and the effect does nothing.
func (h *Honest) Propose(value string) Effect {
	epoch := h.epoch
	if tip := h.tip.Epoch(); tip > epoch {
		epoch = tip
	}
	if epoch == math.MaxUint64 {
		h.logger.Warn("Honest::EpochExhausted",
			zap.Uint64("node", h.id),
			zap.String("value", value))
		return noop
	}
	ts := h.clock.Tick()
	epoch++
	h.epoch = epoch
	h.proposals = append(h.proposals, value)

	pd := h.track(epoch, value)
	pd.proposal.AddSignature(h.id)
	h.tryPackage(epoch)

	h.logger.Info("Honest::Propose",
		zap.Uint64("node", h.id),
		zap.Uint64("epoch", epoch),
		zap.Uint64("clock", ts),
		zap.String("value", value))
	return h.broadcast(network.Message{Content: encode(kindPropose, epoch, value), Timestamp: ts})
}

// Vote records a vote for proposalID, signs it if the proposal is known,
// and returns the effect broadcasting the vote.
func (h *Honest) Vote(proposalID uint64, value string) Effect {
	ts := h.clock.Tick()
	h.votes[proposalID] = append(h.votes[proposalID], value)
	if pd := h.pending[proposalID]; pd != nil {
		pd.proposal.AddSignature(h.id)
		h.tryPackage(proposalID)
	}

	h.logger.Info("Honest::Vote",
		zap.Uint64("node", h.id),
		zap.Uint64("proposal", proposalID),
		zap.Uint64("clock", ts),
		zap.String("value", value))
	return h.broadcast(network.Message{Content: encode(kindVote, proposalID, value), Timestamp: ts})
}

func (h *Honest) Finalize(value string) (string, bool) {
	h.finalized = &value
	h.logger.Info("Honest::Finalize",
		zap.Uint64("node", h.id),
		zap.Uint64("tip_epoch", h.tip.Epoch()),
		zap.String("value", value))
	return value, true
}

func (h *Honest) broadcast(msg network.Message) Effect {
	out, id := h.out, h.id
	return func(context.Context) error {
		if out == nil {
			return nil
		}
		return out.Broadcast(id, msg)
	}
}

// Finalized returns the last finalized value.
func (h *Honest) Finalized() (string, bool) {
	if h.finalized == nil {
		return "", false
	}
	return *h.finalized, true
}

func (h *Honest) Tip() streamlet.ChainNode { return h.tip }

// Proposals returns the values this node proposed, oldest first.
func (h *Honest) Proposals() []string {
	return append([]string(nil), h.proposals...)
}

// Votes returns the vote values recorded for a proposal.
func (h *Honest) Votes(proposalID uint64) []string {
	return append([]string(nil), h.votes[proposalID]...)
}

func (h *Honest) Clock() uint64 { return h.clock.Now() }

func (h *Honest) Status() Status {
	s := Status{
		ID:         h.id,
		Kind:       "honest",
		Clock:      h.clock.Now(),
		TipEpoch:   h.tip.Epoch(),
		FinalEpoch: h.tip.LastFinal().Epoch(),
	}
	if v, ok := h.Finalized(); ok {
		s.Finalized, s.HasFinal = v, true
	}
	return s
}
