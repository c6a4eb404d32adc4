package node

import (
	"context"
	"fmt"

	"github.com/wx-shi/chainsim/internal/network"
	"go.uber.org/zap"
)

// Sequential buffers messages and yields one effect per message, in
// reception order.
type Sequential struct {
	id      network.NodeID
	logger  *zap.Logger
	clock   network.Clock
	mailbox []inbound
}

func NewSequential(logger *zap.Logger) *Sequential {
	return &Sequential{logger: logger}
}

func (s *Sequential) Bind(id network.NodeID, _ Outbox) { s.id = id }
func (s *Sequential) ID() network.NodeID               { return s.id }

func (s *Sequential) Handle(sender network.NodeID, msg network.Message) {
	s.clock.Observe(msg.Timestamp)
	s.mailbox = append(s.mailbox, inbound{sender: sender, msg: msg})
}

func (s *Sequential) Run() Stream {
	return streamFunc(func() (Effect, bool) {
		if len(s.mailbox) == 0 {
			return nil, false
		}
		in := s.mailbox[0]
		s.mailbox = s.mailbox[1:]

		id, logger := s.id, s.logger
		return func(context.Context) error {
			logger.Info("Sequential::Handle",
				zap.Uint64("node", id),
				zap.Uint64("sender", in.sender),
				zap.String("content", in.msg.Content))
			return nil
		}, true
	})
}

func (s *Sequential) Propose(string) Effect {
	panic(fmt.Sprintf("node: sequential node %d cannot propose", s.id))
}

func (s *Sequential) Vote(uint64, string) Effect {
	panic(fmt.Sprintf("node: sequential node %d cannot vote", s.id))
}

func (s *Sequential) Finalize(string) (string, bool) {
	panic(fmt.Sprintf("node: sequential node %d cannot finalize", s.id))
}

func (s *Sequential) Status() Status {
	return Status{ID: s.id, Kind: "sequential", Clock: s.clock.Now()}
}
