package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wx-shi/chainsim/internal/config"
	"github.com/wx-shi/chainsim/internal/network"
	"github.com/wx-shi/chainsim/internal/node"
	"go.uber.org/zap"
)

// Recorder receives every batch of delivered events.
type Recorder interface {
	StoreEvents(round uint64, events []network.Event) error
}

type cell struct {
	mu   sync.Mutex
	node node.Node
}

// Simulation drives nodes over a shared Network in logical time. It is
// single threaded: all concurrency is expressed by event timestamps.
type Simulation struct {
	conf     *config.SimulationConfig
	logger   *zap.Logger
	network  *network.Network
	recorder Recorder

	mu    sync.Mutex
	nodes []*cell
	round uint64
}

// NewSimulation creates an empty simulation. recorder may be nil.
func NewSimulation(conf *config.SimulationConfig, logger *zap.Logger, recorder Recorder) *Simulation {
	return &Simulation{
		conf:     conf,
		logger:   logger,
		network:  network.NewNetwork(logger),
		recorder: recorder,
	}
}

func (s *Simulation) Network() *network.Network {
	return s.network
}

// AddNode registers n, binds it to this simulation as its outbox and hands
// it an initialization message at timestamp zero.
func (s *Simulation) AddNode(n node.Node) network.NodeID {
	id := s.network.Register()
	n.Bind(id, s)

	c := &cell{node: n}
	c.mu.Lock()
	n.Handle(id, network.Message{
		Content:   fmt.Sprintf("Node %d initialized.", id),
		Timestamp: 0,
	})
	c.mu.Unlock()

	s.mu.Lock()
	s.nodes = append(s.nodes, c)
	s.mu.Unlock()
	return id
}

// Broadcast sends msg from one node to every other registered node.
func (s *Simulation) Broadcast(from network.NodeID, msg network.Message) error {
	for _, id := range s.network.Nodes() {
		if id == from {
			continue
		}
		if err := s.network.Send(from, id, msg, s.conf.Delay); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) cells() []*cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*cell(nil), s.nodes...)
}

func (s *Simulation) cell(id network.NodeID) (*cell, error) {
	for _, c := range s.cells() {
		if c.node.ID() == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", network.ErrUnknownNode, id)
}

// Start delivers events and runs node effects until no event is pending
// and no node yields further effects, or ctx is done.
func (s *Simulation) Start(ctx context.Context) error {
	start := time.Now()
	s.logger.Info("Simulation::Start", zap.Int("nodes", len(s.cells())))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		events := s.network.Drain()
		s.mu.Lock()
		s.round++
		round := s.round
		s.mu.Unlock()

		if s.recorder != nil && len(events) > 0 {
			if err := s.recorder.StoreEvents(round, events); err != nil {
				s.logger.Error("StoreEvents", zap.Uint64("round", round), zap.Error(err))
			}
		}

		ran := 0
		for _, c := range s.cells() {
			effects := s.turn(c)
			for _, eff := range effects {
				if err := eff(ctx); err != nil {
					s.logger.Error("Effect", zap.Uint64("node", c.node.ID()), zap.Error(err))
				}
			}
			ran += len(effects)
		}

		s.logger.Debug("Simulation::Round",
			zap.Uint64("round", round),
			zap.Int("delivered", len(events)),
			zap.Int("effects", ran))

		if ran == 0 && !s.network.Pending() {
			break
		}
	}

	s.logger.Info("Simulation::Done",
		zap.Uint64("rounds", s.Rounds()),
		zap.Duration("ttl", time.Since(start)))
	return nil
}

// turn feeds a node its inbox and collects the effects it yields. Effects
// run after the node lock is released.
func (s *Simulation) turn(c *cell) []node.Effect {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.node.ID()
	for {
		event, ok := s.network.Next(id)
		if !ok {
			break
		}
		c.node.Handle(event.Sender, event.Message)
	}
	return node.Collect(c.node.Run())
}

// Propose asks node id to propose value and runs the resulting effect.
func (s *Simulation) Propose(ctx context.Context, id network.NodeID, value string) error {
	c, err := s.cell(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	eff := c.node.Propose(value)
	c.mu.Unlock()
	return eff(ctx)
}

// Finalize asks node id to finalize value.
func (s *Simulation) Finalize(id network.NodeID, value string) (string, bool, error) {
	c, err := s.cell(id)
	if err != nil {
		return "", false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.node.Finalize(value)
	return v, ok, nil
}

// Status returns a view of every node in registration order.
func (s *Simulation) Status() []node.Status {
	cells := s.cells()
	status := make([]node.Status, 0, len(cells))
	for _, c := range cells {
		c.mu.Lock()
		status = append(status, c.node.Status())
		c.mu.Unlock()
	}
	return status
}

// Rounds returns the number of drain rounds run so far.
func (s *Simulation) Rounds() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}
