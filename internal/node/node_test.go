package node

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/wx-shi/chainsim/internal/network"
	"github.com/wx-shi/chainsim/internal/streamlet"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type sent struct {
	from network.NodeID
	msg  network.Message
}

// recorder is an Outbox that keeps every broadcast.
type recorder struct {
	sent []sent
}

func (r *recorder) Broadcast(from network.NodeID, msg network.Message) error {
	r.sent = append(r.sent, sent{from: from, msg: msg})
	return nil
}

func runAll(t *testing.T, n Node) int {
	t.Helper()
	effects := Collect(n.Run())
	for _, eff := range effects {
		if err := eff(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	return len(effects)
}

func expectPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	f()
}

func TestPassiveNode(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewPassive(zap.New(core))
	n.Bind(0, nil)

	n.Handle(1, network.Message{Content: "Hello, PassiveNode!", Timestamp: 1})
	if got := runAll(t, n); got != 0 {
		t.Errorf("expected no effects, got %d", got)
	}
	if logs.FilterMessage("Passive::Receive").Len() != 1 {
		t.Error("receipt not logged")
	}

	expectPanic(t, "propose", func() { n.Propose("x") })
	expectPanic(t, "vote", func() { n.Vote(1, "x") })
	expectPanic(t, "finalize", func() { n.Finalize("x") })
}

func TestSequentialNode(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewSequential(zap.New(core))
	n.Bind(0, nil)

	n.Handle(1, network.Message{Content: "Message 1"})
	n.Handle(2, network.Message{Content: "Message 2", Timestamp: 1})
	if got := runAll(t, n); got != 2 {
		t.Fatalf("expected 2 effects, got %d", got)
	}

	entries := logs.FilterMessage("Sequential::Handle").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].ContextMap()["content"] != "Message 1" || entries[1].ContextMap()["content"] != "Message 2" {
		t.Error("effects out of reception order")
	}

	// restartable: new messages produce further effects
	n.Handle(3, network.Message{Content: "Message 3"})
	if got := runAll(t, n); got != 1 {
		t.Errorf("expected 1 effect after restart, got %d", got)
	}
	if got := runAll(t, n); got != 0 {
		t.Errorf("expected exhausted stream, got %d", got)
	}
	expectPanic(t, "propose", func() { n.Propose("x") })
}

func TestHonestClock(t *testing.T) {
	n := NewHonest(zap.NewNop(), streamlet.NewGenesis(1))
	n.Bind(0, nil)

	n.Handle(1, network.Message{Content: "a", Timestamp: 10})
	if n.Clock() != 11 {
		t.Fatalf("expected clock 11, got %d", n.Clock())
	}
	n.Handle(1, network.Message{Content: "b", Timestamp: 4})
	if n.Clock() != 12 {
		t.Fatalf("expected clock 12, got %d", n.Clock())
	}
	n.Propose("v")
	if n.Clock() != 13 {
		t.Fatalf("expected clock 13 after propose, got %d", n.Clock())
	}
	if got := runAll(t, n); got != 2 {
		t.Errorf("expected one effect per message, got %d", got)
	}
}

func TestHonestProposeVoteFinalize(t *testing.T) {
	out := &recorder{}
	n := NewHonest(zap.NewNop(), streamlet.NewGenesis(4))
	n.Bind(3, out)

	if err := n.Propose("block-a")(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := n.Vote(7, "block-b")(context.Background()); err != nil {
		t.Fatal(err)
	}
	n.Vote(7, "block-b")

	if got := n.Proposals(); len(got) != 1 || got[0] != "block-a" {
		t.Errorf("unexpected proposals %v", got)
	}
	if got := n.Votes(7); len(got) != 2 {
		t.Errorf("expected vote multiset of 2, got %v", got)
	}
	if len(out.sent) != 2 || !strings.HasPrefix(out.sent[0].msg.Content, "propose:1:") {
		t.Errorf("unexpected broadcasts %+v", out.sent)
	}
	if out.sent[0].from != 3 {
		t.Errorf("expected sender 3, got %d", out.sent[0].from)
	}

	if _, ok := n.Finalized(); ok {
		t.Fatal("finalized before Finalize")
	}
	if v, ok := n.Finalize("block-a"); !ok || v != "block-a" {
		t.Fatalf("unexpected finalize result %q %v", v, ok)
	}
	if v, _ := n.Finalized(); v != "block-a" {
		t.Errorf("expected finalized block-a, got %q", v)
	}
}

func TestByzantineNode(t *testing.T) {
	out := &recorder{}
	n := NewByzantine(zap.NewNop())
	n.Bind(1, out)

	n.Handle(0, network.Message{Content: "propose:1:x"})
	if got := runAll(t, n); got != 0 {
		t.Errorf("expected no effects, got %d", got)
	}
	n.Propose("evil")(context.Background())
	n.Vote(9, "evil")(context.Background())
	if len(out.sent) != 2 {
		t.Errorf("expected 2 emitted messages, got %d", len(out.sent))
	}
	if _, ok := n.Finalize("evil"); ok {
		t.Error("byzantine node finalized")
	}
}

// cluster wires honest nodes through recorders and delivers broadcasts in
// rounds until nothing is left in flight.
type cluster struct {
	nodes []*Honest
	outs  []*recorder
}

func newCluster(size int) *cluster {
	c := &cluster{}
	genesis := streamlet.NewGenesis(size)
	for i := 0; i < size; i++ {
		n := NewHonest(zap.NewNop(), genesis)
		out := &recorder{}
		n.Bind(network.NodeID(i), out)
		c.nodes = append(c.nodes, n)
		c.outs = append(c.outs, out)
	}
	return c
}

func (c *cluster) settle(t *testing.T) {
	for {
		var flight []sent
		for _, out := range c.outs {
			flight = append(flight, out.sent...)
			out.sent = nil
		}
		if len(flight) == 0 {
			return
		}
		for _, s := range flight {
			for _, n := range c.nodes {
				if n.ID() != s.from {
					n.Handle(s.from, s.msg)
				}
			}
		}
		for _, n := range c.nodes {
			runAll(t, n)
		}
	}
}

func TestHonestClusterFinalizes(t *testing.T) {
	c := newCluster(3)
	for epoch, value := range []string{"v1", "v2", "v3"} {
		leader := c.nodes[epoch%len(c.nodes)]
		if err := leader.Propose(value)(context.Background()); err != nil {
			t.Fatal(err)
		}
		c.settle(t)
	}

	for _, n := range c.nodes {
		if n.Tip().Epoch() != 3 {
			t.Errorf("node %d: expected tip epoch 3, got %d", n.ID(), n.Tip().Epoch())
		}
		v, ok := n.Finalized()
		if !ok || v != "v2" {
			t.Errorf("node %d: expected finalized v2, got %q %v", n.ID(), v, ok)
		}
		if s := n.Status(); s.FinalEpoch != 2 || !s.HasFinal {
			t.Errorf("node %d: unexpected status %+v", n.ID(), s)
		}
	}
}

func TestHonestIgnoresStaleProposal(t *testing.T) {
	c := newCluster(3)
	c.nodes[0].Propose("v1")(context.Background())
	c.settle(t)

	n := c.nodes[1]
	n.Handle(2, network.Message{Content: encode(kindPropose, 1, "late")})
	runAll(t, n)
	if len(c.outs[1].sent) != 0 {
		t.Error("voted for a stale proposal")
	}
}

func TestHonestBareVoteDoesNotAdvanceEpoch(t *testing.T) {
	out := &recorder{}
	n := NewHonest(zap.NewNop(), streamlet.NewGenesis(3))
	n.Bind(0, out)

	n.Handle(1, network.Message{Content: encode(kindVote, math.MaxUint64, "x")})
	runAll(t, n)

	if err := n.Propose("v")(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(out.sent) != 1 || out.sent[0].msg.Content != "propose:1:v" {
		t.Fatalf("expected a proposal at epoch 1, got %+v", out.sent)
	}
}

func TestHonestProposeAtExhaustedEpoch(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	out := &recorder{}
	n := NewHonest(zap.New(core), streamlet.NewGenesis(3))
	n.Bind(0, out)

	n.Handle(1, network.Message{Content: encode(kindPropose, math.MaxUint64, "x")})
	if got := runAll(t, n); got != 1 {
		t.Fatalf("expected a vote effect, got %d", got)
	}
	out.sent = nil

	if err := n.Propose("v")(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(out.sent) != 0 {
		t.Errorf("expected no broadcast, got %+v", out.sent)
	}
	if len(n.Proposals()) != 0 {
		t.Errorf("dropped proposal was recorded: %v", n.Proposals())
	}
	if logs.FilterMessage("Honest::EpochExhausted").Len() != 1 {
		t.Error("exhausted epoch not logged")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		content string
		kind    string
		epoch   uint64
		value   string
		ok      bool
	}{
		{"propose:3:a:b", kindPropose, 3, "a:b", true},
		{"vote:2:", kindVote, 2, "", true},
		{"vote:x:y", "", 0, "", false},
		{"hello", "", 0, "", false},
		{"other:1:v", "", 0, "", false},
	}
	for _, tt := range tests {
		kind, epoch, value, ok := decode(tt.content)
		if kind != tt.kind || epoch != tt.epoch || value != tt.value || ok != tt.ok {
			t.Errorf("decode(%q) = %q %d %q %v", tt.content, kind, epoch, value, ok)
		}
	}
}
