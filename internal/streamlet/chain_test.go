package streamlet

import (
	"strings"
	"testing"
)

func notarized(parent ChainNode, epoch uint64) *Proposal {
	p := NewProposal(parent, epoch)
	for id := 0; id <= p.T(); id++ {
		p.AddSignature(uint64(id))
	}
	return p
}

// extend builds a block at each epoch on top of parent.
func extend(parent ChainNode, epochs ...uint64) []*Block {
	blocks := make([]*Block, 0, len(epochs))
	for _, e := range epochs {
		b := NewBlock(notarized(parent, e), parent)
		blocks = append(blocks, b)
		parent = b
	}
	return blocks
}

func expectPanic(t *testing.T, contains string, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q", contains)
		}
		if msg, _ := r.(string); !strings.Contains(msg, contains) {
			t.Fatalf("expected panic containing %q, got %v", contains, r)
		}
	}()
	f()
}

func TestGenesis(t *testing.T) {
	tests := []struct{ n, t int }{{0, 0}, {1, 1}, {3, 2}, {4, 3}, {5, 4}, {6, 4}, {9, 6}}
	for _, tt := range tests {
		g := NewGenesis(tt.n)
		if g.T != tt.t {
			t.Errorf("n=%d: expected t=%d, got %d", tt.n, tt.t, g.T)
		}
		base, ok := g.LastFinal().(*Base)
		if !ok {
			t.Fatalf("n=%d: genesis last final is %T", tt.n, g.LastFinal())
		}
		if base.Epoch() != 0 || base.Parent() != nil || base.N() != tt.n || base.T() != tt.t {
			t.Errorf("n=%d: unexpected base %v", tt.n, base)
		}
	}
}

func TestProposalEpochMustIncrease(t *testing.T) {
	base := NewGenesis(3).Base()
	expectPanic(t, "must exceed parent epoch", func() { NewProposal(base, 0) })

	p := NewProposal(base, 2)
	expectPanic(t, "must exceed parent epoch", func() { NewProposal(p, 2) })
	if q := NewProposal(p, 3); q.Parent() != ChainNode(p) {
		t.Error("proposal parent not recorded")
	}
}

func TestNotarizationThreshold(t *testing.T) {
	p := NewProposal(NewGenesis(5).Base(), 1) // t = 4
	for id := uint64(0); id < 4; id++ {
		p.AddSignature(id)
		p.AddSignature(id)
		if p.IsNotarized() {
			t.Fatalf("notarized with %d signatures", id+1)
		}
	}
	p.AddSignature(4)
	if !p.IsNotarized() {
		t.Fatal("expected notarization at t+1 signatures")
	}
	p.AddSignature(4)
	if got := len(p.Signatures()); got != 5 {
		t.Errorf("expected 5 distinct signatures, got %d", got)
	}
}

func TestBlockRequiresNotarization(t *testing.T) {
	base := NewGenesis(3).Base()
	p := NewProposal(base, 1)
	p.AddSignature(0)
	expectPanic(t, "needs 3", func() { NewBlock(p, base) })
}

func TestInheritance(t *testing.T) {
	blocks := extend(NewGenesis(7).Base(), 1, 2, 4)
	for _, b := range blocks {
		if b.N() != 7 || b.T() != 5 {
			t.Errorf("%v: expected n=7 t=5, got n=%d t=%d", b, b.N(), b.T())
		}
		if p := b.Parent(); p != nil && p.Epoch() >= b.Epoch() {
			t.Errorf("%v: epoch not above parent %v", b, p)
		}
	}
}

func TestFinalityAtWindow(t *testing.T) {
	blocks := extend(NewGenesis(5).Base(), 1, 2, 3)
	if got := blocks[2].LastFinal(); got != ChainNode(blocks[1]) {
		t.Fatalf("expected %v, got %v", blocks[1], got)
	}
}

func TestFinalityShortChain(t *testing.T) {
	base := NewGenesis(5).Base()
	blocks := extend(base, 1)
	if got := blocks[0].LastFinal(); got != ChainNode(base) {
		t.Fatalf("expected base, got %v", got)
	}

	blocks = extend(base, 1, 2)
	if got := blocks[1].LastFinal(); got != ChainNode(base) {
		t.Fatalf("expected base, got %v", got)
	}
}

func TestFinalityRootBlocks(t *testing.T) {
	base := NewGenesis(3).Base()
	root := NewBlock(notarized(base, 1), nil)
	if root.Parent() != nil {
		t.Fatalf("root block has parent %v", root.Parent())
	}
	if got := root.LastFinal(); got != ChainNode(root) {
		t.Fatalf("expected root itself, got %v", got)
	}
	child := NewBlock(notarized(root, 3), root)
	if got := child.LastFinal(); got != ChainNode(root) {
		t.Fatalf("expected oldest block visited, got %v", got)
	}
}

func TestFinalityGapsReachBase(t *testing.T) {
	base := NewGenesis(3).Base()
	blocks := extend(base, 1, 3, 5, 7)
	if got := blocks[3].LastFinal(); got != ChainNode(base) {
		t.Fatalf("expected base, got %v", got)
	}
}

func TestFinalitySlidesTowardGenesis(t *testing.T) {
	base := NewGenesis(3).Base()
	blocks := extend(base, 1, 2, 3, 5, 7)
	if got := blocks[4].LastFinal(); got != ChainNode(blocks[1]) {
		t.Fatalf("expected %v, got %v", blocks[1], got)
	}
}

func TestFinalityStability(t *testing.T) {
	base := NewGenesis(3).Base()
	epochs := []uint64{1, 2, 3, 5, 6, 7, 8, 10, 11, 12}
	blocks := extend(base, epochs...)

	var prev ChainNode = base
	for i, b := range blocks {
		final := b.LastFinal()
		if !IsAncestor(prev, final) {
			t.Fatalf("block %d (epoch %d): final %v regressed from %v", i, b.Epoch(), final, prev)
		}
		if !IsAncestor(final, b) {
			t.Fatalf("block %d: final %v is not on its chain", i, final)
		}
		prev = final
	}
	if prev != ChainNode(blocks[8]) {
		t.Errorf("expected final at epoch 11, got %v", prev)
	}
}

func TestProposalLastFinalFollowsParent(t *testing.T) {
	blocks := extend(NewGenesis(3).Base(), 1, 2, 3)
	p := NewProposal(blocks[2], 9)
	if p.LastFinal() != blocks[2].LastFinal() {
		t.Errorf("expected %v, got %v", blocks[2].LastFinal(), p.LastFinal())
	}
}
