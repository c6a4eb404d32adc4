// Package streamlet models the Streamlet chain: a genesis base, proposals
// collecting notarization signatures, and blocks whose finality follows the
// three-consecutive-epochs rule.
package streamlet

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/scylladb/go-set/u64set"
	"go.uber.org/zap"
)

// ChainNode is one of *Base, *Proposal or *Block.
type ChainNode interface {
	N() int
	T() int
	Epoch() uint64
	// Parent returns nil when there is none.
	Parent() ChainNode
	LastFinal() ChainNode

	chainNode()
}

// Threshold returns t for n participants, ⌈2n/3⌉.
func Threshold(n int) int {
	return (2*n + 2) / 3
}

// Genesis carries the construction-time parameters of a chain.
type Genesis struct {
	N int
	T int
}

func NewGenesis(n int) Genesis {
	return Genesis{N: n, T: Threshold(n)}
}

// Base returns the genesis chain node.
func (g Genesis) Base() *Base {
	return &Base{n: g.N, t: g.T}
}

func (g Genesis) LastFinal() ChainNode {
	return g.Base()
}

// Base is the genesis variant: epoch 0, no parent.
type Base struct {
	n, t int
}

func (b *Base) N() int               { return b.n }
func (b *Base) T() int               { return b.t }
func (b *Base) Epoch() uint64        { return 0 }
func (b *Base) LastFinal() ChainNode { return b }
func (b *Base) Parent() ChainNode    { return nil }
func (b *Base) chainNode()           {}

func (b *Base) String() string {
	return fmt.Sprintf("Base(n=%d,t=%d)", b.n, b.t)
}

// Proposal is a candidate extension of parent at some epoch. It becomes
// notarized once it holds t+1 distinct signatures.
type Proposal struct {
	parent     ChainNode
	epoch      uint64
	signatures *u64set.Set
}

// NewProposal panics if epoch does not exceed the parent's epoch.
func NewProposal(parent ChainNode, epoch uint64) *Proposal {
	if parent == nil {
		panic("streamlet: proposal requires a parent")
	}
	if epoch <= parent.Epoch() {
		panic(fmt.Sprintf("streamlet: proposal epoch %d must exceed parent epoch %d", epoch, parent.Epoch()))
	}
	zap.L().Info("Proposal::New",
		zap.Uint64("epoch", epoch),
		zap.Uint64("parent_epoch", parent.Epoch()))
	return &Proposal{
		parent:     parent,
		epoch:      epoch,
		signatures: u64set.New(),
	}
}

func (p *Proposal) N() int               { return p.parent.N() }
func (p *Proposal) T() int               { return p.parent.T() }
func (p *Proposal) Epoch() uint64        { return p.epoch }
func (p *Proposal) Parent() ChainNode    { return p.parent }
func (p *Proposal) LastFinal() ChainNode { return p.parent.LastFinal() }
func (p *Proposal) chainNode()           {}

// AddSignature records a signature by node id. Repeated ids count once.
func (p *Proposal) AddSignature(id uint64) {
	p.signatures.Add(id)
}

// Signatures returns the signer ids in ascending order.
func (p *Proposal) Signatures() []uint64 {
	ids := p.signatures.List()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (p *Proposal) IsNotarized() bool {
	return p.signatures.Size() >= p.T()+1
}

// AssertNotarized panics unless the proposal is notarized.
func (p *Proposal) AssertNotarized() {
	if !p.IsNotarized() {
		panic(fmt.Sprintf("streamlet: proposal at epoch %d has %d signatures, needs %d",
			p.epoch, p.signatures.Size(), p.T()+1))
	}
}

func (p *Proposal) String() string {
	return fmt.Sprintf("Proposal(epoch=%d,sigs=%d)", p.epoch, p.signatures.Size())
}

// Block is a notarized proposal packaged on top of an optional parent.
type Block struct {
	proposal *Proposal
	parent   ChainNode
	nonce    uint64
}

// NewBlock packages a notarized proposal. A nil parent makes a standalone
// root. It panics if the proposal is not notarized or does not extend
// parent in epoch.
func NewBlock(proposal *Proposal, parent ChainNode) *Block {
	proposal.AssertNotarized()
	if parent != nil && proposal.Epoch() <= parent.Epoch() {
		panic(fmt.Sprintf("streamlet: block epoch %d must exceed parent epoch %d", proposal.Epoch(), parent.Epoch()))
	}
	b := &Block{
		proposal: proposal,
		parent:   parent,
		nonce:    rand.Uint64(),
	}
	zap.L().Info("Block::New",
		zap.Uint64("epoch", b.Epoch()),
		zap.Uint64("nonce", b.nonce),
		zap.Bool("root", parent == nil))
	return b
}

func (b *Block) N() int              { return b.proposal.N() }
func (b *Block) T() int              { return b.proposal.T() }
func (b *Block) Epoch() uint64       { return b.proposal.Epoch() }
func (b *Block) Proposal() *Proposal { return b.proposal }
func (b *Block) Nonce() uint64       { return b.nonce }
func (b *Block) Parent() ChainNode   { return b.parent }
func (b *Block) chainNode()          {}

func (b *Block) String() string {
	return fmt.Sprintf("Block(epoch=%d,nonce=%x)", b.Epoch(), b.nonce)
}

// LastFinal returns the newest block finalized by three blocks with
// consecutive epochs, searching from b toward genesis. The window
// (first, middle, last) finalizes middle.
//
// A chain that ends in a root block without completing a window yields the
// oldest block visited; one that reaches a non-block parent yields that
// parent.
func (b *Block) LastFinal() ChainNode {
	if b.parent == nil {
		return b
	}
	middle, ok := b.parent.(*Block)
	if !ok {
		return b.parent
	}
	last := b
	for {
		if middle.parent == nil {
			return middle
		}
		first, ok := middle.parent.(*Block)
		if !ok {
			return middle.parent
		}
		if first.Epoch()+1 == middle.Epoch() && middle.Epoch()+1 == last.Epoch() {
			return middle
		}
		last, middle = middle, first
	}
}

// IsAncestor reports whether a is c or one of its ancestors.
func IsAncestor(a, c ChainNode) bool {
	for n := c; n != nil; n = n.Parent() {
		if n == a {
			return true
		}
	}
	return false
}
