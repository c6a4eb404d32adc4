package runner

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wx-shi/chainsim/internal/config"
	"github.com/wx-shi/chainsim/internal/db"
	"github.com/wx-shi/chainsim/internal/ledger"
	"github.com/wx-shi/chainsim/internal/model"
	"github.com/wx-shi/chainsim/internal/network"
	"github.com/wx-shi/chainsim/internal/node"
	"github.com/wx-shi/chainsim/internal/simulation"
	"github.com/wx-shi/chainsim/pkg"
	"go.uber.org/zap"
)

// Runner feeds ledger blocks through the simulation as proposals and
// applies the finalized prefix of the proposed chain to a ledger Context.
type Runner struct {
	ctx    context.Context
	logger *zap.Logger
	conf   *config.RunnerConfig
	epochs int
	sim    *simulation.Simulation
	db     *db.DB

	mu       sync.RWMutex
	ledger   *ledger.Context
	height   uint64
	proposed []*ledger.Block
	index    map[string]int // block hash -> position in proposed
	applied  int

	blockChan chan *ledger.Block
	Finish    chan struct{}
}

func NewRunner(ctx context.Context, conf *config.RunnerConfig, epochs int,
	logger *zap.Logger, sim *simulation.Simulation, db *db.DB) *Runner {
	return &Runner{
		ctx:    ctx,
		conf:   conf,
		epochs: epochs,
		logger: logger,
		sim:    sim,
		db:     db,
		ledger: ledger.NewContext(),
		index:  make(map[string]int),
		Finish: make(chan struct{}),
	}
}

func (r *Runner) Sync() {
	r.init()
	go r.run()
	go r.store()
}

// init clears the trace store. Nodes, chain and ledger live in memory and
// start empty, so the trace of a previous run cannot be continued.
func (r *Runner) init() {
	if err := r.db.Reset(); err != nil {
		r.logger.Fatal("Reset", zap.Error(err))
	}
	r.height = 0
	r.blockChan = make(chan *ledger.Block, r.conf.BlockChanBuf)
}

// leaders returns the honest node ids in registration order.
func (r *Runner) leaders() []network.NodeID {
	ids := make([]network.NodeID, 0)
	for _, s := range r.sim.Status() {
		if s.Kind == "honest" {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func (r *Runner) run() {
	defer close(r.blockChan)

	leaders := r.leaders()
	if len(leaders) == 0 {
		r.logger.Warn("Run::NoLeader")
		return
	}

	for epoch := 1; epoch <= r.epochs; epoch++ {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		start := time.Now()
		block := r.nextBlock(uint64(epoch))
		leader := leaders[(epoch-1)%len(leaders)]
		if err := r.sim.Propose(r.ctx, leader, block.Hash.String()); err != nil {
			r.logger.Error("Propose", zap.Uint64("leader", leader), zap.Error(err))
			return
		}
		if err := r.sim.Start(r.ctx); err != nil {
			r.logger.Error("Start", zap.Int("epoch", epoch), zap.Error(err))
			return
		}
		r.deliverFinalized()

		r.logger.Debug("Run::Info",
			zap.Int("epoch", epoch),
			zap.Uint64("leader", leader),
			zap.Stringer("block", block.Hash),
			zap.Duration("ttl", time.Since(start)))
	}
}

// nextBlock builds the block proposed at epoch: a coinbase paying the
// reward and, after the first block, a shielding transaction moving the
// previous coinbase output into a note, less a fee.
func (r *Runner) nextBlock(epoch uint64) *ledger.Block {
	r.mu.Lock()
	defer r.mu.Unlock()

	txs := make([]ledger.Transaction, 0, 2)
	txs = append(txs, ledger.Transaction{
		TransparentOutputs: []ledger.TXO{{Value: r.conf.Reward}},
		Issuance:           r.conf.Reward,
		Nonce:              epoch,
	}.Seal())

	var parent *ledger.BlockHash
	if n := len(r.proposed); n > 0 {
		prev := r.proposed[n-1]
		parent = &prev.Hash
		out := prev.Transactions[0].Output(0)
		fee := shieldFee(epoch, out.Value)
		txs = append(txs, ledger.Transaction{
			TransparentInputs: []ledger.TXO{out},
			ShieldedOutputs:   []ledger.Note{{Value: out.Value - fee}},
			Fee:               fee,
			Nonce:             epoch,
		})
	}

	block := ledger.NewBlock(parent, int32(epoch), txs)
	r.index[block.Hash.String()] = len(r.proposed)
	r.proposed = append(r.proposed, block)
	return block
}

// shieldFee varies with epoch so that consecutive notes differ in value.
// Notes are identified by value and equal ones would merge.
func shieldFee(epoch uint64, value int64) int64 {
	if value <= 0 {
		return 0
	}
	return int64((epoch - 1) % uint64(value))
}

// deliverFinalized queues every proposed block up to the furthest one an
// honest node has finalized.
func (r *Runner) deliverFinalized() {
	r.mu.Lock()
	last := r.applied - 1
	for _, s := range r.sim.Status() {
		if !s.HasFinal {
			continue
		}
		if i, ok := r.index[s.Finalized]; ok && i > last {
			last = i
		}
	}
	blocks := append([]*ledger.Block(nil), r.proposed[r.applied:last+1]...)
	r.applied = last + 1
	r.mu.Unlock()

	for _, b := range blocks {
		r.blockChan <- b
	}
}

func (r *Runner) store() {
	defer close(r.Finish)

	for block := range r.blockChan {
		r.mu.Lock()
		ok := r.ledger.ApplyBlock(block)
		if ok {
			r.height++
		}
		height := r.height
		r.mu.Unlock()

		if !ok {
			r.logger.Error("ApplyBlock", zap.Stringer("hash", block.Hash))
			continue
		}

		final := &model.FinalBlock{
			Height:   height,
			Epoch:    uint64(block.Score),
			Hash:     block.Hash.String(),
			Txs:      len(block.Transactions),
			Issuance: pkg.FormatAmount(issuance(block)),
		}
		if block.Parent != nil {
			final.Parent = block.Parent.String()
		}
		if err := r.db.StoreFinal(final); err != nil {
			r.logger.Error("StoreFinal", zap.Uint64("height", height), zap.Error(err))
		}
	}
}

func issuance(b *ledger.Block) decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range b.Transactions {
		sum = sum.Add(decimal.NewFromInt(tx.Issuance))
	}
	return sum
}

// Height is the number of finalized blocks applied to the ledger.
func (r *Runner) Height() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.height
}

func (r *Runner) Ledger(withUTXOs bool) *model.LedgerReply {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.ledger.Summary()
	reply := &model.LedgerReply{
		Transactions:      s.Transactions,
		TotalIssuance:     pkg.FormatInt(s.TotalIssuance),
		TransparentSupply: pkg.FormatAmount(s.TransparentSupply),
		ShieldedSupply:    pkg.FormatAmount(s.ShieldedSupply),
		UTXOCount:         s.UTXOs,
	}
	if withUTXOs {
		for _, txo := range r.ledger.UTXOs() {
			reply.UTXOs = append(reply.UTXOs, txo.Key())
		}
	}
	return reply
}

// UTXOs reports for each key whether it is an unspent output. Malformed
// keys are reported as spent.
func (r *Runner) UTXOs(keys []string) model.UTXOReply {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reply := make(model.UTXOReply, len(keys))
	for _, key := range keys {
		txo, err := ledger.ParseTXOKey(key)
		reply[key] = err == nil && r.ledger.HasUTXO(txo)
	}
	return reply
}

func (r *Runner) Note(value int64) *model.NoteReply {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reply := &model.NoteReply{Value: pkg.FormatInt(value), State: "unknown"}
	if state, ok := r.ledger.NoteState(ledger.Note{Value: value}); ok {
		reply.State = state.String()
	}
	return reply
}

func (r *Runner) Nodes() []node.Status {
	return r.sim.Status()
}

func (r *Runner) Rounds() uint64 {
	return r.sim.Rounds()
}
