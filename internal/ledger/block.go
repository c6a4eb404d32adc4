package ledger

import (
	"math/rand"
	"strconv"

	"go.uber.org/zap"
)

// BlockHash identifies a block. It is a random nonce, unique enough
// within one simulation run.
type BlockHash uint64

func NewBlockHash() BlockHash {
	return BlockHash(rand.Uint64())
}

func (h BlockHash) String() string {
	return strconv.FormatUint(uint64(h), 16)
}

// ParseBlockHash is the inverse of BlockHash.String.
func ParseBlockHash(s string) (BlockHash, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	return BlockHash(v), err
}

// Block is a best-chain block: a scored batch of transactions on top of an
// optional parent.
type Block struct {
	Parent       *BlockHash    `json:"parent,omitempty"`
	Score        int32         `json:"score"`
	Transactions []Transaction `json:"transactions"`
	Hash         BlockHash     `json:"hash"`
}

func NewBlock(parent *BlockHash, score int32, txs []Transaction) *Block {
	return &Block{
		Parent:       parent,
		Score:        score,
		Transactions: txs,
		Hash:         NewBlockHash(),
	}
}

// ApplyBlock applies every transaction of b in order. Either all of them
// apply or the context is left unchanged.
func (c *Context) ApplyBlock(b *Block) bool {
	work := c.clone()
	for i, tx := range b.Transactions {
		if !work.Apply(tx) {
			zap.L().Info("ApplyBlock::Reject",
				zap.Stringer("hash", b.Hash),
				zap.Int("tx_index", i))
			return false
		}
	}
	*c = *work
	zap.L().Info("ApplyBlock::Info",
		zap.Stringer("hash", b.Hash),
		zap.Int("tx_len", len(b.Transactions)),
		zap.Int64("total_issuance", c.TotalIssuance))
	return true
}
