package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/scylladb/go-set/strset"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Spentness is the state of a note in the notes map.
type Spentness int

const (
	Unspent Spentness = iota
	Spent
)

func (s Spentness) String() string {
	if s == Spent {
		return "spent"
	}
	return "unspent"
}

var (
	ErrNegativeFee       = errors.New("negative fee on non-coinbase transaction")
	ErrNonZeroIssuance   = errors.New("non-zero issuance on non-coinbase transaction")
	ErrUnknownInput      = errors.New("transparent input not in utxo set")
	ErrNoteNotSpendable  = errors.New("shielded input missing or already spent")
	ErrMissingAnchor     = errors.New("shielded inputs without anchor")
	ErrAnchorCannotSpend = errors.New("anchor cannot spend shielded inputs")
)

// Store is the mutation and query surface of a ledger context.
type Store interface {
	Apply(tx Transaction) bool
	IsSpent(note Note) bool
	CanSpend(notes []Note) bool
	Snapshot() *Context
}

var _ Store = (*Context)(nil)

// Context is the ledger state: applied transactions, the UTXO set, note
// spentness and the running issuance. It is not safe for concurrent use.
type Context struct {
	Transactions  []Transaction
	TotalIssuance int64

	utxos *strset.Set
	notes map[Note]Spentness
}

func NewContext() *Context {
	return &Context{
		Transactions: make([]Transaction, 0),
		utxos:        strset.New(),
		notes:        make(map[Note]Spentness),
	}
}

// Validate checks tx against the context and reports the first failed rule.
func (c *Context) Validate(tx Transaction) error {
	coinbase := tx.IsCoinbase()
	if !coinbase && tx.Fee < 0 {
		return fmt.Errorf("%w: fee %d", ErrNegativeFee, tx.Fee)
	}
	if !coinbase && tx.Issuance != 0 {
		return fmt.Errorf("%w: issuance %d", ErrNonZeroIssuance, tx.Issuance)
	}
	for _, txo := range tx.TransparentInputs {
		if !c.utxos.Has(txo.Key()) {
			return fmt.Errorf("%w: %s", ErrUnknownInput, txo.Key())
		}
	}
	for _, note := range tx.ShieldedInputs {
		if s, ok := c.notes[note]; !ok || s != Unspent {
			return fmt.Errorf("%w: note %d", ErrNoteNotSpendable, note.Value)
		}
	}
	if len(tx.ShieldedInputs) > 0 {
		if tx.Anchor == nil {
			return ErrMissingAnchor
		}
		if !tx.Anchor.CanSpend(tx.ShieldedInputs) {
			return ErrAnchorCannotSpend
		}
	}
	return nil
}

// Apply validates tx and, if valid, commits all of its effects. An invalid
// transaction leaves the context untouched.
func (c *Context) Apply(tx Transaction) bool {
	if err := c.Validate(tx); err != nil {
		zap.L().Debug("Apply::Reject", zap.Error(err))
		return false
	}

	for _, txo := range tx.TransparentInputs {
		c.utxos.Remove(txo.Key())
	}
	for _, txo := range tx.TransparentOutputs {
		c.utxos.Add(txo.Key())
	}
	for _, note := range tx.ShieldedInputs {
		c.notes[note] = Spent
	}
	// outputs win over inputs on collision
	for _, note := range tx.ShieldedOutputs {
		c.notes[note] = Unspent
	}
	c.TotalIssuance += tx.Issuance
	c.Transactions = append(c.Transactions, tx)
	return true
}

// CanSpend reports whether every note is known and unspent.
func (c *Context) CanSpend(notes []Note) bool {
	for _, note := range notes {
		if s, ok := c.notes[note]; !ok || s != Unspent {
			return false
		}
	}
	return true
}

// IsSpent reports whether the note is known and spent.
func (c *Context) IsSpent(note Note) bool {
	s, ok := c.notes[note]
	return ok && s == Spent
}

// NoteState returns the spentness of a note and whether it is known.
func (c *Context) NoteState(note Note) (Spentness, bool) {
	s, ok := c.notes[note]
	return s, ok
}

// HasUTXO reports whether txo is currently unspent.
func (c *Context) HasUTXO(txo TXO) bool {
	return c.utxos.Has(txo.Key())
}

// UTXOCount returns the size of the UTXO set.
func (c *Context) UTXOCount() int {
	return c.utxos.Size()
}

// UTXOs lists the UTXO set ordered by key.
func (c *Context) UTXOs() []TXO {
	keys := c.utxos.List()
	sort.Strings(keys)
	txos := make([]TXO, 0, len(keys))
	for _, key := range keys {
		txo, err := ParseTXOKey(key)
		if err != nil {
			zap.L().Error("ParseTXOKey", zap.String("key", key), zap.Error(err))
			continue
		}
		txos = append(txos, txo)
	}
	return txos
}

// Notes returns a copy of the notes map.
func (c *Context) Notes() map[Note]Spentness {
	notes := make(map[Note]Spentness, len(c.notes))
	for k, v := range c.notes {
		notes[k] = v
	}
	return notes
}

// Snapshot returns an independent deep copy usable as an anchor.
func (c *Context) Snapshot() *Context {
	snap := c.clone()
	zap.L().Info("Snapshot::Anchor",
		zap.Int("tx_len", len(snap.Transactions)),
		zap.Int("utxo_len", snap.utxos.Size()),
		zap.Int("note_len", len(snap.notes)))
	return snap
}

func (c *Context) clone() *Context {
	txs := make([]Transaction, len(c.Transactions))
	copy(txs, c.Transactions)

	return &Context{
		Transactions:  txs,
		TotalIssuance: c.TotalIssuance,
		utxos:         c.utxos.Copy(),
		notes:         c.Notes(),
	}
}

// Equal reports whether two contexts hold the same state.
func (c *Context) Equal(o *Context) bool {
	if c.TotalIssuance != o.TotalIssuance ||
		len(c.Transactions) != len(o.Transactions) ||
		len(c.notes) != len(o.notes) ||
		!c.utxos.IsEqual(o.utxos) {
		return false
	}
	for k, v := range c.notes {
		if ov, ok := o.notes[k]; !ok || ov != v {
			return false
		}
	}
	for i := range c.Transactions {
		if c.Transactions[i].Digest() != o.Transactions[i].Digest() {
			return false
		}
	}
	return true
}

// Summary aggregates the context for inspection. Notes are identified by
// value, so equal-valued unspent notes count once in ShieldedSupply.
type Summary struct {
	Transactions      int
	UTXOs             int
	Notes             int
	UnspentNotes      int
	TotalIssuance     int64
	TransparentSupply decimal.Decimal
	ShieldedSupply    decimal.Decimal
}

func (c *Context) Summary() Summary {
	s := Summary{
		Transactions:  len(c.Transactions),
		UTXOs:         c.utxos.Size(),
		Notes:         len(c.notes),
		TotalIssuance: c.TotalIssuance,
	}
	for _, txo := range c.UTXOs() {
		s.TransparentSupply = s.TransparentSupply.Add(decimal.NewFromInt(txo.Value))
	}
	for note, state := range c.notes {
		if state == Unspent {
			s.UnspentNotes++
			s.ShieldedSupply = s.ShieldedSupply.Add(decimal.NewFromInt(note.Value))
		}
	}
	return s
}
