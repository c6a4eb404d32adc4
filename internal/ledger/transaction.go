package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// TXO is a transparent transaction output. It references its owning
// transaction by digest instead of by value.
type TXO struct {
	Tx    chainhash.Hash `json:"tx"`
	Index int            `json:"index"`
	Value int64          `json:"value"`
}

// Key is the UTXO set key of the output: txid:index:value
func (o TXO) Key() string {
	return fmt.Sprintf("%s:%d:%d", o.Tx, o.Index, o.Value)
}

// ParseTXOKey is the inverse of TXO.Key.
func ParseTXOKey(key string) (TXO, error) {
	arr := strings.Split(key, ":")
	if len(arr) != 3 {
		return TXO{}, fmt.Errorf("invalid key:%s", key)
	}
	hash, err := chainhash.NewHashFromStr(arr[0])
	if err != nil {
		return TXO{}, fmt.Errorf("invalid key:%s", key)
	}
	index, err := strconv.Atoi(arr[1])
	if err != nil {
		return TXO{}, fmt.Errorf("invalid key:%s", key)
	}
	value, err := strconv.ParseInt(arr[2], 10, 64)
	if err != nil {
		return TXO{}, fmt.Errorf("invalid key:%s", key)
	}
	return TXO{Tx: *hash, Index: index, Value: value}, nil
}

// Note is a shielded output. Notes are identified by value.
type Note struct {
	Value int64 `json:"value"`
}

// Transaction moves value between transparent outputs and shielded notes.
// A transaction without inputs of either kind is a coinbase.
type Transaction struct {
	TransparentInputs  []TXO    `json:"transparent_inputs"`
	TransparentOutputs []TXO    `json:"transparent_outputs"`
	ShieldedInputs     []Note   `json:"shielded_inputs"`
	ShieldedOutputs    []Note   `json:"shielded_outputs"`
	Fee                int64    `json:"fee"`
	Anchor             *Context `json:"-"`
	Issuance           int64    `json:"issuance"`
	// Nonce only feeds the digest; it keeps otherwise identical coinbases apart.
	Nonce uint64 `json:"nonce,omitempty"`
}

// TransactionView is the read-only surface of a transaction.
type TransactionView interface {
	Inputs() []TXO
	Outputs() []TXO
	NotesIn() []Note
	NotesOut() []Note
	FeeAmount() int64
	AnchorContext() *Context
	IssuanceAmount() int64
}

var _ TransactionView = Transaction{}

func (tx Transaction) Inputs() []TXO           { return tx.TransparentInputs }
func (tx Transaction) Outputs() []TXO          { return tx.TransparentOutputs }
func (tx Transaction) NotesIn() []Note         { return tx.ShieldedInputs }
func (tx Transaction) NotesOut() []Note        { return tx.ShieldedOutputs }
func (tx Transaction) FeeAmount() int64        { return tx.Fee }
func (tx Transaction) AnchorContext() *Context { return tx.Anchor }
func (tx Transaction) IssuanceAmount() int64   { return tx.Issuance }

// IsCoinbase reports whether the transaction has neither transparent nor
// shielded inputs.
func (tx Transaction) IsCoinbase() bool {
	return len(tx.TransparentInputs) == 0 && len(tx.ShieldedInputs) == 0
}

// Digest hashes the transaction contents. Transparent outputs contribute
// only their position and value, so outputs may carry the digest itself.
func (tx Transaction) Digest() chainhash.Hash {
	var buf bytes.Buffer
	putInt := func(v int64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v))
		buf.Write(b[:])
	}

	putInt(int64(len(tx.TransparentInputs)))
	for _, in := range tx.TransparentInputs {
		buf.Write(in.Tx[:])
		putInt(int64(in.Index))
		putInt(in.Value)
	}
	putInt(int64(len(tx.TransparentOutputs)))
	for i, out := range tx.TransparentOutputs {
		putInt(int64(i))
		putInt(out.Value)
	}
	putInt(int64(len(tx.ShieldedInputs)))
	for _, n := range tx.ShieldedInputs {
		putInt(n.Value)
	}
	putInt(int64(len(tx.ShieldedOutputs)))
	for _, n := range tx.ShieldedOutputs {
		putInt(n.Value)
	}
	putInt(tx.Fee)
	putInt(tx.Issuance)
	putInt(int64(tx.Nonce))
	if tx.Anchor != nil {
		buf.WriteByte(1)
		putInt(int64(len(tx.Anchor.Transactions)))
		putInt(tx.Anchor.TotalIssuance)
	} else {
		buf.WriteByte(0)
	}

	return chainhash.DoubleHashH(buf.Bytes())
}

// Seal returns a copy of tx whose transparent outputs reference tx's digest
// and their own position.
func (tx Transaction) Seal() Transaction {
	digest := tx.Digest()
	outs := make([]TXO, len(tx.TransparentOutputs))
	for i, out := range tx.TransparentOutputs {
		outs[i] = TXO{Tx: digest, Index: i, Value: out.Value}
	}
	tx.TransparentOutputs = outs
	return tx
}

// Output returns the i-th transparent output.
func (tx Transaction) Output(i int) TXO {
	return tx.TransparentOutputs[i]
}
