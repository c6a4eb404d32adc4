package model

// Event is a delivered network event as stored in the trace.
type Event struct {
	Round     uint64 `json:"round"`
	Timestamp uint64 `json:"timestamp"`
	Sender    uint64 `json:"sender"`
	Receiver  uint64 `json:"receiver"`
	Content   string `json:"content"`
}

// FinalBlock is a ledger block applied after its proposal was finalized.
type FinalBlock struct {
	Height   uint64 `json:"height"`
	Epoch    uint64 `json:"epoch"`
	Hash     string `json:"hash"`
	Parent   string `json:"parent,omitempty"`
	Txs      int    `json:"txs"`
	Issuance string `json:"issuance"`
}

type PageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

type EventsReply struct {
	Page      int      `json:"page"`
	PageSize  int      `json:"page_size"`
	TotalSize int      `json:"total_size"`
	Events    []*Event `json:"events"`
}

type FinalsReply struct {
	Page      int           `json:"page"`
	PageSize  int           `json:"page_size"`
	TotalSize int           `json:"total_size"`
	Blocks    []*FinalBlock `json:"blocks"`
}

type LedgerReply struct {
	Transactions      int      `json:"transactions"`
	TotalIssuance     string   `json:"total_issuance"`
	TransparentSupply string   `json:"transparent_supply"`
	ShieldedSupply    string   `json:"shielded_supply"`
	UTXOCount         int      `json:"utxo_count"`
	UTXOs             []string `json:"utxos,omitempty"`
}

type NoteRequest struct {
	Value int64 `json:"value"`
}

type NoteReply struct {
	Value string `json:"value"`
	State string `json:"state"` //unspent, spent or unknown
}

type UTXORequest struct {
	Keys []string `json:"keys"`
}

// UTXOReply maps each requested key to whether it is currently unspent.
type UTXOReply map[string]bool

type RoundReply struct {
	StoreRound  uint64 `json:"store_round"`
	SimRound    uint64 `json:"sim_round"`
	StoreHeight uint64 `json:"store_height"`
	Height      uint64 `json:"height"`
}
