package chain

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/wire"
)

// MemAdapter is an in-memory ChainAdapter backed by a flat UTXO set and
// an append-only block/transaction log. It exists so the directive,
// swap, and indexer engines can be tested without a live node.
type MemAdapter struct {
	mu sync.Mutex

	height  uint32
	utxos   map[Outpoint]UTXO
	spent   map[Outpoint]bool
	txs     map[string]*Transaction
	blocks  []*Block
	addrSeq int
	feeRate float64
	pubKeys map[string][]byte
}

// NewMemAdapter returns an empty in-memory adapter at height 0 with a
// default 5 sat/vB fee rate.
func NewMemAdapter() *MemAdapter {
	return &MemAdapter{
		utxos:   make(map[Outpoint]UTXO),
		spent:   make(map[Outpoint]bool),
		txs:     make(map[string]*Transaction),
		feeRate: 5,
	}
}

// SeedUTXO adds a spendable output directly, bypassing transaction
// construction — used to set up test fixtures.
func (m *MemAdapter) SeedUTXO(u UTXO) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.utxos[Outpoint{Txid: u.Txid, Vout: u.Vout}] = u
}

// SetFeeRate overrides the fee rate EstimateFeeRate returns.
func (m *MemAdapter) SetFeeRate(satPerVB float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeRate = satPerVB
}

// SetHeight advances the simulated chain tip.
func (m *MemAdapter) SetHeight(h uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height = h
}

// SeedTxAndBlock registers a fully-formed transaction directly, along
// with a block at height containing it as its only transaction —
// bypassing Broadcast's wire deserialization for tests (like the
// indexer's) that need to fabricate a transaction's outputs without
// constructing a spendable input first.
func (m *MemAdapter) SeedTxAndBlock(height int64, txid string, vout []Output) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[txid] = &Transaction{Txid: txid, BlockHeight: uint32(height), Confirmations: 1, Vout: vout}
	m.blocks = append(m.blocks, &Block{Height: height, Hash: txid, Txids: []string{txid}})
}

func (m *MemAdapter) ListSpendable(ctx context.Context) ([]UTXO, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UTXO, 0, len(m.utxos))
	for op, u := range m.utxos {
		if m.spent[op] {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *MemAdapter) GetBlock(ctx context.Context, height int64) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.blocks {
		if b.Height == height {
			return b, nil
		}
	}
	return nil, fmt.Errorf("chain: no block at height %d", height)
}

func (m *MemAdapter) GetTx(ctx context.Context, txid string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[txid]
	if !ok {
		return nil, fmt.Errorf("chain: unknown txid %s", txid)
	}
	return tx, nil
}

func (m *MemAdapter) GetTxOut(ctx context.Context, op Outpoint, includeMempool bool) (*Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spent[op] {
		return &Output{Txid: op.Txid, Vout: op.Vout, Spent: true}, nil
	}
	if u, ok := m.utxos[op]; ok {
		return &Output{Txid: u.Txid, Vout: u.Vout, PkScript: u.PkScript, AmountSat: u.AmountSat}, nil
	}
	return nil, fmt.Errorf("chain: unknown output %s:%d", op.Txid, op.Vout)
}

func (m *MemAdapter) GetNewAddress(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addrSeq++
	return fmt.Sprintf("mem1addr%06d", m.addrSeq), nil
}

// GetAddressInfo returns a deterministic fake pubkey for any address,
// registered via SetAddressPubKey, or a zero-filled 33-byte compressed
// placeholder if none was explicitly registered.
func (m *MemAdapter) GetAddressInfo(ctx context.Context, address string) (*AddressInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pubKey, ok := m.pubKeys[address]
	if !ok {
		pubKey = make([]byte, 33)
		pubKey[0] = 0x02
	}
	return &AddressInfo{Address: address, PubKey: pubKey, IsMine: true, IsWatchOnly: true}, nil
}

// SetAddressPubKey registers the pubkey GetAddressInfo reports for
// address — test fixtures use this to give sender/receiver distinct
// keys for HTLC construction.
func (m *MemAdapter) SetAddressPubKey(address string, pubKey []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pubKeys == nil {
		m.pubKeys = make(map[string][]byte)
	}
	m.pubKeys[address] = pubKey
}

func (m *MemAdapter) EstimateFeeRate(ctx context.Context, confTarget int64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feeRate, nil
}

// SignWithWallet is a no-op pass-through: the in-memory adapter treats
// every transaction as already signed, since test fixtures never
// exercise real signature verification.
func (m *MemAdapter) SignWithWallet(ctx context.Context, tx *UnsignedTx) (*SignedTx, error) {
	return &SignedTx{SerializedTx: tx.SerializedTx, Complete: true}, nil
}

// Broadcast decodes the wire transaction, marks its inputs spent,
// records its outputs as new UTXOs, and appends it to the transaction
// log.
func (m *MemAdapter) Broadcast(ctx context.Context, tx *SignedTx) (string, error) {
	msgTx := wire.NewMsgTx(wire.TxVersion)
	if err := msgTx.Deserialize(bytes.NewReader(tx.SerializedTx)); err != nil {
		return "", fmt.Errorf("chain: deserialize: %w", err)
	}
	txid := msgTx.TxHash().String()

	m.mu.Lock()
	defer m.mu.Unlock()

	vin := make([]Outpoint, len(msgTx.TxIn))
	for i, in := range msgTx.TxIn {
		op := Outpoint{Txid: in.PreviousOutPoint.Hash.String(), Vout: in.PreviousOutPoint.Index}
		vin[i] = op
		m.spent[op] = true
	}

	vout := make([]Output, len(msgTx.TxOut))
	for i, out := range msgTx.TxOut {
		o := Output{Txid: txid, Vout: uint32(i), PkScript: out.PkScript, AmountSat: out.Value}
		vout[i] = o
		op := Outpoint{Txid: txid, Vout: uint32(i)}
		m.utxos[op] = UTXO{Txid: txid, Vout: uint32(i), PkScript: out.PkScript, AmountSat: out.Value, Confirmations: 1}
	}

	m.txs[txid] = &Transaction{
		Txid:          txid,
		BlockHeight:   m.height,
		Confirmations: 1,
		Vin:           vin,
		Vout:          vout,
	}
	return txid, nil
}

func (m *MemAdapter) GetHeight(ctx context.Context) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height, nil
}
