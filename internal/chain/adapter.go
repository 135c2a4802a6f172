// Package chain defines the capability-object interface the directive
// and swap engines use to talk to the host chain, plus two
// implementations: an RPC-backed adapter for a live node and an
// in-memory adapter for tests.
package chain

import (
	"context"
	"time"
)

// UTXO is a spendable output held by the watch-only wallet.
type UTXO struct {
	Txid          string
	Vout          uint32
	Address       string
	PkScript      []byte
	AmountSat     int64
	Confirmations int64
}

// Output is a single transaction output, spent or not.
type Output struct {
	Txid      string
	Vout      uint32
	PkScript  []byte
	AmountSat int64
	Spent     bool
	InMempool bool
}

// Transaction is the subset of a host-chain transaction the directive
// and indexer engines need: its inputs (by previous outpoint) and its
// outputs (by script), plus confirmation context.
type Transaction struct {
	Txid          string
	BlockHeight   uint32 // 0 if unconfirmed
	Confirmations int64
	Vin           []Outpoint
	Vout          []Output
}

// Outpoint identifies a previous transaction output being spent.
type Outpoint struct {
	Txid string
	Vout uint32
}

// Block is the subset of a host-chain block the indexer scans.
type Block struct {
	Height int64
	Hash   string
	Time   time.Time
	Txids  []string
}

// AddressInfo reports what the wallet knows about an address. PubKey
// is the raw compressed public key behind the address, when the
// wallet knows it (needed to build an HTLC's CHECKSIG branches) —
// distinct from PkScript, the address's output script.
type AddressInfo struct {
	Address     string
	PkScript    []byte
	PubKey      []byte
	IsMine      bool
	IsWatchOnly bool
}

// UnsignedTx is a transaction built by an engine but not yet signed.
// SerializedTx is the raw unsigned wire transaction; the adapter signs
// it against its own wallet keys (PSBT or legacy sign-raw-transaction,
// depending on wallet type).
type UnsignedTx struct {
	SerializedTx []byte
	VSize        int64
}

// SignedTx is a transaction ready for broadcast.
type SignedTx struct {
	SerializedTx []byte
	Complete     bool
}

// ChainAdapter is the capability object both the directive engine and
// the swap engine depend on, instead of talking to an RPC client
// directly. This indirection is what lets their tests substitute an
// in-memory ledger for a live node.
//
// Contract:
//   - All methods accept a context and MUST respect cancellation.
//   - GetTxOut's includeMempool flag controls whether a mempool-only
//     output is visible; once a block confirms it, both settings see
//     it.
//   - Broadcast MUST be safe to call more than once with the same
//     transaction (idempotent from the caller's point of view: a
//     "transaction already in mempool" condition returns the same
//     txid, not an error).
type ChainAdapter interface {
	// ListSpendable returns the watch-only wallet's current UTXO set.
	ListSpendable(ctx context.Context) ([]UTXO, error)

	// GetBlock fetches a block by height.
	GetBlock(ctx context.Context, height int64) (*Block, error)

	// GetTx fetches a transaction by txid.
	GetTx(ctx context.Context, txid string) (*Transaction, error)

	// GetTxOut fetches a single output, optionally considering the
	// mempool.
	GetTxOut(ctx context.Context, op Outpoint, includeMempool bool) (*Output, error)

	// GetNewAddress returns a fresh watch-only-compatible address.
	GetNewAddress(ctx context.Context) (string, error)

	// GetAddressInfo reports what the wallet knows about an address.
	GetAddressInfo(ctx context.Context, address string) (*AddressInfo, error)

	// EstimateFeeRate returns a fee rate in satoshis per vbyte for the
	// given confirmation target (in blocks).
	EstimateFeeRate(ctx context.Context, confTarget int64) (float64, error)

	// SignWithWallet signs an unsigned transaction using the adapter's
	// own wallet keys.
	SignWithWallet(ctx context.Context, tx *UnsignedTx) (*SignedTx, error)

	// Broadcast submits a signed transaction and returns its txid.
	Broadcast(ctx context.Context, tx *SignedTx) (string, error)

	// GetHeight returns the current chain tip height.
	GetHeight(ctx context.Context) (uint32, error)
}
