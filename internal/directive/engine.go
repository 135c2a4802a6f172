package directive

import (
	"context"
	"fmt"
	"log"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/rawblock/glyph-engine/internal/chain"
	"github.com/rawblock/glyph-engine/internal/script"
	"github.com/rawblock/glyph-engine/pkg/glyph"
	"github.com/rawblock/glyph-engine/pkg/glyphstone"
)

// seedTargetSat is the minimum UTXO amount the first-fit selector will
// consider: 0.0001 BTC.
const seedTargetSat = 10_000

// confTarget is the confirmation target (in blocks) used for fee
// estimation, matching the teacher's own EstimateSmartFee call sites.
const confTarget = 6

// Fee estimation constants for a single legacy (non-segwit) P2PKH
// input, mirroring the best-case DER-signature size accounting used
// by stcwallet's createtx.go: 1-byte push + up to 72-byte signature +
// 1-byte push + 33-byte compressed pubkey + 1-byte sighash flag.
const sigScriptEstimate = 1 + 72 + 1 + 33 + 1

// GlyphResolver resolves a glyph's etched attributes. internal/indexer
// satisfies this without this package importing it.
type GlyphResolver interface {
	GetGlyphInfo(ctx context.Context, id glyph.ID) (*glyph.Glyph, error)
}

// BalanceResolver resolves the glyph quantity attributed to a specific
// output.
type BalanceResolver interface {
	GetGlyphBalance(ctx context.Context, op glyph.Outpoint, id glyph.ID) (uint64, error)
}

// MintedCounter supplies the minted_count the mint-open predicate
// needs (§9 open question 6); a nil MintedCounter is treated as always
// reporting 0.
type MintedCounter interface {
	MintedCount(ctx context.Context, id glyph.ID) (uint64, error)
}

// Recorder persists the effects of a successful directive. A nil
// Recorder means the engine runs stateless, as spec.md's core does.
type Recorder interface {
	RecordGlyph(ctx context.Context, g *glyph.Glyph) error
	RecordHolding(ctx context.Context, h *glyph.Holding) error
}

// Engine composes and submits directive transactions.
type Engine struct {
	Adapter  chain.ChainAdapter
	Params   *chaincfg.Params
	Resolver GlyphResolver
	Balances BalanceResolver
	Minted   MintedCounter
	Store    Recorder
}

func (e *Engine) params() *chaincfg.Params {
	if e.Params != nil {
		return e.Params
	}
	return &chaincfg.MainNetParams
}

func (e *Engine) mintedCount(ctx context.Context, id glyph.ID) (uint64, error) {
	if e.Minted == nil {
		return 0, nil
	}
	return e.Minted.MintedCount(ctx, id)
}

// destinationIndexFor reports, before construction, the output index
// a requested destination (or burn) output will land at in
// constructAndBroadcast's assembled layout: the commitment output is
// always index 0, and the destination immediately follows it whenever
// one is requested.
func destinationIndexFor(bp buildParams) int {
	if bp.DestinationAddr == "" {
		return -1
	}
	return 1
}

// recordHolding persists the glyph units a just-broadcast directive
// attributed to its destination output. A nil Store, a dry run, or a
// destination-less directive are all no-ops — recording against an
// unsigned-tx placeholder txid would misrepresent a real holding.
func (e *Engine) recordHolding(ctx context.Context, id glyph.ID, result *Result, destIndex int, amount uint64) {
	if e.Store == nil || result == nil || !result.Live || destIndex < 0 {
		return
	}
	err := e.Store.RecordHolding(ctx, &glyph.Holding{
		Outpoint: glyph.Outpoint{Txid: result.Txid, Vout: uint32(destIndex)},
		Balances: map[glyph.ID]uint64{id: amount},
	})
	if err != nil {
		log.Printf("[Directive] record holding %s:%d failed: %v", result.Txid, destIndex, err)
	}
}

// recordEtch persists a newly etched glyph's attributes and its
// premine holding, if any. Unlike Mint/Transfer, an etch has no
// caller-supplied glyph ID to record against: its canonical BLOCK:TX
// identity is only known once the etch transaction confirms (§9 open
// question 6's gap). recordEtch records a provisional id keyed to the
// chain tip at broadcast time; a fuller indexer reconciling against
// the confirmed block is expected to supersede it.
func (e *Engine) recordEtch(ctx context.Context, etch *glyphstone.Etch, result *Result, destIndex int, premine uint64) {
	if e.Store == nil || result == nil || !result.Live {
		return
	}
	height, err := e.Adapter.GetHeight(ctx)
	if err != nil {
		log.Printf("[Directive] record etch %s: height lookup failed: %v", result.Txid, err)
		return
	}
	id := glyph.ID{Block: uint64(height), Tx: 0}
	g := &glyph.Glyph{
		ID:             id,
		Name:           etch.Name,
		NameInt:        glyphstone.NameToInt(etch.Name),
		Divisibility:   etch.Divisibility,
		CurrencySymbol: etch.Symbol,
		Premine:        etch.Premine,
		MintCap:        etch.MintCap,
		MintAmount:     etch.MintAmount,
		StartHeight:    etch.StartHeight,
		EndHeight:      etch.EndHeight,
		StartOffset:    etch.StartOffset,
		EndOffset:      etch.EndOffset,
		EtchHeight:     uint64(height),
	}
	if err := e.Store.RecordGlyph(ctx, g); err != nil {
		log.Printf("[Directive] record glyph %s failed: %v", id, err)
		return
	}
	if premine > 0 {
		e.recordHolding(ctx, id, result, destIndex, premine)
	}
}

// Result is the outcome of a successful directive.
type Result struct {
	Txid      string
	Live      bool
	Directive glyphstone.Directive
}

// txOutput pairs a script with the value it carries, kept alongside
// the wire.TxOut so the cenotaph gate can re-inspect the commitment
// script without re-parsing wire types.
type txOutput struct {
	PkScript []byte
	Value    int64
}

// buildParams carries everything constructAndBroadcast needs that
// isn't specific to one directive kind.
type buildParams struct {
	Directive       glyphstone.Directive
	DestinationAddr string   // empty if no destination output at all (mint/etch with no premine)
	DestinationSat  int64    // ignored if DestinationAddr == ""
	Burn            bool     // true if DestinationAddr is the OP_RETURN burn sentinel
	ChangeAddr      string   // empty if no change requested
	Live            bool     // sign and broadcast if true, else return the unsigned txid
	NostrPubKey     []byte   // optional taproot wrapping key
	InternalPubKey  []byte   // optional taproot internal key (see DESIGN.md)
}

// constructAndBroadcast builds, gates and (when live) signs and submits
// the directive transaction. Its int result is the output index the
// destination (or burn) output landed at — read from the actual
// assembled layout rather than hardcoded, per §9 open question 5 — or
// -1 when there is no destination output.
func (e *Engine) constructAndBroadcast(ctx context.Context, bp buildParams) (*Result, int, error) {
	utxos, err := e.Adapter.ListSpendable(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("directive: list spendable: %w", err)
	}
	selected, ok := firstFit(utxos, seedTargetSat)
	if !ok {
		return nil, 0, ErrInsufficientFunds
	}

	payload, err := glyphstone.Encode(bp.Directive)
	if err != nil {
		return nil, 0, fmt.Errorf("directive: encode glyphstone: %w", err)
	}
	commitmentScript, err := script.BuildCommitment(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("directive: build commitment: %w", err)
	}

	outputs := []txOutput{{PkScript: commitmentScript, Value: 0}}
	destIndex := -1

	if bp.DestinationAddr != "" {
		destScript, err := e.destinationScript(bp)
		if err != nil {
			return nil, 0, err
		}
		destIndex = len(outputs)
		outputs = append(outputs, txOutput{PkScript: destScript, Value: bp.DestinationSat})
	}

	feeRate, err := e.Adapter.EstimateFeeRate(ctx, confTarget)
	if err != nil {
		return nil, 0, fmt.Errorf("directive: estimate fee: %w", err)
	}

	baseTx := assembleUnsignedTx(selected, outputs)
	vsize := estimateVSize(baseTx)
	fee := int64(float64(vsize) * feeRate)

	if bp.ChangeAddr != "" {
		spent := int64(0)
		for _, o := range outputs {
			spent += o.Value
		}
		change := selected.AmountSat - fee - spent
		if change > 0 {
			changeScript, err := addressScript(bp.ChangeAddr, e.params())
			if err != nil {
				return nil, 0, fmt.Errorf("directive: change address: %w", err)
			}
			outputs = append(outputs, txOutput{PkScript: changeScript, Value: change})
		}
	}

	outputs = cenotaphGate(outputs)
	if destIndex >= len(outputs) {
		destIndex = -1
	}

	finalTx := assembleUnsignedTx(selected, outputs)

	if !bp.Live {
		return &Result{Txid: finalTx.TxHash().String(), Live: false, Directive: bp.Directive}, destIndex, nil
	}

	serialized, err := serializeTx(finalTx)
	if err != nil {
		return nil, 0, fmt.Errorf("directive: serialize tx: %w", err)
	}
	signed, err := e.Adapter.SignWithWallet(ctx, &chain.UnsignedTx{SerializedTx: serialized, VSize: vsize})
	if err != nil {
		return nil, 0, fmt.Errorf("directive: sign: %w", err)
	}
	txid, err := e.Adapter.Broadcast(ctx, signed)
	if err != nil {
		return nil, 0, fmt.Errorf("directive: broadcast: %w", err)
	}
	return &Result{Txid: txid, Live: true, Directive: bp.Directive}, destIndex, nil
}

func (e *Engine) destinationScript(bp buildParams) ([]byte, error) {
	if bp.Burn {
		return script.BuildEmptyOPReturn()
	}
	if len(bp.NostrPubKey) > 0 && len(bp.InternalPubKey) > 0 {
		internalKey, err := btcecParsePubKey(bp.InternalPubKey)
		if err != nil {
			return nil, fmt.Errorf("directive: taproot internal key: %w", err)
		}
		addr, err := script.WrapTaproot(internalKey, bp.NostrPubKey, e.params())
		if err == nil {
			return txscript.PayToAddrScript(addr)
		}
		// Best-effort decoration per spec.md §6: a taproot-wrap failure
		// falls back to the plain destination address rather than
		// failing the directive.
	}
	return addressScript(bp.DestinationAddr, e.params())
}

func addressScript(address string, params *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}

// cenotaphGate enforces §4.F's cenotaph rule: if the commitment output
// (always outputs[0]) does not satisfy the OP_RETURN-marker-data shape,
// the entire output set collapses to a single empty OP_RETURN and all
// glyph effects are treated as burned.
func cenotaphGate(outputs []txOutput) []txOutput {
	if len(outputs) == 0 {
		return outputs
	}
	if _, ok := script.ParseCommitment(outputs[0].PkScript); ok {
		return outputs
	}
	empty, err := script.BuildEmptyOPReturn()
	if err != nil {
		return outputs
	}
	return []txOutput{{PkScript: empty, Value: 0}}
}

func firstFit(utxos []chain.UTXO, minSat int64) (chain.UTXO, bool) {
	for _, u := range utxos {
		if u.AmountSat >= minSat {
			return u, true
		}
	}
	return chain.UTXO{}, false
}

func assembleUnsignedTx(selected chain.UTXO, outputs []txOutput) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.LockTime = 0

	prevHash, _ := newHashFromTxid(selected.Txid)
	in := wire.NewTxIn(wire.NewOutPoint(prevHash, selected.Vout), nil, nil)
	in.Sequence = wire.MaxTxInSequenceNum
	tx.AddTxIn(in)

	for _, o := range outputs {
		tx.AddTxOut(wire.NewTxOut(o.Value, o.PkScript))
	}
	return tx
}

// estimateVSize approximates the final virtual size of an unsigned
// legacy transaction by adding the best-case signature script size
// estimate for its (single) input on top of the exact serialized size
// of the unsigned skeleton.
func estimateVSize(tx *wire.MsgTx) int64 {
	base := tx.SerializeSize()
	return int64(base + sigScriptEstimate)
}
