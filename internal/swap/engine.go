// Package swap implements the HTLC swap protocol (§4.G): building the
// hashlock/timelock-guarded output that carries a glyph transfer,
// claiming it with the secret, and refunding it after the timelock.
package swap

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/rawblock/glyph-engine/internal/chain"
	"github.com/rawblock/glyph-engine/internal/script"
	"github.com/rawblock/glyph-engine/pkg/glyph"
	"github.com/rawblock/glyph-engine/pkg/glyphstone"
)

var (
	// ErrSecretMismatch is returned locally by ClaimGlyph when the
	// supplied secret's HASH160 doesn't match the HTLC's committed
	// secret_hash — a cheaper local check before ever reaching the
	// chain adapter's script-verify failure path (§8 scenario 6).
	ErrSecretMismatch    = errors.New("swap: secret does not match the HTLC's secret_hash")
	ErrNoHTLCOutput      = errors.New("swap: no HTLC output at index 1 on the given transaction")
	ErrInsufficientFunds = errors.New("swap: no spendable UTXO meets the seed target")
)

const seedTargetSat = 10_000
const confTarget = 6
const dustSat = 546
const sigScriptEstimate = 1 + 72 + 1 + 33 + 1

// GlyphResolver resolves a glyph's etched attributes, shared with the
// directive engine's interface of the same shape.
type GlyphResolver interface {
	GetGlyphInfo(ctx context.Context, id glyph.ID) (*glyph.Glyph, error)
}

// Engine composes and submits HTLC-related transactions.
type Engine struct {
	Adapter  chain.ChainAdapter
	Params   *chaincfg.Params
	Resolver GlyphResolver
}

func (e *Engine) params() *chaincfg.Params {
	if e.Params != nil {
		return e.Params
	}
	return &chaincfg.MainNetParams
}

// Session is the parameters of an HTLC swap, returned by InitiateSwap
// and ParticipateSwap so a caller (typically the API layer's bookkeeping
// store, §7) can persist them for later claim/refund calls — in
// particular RedeemScript, which a P2SH output alone does not carry.
type Session struct {
	GlyphID        glyph.ID
	Amount         uint64
	RedeemScript   []byte
	SecretHash     []byte
	ReceiverPubKey []byte
	SenderPubKey   []byte
	Timelock       int64
	HTLCAddress    string
	Txid           string
}

// InitiateParams describes a swap the local wallet is initiating as the
// sender: it hashes a freshly chosen secret and resolves its own pubkey
// from SenderAddress.
type InitiateParams struct {
	GlyphID        glyph.ID
	Amount         uint64
	InputTxid      string
	InputVout      uint32
	Secret         []byte
	ReceiverPubKey []byte
	SenderAddress  string // resolved to a pubkey via GetAddressInfo
	Timelock       int64
	ChangeAddress  string
	Live           bool
}

// InitiateSwap builds and submits the HTLC-locked destination output
// carrying the transfer, hashing the given secret with HASH160 so the
// committed digest matches what OP_HASH160 in the redeem script
// verifies (see DESIGN.md on the SHA256-vs-HASH160 inconsistency
// between spec.md §4.D and §4.G).
func (e *Engine) InitiateSwap(ctx context.Context, p InitiateParams) (*Session, error) {
	secretHash := btcutil.Hash160(p.Secret)

	info, err := e.Adapter.GetAddressInfo(ctx, p.SenderAddress)
	if err != nil {
		return nil, fmt.Errorf("swap: resolve sender pubkey: %w", err)
	}
	if info.PubKey == nil {
		return nil, fmt.Errorf("swap: address %s has no known pubkey in wallet", p.SenderAddress)
	}

	return e.buildAndSubmit(ctx, buildSwapParams{
		GlyphID:        p.GlyphID,
		Amount:         p.Amount,
		InputTxid:      p.InputTxid,
		InputVout:      p.InputVout,
		SecretHash:     secretHash,
		ReceiverPubKey: p.ReceiverPubKey,
		SenderPubKey:   info.PubKey,
		Timelock:       p.Timelock,
		ChangeAddress:  p.ChangeAddress,
		Live:           p.Live,
	})
}

// ParticipateParams describes a swap the local wallet is participating
// in as the receiver, given the sender-supplied secret_hash, pubkey, and
// timelock without re-deriving any of them.
type ParticipateParams struct {
	GlyphID         glyph.ID
	Amount          uint64
	InputTxid       string
	InputVout       uint32
	SecretHash      []byte
	SenderPubKey    []byte
	ReceiverAddress string
	Timelock        int64
	ChangeAddress   string
	Live            bool
}

// ParticipateSwap mirrors InitiateSwap but consumes the counterparty's
// parameters verbatim, without re-hashing anything (spec.md §4.G).
func (e *Engine) ParticipateSwap(ctx context.Context, p ParticipateParams) (*Session, error) {
	info, err := e.Adapter.GetAddressInfo(ctx, p.ReceiverAddress)
	if err != nil {
		return nil, fmt.Errorf("swap: resolve receiver pubkey: %w", err)
	}
	if info.PubKey == nil {
		return nil, fmt.Errorf("swap: address %s has no known pubkey in wallet", p.ReceiverAddress)
	}

	return e.buildAndSubmit(ctx, buildSwapParams{
		GlyphID:        p.GlyphID,
		Amount:         p.Amount,
		InputTxid:      p.InputTxid,
		InputVout:      p.InputVout,
		SecretHash:     p.SecretHash,
		ReceiverPubKey: info.PubKey,
		SenderPubKey:   p.SenderPubKey,
		Timelock:       p.Timelock,
		ChangeAddress:  p.ChangeAddress,
		Live:           p.Live,
	})
}

type buildSwapParams struct {
	GlyphID        glyph.ID
	Amount         uint64
	InputTxid      string
	InputVout      uint32
	SecretHash     []byte
	ReceiverPubKey []byte
	SenderPubKey   []byte
	Timelock       int64
	ChangeAddress  string
	Live           bool
}

// buildAndSubmit assembles [commitment, HTLC-destination, change?] per
// the shared construct-and-broadcast shape in spec.md §4.F, but with
// the destination script replaced by the HTLC redeem script's P2SH
// wrapping instead of a plain address, and glyphstone T attributing the
// full amount to that output (output index 1, the only destination).
func (e *Engine) buildAndSubmit(ctx context.Context, p buildSwapParams) (*Session, error) {
	redeemScript, err := script.BuildHTLC(script.HTLCParams{
		SecretHash:     p.SecretHash,
		ReceiverPubKey: p.ReceiverPubKey,
		SenderPubKey:   p.SenderPubKey,
		Timelock:       p.Timelock,
	})
	if err != nil {
		return nil, fmt.Errorf("swap: build htlc script: %w", err)
	}
	p2sh, err := btcutil.NewAddressScriptHash(redeemScript, e.params())
	if err != nil {
		return nil, fmt.Errorf("swap: p2sh-wrap htlc script: %w", err)
	}
	destScript, err := txscript.PayToAddrScript(p2sh)
	if err != nil {
		return nil, fmt.Errorf("swap: htlc destination script: %w", err)
	}

	utxos, err := e.Adapter.ListSpendable(ctx)
	if err != nil {
		return nil, fmt.Errorf("swap: list spendable: %w", err)
	}
	selected, ok := firstFit(utxos, seedTargetSat)
	if !ok {
		return nil, ErrInsufficientFunds
	}

	transfer := &glyphstone.Transfer{
		BlockHeight: p.GlyphID.Block,
		TxIndex:     uint64(p.GlyphID.Tx),
		Amount:      p.Amount,
		OutputIndex: 1,
	}
	payload, err := glyphstone.Encode(glyphstone.Directive{Transfer: transfer})
	if err != nil {
		return nil, fmt.Errorf("swap: encode glyphstone: %w", err)
	}
	commitmentScript, err := script.BuildCommitment(payload)
	if err != nil {
		return nil, fmt.Errorf("swap: build commitment: %w", err)
	}

	outputs := []wireOut{
		{PkScript: commitmentScript, Value: 0},
		{PkScript: destScript, Value: dustSat},
	}

	feeRate, err := e.Adapter.EstimateFeeRate(ctx, confTarget)
	if err != nil {
		return nil, fmt.Errorf("swap: estimate fee: %w", err)
	}

	tx := assembleTx(selected, outputs, wire.MaxTxInSequenceNum, 0)
	vsize := int64(tx.SerializeSize() + sigScriptEstimate)
	fee := int64(float64(vsize) * feeRate)

	if p.ChangeAddress != "" {
		spent := int64(0)
		for _, o := range outputs {
			spent += o.Value
		}
		change := selected.AmountSat - fee - spent
		if change > 0 {
			changeAddr, err := btcutil.DecodeAddress(p.ChangeAddress, e.params())
			if err != nil {
				return nil, fmt.Errorf("swap: change address: %w", err)
			}
			changeScript, err := txscript.PayToAddrScript(changeAddr)
			if err != nil {
				return nil, err
			}
			outputs = append(outputs, wireOut{PkScript: changeScript, Value: change})
		}
	}

	outputs = cenotaphGateSwap(outputs)
	tx = assembleTx(selected, outputs, wire.MaxTxInSequenceNum, 0)

	session := &Session{
		GlyphID:        p.GlyphID,
		Amount:         p.Amount,
		RedeemScript:   redeemScript,
		SecretHash:     p.SecretHash,
		ReceiverPubKey: p.ReceiverPubKey,
		SenderPubKey:   p.SenderPubKey,
		Timelock:       p.Timelock,
		HTLCAddress:    p2sh.EncodeAddress(),
	}

	if !p.Live {
		session.Txid = tx.TxHash().String()
		return session, nil
	}

	serialized, err := serializeTx(tx)
	if err != nil {
		return nil, err
	}
	signed, err := e.Adapter.SignWithWallet(ctx, &chain.UnsignedTx{SerializedTx: serialized, VSize: vsize})
	if err != nil {
		return nil, fmt.Errorf("swap: sign: %w", err)
	}
	txid, err := e.Adapter.Broadcast(ctx, signed)
	if err != nil {
		return nil, fmt.Errorf("swap: broadcast: %w", err)
	}
	session.Txid = txid
	return session, nil
}

// ClaimParams describes a claim of an HTLC output via the hashlock
// branch. RedeemScript is the exact script InitiateSwap/ParticipateSwap
// built (recovered from the session bookkeeping cache, §7) — a P2SH
// output on the wire carries only its HASH160, so the spender must
// supply the preimage script itself.
type ClaimParams struct {
	HTLCTxid           string
	RedeemScript       []byte
	Secret             []byte
	DestinationAddress string
	Live               bool
}

// ClaimGlyph locates the HTLC output on htlcTxid, verifies the supplied
// secret locally before ever reaching the chain, and submits a spending
// transaction selecting the hashlock branch (<secret> OP_TRUE plus the
// redeem script, per BIP16 P2SH spending).
func (e *Engine) ClaimGlyph(ctx context.Context, p ClaimParams) (string, error) {
	params, err := script.ParseHTLC(p.RedeemScript)
	if err != nil {
		return "", fmt.Errorf("swap: redeem script: %w", err)
	}
	if !bytes.Equal(btcutil.Hash160(p.Secret), params.SecretHash) {
		return "", ErrSecretMismatch
	}

	tx, htlcVout, err := e.locateHTLC(ctx, p.HTLCTxid, p.RedeemScript)
	if err != nil {
		return "", err
	}

	unlock, err := script.BuildClaimUnlock(p.Secret)
	if err != nil {
		return "", err
	}
	return e.submitSpend(ctx, tx, htlcVout, p.RedeemScript, unlock, p.DestinationAddress, 0, wire.MaxTxInSequenceNum-1, p.Live)
}

// RefundParams describes a refund of an HTLC output via the timelock
// branch, after the timelock has passed.
type RefundParams struct {
	HTLCTxid           string
	RedeemScript       []byte
	DestinationAddress string
	Live               bool
}

// RefundGlyph spends the timelock branch (OP_FALSE). Per §9 open
// question 4, the reference sets locktime=0, which OP_CHECKLOCKTIMEVERIFY
// would reject; this engine sets the spending transaction's locktime to
// max(htlc.Timelock, chain tip) and the input's sequence below
// 0xFFFFFFFF so the CLTV check is actually satisfiable.
func (e *Engine) RefundGlyph(ctx context.Context, p RefundParams) (string, error) {
	params, err := script.ParseHTLC(p.RedeemScript)
	if err != nil {
		return "", fmt.Errorf("swap: redeem script: %w", err)
	}

	tx, htlcVout, err := e.locateHTLC(ctx, p.HTLCTxid, p.RedeemScript)
	if err != nil {
		return "", err
	}

	height, err := e.Adapter.GetHeight(ctx)
	if err != nil {
		return "", err
	}
	locktime := params.Timelock
	if int64(height) > locktime {
		locktime = int64(height)
	}

	unlock, err := script.BuildRefundUnlock()
	if err != nil {
		return "", err
	}
	return e.submitSpend(ctx, tx, htlcVout, p.RedeemScript, unlock, p.DestinationAddress, uint32(locktime), wire.MaxTxInSequenceNum-1, p.Live)
}

// locateHTLC fetches htlcTxid and confirms that the output at the swap
// engine's destination convention (index 1) is a P2SH output whose hash
// matches HASH160(redeemScript) — re-deriving the HTLC's structural
// validity from the supplied redeem script rather than string-matching
// any opcode mnemonic in the fetched output (§9 redesign guidance).
func (e *Engine) locateHTLC(ctx context.Context, htlcTxid string, redeemScript []byte) (*chain.Transaction, uint32, error) {
	tx, err := e.Adapter.GetTx(ctx, htlcTxid)
	if err != nil {
		return nil, 0, fmt.Errorf("swap: get tx %s: %w", htlcTxid, err)
	}
	want, err := btcutil.NewAddressScriptHash(redeemScript, e.params())
	if err != nil {
		return nil, 0, err
	}
	wantScript, err := txscript.PayToAddrScript(want)
	if err != nil {
		return nil, 0, err
	}
	for _, out := range tx.Vout {
		if out.Vout == 1 && bytes.Equal(out.PkScript, wantScript) {
			return tx, out.Vout, nil
		}
	}
	return nil, 0, ErrNoHTLCOutput
}

// submitSpend builds and submits a transaction spending the HTLC
// output at (prevTx.Txid, htlcVout), with a scriptSig of
// unlockScript ++ push(redeemScript) per BIP16 P2SH spending.
func (e *Engine) submitSpend(ctx context.Context, prevTx *chain.Transaction, htlcVout uint32, redeemScript, unlockScript []byte, destAddr string, locktime uint32, sequence uint32, live bool) (string, error) {
	destAddress, err := btcutil.DecodeAddress(destAddr, e.params())
	if err != nil {
		return "", fmt.Errorf("swap: destination address: %w", err)
	}
	destScript, err := txscript.PayToAddrScript(destAddress)
	if err != nil {
		return "", err
	}

	var prevValue int64
	for _, out := range prevTx.Vout {
		if out.Vout == htlcVout {
			prevValue = out.AmountSat
		}
	}

	scriptSig, err := txscript.NewScriptBuilder().
		AddOps(unlockScript).
		AddData(redeemScript).
		Script()
	if err != nil {
		return "", fmt.Errorf("swap: assemble scriptSig: %w", err)
	}

	feeRate, err := e.Adapter.EstimateFeeRate(ctx, confTarget)
	if err != nil {
		return "", fmt.Errorf("swap: estimate fee: %w", err)
	}
	base := 8 + len(scriptSig) + 1 + len(destScript)
	fee := int64(float64(base) * feeRate)

	msgTx := wire.NewMsgTx(2)
	msgTx.LockTime = locktime
	prevHash, err := chainhash.NewHashFromStr(prevTx.Txid)
	if err != nil {
		return "", err
	}
	in := wire.NewTxIn(wire.NewOutPoint(prevHash, htlcVout), scriptSig, nil)
	in.Sequence = sequence
	msgTx.AddTxIn(in)
	msgTx.AddTxOut(wire.NewTxOut(prevValue-fee, destScript))

	if !live {
		return msgTx.TxHash().String(), nil
	}

	serialized, err := serializeTx(msgTx)
	if err != nil {
		return "", err
	}
	signed, err := e.Adapter.SignWithWallet(ctx, &chain.UnsignedTx{SerializedTx: serialized})
	if err != nil {
		return "", fmt.Errorf("swap: sign: %w", err)
	}
	return e.Adapter.Broadcast(ctx, signed)
}

type wireOut struct {
	PkScript []byte
	Value    int64
}

func firstFit(utxos []chain.UTXO, minSat int64) (chain.UTXO, bool) {
	for _, u := range utxos {
		if u.AmountSat >= minSat {
			return u, true
		}
	}
	return chain.UTXO{}, false
}

func assembleTx(selected chain.UTXO, outputs []wireOut, sequence uint32, locktime uint32) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.LockTime = locktime
	prevHash, _ := chainhash.NewHashFromStr(selected.Txid)
	in := wire.NewTxIn(wire.NewOutPoint(prevHash, selected.Vout), nil, nil)
	in.Sequence = sequence
	tx.AddTxIn(in)
	for _, o := range outputs {
		tx.AddTxOut(wire.NewTxOut(o.Value, o.PkScript))
	}
	return tx
}

// cenotaphGateSwap applies the same cenotaph collapse as the directive
// engine (spec.md §4.F): if the commitment output isn't shaped as
// expected, every glyph effect — including the HTLC lock itself — is
// burned rather than partially applied.
func cenotaphGateSwap(outputs []wireOut) []wireOut {
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
	return []wireOut{{PkScript: empty, Value: 0}}
}

func serializeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
