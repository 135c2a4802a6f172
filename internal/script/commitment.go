// Package script builds and parses the two host-chain scripts this
// protocol defines: the OP_RETURN commitment output carrying a
// glyphstone, and the HTLC redeem script used by the swap engine. Both
// are built and parsed through btcd's txscript opcode tokenizer rather
// than by matching instruction mnemonics as text (§9 redesign guidance).
package script

import (
	"github.com/btcsuite/btcd/txscript"
)

// MarkerOp is the protocol marker opcode: the numeric-push opcode valued
// 13 in the host-chain script dialect (OP_13), distinct from any
// standard data push.
const MarkerOp = txscript.OP_13

// BuildCommitment assembles the commitment output script:
// OP_RETURN <MarkerOp> <push(payload)>.
func BuildCommitment(payload []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddOp(MarkerOp).
		AddData(payload).
		Script()
}

// ParseCommitment recognises the shape OP_RETURN <MarkerOp> <data> and
// returns the glyphstone payload. ok is false for any other shape
// (including a bare OP_RETURN or an OP_RETURN with a different marker or
// no data push) — the caller (the directive engine) treats ok==false as
// grounds for the cenotaph gate.
func ParseCommitment(pkScript []byte) (payload []byte, ok bool) {
	tok := txscript.MakeScriptTokenizer(0, pkScript)

	if !tok.Next() || tok.Opcode() != txscript.OP_RETURN {
		return nil, false
	}
	if !tok.Next() || tok.Opcode() != MarkerOp {
		return nil, false
	}
	if !tok.Next() {
		return nil, false
	}
	data := tok.Data()
	if data == nil {
		return nil, false
	}
	// A well-formed commitment has nothing past the data push.
	if tok.Next() || tok.Err() != nil {
		return nil, false
	}
	return data, true
}

// IsEmptyOPReturn reports whether pkScript is exactly a bare, dataless
// OP_RETURN — the shape the cenotaph gate collapses a malformed
// directive's outputs down to.
func IsEmptyOPReturn(pkScript []byte) bool {
	tok := txscript.MakeScriptTokenizer(0, pkScript)
	if !tok.Next() || tok.Opcode() != txscript.OP_RETURN {
		return false
	}
	return !tok.Next() && tok.Err() == nil
}

// BuildEmptyOPReturn returns the bare OP_RETURN script used by the
// cenotaph gate and by burn-to-OP_RETURN transfer destinations.
func BuildEmptyOPReturn() ([]byte, error) {
	return txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).Script()
}
