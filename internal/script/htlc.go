package script

import (
	"errors"

	"github.com/btcsuite/btcd/txscript"
)

// ErrNotHTLCScript is returned by ParseHTLC when the script does not
// match the opcode sequence BuildHTLC produces.
var ErrNotHTLCScript = errors.New("script: not an HTLC script")

// HTLCParams are the parameters embedded in an HTLC redeem script.
type HTLCParams struct {
	SecretHash     []byte // 20-byte HASH160 digest
	ReceiverPubKey []byte
	SenderPubKey   []byte
	Timelock       int64
}

// BuildHTLC assembles the hashlock/timelock redeem script:
//
//	OP_DUP OP_HASH160 <secret_hash> OP_EQUALVERIFY
//	OP_IF <receiver_pubkey>
//	OP_ELSE <timelock> OP_CHECKLOCKTIMEVERIFY OP_DROP <sender_pubkey>
//	OP_ENDIF
//	OP_CHECKSIG
//
// This is the canonical form resolved for §9 open question 1: the
// reference script duplicates OP_CHECKSIG both inside the hashlock
// branch and after OP_ENDIF; this core keeps the single occurrence
// after OP_ENDIF, which is the one a spender actually needs to satisfy
// regardless of branch taken.
func BuildHTLC(p HTLCParams) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(p.SecretHash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_IF).
		AddData(p.ReceiverPubKey).
		AddOp(txscript.OP_ELSE).
		AddInt64(p.Timelock).
		AddOp(txscript.OP_CHECKLOCKTIMEVERIFY).
		AddOp(txscript.OP_DROP).
		AddData(p.SenderPubKey).
		AddOp(txscript.OP_ENDIF).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// ParseHTLC recovers HTLCParams from a script built by BuildHTLC,
// matching the exact opcode sequence rather than searching for any one
// instruction by name.
func ParseHTLC(redeemScript []byte) (HTLCParams, error) {
	tok := txscript.MakeScriptTokenizer(0, redeemScript)
	expectOp := func(op byte) bool { return tok.Next() && tok.Opcode() == op }
	nextData := func() ([]byte, bool) {
		if !tok.Next() {
			return nil, false
		}
		return tok.Data(), true
	}
	// scriptNum reads the current token as a script number, handling
	// both a data push and the small-integer opcodes (OP_0, OP_1..
	// OP_16) ScriptBuilder.AddInt64 emits instead of a push for
	// timelocks in [0, 16] — those carry no push data at all, so
	// MakeScriptNum on a nil Data() would silently decode as 0.
	scriptNum := func() (int64, bool) {
		if data := tok.Data(); data != nil {
			num, err := txscript.MakeScriptNum(data, false, 5)
			if err != nil {
				return 0, false
			}
			return int64(num), true
		}
		if op := tok.Opcode(); op >= txscript.OP_1 && op <= txscript.OP_16 {
			return int64(op-txscript.OP_1) + 1, true
		} else if op == txscript.OP_0 {
			return 0, true
		}
		return 0, false
	}

	var p HTLCParams

	if !expectOp(txscript.OP_DUP) || !expectOp(txscript.OP_HASH160) {
		return HTLCParams{}, ErrNotHTLCScript
	}
	secretHash, ok := nextData()
	if !ok || secretHash == nil {
		return HTLCParams{}, ErrNotHTLCScript
	}
	p.SecretHash = secretHash

	if !expectOp(txscript.OP_EQUALVERIFY) || !expectOp(txscript.OP_IF) {
		return HTLCParams{}, ErrNotHTLCScript
	}
	receiverPubKey, ok := nextData()
	if !ok || receiverPubKey == nil {
		return HTLCParams{}, ErrNotHTLCScript
	}
	p.ReceiverPubKey = receiverPubKey

	if !expectOp(txscript.OP_ELSE) {
		return HTLCParams{}, ErrNotHTLCScript
	}
	if !tok.Next() {
		return HTLCParams{}, ErrNotHTLCScript
	}
	timelock, ok := scriptNum()
	if !ok {
		return HTLCParams{}, ErrNotHTLCScript
	}
	p.Timelock = timelock

	if !expectOp(txscript.OP_CHECKLOCKTIMEVERIFY) || !expectOp(txscript.OP_DROP) {
		return HTLCParams{}, ErrNotHTLCScript
	}
	senderPubKey, ok := nextData()
	if !ok || senderPubKey == nil {
		return HTLCParams{}, ErrNotHTLCScript
	}
	p.SenderPubKey = senderPubKey

	if !expectOp(txscript.OP_ENDIF) || !expectOp(txscript.OP_CHECKSIG) {
		return HTLCParams{}, ErrNotHTLCScript
	}
	if tok.Next() || tok.Err() != nil {
		return HTLCParams{}, ErrNotHTLCScript
	}

	return p, nil
}

// BuildClaimUnlock builds the hashlock-branch unlocking script template:
// <secret> OP_TRUE. The wallet signing step (an external collaborator,
// §6) is responsible for the accompanying signature.
func BuildClaimUnlock(secret []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(secret).
		AddOp(txscript.OP_TRUE).
		Script()
}

// BuildRefundUnlock builds the timelock-branch unlocking script
// template: OP_FALSE.
func BuildRefundUnlock() ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_FALSE).
		Script()
}
