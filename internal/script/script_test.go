package script

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/txscript"
)

func TestCommitmentRoundTrip(t *testing.T) {
	payload := []byte{0x45, 0x01, 0x02, 0x03}
	pkScript, err := BuildCommitment(payload)
	if err != nil {
		t.Fatalf("BuildCommitment: %v", err)
	}

	got, ok := ParseCommitment(pkScript)
	if !ok {
		t.Fatal("ParseCommitment: ok = false, want true")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ParseCommitment payload = %x, want %x", got, payload)
	}
}

func TestParseCommitmentRejectsWrongShapes(t *testing.T) {
	mkScript := func(build func(*txscript.ScriptBuilder) *txscript.ScriptBuilder) []byte {
		s, err := build(txscript.NewScriptBuilder()).Script()
		if err != nil {
			t.Fatalf("build script: %v", err)
		}
		return s
	}

	cases := map[string][]byte{
		"not OP_RETURN": mkScript(func(b *txscript.ScriptBuilder) *txscript.ScriptBuilder {
			return b.AddOp(txscript.OP_DUP).AddOp(MarkerOp).AddData([]byte{1})
		}),
		"wrong marker": mkScript(func(b *txscript.ScriptBuilder) *txscript.ScriptBuilder {
			return b.AddOp(txscript.OP_RETURN).AddOp(txscript.OP_14).AddData([]byte{1})
		}),
		"no data push": mkScript(func(b *txscript.ScriptBuilder) *txscript.ScriptBuilder {
			return b.AddOp(txscript.OP_RETURN).AddOp(MarkerOp)
		}),
		"trailing bytes": mkScript(func(b *txscript.ScriptBuilder) *txscript.ScriptBuilder {
			return b.AddOp(txscript.OP_RETURN).AddOp(MarkerOp).AddData([]byte{1}).AddOp(txscript.OP_DROP)
		}),
		"bare OP_RETURN": mkScript(func(b *txscript.ScriptBuilder) *txscript.ScriptBuilder {
			return b.AddOp(txscript.OP_RETURN)
		}),
	}

	for name, s := range cases {
		if _, ok := ParseCommitment(s); ok {
			t.Errorf("%s: ParseCommitment ok = true, want false", name)
		}
	}
}

func TestIsEmptyOPReturn(t *testing.T) {
	empty, err := BuildEmptyOPReturn()
	if err != nil {
		t.Fatalf("BuildEmptyOPReturn: %v", err)
	}
	if !IsEmptyOPReturn(empty) {
		t.Error("IsEmptyOPReturn(empty) = false, want true")
	}

	withPayload, _ := BuildCommitment([]byte{0x01})
	if IsEmptyOPReturn(withPayload) {
		t.Error("IsEmptyOPReturn(commitment) = true, want false")
	}
}

func htlcParams() HTLCParams {
	return HTLCParams{
		SecretHash:     bytes.Repeat([]byte{0xAB}, 20),
		ReceiverPubKey: bytes.Repeat([]byte{0x02}, 33),
		SenderPubKey:   bytes.Repeat([]byte{0x03}, 33),
		Timelock:       700000,
	}
}

func TestHTLCRoundTrip(t *testing.T) {
	want := htlcParams()
	redeemScript, err := BuildHTLC(want)
	if err != nil {
		t.Fatalf("BuildHTLC: %v", err)
	}

	got, err := ParseHTLC(redeemScript)
	if err != nil {
		t.Fatalf("ParseHTLC: %v", err)
	}
	if !bytes.Equal(got.SecretHash, want.SecretHash) ||
		!bytes.Equal(got.ReceiverPubKey, want.ReceiverPubKey) ||
		!bytes.Equal(got.SenderPubKey, want.SenderPubKey) ||
		got.Timelock != want.Timelock {
		t.Fatalf("ParseHTLC = %+v, want %+v", got, want)
	}
}

func TestHTLCHasSingleCheckSig(t *testing.T) {
	redeemScript, err := BuildHTLC(htlcParams())
	if err != nil {
		t.Fatalf("BuildHTLC: %v", err)
	}

	count := 0
	tok := txscript.MakeScriptTokenizer(0, redeemScript)
	for tok.Next() {
		if tok.Opcode() == txscript.OP_CHECKSIG {
			count++
		}
	}
	if err := tok.Err(); err != nil {
		t.Fatalf("tokenizer error: %v", err)
	}
	if count != 1 {
		t.Errorf("OP_CHECKSIG count = %d, want 1 (canonical single placement after OP_ENDIF)", count)
	}
}

func TestParseHTLCRejectsNonHTLCScripts(t *testing.T) {
	other, err := BuildCommitment([]byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("BuildCommitment: %v", err)
	}
	if _, err := ParseHTLC(other); err != ErrNotHTLCScript {
		t.Errorf("ParseHTLC(non-HTLC) err = %v, want ErrNotHTLCScript", err)
	}
}

func TestBuildClaimUnlock(t *testing.T) {
	secret := bytes.Repeat([]byte{0x07}, 32)
	unlock, err := BuildClaimUnlock(secret)
	if err != nil {
		t.Fatalf("BuildClaimUnlock: %v", err)
	}

	tok := txscript.MakeScriptTokenizer(0, unlock)
	if !tok.Next() || !bytes.Equal(tok.Data(), secret) {
		t.Fatal("BuildClaimUnlock: expected secret push first")
	}
	if !tok.Next() || tok.Opcode() != txscript.OP_TRUE {
		t.Fatal("BuildClaimUnlock: expected OP_TRUE second")
	}
	if tok.Next() {
		t.Fatal("BuildClaimUnlock: unexpected trailing opcodes")
	}
}

func TestBuildRefundUnlock(t *testing.T) {
	unlock, err := BuildRefundUnlock()
	if err != nil {
		t.Fatalf("BuildRefundUnlock: %v", err)
	}
	tok := txscript.MakeScriptTokenizer(0, unlock)
	if !tok.Next() || tok.Opcode() != txscript.OP_FALSE {
		t.Fatal("BuildRefundUnlock: expected OP_FALSE")
	}
	if tok.Next() {
		t.Fatal("BuildRefundUnlock: unexpected trailing opcodes")
	}
}
