package glyphstone

import (
	"reflect"
	"testing"
)

func u64(v uint64) *uint64 { return &v }

func TestEtchRoundTrip(t *testing.T) {
	// Law 4: decode(encode(E)) = E modulo optional-field ordering — all
	// optional fields set, in canonical order.
	e := &Etch{
		Name:         "FOO",
		Divisibility: 2,
		Symbol:       '$',
		Premine:      1000,
		MintCap:      u64(10),
		MintAmount:   u64(5),
		StartHeight:  u64(100),
		EndHeight:    u64(200),
		StartOffset:  u64(1),
		EndOffset:    u64(2),
	}
	wire, err := Encode(Directive{Etch: e})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got.Etch, e) {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got.Etch, e)
	}
}

func TestEtchMinimalNoOptionalFields(t *testing.T) {
	e := &Etch{Name: "A", Divisibility: 0, Symbol: '$', Premine: 0}
	wire, err := Encode(Directive{Etch: e})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// tag + varint(1) + varint(0) + symbol + varint(0)
	want := []byte{TagEtch, 0x01, 0x00, '$', 0x00}
	if !reflect.DeepEqual(wire, want) {
		t.Fatalf("wire = % x, want % x", wire, want)
	}
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got.Etch, e) {
		t.Fatalf("round trip mismatch: got=%+v want=%+v", got.Etch, e)
	}
}

func TestEtchUnknownOptionalTagTerminatesBlock(t *testing.T) {
	wire := []byte{TagEtch, 0x01, 0x00, '$', 0x00, 'Z', 0x05, 0xFF, 0xFF}
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Etch.MintCap != nil {
		t.Fatalf("expected no optional fields parsed past unknown tag 'Z'")
	}
}

func TestEtchDuplicateOptionalTagIsError(t *testing.T) {
	wire := []byte{TagEtch, 0x01, 0x00, '$', 0x00, optMintCap, 0x05, optMintCap, 0x06}
	_, err := Decode(wire)
	if err != ErrDuplicateField {
		t.Fatalf("Decode duplicate tag error = %v, want ErrDuplicateField", err)
	}
}

func TestEtchAcceptsNonCanonicalOrder(t *testing.T) {
	// Decoders MUST accept any order of optional tags.
	wire := []byte{TagEtch, 0x01, 0x00, '$', 0x00, optMintAmount, 0x05, optMintCap, 0x0A}
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Etch.MintAmount == nil || *got.Etch.MintAmount != 5 {
		t.Fatalf("MintAmount = %v, want 5", got.Etch.MintAmount)
	}
	if got.Etch.MintCap == nil || *got.Etch.MintCap != 10 {
		t.Fatalf("MintCap = %v, want 10", got.Etch.MintCap)
	}
}

func TestMintRoundTrip(t *testing.T) {
	m := &Mint{BlockHeight: 850000, TxIndex: 12, Amount: 500}
	wire, err := Encode(Directive{Mint: m})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if wire[0] != TagMint {
		t.Fatalf("tag = %q, want 'M'", wire[0])
	}
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got.Mint, m) {
		t.Fatalf("round trip mismatch: got=%+v want=%+v", got.Mint, m)
	}
}

func TestTransferRoundTrip(t *testing.T) {
	tr := &Transfer{BlockHeight: 850000, TxIndex: 3, Amount: 7, OutputIndex: 1}
	wire, err := Encode(Directive{Transfer: tr})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got.Transfer, tr) {
		t.Fatalf("round trip mismatch: got=%+v want=%+v", got.Transfer, tr)
	}
}

func TestDecodeBadTag(t *testing.T) {
	_, err := Decode([]byte{'X', 0x01})
	if err != ErrBadTag {
		t.Fatalf("Decode error = %v, want ErrBadTag", err)
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	_, err := Decode(nil)
	if err != ErrEmpty {
		t.Fatalf("Decode(nil) error = %v, want ErrEmpty", err)
	}
}

func TestSymbolEncodeExample(t *testing.T) {
	// End-to-end scenario 1: symbol encode ABC -> 731.
	if got := NameToInt("ABC"); got != 731 {
		t.Fatalf("NameToInt(ABC) = %d, want 731", got)
	}
}

func TestSymbolDecodeExample(t *testing.T) {
	// End-to-end scenario 2: symbol decode 27 -> AA.
	if got := IntToName(27); got != "AA" {
		t.Fatalf("IntToName(27) = %q, want AA", got)
	}
}

func TestValidateSymbolRejectsLetter(t *testing.T) {
	if err := ValidateSymbol('A'); err != ErrInvalidSymbol {
		t.Fatalf("ValidateSymbol('A') = %v, want ErrInvalidSymbol", err)
	}
}

func TestValidateSymbolAcceptsCurrencySign(t *testing.T) {
	if err := ValidateSymbol('$'); err != nil {
		t.Fatalf("ValidateSymbol('$') = %v, want nil", err)
	}
}
