package directive

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/rawblock/glyph-engine/internal/chain"
	"github.com/rawblock/glyph-engine/internal/script"
	"github.com/rawblock/glyph-engine/pkg/glyph"
	"github.com/rawblock/glyph-engine/pkg/glyphstone"
)

// stubResolver and stubBalances let directive-engine tests avoid
// standing up a real indexer.
type stubResolver struct {
	glyphs map[glyph.ID]*glyph.Glyph
}

func (s *stubResolver) GetGlyphInfo(ctx context.Context, id glyph.ID) (*glyph.Glyph, error) {
	g, ok := s.glyphs[id]
	if !ok {
		return nil, ErrGlyphNotFound
	}
	return g, nil
}

type stubBalances struct {
	balances map[glyph.Outpoint]uint64
}

func (s *stubBalances) GetGlyphBalance(ctx context.Context, op glyph.Outpoint, id glyph.ID) (uint64, error) {
	return s.balances[op], nil
}

func testDestAddress(t *testing.T) string {
	t.Helper()
	// A well-formed, arbitrary P2PKH testnet address.
	return "mfWxJ45yp2SFn7UciZyNpvDKrzbh1iXBBM"
}

func newTestEngine(t *testing.T) (*Engine, *chain.MemAdapter) {
	t.Helper()
	adapter := chain.NewMemAdapter()
	adapter.SeedUTXO(chain.UTXO{Txid: "1111111111111111111111111111111111111111111111111111111111111111", Vout: 0, AmountSat: 100_000})
	e := &Engine{Adapter: adapter, Params: &chaincfg.TestNet3Params}
	return e, adapter
}

func TestEtchWithoutPremineHasNoDestinationOutput(t *testing.T) {
	e, adapter := newTestEngine(t)
	result, err := e.Etch(context.Background(), EtchParams{
		Name:         "FOO",
		Divisibility: 0,
		Symbol:       '$',
		Premine:      0,
		Live:         true,
	})
	if err != nil {
		t.Fatalf("Etch: %v", err)
	}
	if result.Directive.Etch == nil {
		t.Fatal("result missing Etch directive")
	}
	tx, err := adapter.GetTx(context.Background(), result.Txid)
	if err != nil {
		t.Fatalf("GetTx: %v", err)
	}
	if len(tx.Vout) != 1 {
		t.Fatalf("etch outputs = %d, want 1 (commitment only)", len(tx.Vout))
	}
}

func TestEtchWithPremineBuildsDestinationOutput(t *testing.T) {
	e, adapter := newTestEngine(t)
	result, err := e.Etch(context.Background(), EtchParams{
		Name:                "FOO",
		Divisibility:        0,
		Symbol:              '$',
		Premine:             1000,
		DestinationAddress:  testDestAddress(t),
		Live:                true,
	})
	if err != nil {
		t.Fatalf("Etch: %v", err)
	}
	if result.Txid == "" {
		t.Fatal("Etch: empty txid")
	}
	tx, err := adapter.GetTx(context.Background(), result.Txid)
	if err != nil {
		t.Fatalf("GetTx: %v", err)
	}
	if len(tx.Vout) != 2 || tx.Vout[1].AmountSat != 1000 {
		t.Fatalf("etch outputs = %+v, want commitment plus a 1000 sat destination", tx.Vout)
	}
}

func TestEtchRejectsInvalidName(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Etch(context.Background(), EtchParams{Name: "•FOO", Symbol: '$'})
	if err == nil {
		t.Fatal("Etch with leading punctuation: want error")
	}
}

func TestMintClosedWhenCapReached(t *testing.T) {
	e, adapter := newTestEngine(t)
	id := glyph.ID{Block: 100, Tx: 0}
	cap := uint64(10)
	e.Resolver = &stubResolver{glyphs: map[glyph.ID]*glyph.Glyph{
		id: {ID: id, Divisibility: 0, MintCap: &cap, EtchHeight: 0},
	}}
	e.Minted = constCounter(10)
	adapter.SetHeight(50)

	_, err := e.Mint(context.Background(), MintParams{GlyphID: id, Amount: 1, DestinationAddress: testDestAddress(t)})
	if err != ErrMintClosed {
		t.Fatalf("Mint at cap: err = %v, want ErrMintClosed", err)
	}
}

func TestMintRejectsWrongAmount(t *testing.T) {
	e, adapter := newTestEngine(t)
	id := glyph.ID{Block: 100, Tx: 0}
	amt := uint64(50)
	e.Resolver = &stubResolver{glyphs: map[glyph.ID]*glyph.Glyph{
		id: {ID: id, Divisibility: 0, MintAmount: &amt, EtchHeight: 0},
	}}
	adapter.SetHeight(50)

	_, err := e.Mint(context.Background(), MintParams{GlyphID: id, Amount: 1, DestinationAddress: testDestAddress(t)})
	if err != ErrInvalidMintAmount {
		t.Fatalf("Mint wrong amount: err = %v, want ErrInvalidMintAmount", err)
	}
}

func TestTransferRejectsInsufficientBalance(t *testing.T) {
	e, _ := newTestEngine(t)
	id := glyph.ID{Block: 100, Tx: 0}
	op := glyph.Outpoint{Txid: "deadbeef", Vout: 0}
	e.Balances = &stubBalances{balances: map[glyph.Outpoint]uint64{op: 3}}

	_, err := e.Transfer(context.Background(), TransferParams{
		GlyphID: id, Amount: 5, InputTxid: op.Txid, InputVout: op.Vout,
		DestinationAddress: testDestAddress(t),
	})
	if err != ErrInsufficientGlyphs {
		t.Fatalf("Transfer over balance: err = %v, want ErrInsufficientGlyphs", err)
	}
}

func TestTransferComputesDestinationOutputIndex(t *testing.T) {
	e, _ := newTestEngine(t)
	id := glyph.ID{Block: 100, Tx: 0}
	op := glyph.Outpoint{Txid: "deadbeef", Vout: 0}
	e.Balances = &stubBalances{balances: map[glyph.Outpoint]uint64{op: 10}}

	result, err := e.Transfer(context.Background(), TransferParams{
		GlyphID: id, Amount: 5, InputTxid: op.Txid, InputVout: op.Vout,
		DestinationAddress: testDestAddress(t),
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if result.Directive.Transfer.OutputIndex != 1 {
		t.Fatalf("Transfer OutputIndex = %d, want 1 (commitment=0, destination=1)", result.Directive.Transfer.OutputIndex)
	}
}

func TestTransferBurnEmitsEmptyOPReturn(t *testing.T) {
	e, adapter := newTestEngine(t)
	id := glyph.ID{Block: 100, Tx: 0}
	op := glyph.Outpoint{Txid: "deadbeef", Vout: 0}
	e.Balances = &stubBalances{balances: map[glyph.Outpoint]uint64{op: 10}}

	result, err := e.Transfer(context.Background(), TransferParams{
		GlyphID: id, Amount: 5, InputTxid: op.Txid, InputVout: op.Vout,
		DestinationAddress: BurnAddress, Live: true,
	})
	if err != nil {
		t.Fatalf("Transfer (burn): %v", err)
	}
	if result.Directive.Transfer == nil {
		t.Fatal("result missing Transfer directive")
	}
	tx, err := adapter.GetTx(context.Background(), result.Txid)
	if err != nil {
		t.Fatalf("GetTx: %v", err)
	}
	if len(tx.Vout) != 2 || !script.IsEmptyOPReturn(tx.Vout[1].PkScript) {
		t.Fatalf("burn outputs = %+v, want commitment plus an empty OP_RETURN", tx.Vout)
	}
}

func TestCenotaphGateCollapsesMalformedCommitment(t *testing.T) {
	badScript, err := script.BuildEmptyOPReturn() // not a valid commitment (no marker/data)
	if err != nil {
		t.Fatalf("BuildEmptyOPReturn: %v", err)
	}
	outputs := []txOutput{
		{PkScript: badScript, Value: 0},
		{PkScript: []byte{0x51}, Value: 1000}, // would-be destination
	}
	got := cenotaphGate(outputs)
	if len(got) != 1 {
		t.Fatalf("cenotaphGate len = %d, want 1", len(got))
	}
	if !script.IsEmptyOPReturn(got[0].PkScript) {
		t.Fatal("cenotaphGate output is not an empty OP_RETURN")
	}
}

func TestCenotaphGatePassesThroughWellFormedCommitment(t *testing.T) {
	payload, _ := glyphstone.Encode(glyphstone.Directive{Mint: &glyphstone.Mint{BlockHeight: 1, TxIndex: 0, Amount: 1}})
	good, err := script.BuildCommitment(payload)
	if err != nil {
		t.Fatalf("BuildCommitment: %v", err)
	}
	outputs := []txOutput{{PkScript: good, Value: 0}, {PkScript: []byte{0x51}, Value: 1000}}
	got := cenotaphGate(outputs)
	if len(got) != 2 {
		t.Fatalf("cenotaphGate len = %d, want 2 (unchanged)", len(got))
	}
}

type constCounter uint64

func (c constCounter) MintedCount(ctx context.Context, id glyph.ID) (uint64, error) {
	return uint64(c), nil
}

// stubRecorder captures what the engine would have persisted, so tests
// can assert on Recorder wiring without a real *db.Store.
type stubRecorder struct {
	glyphs   []*glyph.Glyph
	holdings []*glyph.Holding
}

func (s *stubRecorder) RecordGlyph(ctx context.Context, g *glyph.Glyph) error {
	s.glyphs = append(s.glyphs, g)
	return nil
}

func (s *stubRecorder) RecordHolding(ctx context.Context, h *glyph.Holding) error {
	s.holdings = append(s.holdings, h)
	return nil
}

func TestEtchRecordsGlyphAndPremineHoldingWhenLive(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := &stubRecorder{}
	e.Store = rec

	result, err := e.Etch(context.Background(), EtchParams{
		Name:               "FOO",
		Divisibility:       0,
		Symbol:             '$',
		Premine:            1000,
		DestinationAddress: testDestAddress(t),
		Live:               true,
	})
	if err != nil {
		t.Fatalf("Etch: %v", err)
	}
	if len(rec.glyphs) != 1 {
		t.Fatalf("RecordGlyph calls = %d, want 1", len(rec.glyphs))
	}
	if rec.glyphs[0].Name != "FOO" || rec.glyphs[0].Premine != 1000 {
		t.Fatalf("recorded glyph = %+v, want Name=FOO Premine=1000", rec.glyphs[0])
	}
	if len(rec.holdings) != 1 {
		t.Fatalf("RecordHolding calls = %d, want 1", len(rec.holdings))
	}
	if rec.holdings[0].Outpoint.Txid != result.Txid || rec.holdings[0].Outpoint.Vout != 1 {
		t.Fatalf("recorded holding outpoint = %+v, want %s:1", rec.holdings[0].Outpoint, result.Txid)
	}
}

func TestEtchSkipsRecordingWhenNotLive(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := &stubRecorder{}
	e.Store = rec

	if _, err := e.Etch(context.Background(), EtchParams{
		Name:               "FOO",
		Symbol:             '$',
		Premine:            1000,
		DestinationAddress: testDestAddress(t),
		Live:               false,
	}); err != nil {
		t.Fatalf("Etch: %v", err)
	}
	if len(rec.glyphs) != 0 || len(rec.holdings) != 0 {
		t.Fatalf("dry-run Etch recorded glyphs=%d holdings=%d, want 0/0", len(rec.glyphs), len(rec.holdings))
	}
}

func TestMintRecordsHoldingWhenLive(t *testing.T) {
	e, adapter := newTestEngine(t)
	rec := &stubRecorder{}
	e.Store = rec
	id := glyph.ID{Block: 100, Tx: 0}
	e.Resolver = &stubResolver{glyphs: map[glyph.ID]*glyph.Glyph{
		id: {ID: id, Divisibility: 0},
	}}
	adapter.SetHeight(50)

	result, err := e.Mint(context.Background(), MintParams{
		GlyphID: id, Amount: 5, DestinationAddress: testDestAddress(t), Live: true,
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if len(rec.holdings) != 1 {
		t.Fatalf("RecordHolding calls = %d, want 1", len(rec.holdings))
	}
	if rec.holdings[0].Balances[id] != 5 {
		t.Fatalf("recorded holding balance = %d, want 5", rec.holdings[0].Balances[id])
	}
	if rec.holdings[0].Outpoint.Txid != result.Txid {
		t.Fatalf("recorded holding txid = %s, want %s", rec.holdings[0].Outpoint.Txid, result.Txid)
	}
}

func TestTransferSkipsRecordingHoldingOnBurn(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := &stubRecorder{}
	e.Store = rec
	id := glyph.ID{Block: 100, Tx: 0}
	op := glyph.Outpoint{Txid: "deadbeef", Vout: 0}
	e.Balances = &stubBalances{balances: map[glyph.Outpoint]uint64{op: 10}}

	if _, err := e.Transfer(context.Background(), TransferParams{
		GlyphID: id, Amount: 5, InputTxid: op.Txid, InputVout: op.Vout,
		DestinationAddress: BurnAddress, Live: true,
	}); err != nil {
		t.Fatalf("Transfer (burn): %v", err)
	}
	if len(rec.holdings) != 0 {
		t.Fatalf("burn Transfer recorded %d holdings, want 0", len(rec.holdings))
	}
}
