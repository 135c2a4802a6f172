package indexer

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/wire"

	"github.com/rawblock/glyph-engine/internal/chain"
	"github.com/rawblock/glyph-engine/internal/script"
	"github.com/rawblock/glyph-engine/pkg/glyph"
	"github.com/rawblock/glyph-engine/pkg/glyphstone"
)

// seedEtchBlock fabricates a one-tx block at height whose sole
// transaction carries an Etch commitment, mirroring how a directive
// engine's etch transaction would actually look on chain.
func seedEtchBlock(t *testing.T, adapter *chain.MemAdapter, height int64, etch *glyphstone.Etch) string {
	t.Helper()
	payload, err := glyphstone.Encode(glyphstone.Directive{Etch: etch})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	commitment, err := script.BuildCommitment(payload)
	if err != nil {
		t.Fatalf("BuildCommitment: %v", err)
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(0, commitment))
	txid := tx.TxHash().String()
	adapter.SeedTxAndBlock(height, txid, []chain.Output{
		{Txid: txid, Vout: 0, PkScript: commitment, AmountSat: 0},
	})
	return txid
}

func TestGetGlyphInfoDecodesEtchFromBlock(t *testing.T) {
	adapter := chain.NewMemAdapter()
	cap := uint64(1000)
	txid := seedEtchBlock(t, adapter, 100, &glyphstone.Etch{
		Name:         "FOO",
		Divisibility: 2,
		Symbol:       '$',
		Premine:      500,
		MintCap:      &cap,
	})

	idx := &Indexer{Adapter: adapter}
	id := glyph.ID{Block: 100, Tx: 0}
	g, err := idx.GetGlyphInfo(context.Background(), id)
	if err != nil {
		t.Fatalf("GetGlyphInfo: %v", err)
	}
	if g.Name != "FOO" || g.Premine != 500 || g.Divisibility != 2 {
		t.Fatalf("GetGlyphInfo = %+v, want Name=FOO Premine=500 Divisibility=2", g)
	}
	if g.MintedCount != 0 {
		t.Fatalf("GetGlyphInfo MintedCount = %d, want 0 (no MintedCounter configured)", g.MintedCount)
	}
	_ = txid
}

func TestGetGlyphInfoNotFoundForNonEtchTx(t *testing.T) {
	adapter := chain.NewMemAdapter()
	adapter.SeedTxAndBlock(100, "deadbeef", []chain.Output{
		{Txid: "deadbeef", Vout: 0, PkScript: []byte{0x51}, AmountSat: 1000},
	})

	idx := &Indexer{Adapter: adapter}
	_, err := idx.GetGlyphInfo(context.Background(), glyph.ID{Block: 100, Tx: 0})
	if err == nil {
		t.Fatal("GetGlyphInfo: want error for block with no etch commitment")
	}
}

type constMinted uint64

func (c constMinted) MintedCount(ctx context.Context, id glyph.ID) (uint64, error) {
	return uint64(c), nil
}

func TestGetGlyphInfoUsesConfiguredMintedCounter(t *testing.T) {
	adapter := chain.NewMemAdapter()
	seedEtchBlock(t, adapter, 100, &glyphstone.Etch{Name: "BAR", Symbol: '$'})

	idx := &Indexer{Adapter: adapter, Minted: constMinted(7)}
	g, err := idx.GetGlyphInfo(context.Background(), glyph.ID{Block: 100, Tx: 0})
	if err != nil {
		t.Fatalf("GetGlyphInfo: %v", err)
	}
	if g.MintedCount != 7 {
		t.Fatalf("GetGlyphInfo MintedCount = %d, want 7", g.MintedCount)
	}
}

func TestGetGlyphBalanceResolvesTransferAttribution(t *testing.T) {
	adapter := chain.NewMemAdapter()
	transfer := &glyphstone.Transfer{BlockHeight: 100, TxIndex: 0, Amount: 42, OutputIndex: 1}
	payload, err := glyphstone.Encode(glyphstone.Directive{Transfer: transfer})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	commitment, err := script.BuildCommitment(payload)
	if err != nil {
		t.Fatalf("BuildCommitment: %v", err)
	}

	destScript := []byte{0x51}
	txid := "cafef00d"
	adapter.SeedTxAndBlock(0, txid, []chain.Output{
		{Txid: txid, Vout: 0, PkScript: commitment, AmountSat: 0},
		{Txid: txid, Vout: 1, PkScript: destScript, AmountSat: 546},
	})
	adapter.SeedUTXO(chain.UTXO{Txid: txid, Vout: 1, PkScript: destScript, AmountSat: 546})

	idx := &Indexer{Adapter: adapter}
	id := glyph.ID{Block: 100, Tx: 0}
	balance, err := idx.GetGlyphBalance(context.Background(), glyph.Outpoint{Txid: txid, Vout: 1}, id)
	if err != nil {
		t.Fatalf("GetGlyphBalance: %v", err)
	}
	if balance != 42 {
		t.Fatalf("GetGlyphBalance = %d, want 42", balance)
	}
}

func TestGetGlyphBalanceRejectsUnknownOutput(t *testing.T) {
	adapter := chain.NewMemAdapter()
	idx := &Indexer{Adapter: adapter}
	_, err := idx.GetGlyphBalance(context.Background(), glyph.Outpoint{Txid: "unknown", Vout: 0}, glyph.ID{Block: 1, Tx: 0})
	if err == nil {
		t.Fatal("GetGlyphBalance: want error for unknown/unspendable output")
	}
}
