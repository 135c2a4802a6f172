package directive

import (
	"context"

	"github.com/rawblock/glyph-engine/pkg/glyph"
	"github.com/rawblock/glyph-engine/pkg/glyphstone"
)

// MintParams describes a requested mint of an existing glyph.
type MintParams struct {
	GlyphID glyph.ID
	Amount  uint64

	DestinationAddress string
	ChangeAddress      string
	NostrPubKey        []byte
	InternalPubKey     []byte
	Live               bool
}

// Mint resolves the target glyph, enforces the mint-window and
// fixed-amount rules, and submits the mint transaction.
func (e *Engine) Mint(ctx context.Context, p MintParams) (*Result, error) {
	g, err := e.Resolver.GetGlyphInfo(ctx, p.GlyphID)
	if err != nil {
		return nil, err
	}

	height, err := e.Adapter.GetHeight(ctx)
	if err != nil {
		return nil, err
	}
	mintedCount, err := e.mintedCount(ctx, p.GlyphID)
	if err != nil {
		return nil, err
	}
	if !g.MintOpen(uint64(height), mintedCount) {
		return nil, ErrMintClosed
	}
	if g.MintAmount != nil && p.Amount != *g.MintAmount {
		return nil, ErrInvalidMintAmount
	}

	mint := &glyphstone.Mint{
		BlockHeight: p.GlyphID.Block,
		TxIndex:     uint64(p.GlyphID.Tx),
		Amount:      p.Amount,
	}

	bp := buildParams{
		Directive:          glyphstone.Directive{Mint: mint},
		DestinationAddr:    p.DestinationAddress,
		DestinationSat:     int64(p.Amount) * pow10(g.Divisibility),
		ChangeAddr:         p.ChangeAddress,
		Live:               p.Live,
		NostrPubKey:        p.NostrPubKey,
		InternalPubKey:     p.InternalPubKey,
	}

	result, destIndex, err := e.constructAndBroadcast(ctx, bp)
	if err != nil {
		return nil, err
	}
	e.recordHolding(ctx, p.GlyphID, result, destIndex, p.Amount)
	return result, nil
}
