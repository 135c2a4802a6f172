package directive

import (
	"context"

	"github.com/rawblock/glyph-engine/pkg/glyph"
	"github.com/rawblock/glyph-engine/pkg/glyphstone"
)

// BurnAddress is the destination sentinel that routes a transfer's
// quantity to an empty OP_RETURN instead of a spendable output.
const BurnAddress = "OP_RETURN"

// dustSat is the minimal value given to a transfer's destination
// output — glyph quantity is protocol-level bookkeeping, not sats
// value, so the output only needs to clear the dust threshold to stay
// spendable.
const dustSat = 546

// TransferParams describes a requested transfer of existing glyph
// units, consuming the attribution on a specific prior output.
type TransferParams struct {
	GlyphID  glyph.ID
	Amount   uint64
	InputTxid string
	InputVout uint32

	DestinationAddress string // BurnAddress to burn
	ChangeAddress      string
	NostrPubKey        []byte
	InternalPubKey     []byte
	Live               bool
}

// Transfer validates the source output carries enough of the glyph,
// then submits a transfer transaction. The directive's OutputIndex is
// computed from the assembled output layout, not hardcoded (§9 open
// question 5): the destination (or burn) output is always the next
// one appended after the commitment output, so destinationIndexFor
// supplies its index before the glyphstone is encoded.
func (e *Engine) Transfer(ctx context.Context, p TransferParams) (*Result, error) {
	op := glyph.Outpoint{Txid: p.InputTxid, Vout: p.InputVout}
	balance, err := e.Balances.GetGlyphBalance(ctx, op, p.GlyphID)
	if err != nil {
		return nil, err
	}
	if balance < p.Amount {
		return nil, ErrInsufficientGlyphs
	}

	burn := p.DestinationAddress == BurnAddress

	transfer := &glyphstone.Transfer{
		BlockHeight: p.GlyphID.Block,
		TxIndex:     uint64(p.GlyphID.Tx),
		Amount:      p.Amount,
	}

	destSat := int64(dustSat)
	if burn {
		destSat = 0
	}

	bp := buildParams{
		Directive:       glyphstone.Directive{Transfer: transfer},
		DestinationAddr: destOrBurnPlaceholder(p.DestinationAddress, burn),
		DestinationSat:  destSat,
		Burn:            burn,
		ChangeAddr:      p.ChangeAddress,
		Live:            p.Live,
		NostrPubKey:     p.NostrPubKey,
		InternalPubKey:  p.InternalPubKey,
	}

	// The destination (or burn) output always immediately follows the
	// commitment output in constructAndBroadcast's layout, so the index
	// is known before the glyphstone is encoded — no post-hoc
	// correction of already-encoded wire bytes needed (§9 open question
	// 5).
	transfer.OutputIndex = uint64(destinationIndexFor(bp))

	result, destIndex, err := e.constructAndBroadcast(ctx, bp)
	if err != nil {
		return nil, err
	}
	if !burn {
		e.recordHolding(ctx, p.GlyphID, result, destIndex, p.Amount)
	}
	return result, nil
}

// destOrBurnPlaceholder keeps DestinationAddr non-empty so
// constructAndBroadcast always builds a destination/burn output slot,
// even though the burn path ignores the address string itself.
func destOrBurnPlaceholder(addr string, burn bool) string {
	if burn {
		return BurnAddress
	}
	return addr
}
