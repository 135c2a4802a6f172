package directive

import (
	"context"

	"github.com/rawblock/glyph-engine/pkg/glyphstone"
)

// EtchParams describes a new glyph to etch.
type EtchParams struct {
	Name        string
	Divisibility uint8
	Symbol      rune
	Premine     uint64

	MintCap     *uint64
	MintAmount  *uint64
	StartHeight *uint64
	EndHeight   *uint64
	StartOffset *uint64
	EndOffset   *uint64

	DestinationAddress string
	ChangeAddress      string
	NostrPubKey        []byte
	InternalPubKey     []byte
	Live               bool
}

// Etch validates the requested glyph, builds its glyphstone, and
// submits the etch transaction. A destination output carrying
// premine×10^divisibility sats is only added when Premine > 0.
func (e *Engine) Etch(ctx context.Context, p EtchParams) (*Result, error) {
	if err := glyphstone.ValidateName(p.Name); err != nil {
		return nil, err
	}
	if err := glyphstone.ValidateSymbol(p.Symbol); err != nil {
		return nil, err
	}

	etch := &glyphstone.Etch{
		Name:         p.Name,
		Divisibility: p.Divisibility,
		Symbol:       p.Symbol,
		Premine:      p.Premine,
		MintCap:      p.MintCap,
		MintAmount:   p.MintAmount,
		StartHeight:  p.StartHeight,
		EndHeight:    p.EndHeight,
		StartOffset:  p.StartOffset,
		EndOffset:    p.EndOffset,
	}

	bp := buildParams{
		Directive:      glyphstone.Directive{Etch: etch},
		ChangeAddr:     p.ChangeAddress,
		Live:           p.Live,
		NostrPubKey:    p.NostrPubKey,
		InternalPubKey: p.InternalPubKey,
	}
	if p.Premine > 0 {
		bp.DestinationAddr = p.DestinationAddress
		bp.DestinationSat = int64(p.Premine) * pow10(p.Divisibility)
	}

	result, destIndex, err := e.constructAndBroadcast(ctx, bp)
	if err != nil {
		return nil, err
	}
	e.recordEtch(ctx, etch, result, destIndex, p.Premine)
	return result, nil
}

func pow10(exp uint8) int64 {
	v := int64(1)
	for i := uint8(0); i < exp; i++ {
		v *= 10
	}
	return v
}
