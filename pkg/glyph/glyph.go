// Package glyph holds the glyph data model: glyph identity, the mint-open
// predicate, and the UTXO-attributed holding record described in §3 of
// the protocol design.
package glyph

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidGlyphID is returned by ParseGlyphID for malformed input.
var ErrInvalidGlyphID = errors.New("glyph: invalid glyph id")

// ID identifies a glyph by the block height and in-block transaction
// index of its etch transaction. It is immutable once etched.
type ID struct {
	Block uint64
	Tx    uint32
}

// String renders the canonical "BLOCK:TX" form.
func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Block, id.Tx)
}

// ParseGlyphID parses the canonical "BLOCK:TX" form. It is total on
// syntactically valid inputs and rejects everything else.
func ParseGlyphID(s string) (ID, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return ID{}, ErrInvalidGlyphID
	}
	block, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return ID{}, ErrInvalidGlyphID
	}
	tx, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return ID{}, ErrInvalidGlyphID
	}
	return ID{Block: block, Tx: uint32(tx)}, nil
}

// Glyph is a fungible token class, etched once and read from its etch
// transaction's glyphstone thereafter.
type Glyph struct {
	ID ID

	Name           string
	NameInt        uint64
	Divisibility   uint8
	CurrencySymbol rune

	Premine uint64

	MintCap     *uint64
	MintAmount  *uint64
	StartHeight *uint64
	EndHeight   *uint64
	StartOffset *uint64
	EndOffset   *uint64

	EtchHeight uint64

	// MintedCount is supplied by an external indexer (§9 open question
	// 6); this core never derives it by itself.
	MintedCount uint64
}

// ResolvedStart returns the effective mint-open lower bound: StartHeight
// if set, else EtchHeight+StartOffset if set, else 0.
func (g *Glyph) ResolvedStart() uint64 {
	if g.StartHeight != nil {
		return *g.StartHeight
	}
	if g.StartOffset != nil {
		return g.EtchHeight + *g.StartOffset
	}
	return 0
}

// ResolvedEnd returns the effective mint-open upper bound (exclusive):
// EndHeight if set, else EtchHeight+EndOffset if set, else +∞
// (represented as math.MaxUint64).
func (g *Glyph) ResolvedEnd() uint64 {
	if g.EndHeight != nil {
		return *g.EndHeight
	}
	if g.EndOffset != nil {
		return g.EtchHeight + *g.EndOffset
	}
	return math.MaxUint64
}

// MintOpen reports whether a mint directive is valid at height h, given
// the glyph's mint cap (if any) and the minted count supplied by the
// caller's indexer. The predicate is monotone in mintedCount — it only
// becomes false as mintedCount grows — and piecewise constant between
// the resolved height boundaries.
func (g *Glyph) MintOpen(h uint64, mintedCount uint64) bool {
	if g.MintCap != nil && mintedCount >= *g.MintCap {
		return false
	}
	return g.ResolvedStart() <= h && h < g.ResolvedEnd()
}

// Outpoint identifies a single host-chain transaction output.
type Outpoint struct {
	Txid string
	Vout uint32
}

// String renders "txid:vout".
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.Txid, o.Vout)
}

// Holding is a UTXO's glyph attribution: the quantities of each glyph
// currently owned by whoever can spend Outpoint. This core assumes at
// most one glyph attribution per output (§4.H), so Balances in practice
// holds a single entry, but the map shape is kept open for a fuller
// indexer that relaxes that assumption.
type Holding struct {
	Outpoint Outpoint
	Balances map[ID]uint64
}
