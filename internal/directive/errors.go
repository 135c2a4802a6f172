// Package directive composes etch/mint/transfer transactions against a
// chain.ChainAdapter: it enforces the mint-window and amount rules,
// assembles inputs and outputs, computes the fee, and applies the
// cenotaph gate to malformed commitments.
package directive

import "errors"

var (
	ErrMintClosed        = errors.New("directive: mint is closed at current height")
	ErrInvalidMintAmount = errors.New("directive: amount does not match the glyph's fixed mint_amount")
	ErrInsufficientFunds = errors.New("directive: no spendable UTXO meets the seed target")
	ErrInsufficientGlyphs = errors.New("directive: requested amount exceeds the glyph balance on the referenced output")
	ErrGlyphNotFound     = errors.New("directive: glyph not found")
)
