// Package glyphstone implements the binary codec for glyph directives:
// the varint container, the bijective name↔integer mapping, and the
// tagged etch/mint/transfer payload format.
package glyphstone

import "errors"

// Codec errors returned by Decode and DecodeVarint.
var (
	ErrTruncated      = errors.New("glyphstone: truncated varint")
	ErrOverflow       = errors.New("glyphstone: varint overflows 64 bits")
	ErrBadTag         = errors.New("glyphstone: unrecognized directive tag")
	ErrDuplicateField = errors.New("glyphstone: duplicate optional field")
	ErrEmpty          = errors.New("glyphstone: empty payload")
)

// ErrInvalidName and ErrInvalidSymbol are returned by Name validation and
// symbol checks respectively; kept here so callers needn't import two
// packages for the directive engine's error classification.
var (
	ErrInvalidName   = errors.New("glyphstone: invalid name")
	ErrInvalidSymbol = errors.New("glyphstone: invalid currency symbol")
)
