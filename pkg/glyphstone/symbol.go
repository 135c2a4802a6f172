package glyphstone

import "unicode"

// ValidateSymbol enforces that a currency symbol's Unicode general
// category is neither Letter nor Number, as required by §3 of the
// glyph data model.
func ValidateSymbol(r rune) error {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return ErrInvalidSymbol
	}
	return nil
}
