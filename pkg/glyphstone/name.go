package glyphstone

import "strings"

// alphabetSize is the number of letters in the bijective base-26 digit
// set used to encode glyph names (A=1..Z=26).
const alphabetSize = 26

// maxNameLetters caps a name at one full bijective-base-26 "pass" —
// 26 letters is the longest name this core round-trips without the
// integer image overflowing a reasonable display width.
const maxNameLetters = 26

// ValidateName checks that name is non-empty, at most 26 letters
// (ignoring '•' separators), built only from uppercase ASCII letters and
// '•', with '•' never leading, trailing, or doubled, and containing at
// least one letter.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	runes := []rune(name)
	if runes[0] == '•' || runes[len(runes)-1] == '•' {
		return ErrInvalidName
	}
	letters := 0
	prevDot := false
	for _, r := range runes {
		switch {
		case r == '•':
			if prevDot {
				return ErrInvalidName
			}
			prevDot = true
		case r >= 'A' && r <= 'Z':
			letters++
			prevDot = false
		default:
			return ErrInvalidName
		}
	}
	if letters == 0 || letters > maxNameLetters {
		return ErrInvalidName
	}
	return nil
}

// stripPunctuation removes '•' separators, leaving the letters-only
// projection used for the integer mapping.
func stripPunctuation(name string) string {
	if !strings.ContainsRune(name, '•') {
		return name
	}
	return strings.ReplaceAll(name, "•", "")
}

// NameToInt maps the letters-only projection of name to its bijective
// base-26 integer image (A=1, Z=26, AA=27, ...). Callers must validate
// name first; NameToInt does not re-validate.
func NameToInt(name string) uint64 {
	letters := stripPunctuation(name)
	var n uint64
	for _, r := range letters {
		n = n*alphabetSize + uint64(r-'A'+1)
	}
	return n
}

// IntToName is the inverse of NameToInt for n >= 1: it produces the
// unpunctuated letters-only name whose bijective base-26 image is n.
// IntToName(0) returns the empty string, which is never a valid name.
func IntToName(n uint64) string {
	if n == 0 {
		return ""
	}
	var letters []byte
	for n > 0 {
		n--
		letters = append(letters, byte('A'+n%alphabetSize))
		n /= alphabetSize
	}
	// letters were produced least-significant-first; reverse.
	for i, j := 0, len(letters)-1; i < j; i, j = i+1, j-1 {
		letters[i], letters[j] = letters[j], letters[i]
	}
	return string(letters)
}
