package glyphstone

// Directive tags, one ASCII byte each.
const (
	TagEtch     byte = 'E'
	TagMint     byte = 'M'
	TagTransfer byte = 'T'
)

// Optional Etch field tags, canonical encoding order.
const (
	optMintCap     byte = 'C'
	optMintAmount  byte = 'A'
	optStartHeight byte = 'S'
	optEndHeight   byte = 'H'
	optStartOffset byte = 'O'
	optEndOffset   byte = 'F'
)

// optionalTagOrder lists the recognised optional tags in the order
// Encode emits them. Decode accepts any order but rejects duplicates.
var optionalTagOrder = []byte{optMintCap, optMintAmount, optStartHeight, optEndHeight, optStartOffset, optEndOffset}

// Etch is the directive introducing a new glyph.
type Etch struct {
	Name         string
	Divisibility uint8
	Symbol       rune // narrowed to one byte on the wire (§9 open question 2)

	Premine uint64

	MintCap     *uint64
	MintAmount  *uint64
	StartHeight *uint64
	EndHeight   *uint64
	StartOffset *uint64
	EndOffset   *uint64
}

// Mint is the directive issuing additional units of an existing glyph.
type Mint struct {
	BlockHeight uint64
	TxIndex     uint64
	Amount      uint64
}

// Transfer is the directive re-attributing glyph units to an output of
// the carrying transaction.
type Transfer struct {
	BlockHeight uint64
	TxIndex     uint64
	Amount      uint64
	OutputIndex uint64
}

// Directive is the sum type decoded from, and encoded to, a glyphstone.
// Exactly one field is non-nil.
type Directive struct {
	Etch     *Etch
	Mint     *Mint
	Transfer *Transfer
}

// NameInt returns the bijective integer image of e.Name. Callers must
// have validated e.Name already (see ValidateName).
func (e *Etch) NameInt() uint64 {
	return NameToInt(e.Name)
}

// Encode serializes d into its canonical glyphstone wire form.
func Encode(d Directive) ([]byte, error) {
	switch {
	case d.Etch != nil:
		return encodeEtch(d.Etch), nil
	case d.Mint != nil:
		return encodeMint(d.Mint), nil
	case d.Transfer != nil:
		return encodeTransfer(d.Transfer), nil
	default:
		return nil, ErrEmpty
	}
}

func encodeEtch(e *Etch) []byte {
	buf := make([]byte, 0, 16)
	buf = append(buf, TagEtch)
	buf = EncodeVarint(buf, e.NameInt())
	buf = EncodeVarint(buf, uint64(e.Divisibility))
	buf = append(buf, symbolByte(e.Symbol))
	buf = EncodeVarint(buf, e.Premine)

	appendOpt := func(tag byte, v *uint64) {
		if v == nil {
			return
		}
		buf = append(buf, tag)
		buf = EncodeVarint(buf, *v)
	}
	appendOpt(optMintCap, e.MintCap)
	appendOpt(optMintAmount, e.MintAmount)
	appendOpt(optStartHeight, e.StartHeight)
	appendOpt(optEndHeight, e.EndHeight)
	appendOpt(optStartOffset, e.StartOffset)
	appendOpt(optEndOffset, e.EndOffset)
	return buf
}

func encodeMint(m *Mint) []byte {
	buf := make([]byte, 0, 8)
	buf = append(buf, TagMint)
	buf = EncodeVarint(buf, m.BlockHeight)
	buf = EncodeVarint(buf, m.TxIndex)
	buf = EncodeVarint(buf, m.Amount)
	return buf
}

func encodeTransfer(t *Transfer) []byte {
	buf := make([]byte, 0, 10)
	buf = append(buf, TagTransfer)
	buf = EncodeVarint(buf, t.BlockHeight)
	buf = EncodeVarint(buf, t.TxIndex)
	buf = EncodeVarint(buf, t.Amount)
	buf = EncodeVarint(buf, t.OutputIndex)
	return buf
}

// symbolByte narrows a currency symbol to a single byte, per the core's
// one-byte symbol representation (§9 open question 2). Code points
// beyond a byte are truncated to their low 8 bits; widening to a
// length-prefixed UTF-8 encoding is left to implementers per spec.
func symbolByte(r rune) byte {
	return byte(r)
}

// Decode parses a glyphstone payload into a Directive. A duplicate
// optional Etch field is ErrDuplicateField; an unrecognised tag byte is
// ErrBadTag. An unknown optional-field tag ends the optional block
// without error, per the wire grammar, and any trailing bytes are
// ignored.
func Decode(payload []byte) (Directive, error) {
	if len(payload) == 0 {
		return Directive{}, ErrEmpty
	}
	switch payload[0] {
	case TagEtch:
		e, err := decodeEtch(payload[1:])
		if err != nil {
			return Directive{}, err
		}
		return Directive{Etch: e}, nil
	case TagMint:
		m, err := decodeMint(payload[1:])
		if err != nil {
			return Directive{}, err
		}
		return Directive{Mint: m}, nil
	case TagTransfer:
		t, err := decodeTransfer(payload[1:])
		if err != nil {
			return Directive{}, err
		}
		return Directive{Transfer: t}, nil
	default:
		return Directive{}, ErrBadTag
	}
}

func decodeEtch(buf []byte) (*Etch, error) {
	nameInt, n, err := DecodeVarint(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[n:]

	divisibility, n, err := DecodeVarint(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[n:]

	if len(buf) < 1 {
		return nil, ErrTruncated
	}
	symbol := rune(buf[0])
	buf = buf[1:]

	premine, n, err := DecodeVarint(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[n:]

	e := &Etch{
		Name:         IntToName(nameInt),
		Divisibility: uint8(divisibility),
		Symbol:       symbol,
		Premine:      premine,
	}

	seen := make(map[byte]bool, len(optionalTagOrder))
	for len(buf) > 0 {
		tag := buf[0]
		dst := etchOptionalSlot(e, tag)
		if dst == nil {
			// Unknown tag: terminate the optional block, ignore the rest.
			break
		}
		if seen[tag] {
			return nil, ErrDuplicateField
		}
		seen[tag] = true

		v, n, err := DecodeVarint(buf[1:])
		if err != nil {
			return nil, err
		}
		*dst = &v
		buf = buf[1+n:]
	}

	return e, nil
}

// etchOptionalSlot returns a pointer to the *uint64 field on e matching
// tag, or nil if tag is not a recognised optional tag.
func etchOptionalSlot(e *Etch, tag byte) **uint64 {
	switch tag {
	case optMintCap:
		return &e.MintCap
	case optMintAmount:
		return &e.MintAmount
	case optStartHeight:
		return &e.StartHeight
	case optEndHeight:
		return &e.EndHeight
	case optStartOffset:
		return &e.StartOffset
	case optEndOffset:
		return &e.EndOffset
	default:
		return nil
	}
}

func decodeMint(buf []byte) (*Mint, error) {
	blockHeight, n, err := DecodeVarint(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[n:]

	txIndex, n, err := DecodeVarint(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[n:]

	amount, _, err := DecodeVarint(buf)
	if err != nil {
		return nil, err
	}

	return &Mint{BlockHeight: blockHeight, TxIndex: txIndex, Amount: amount}, nil
}

func decodeTransfer(buf []byte) (*Transfer, error) {
	blockHeight, n, err := DecodeVarint(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[n:]

	txIndex, n, err := DecodeVarint(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[n:]

	amount, n, err := DecodeVarint(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[n:]

	outputIndex, _, err := DecodeVarint(buf)
	if err != nil {
		return nil, err
	}

	return &Transfer{BlockHeight: blockHeight, TxIndex: txIndex, Amount: amount, OutputIndex: outputIndex}, nil
}
