package glyph

import "testing"

func TestParseGlyphIDRoundTrip(t *testing.T) {
	id := ID{Block: 850000, Tx: 12}
	got, err := ParseGlyphID(id.String())
	if err != nil {
		t.Fatalf("ParseGlyphID: %v", err)
	}
	if got != id {
		t.Fatalf("ParseGlyphID(%q) = %+v, want %+v", id.String(), got, id)
	}
}

func TestParseGlyphIDRejectsMalformed(t *testing.T) {
	bad := []string{"", "850000", "850000:", ":12", "abc:12", "850000:abc", "850000:12:extra"}
	for _, s := range bad {
		if _, err := ParseGlyphID(s); err == nil {
			t.Errorf("ParseGlyphID(%q) = nil error, want error", s)
		}
	}
}

func u64(v uint64) *uint64 { return &v }

func TestMintOpenBoundaries(t *testing.T) {
	// Mint at exactly start_height is open; at end_height is closed.
	g := &Glyph{EtchHeight: 100, StartHeight: u64(200), EndHeight: u64(300)}

	if !g.MintOpen(200, 0) {
		t.Error("MintOpen(200) = false, want true (start is inclusive)")
	}
	if g.MintOpen(300, 0) {
		t.Error("MintOpen(300) = true, want false (end is exclusive)")
	}
	if g.MintOpen(199, 0) {
		t.Error("MintOpen(199) = true, want false (before window)")
	}
}

func TestMintOpenOffsetsResolveAgainstEtchHeight(t *testing.T) {
	g := &Glyph{EtchHeight: 1000, StartOffset: u64(10), EndOffset: u64(20)}
	if g.MintOpen(1009, 0) {
		t.Error("MintOpen(1009) = true, want false (before resolved start 1010)")
	}
	if !g.MintOpen(1010, 0) {
		t.Error("MintOpen(1010) = false, want true")
	}
	if g.MintOpen(1020, 0) {
		t.Error("MintOpen(1020) = true, want false (resolved end is exclusive)")
	}
}

func TestMintOpenUnboundedWithoutHeights(t *testing.T) {
	g := &Glyph{EtchHeight: 5}
	if !g.MintOpen(0, 0) || !g.MintOpen(1<<40, 0) {
		t.Error("MintOpen with no bounds should be open at height 0 and far in the future")
	}
}

func TestMintOpenCap(t *testing.T) {
	// End-to-end scenario 4: mint_cap=10, minted_count=10 -> closed.
	g := &Glyph{EtchHeight: 0, MintCap: u64(10)}
	if g.MintOpen(0, 10) {
		t.Error("MintOpen at cap should be false")
	}
	if !g.MintOpen(0, 9) {
		t.Error("MintOpen below cap should be true")
	}
}

func TestMintOpenMonotoneInMintedCount(t *testing.T) {
	g := &Glyph{EtchHeight: 0, MintCap: u64(5)}
	wasOpen := true
	for count := uint64(0); count <= 10; count++ {
		open := g.MintOpen(0, count)
		if open && !wasOpen {
			t.Fatalf("MintOpen became true again at count=%d after being false; not monotone", count)
		}
		wasOpen = open
	}
}
