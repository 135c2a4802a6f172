package script

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// WrapTaproot rewraps a destination into a P2TR output whose internal
// key is internalKey and whose script-path commits to a single leaf
// carrying secondaryPubKey (a "nostr key") pinned behind a simple
// OP_CHECKSIG leaf. This is best-effort decoration per §6 of the
// protocol design: its absence never changes glyph semantics, so any
// error here should be treated by the caller as "skip the wrapping",
// never as a directive failure.
func WrapTaproot(internalKey *btcec.PublicKey, secondaryPubKey []byte, params *chaincfg.Params) (*btcutil.AddressTaproot, error) {
	leafScript, err := txscript.NewScriptBuilder().
		AddData(secondaryPubKey).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return nil, err
	}

	leaf := txscript.NewBaseTapLeaf(leafScript)
	tree := txscript.AssembleTaprootScriptTree(leaf)
	rootHash := tree.RootNode.TapHash()

	outputKey := txscript.ComputeTaprootOutputKey(internalKey, rootHash[:])
	return btcutil.NewAddressTaproot(
		schnorrSerialize(outputKey), params,
	)
}

// schnorrSerialize returns the 32-byte x-only serialization of a
// taproot output key, as used by BIP340/341 addresses.
func schnorrSerialize(key *btcec.PublicKey) []byte {
	return btcec.NewPublicKey(key.X(), key.Y()).SerializeCompressed()[1:]
}
