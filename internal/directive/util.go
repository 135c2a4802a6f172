package directive

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func newHashFromTxid(txid string) (*chainhash.Hash, error) {
	return chainhash.NewHashFromStr(txid)
}

func serializeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func btcecParsePubKey(b []byte) (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(b)
}
