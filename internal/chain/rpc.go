package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// RPCConfig configures a connection to a host-chain node.
type RPCConfig struct {
	Host   string
	User   string
	Pass   string
	Params *chaincfg.Params
}

// RPCAdapter implements ChainAdapter against a live btcd/Bitcoin Core
// RPC endpoint. Wallet handling (auto-create/load a watch-only legacy
// wallet, raw-request fallbacks for calls rpcclient's typed wrapper
// doesn't expose) follows the pattern the host node's own watcher client established.
type RPCAdapter struct {
	rpc       *rpcclient.Client
	walletRPC *rpcclient.Client
	cfg       RPCConfig
}

const watchWalletName = "glyph_watcher"

// NewRPCAdapter dials the node, verifies the connection, and ensures a
// watch-only wallet is loaded.
func NewRPCAdapter(cfg RPCConfig) (*RPCAdapter, error) {
	if cfg.Params == nil {
		cfg.Params = &chaincfg.MainNetParams
	}
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}

	log.Printf("chain: connecting to RPC at %s...", cfg.Host)
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, err
	}

	if _, err := client.GetBlockCount(); err != nil {
		client.Shutdown()
		return nil, err
	}

	a := &RPCAdapter{rpc: client, cfg: cfg}
	if err := a.initWallet(); err != nil {
		log.Printf("chain: warning: wallet init failed: %v (watch-only features may fail)", err)
	}
	return a, nil
}

func (a *RPCAdapter) Shutdown() { a.rpc.Shutdown() }

func (a *RPCAdapter) walletClient() *rpcclient.Client {
	if a.walletRPC != nil {
		return a.walletRPC
	}
	return a.rpc
}

func (a *RPCAdapter) initWallet() error {
	rawResp, err := a.rpc.RawRequest("listwallets", nil)
	if err != nil {
		return err
	}
	var wallets []string
	if err := json.Unmarshal(rawResp, &wallets); err != nil {
		return err
	}
	for _, w := range wallets {
		if w == watchWalletName || w == "" {
			return nil
		}
	}

	if _, err := a.rpc.LoadWallet(watchWalletName); err != nil {
		params := []interface{}{watchWalletName, true, false, "", false, false, true}
		rawParams := make([]json.RawMessage, len(params))
		for i, v := range params {
			rawParams[i], _ = json.Marshal(v)
		}
		if _, err := a.rpc.RawRequest("createwallet", rawParams); err != nil {
			return err
		}
	}

	walletConnCfg := &rpcclient.ConnConfig{
		Host:         a.cfg.Host + "/wallet/" + watchWalletName,
		User:         a.cfg.User,
		Pass:         a.cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
	walletClient, err := rpcclient.New(walletConnCfg, nil)
	if err != nil {
		return err
	}
	a.walletRPC = walletClient
	return nil
}

func (a *RPCAdapter) ListSpendable(ctx context.Context) ([]UTXO, error) {
	results, err := a.walletClient().ListUnspentMinMax(0, 9999999)
	if err != nil {
		return nil, err
	}
	out := make([]UTXO, len(results))
	for i, r := range results {
		pkScript, err := hex.DecodeString(r.ScriptPubKey)
		if err != nil {
			return nil, fmt.Errorf("chain: decode scriptPubKey for %s:%d: %w", r.TxID, r.Vout, err)
		}
		out[i] = UTXO{
			Txid:          r.TxID,
			Vout:          r.Vout,
			Address:       r.Address,
			PkScript:      pkScript,
			AmountSat:     toSatoshi(r.Amount),
			Confirmations: int64(r.Confirmations),
		}
	}
	return out, nil
}

func (a *RPCAdapter) GetBlock(ctx context.Context, height int64) (*Block, error) {
	hash, err := a.rpc.GetBlockHash(height)
	if err != nil {
		return nil, err
	}
	blk, err := a.rpc.GetBlockVerbose(hash)
	if err != nil {
		return nil, err
	}
	return &Block{
		Height: blk.Height,
		Hash:   blk.Hash,
		Time:   time.Unix(blk.Time, 0).UTC(),
		Txids:  blk.Tx,
	}, nil
}

func (a *RPCAdapter) GetTx(ctx context.Context, txid string) (*Transaction, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, err
	}
	raw, err := a.rpc.GetRawTransactionVerbose(hash)
	if err != nil {
		return nil, err
	}

	vin := make([]Outpoint, 0, len(raw.Vin))
	for _, in := range raw.Vin {
		if in.Txid == "" {
			continue // coinbase
		}
		vin = append(vin, Outpoint{Txid: in.Txid, Vout: in.Vout})
	}

	vout := make([]Output, len(raw.Vout))
	for i, out := range raw.Vout {
		pkScript, err := hex.DecodeString(out.ScriptPubKey.Hex)
		if err != nil {
			return nil, fmt.Errorf("chain: decode vout %d scriptPubKey: %w", i, err)
		}
		vout[i] = Output{
			Txid:      txid,
			Vout:      uint32(out.N),
			PkScript:  pkScript,
			AmountSat: toSatoshi(out.Value),
		}
	}

	var height uint32
	if raw.BlockHash != "" {
		if blkHash, err := chainhash.NewHashFromStr(raw.BlockHash); err == nil {
			if blk, err := a.rpc.GetBlockVerbose(blkHash); err == nil {
				height = uint32(blk.Height)
			}
		}
	}

	return &Transaction{
		Txid:          txid,
		BlockHeight:   height,
		Confirmations: raw.Confirmations,
		Vin:           vin,
		Vout:          vout,
	}, nil
}

func (a *RPCAdapter) GetTxOut(ctx context.Context, op Outpoint, includeMempool bool) (*Output, error) {
	hash, err := chainhash.NewHashFromStr(op.Txid)
	if err != nil {
		return nil, err
	}
	res, err := a.rpc.GetTxOut(hash, op.Vout, includeMempool)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &Output{Txid: op.Txid, Vout: op.Vout, Spent: true}, nil
	}
	pkScript, err := hex.DecodeString(res.ScriptPubKey.Hex)
	if err != nil {
		return nil, err
	}
	return &Output{
		Txid:      op.Txid,
		Vout:      op.Vout,
		PkScript:  pkScript,
		AmountSat: toSatoshi(res.Value),
	}, nil
}

func (a *RPCAdapter) GetNewAddress(ctx context.Context) (string, error) {
	addr, err := a.walletClient().GetNewAddress("")
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

func (a *RPCAdapter) GetAddressInfo(ctx context.Context, address string) (*AddressInfo, error) {
	param, err := json.Marshal(address)
	if err != nil {
		return nil, err
	}
	rawResp, err := a.walletClient().RawRequest("getaddressinfo", []json.RawMessage{param})
	if err != nil {
		return nil, err
	}
	var info struct {
		ScriptPubKey string `json:"scriptPubKey"`
		PubKey       string `json:"pubkey"`
		IsMine       bool   `json:"ismine"`
		IsWatchOnly  bool   `json:"iswatchonly"`
	}
	if err := json.Unmarshal(rawResp, &info); err != nil {
		return nil, err
	}
	pkScript, err := hex.DecodeString(info.ScriptPubKey)
	if err != nil {
		return nil, err
	}
	var pubKey []byte
	if info.PubKey != "" {
		pubKey, err = hex.DecodeString(info.PubKey)
		if err != nil {
			return nil, fmt.Errorf("chain: decode pubkey for %s: %w", address, err)
		}
	}
	return &AddressInfo{
		Address:     address,
		PkScript:    pkScript,
		PubKey:      pubKey,
		IsMine:      info.IsMine,
		IsWatchOnly: info.IsWatchOnly,
	}, nil
}

func (a *RPCAdapter) EstimateFeeRate(ctx context.Context, confTarget int64) (float64, error) {
	conservative := btcjson.EstimateModeConservative
	if res, err := a.rpc.EstimateSmartFee(confTarget, &conservative); err == nil && res.FeeRate != nil && isFinitePositive(*res.FeeRate) {
		return *res.FeeRate * 100_000, nil
	}
	economical := btcjson.EstimateModeEconomical
	if res, err := a.rpc.EstimateSmartFee(confTarget, &economical); err == nil && res.FeeRate != nil && isFinitePositive(*res.FeeRate) {
		return *res.FeeRate * 100_000, nil
	}

	rawResp, err := a.rpc.RawRequest("getmempoolinfo", nil)
	if err != nil {
		return 0, err
	}
	var mempool struct {
		MempoolMinFee float64 `json:"mempoolminfee"`
		MinRelayTxFee float64 `json:"minrelaytxfee"`
	}
	if err := json.Unmarshal(rawResp, &mempool); err != nil {
		return 0, err
	}
	floor := mempool.MempoolMinFee
	if mempool.MinRelayTxFee > floor {
		floor = mempool.MinRelayTxFee
	}
	if !isFinitePositive(floor) {
		return 1, nil // 1 sat/vB absolute floor
	}
	return floor * 100_000, nil
}

func (a *RPCAdapter) SignWithWallet(ctx context.Context, tx *UnsignedTx) (*SignedTx, error) {
	hexParam, err := json.Marshal(hex.EncodeToString(tx.SerializedTx))
	if err != nil {
		return nil, err
	}
	rawResp, err := a.walletClient().RawRequest("signrawtransactionwithwallet", []json.RawMessage{hexParam})
	if err != nil {
		return nil, err
	}
	var res struct {
		Hex      string `json:"hex"`
		Complete bool   `json:"complete"`
	}
	if err := json.Unmarshal(rawResp, &res); err != nil {
		return nil, err
	}
	signed, err := hex.DecodeString(res.Hex)
	if err != nil {
		return nil, err
	}
	return &SignedTx{SerializedTx: signed, Complete: res.Complete}, nil
}

func (a *RPCAdapter) Broadcast(ctx context.Context, tx *SignedTx) (string, error) {
	msgTx := wire.NewMsgTx(wire.TxVersion)
	if err := msgTx.Deserialize(bytes.NewReader(tx.SerializedTx)); err != nil {
		return "", fmt.Errorf("chain: deserialize signed tx: %w", err)
	}
	hash, err := a.rpc.SendRawTransaction(msgTx, false)
	if err != nil {
		if isAlreadyInMempool(err) {
			return msgTx.TxHash().String(), nil
		}
		return "", err
	}
	return hash.String(), nil
}

func (a *RPCAdapter) GetHeight(ctx context.Context) (uint32, error) {
	h, err := a.rpc.GetBlockCount()
	if err != nil {
		return 0, err
	}
	return uint32(h), nil
}

func isFinitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func isAlreadyInMempool(err error) bool {
	if err == nil {
		return false
	}
	rpcErr, ok := err.(*btcjson.RPCError)
	if !ok {
		return false
	}
	// -27 (RPC_VERIFY_ALREADY_IN_CHAIN) and the "already in the mempool"
	// reject reason both mean the broadcast is a harmless duplicate from
	// the caller's point of view (ChainAdapter's idempotent-broadcast
	// contract, internal/chain/adapter.go).
	return rpcErr.Code == btcjson.ErrRPCVerifyAlreadyInChain ||
		strings.Contains(strings.ToLower(rpcErr.Message), "already in")
}

func toSatoshi(btc float64) int64 {
	amt, err := btcutil.NewAmount(btc)
	if err != nil {
		return 0
	}
	return int64(amt)
}

