// Package db persists etched glyphs, mint counts, glyph holdings, and
// HTLC swap session bookkeeping so the directive/swap/indexer engines'
// stated external-persistence gaps (§9 open question 6; §7 swap
// session bookkeeping) have a concrete supplier. None of this is
// consulted by the core protocol logic itself — every directive/swap
// operation remains correct against a bare chain adapter with no store
// configured (with no store wired in, the engines report MintedCount as
// 0, per the core's documented limitation).
package db

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/glyph-engine/pkg/glyph"
)

// Store wraps a pgx connection pool with the glyph-domain persistence
// operations the directive, swap, and indexer engines' optional
// collaborators need.
type Store struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}
	log.Println("db: connected to PostgreSQL for glyph persistence")
	return &Store{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes schema.sql.
func (s *Store) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/db/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %v", err)
	}
	if _, err := s.pool.Exec(context.Background(), string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}
	log.Println("db: glyph schema initialized")
	return nil
}

// RecordGlyph persists a newly etched glyph's canonical attributes.
// Implements directive.Recorder.
func (s *Store) RecordGlyph(ctx context.Context, g *glyph.Glyph) error {
	sql := `
		INSERT INTO glyphs (glyph_id, etch_height, name, name_int,
			divisibility, currency_symbol, premine, mint_cap, mint_amount,
			start_height, end_height, start_offset, end_offset)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (glyph_id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, sql,
		g.ID.String(), g.EtchHeight, g.Name, g.NameInt,
		g.Divisibility, int32(g.CurrencySymbol), g.Premine,
		nullableU64(g.MintCap), nullableU64(g.MintAmount),
		nullableU64(g.StartHeight), nullableU64(g.EndHeight),
		nullableU64(g.StartOffset), nullableU64(g.EndOffset),
	)
	if err != nil {
		return fmt.Errorf("db: record glyph %s: %w", g.ID, err)
	}
	return nil
}

// RecordHolding upserts a UTXO's glyph attribution. Implements
// directive.Recorder.
func (s *Store) RecordHolding(ctx context.Context, h *glyph.Holding) error {
	for id, amount := range h.Balances {
		sql := `
			INSERT INTO glyph_holdings (txid, vout, glyph_id, amount)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (txid, vout, glyph_id) DO UPDATE
			SET amount = EXCLUDED.amount, updated_at = NOW()
		`
		if _, err := s.pool.Exec(ctx, sql, h.Outpoint.Txid, h.Outpoint.Vout, id.String(), amount); err != nil {
			return fmt.Errorf("db: record holding %s: %w", h.Outpoint, err)
		}
	}
	return nil
}

// RecordMint appends a mint event, giving MintedCount something to
// count. Called by the API layer after a successful directive.Mint.
func (s *Store) RecordMint(ctx context.Context, id glyph.ID, mintTxid string, amount uint64, blockHeight uint64) error {
	sql := `
		INSERT INTO glyph_mints (glyph_id, mint_txid, amount, block_height)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (glyph_id, mint_txid) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, sql, id.String(), mintTxid, amount, blockHeight)
	return err
}

// MintedCount implements directive.MintedCounter: the count of distinct
// mint transactions recorded for id so far.
func (s *Store) MintedCount(ctx context.Context, id glyph.ID) (uint64, error) {
	var count uint64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM glyph_mints WHERE glyph_id = $1`, id.String(),
	).Scan(&count)
	return count, err
}

// GlyphSummary is a row in the paginated glyph listing surface (§7
// supplemented feature, mirroring the teacher's GetMixers pagination).
type GlyphSummary struct {
	GlyphID      string `json:"glyphId"`
	Name         string `json:"name"`
	Divisibility int16  `json:"divisibility"`
	Premine      int64  `json:"premine"`
	EtchHeight   int64  `json:"etchHeight"`
}

// ListGlyphs returns a page of known etched glyphs, newest-etched first.
func (s *Store) ListGlyphs(ctx context.Context, page, limit int) ([]GlyphSummary, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM glyphs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT glyph_id, name, divisibility, premine, etch_height
		FROM glyphs
		ORDER BY etch_height DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var glyphs []GlyphSummary
	for rows.Next() {
		var g GlyphSummary
		if err := rows.Scan(&g.GlyphID, &g.Name, &g.Divisibility, &g.Premine, &g.EtchHeight); err != nil {
			return nil, 0, err
		}
		glyphs = append(glyphs, g)
	}
	if glyphs == nil {
		glyphs = []GlyphSummary{}
	}
	return glyphs, total, nil
}

// SwapSession is a row of the local HTLC bookkeeping cache (§7):
// populated by the API layer at initiate/participate time and read back
// by claim/refund handlers so callers don't have to re-supply the
// redeem script parameters out-of-band each time. The swap.Engine
// itself never reads this table.
type SwapSession struct {
	SwapID         uuid.UUID
	GlyphID        string
	HTLCTxid       string
	Amount         uint64
	RedeemScript   []byte
	SecretHash     []byte
	ReceiverPubKey []byte
	SenderPubKey   []byte
	Timelock       int64
	Status         string
}

// SaveSwapSession inserts or updates a swap's bookkeeping row, keyed by
// a fresh uuid.New() SwapID the caller mints once at initiation.
func (s *Store) SaveSwapSession(ctx context.Context, sess SwapSession) error {
	sql := `
		INSERT INTO htlc_swaps (swap_id, glyph_id, htlc_txid, amount, redeem_script, secret_hash,
			receiver_pubkey, sender_pubkey, timelock, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (swap_id) DO UPDATE SET
			htlc_txid = EXCLUDED.htlc_txid,
			status = EXCLUDED.status,
			updated_at = NOW()
	`
	_, err := s.pool.Exec(ctx, sql, sess.SwapID, sess.GlyphID, sess.HTLCTxid, sess.Amount,
		hex.EncodeToString(sess.RedeemScript), hex.EncodeToString(sess.SecretHash),
		hex.EncodeToString(sess.ReceiverPubKey), hex.EncodeToString(sess.SenderPubKey),
		sess.Timelock, sess.Status)
	return err
}

// GetSwapSession looks up a previously stored swap by its HTLC txid, so
// claim_glyph/refund_glyph callers can recover the redeem-script
// parameters instead of resupplying them.
func (s *Store) GetSwapSession(ctx context.Context, htlcTxid string) (*SwapSession, error) {
	var sess SwapSession
	var redeemScript, secretHash, receiverPubKey, senderPubKey string
	err := s.pool.QueryRow(ctx, `
		SELECT swap_id, glyph_id, htlc_txid, amount, redeem_script, secret_hash, receiver_pubkey, sender_pubkey, timelock, status
		FROM htlc_swaps WHERE htlc_txid = $1
	`, htlcTxid).Scan(&sess.SwapID, &sess.GlyphID, &sess.HTLCTxid, &sess.Amount,
		&redeemScript, &secretHash, &receiverPubKey, &senderPubKey, &sess.Timelock, &sess.Status)
	if err != nil {
		return nil, err
	}
	sess.RedeemScript, _ = hex.DecodeString(redeemScript)
	sess.SecretHash, _ = hex.DecodeString(secretHash)
	sess.ReceiverPubKey, _ = hex.DecodeString(receiverPubKey)
	sess.SenderPubKey, _ = hex.DecodeString(senderPubKey)
	return &sess, nil
}

func nullableU64(v *uint64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
