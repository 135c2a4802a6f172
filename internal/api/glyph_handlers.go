package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/glyph-engine/internal/db"
	"github.com/rawblock/glyph-engine/internal/directive"
	"github.com/rawblock/glyph-engine/internal/swap"
	"github.com/rawblock/glyph-engine/pkg/glyph"
)

// etchRequest mirrors the CLI's `issue` subcommand flags (§6), since
// this HTTP surface is the project's substitute front door for the
// spec's explicitly out-of-scope CLI argument parsing.
type etchRequest struct {
	Name               string  `json:"name" binding:"required"`
	Divisibility       uint8   `json:"divisibility"`
	Symbol             string  `json:"symbol" binding:"required"`
	Premine            uint64  `json:"premine"`
	MintCap            *uint64 `json:"mintCap"`
	MintAmount         *uint64 `json:"mintAmount"`
	StartHeight        *uint64 `json:"startHeight"`
	EndHeight          *uint64 `json:"endHeight"`
	StartOffset        *uint64 `json:"startOffset"`
	EndOffset          *uint64 `json:"endOffset"`
	DestinationAddress string  `json:"destinationAddress"`
	ChangeAddress      string  `json:"changeAddress"`
	NostrPubKeyHex     string  `json:"nostrPubKey"`
	InternalPubKeyHex  string  `json:"internalPubKey"`
	Live               bool    `json:"live"`
}

func (h *APIHandler) handleEtch(c *gin.Context) {
	var req etchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.directiveEngine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "directive engine not configured"})
		return
	}
	symbolRunes := []rune(req.Symbol)
	if len(symbolRunes) != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol must be exactly one code point"})
		return
	}

	nostr, internal, err := decodeTaprootKeys(req.NostrPubKeyHex, req.InternalPubKeyHex)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.directiveEngine.Etch(c.Request.Context(), directive.EtchParams{
		Name:               req.Name,
		Divisibility:       req.Divisibility,
		Symbol:             symbolRunes[0],
		Premine:            req.Premine,
		MintCap:            req.MintCap,
		MintAmount:         req.MintAmount,
		StartHeight:        req.StartHeight,
		EndHeight:          req.EndHeight,
		StartOffset:        req.StartOffset,
		EndOffset:          req.EndOffset,
		DestinationAddress: req.DestinationAddress,
		ChangeAddress:      req.ChangeAddress,
		NostrPubKey:        nostr,
		InternalPubKey:     internal,
		Live:               req.Live,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.wsHub.Broadcast(eventJSON("etch", gin.H{"txid": result.Txid, "name": req.Name}))
	c.JSON(http.StatusOK, gin.H{"txid": result.Txid, "live": result.Live})
}

type mintRequest struct {
	GlyphID            string `json:"glyphId" binding:"required"`
	Amount             uint64 `json:"amount" binding:"required"`
	DestinationAddress string `json:"destinationAddress" binding:"required"`
	ChangeAddress      string `json:"changeAddress"`
	NostrPubKeyHex     string `json:"nostrPubKey"`
	InternalPubKeyHex  string `json:"internalPubKey"`
	Live               bool   `json:"live"`
}

func (h *APIHandler) handleMint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.directiveEngine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "directive engine not configured"})
		return
	}
	id, err := glyph.ParseGlyphID(req.GlyphID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	nostr, internal, err := decodeTaprootKeys(req.NostrPubKeyHex, req.InternalPubKeyHex)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.directiveEngine.Mint(c.Request.Context(), directive.MintParams{
		GlyphID:            id,
		Amount:             req.Amount,
		DestinationAddress: req.DestinationAddress,
		ChangeAddress:      req.ChangeAddress,
		NostrPubKey:        nostr,
		InternalPubKey:     internal,
		Live:               req.Live,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.dbStore != nil && result.Live {
		height := uint64(0)
		if h.adapter != nil {
			if hgt, hErr := h.adapter.GetHeight(c.Request.Context()); hErr == nil {
				height = uint64(hgt)
			}
		}
		_ = h.dbStore.RecordMint(c.Request.Context(), id, result.Txid, req.Amount, height)
	}

	h.wsHub.Broadcast(eventJSON("mint", gin.H{"txid": result.Txid, "glyphId": req.GlyphID, "amount": req.Amount}))
	c.JSON(http.StatusOK, gin.H{"txid": result.Txid, "live": result.Live})
}

type transferRequest struct {
	GlyphID            string `json:"glyphId" binding:"required"`
	Amount             uint64 `json:"amount" binding:"required"`
	InputTxid          string `json:"inputTxid" binding:"required"`
	InputVout          uint32 `json:"inputVout"`
	DestinationAddress string `json:"destinationAddress" binding:"required"`
	ChangeAddress      string `json:"changeAddress"`
	NostrPubKeyHex     string `json:"nostrPubKey"`
	InternalPubKeyHex  string `json:"internalPubKey"`
	Live               bool   `json:"live"`
}

func (h *APIHandler) handleTransfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.directiveEngine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "directive engine not configured"})
		return
	}
	id, err := glyph.ParseGlyphID(req.GlyphID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	nostr, internal, err := decodeTaprootKeys(req.NostrPubKeyHex, req.InternalPubKeyHex)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.directiveEngine.Transfer(c.Request.Context(), directive.TransferParams{
		GlyphID:            id,
		Amount:             req.Amount,
		InputTxid:          req.InputTxid,
		InputVout:          req.InputVout,
		DestinationAddress: req.DestinationAddress,
		ChangeAddress:      req.ChangeAddress,
		NostrPubKey:        nostr,
		InternalPubKey:     internal,
		Live:               req.Live,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.wsHub.Broadcast(eventJSON("transfer", gin.H{"txid": result.Txid, "glyphId": req.GlyphID, "amount": req.Amount}))
	c.JSON(http.StatusOK, gin.H{"txid": result.Txid, "live": result.Live})
}

// handleGetGlyph resolves GET /api/v1/glyph/:id to the glyph's etched
// attributes via the indexer.
func (h *APIHandler) handleGetGlyph(c *gin.Context) {
	if h.indexer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "indexer not configured"})
		return
	}
	id, err := glyph.ParseGlyphID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, err := h.indexer.GetGlyphInfo(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, g)
}

// handleGetGlyphBalance resolves GET
// /api/v1/glyph/:id/balance/:txid/:vout to the quantity attributed to
// the given output (§4.H).
func (h *APIHandler) handleGetGlyphBalance(c *gin.Context) {
	if h.indexer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "indexer not configured"})
		return
	}
	id, err := glyph.ParseGlyphID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vout, err := parseVout(c.Param("vout"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	op := glyph.Outpoint{Txid: c.Param("txid"), Vout: vout}
	balance, err := h.indexer.GetGlyphBalance(c.Request.Context(), op, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"glyphId": id.String(), "outpoint": op.String(), "balance": balance})
}

// handleListGlyphs returns a page of known etched glyphs from the
// persistence layer, mirroring the teacher's GetMixers listing pattern.
func (h *APIHandler) handleListGlyphs(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not connected"})
		return
	}
	page := atoiOr(c.DefaultQuery("page", "1"), 1)
	limit := atoiOr(c.DefaultQuery("limit", "50"), 50)

	glyphs, total, err := h.dbStore.ListGlyphs(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": glyphs, "totalCount": total, "page": page, "limit": limit})
}

type initiateSwapRequest struct {
	GlyphID        string `json:"glyphId" binding:"required"`
	Amount         uint64 `json:"amount" binding:"required"`
	InputTxid      string `json:"inputTxid" binding:"required"`
	InputVout      uint32 `json:"inputVout"`
	SecretHex      string `json:"secret" binding:"required"`
	ReceiverPubKeyHex string `json:"receiverPubKey" binding:"required"`
	SenderAddress  string `json:"senderAddress" binding:"required"`
	Timelock       int64  `json:"timelock" binding:"required"`
	ChangeAddress  string `json:"changeAddress"`
	Live           bool   `json:"live"`
}

func (h *APIHandler) handleInitiateSwap(c *gin.Context) {
	var req initiateSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.swapEngine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "swap engine not configured"})
		return
	}
	id, err := glyph.ParseGlyphID(req.GlyphID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	secret, err := decodeHex(req.SecretHex)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid secret hex"})
		return
	}
	receiverPubKey, err := decodeHex(req.ReceiverPubKeyHex)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receiverPubKey hex"})
		return
	}

	sess, err := h.swapEngine.InitiateSwap(c.Request.Context(), swap.InitiateParams{
		GlyphID:        id,
		Amount:         req.Amount,
		InputTxid:      req.InputTxid,
		InputVout:      req.InputVout,
		Secret:         secret,
		ReceiverPubKey: receiverPubKey,
		SenderAddress:  req.SenderAddress,
		Timelock:       req.Timelock,
		ChangeAddress:  req.ChangeAddress,
		Live:           req.Live,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.saveSwapSession(c, id, sess, "initiated")
	h.wsHub.Broadcast(eventJSON("swap_initiated", gin.H{"txid": sess.Txid, "glyphId": req.GlyphID}))
	c.JSON(http.StatusOK, swapSessionResponse(sess))
}

type participateSwapRequest struct {
	GlyphID          string `json:"glyphId" binding:"required"`
	Amount           uint64 `json:"amount" binding:"required"`
	InputTxid        string `json:"inputTxid" binding:"required"`
	InputVout        uint32 `json:"inputVout"`
	SecretHashHex    string `json:"secretHash" binding:"required"`
	SenderPubKeyHex  string `json:"senderPubKey" binding:"required"`
	ReceiverAddress  string `json:"receiverAddress" binding:"required"`
	Timelock         int64  `json:"timelock" binding:"required"`
	ChangeAddress    string `json:"changeAddress"`
	Live             bool   `json:"live"`
}

func (h *APIHandler) handleParticipateSwap(c *gin.Context) {
	var req participateSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.swapEngine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "swap engine not configured"})
		return
	}
	id, err := glyph.ParseGlyphID(req.GlyphID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	secretHash, err := decodeHex(req.SecretHashHex)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid secretHash hex"})
		return
	}
	senderPubKey, err := decodeHex(req.SenderPubKeyHex)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid senderPubKey hex"})
		return
	}

	sess, err := h.swapEngine.ParticipateSwap(c.Request.Context(), swap.ParticipateParams{
		GlyphID:         id,
		Amount:          req.Amount,
		InputTxid:       req.InputTxid,
		InputVout:       req.InputVout,
		SecretHash:      secretHash,
		SenderPubKey:    senderPubKey,
		ReceiverAddress: req.ReceiverAddress,
		Timelock:        req.Timelock,
		ChangeAddress:   req.ChangeAddress,
		Live:            req.Live,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.saveSwapSession(c, id, sess, "participated")
	h.wsHub.Broadcast(eventJSON("swap_participated", gin.H{"txid": sess.Txid, "glyphId": req.GlyphID}))
	c.JSON(http.StatusOK, swapSessionResponse(sess))
}

type claimSwapRequest struct {
	HTLCTxid           string `json:"htlcTxid" binding:"required"`
	Secret             string `json:"secret" binding:"required"`
	DestinationAddress string `json:"destinationAddress" binding:"required"`
	Live               bool   `json:"live"`
}

func (h *APIHandler) handleClaimSwap(c *gin.Context) {
	var req claimSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.swapEngine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "swap engine not configured"})
		return
	}
	redeemScript, err := h.lookupRedeemScript(c, req.HTLCTxid)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	secret, err := decodeHex(req.Secret)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid secret hex"})
		return
	}

	txid, err := h.swapEngine.ClaimGlyph(c.Request.Context(), swap.ClaimParams{
		HTLCTxid:           req.HTLCTxid,
		RedeemScript:       redeemScript,
		Secret:             secret,
		DestinationAddress: req.DestinationAddress,
		Live:               req.Live,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.dbStore != nil {
		if sess, err := h.dbStore.GetSwapSession(c.Request.Context(), req.HTLCTxid); err == nil {
			sess.Status = "claimed"
			_ = h.dbStore.SaveSwapSession(c.Request.Context(), *sess)
		}
	}
	h.wsHub.Broadcast(eventJSON("swap_claimed", gin.H{"txid": txid, "htlcTxid": req.HTLCTxid}))
	c.JSON(http.StatusOK, gin.H{"txid": txid})
}

type refundSwapRequest struct {
	HTLCTxid           string `json:"htlcTxid" binding:"required"`
	DestinationAddress string `json:"destinationAddress" binding:"required"`
	Live               bool   `json:"live"`
}

func (h *APIHandler) handleRefundSwap(c *gin.Context) {
	var req refundSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.swapEngine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "swap engine not configured"})
		return
	}
	redeemScript, err := h.lookupRedeemScript(c, req.HTLCTxid)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	txid, err := h.swapEngine.RefundGlyph(c.Request.Context(), swap.RefundParams{
		HTLCTxid:           req.HTLCTxid,
		RedeemScript:       redeemScript,
		DestinationAddress: req.DestinationAddress,
		Live:               req.Live,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.dbStore != nil {
		if sess, err := h.dbStore.GetSwapSession(c.Request.Context(), req.HTLCTxid); err == nil {
			sess.Status = "refunded"
			_ = h.dbStore.SaveSwapSession(c.Request.Context(), *sess)
		}
	}
	h.wsHub.Broadcast(eventJSON("swap_refunded", gin.H{"txid": txid, "htlcTxid": req.HTLCTxid}))
	c.JSON(http.StatusOK, gin.H{"txid": txid})
}

// lookupRedeemScript recovers a swap's redeem script from the local
// bookkeeping cache by HTLC txid — the P2SH output on the wire carries
// only its HASH160, never the redeem script itself.
func (h *APIHandler) lookupRedeemScript(c *gin.Context, htlcTxid string) ([]byte, error) {
	if h.dbStore == nil {
		return nil, errNoSwapStore
	}
	sess, err := h.dbStore.GetSwapSession(c.Request.Context(), htlcTxid)
	if err != nil {
		return nil, err
	}
	return sess.RedeemScript, nil
}

func (h *APIHandler) saveSwapSession(c *gin.Context, id glyph.ID, sess *swap.Session, status string) {
	if h.dbStore == nil {
		return
	}
	_ = h.dbStore.SaveSwapSession(c.Request.Context(), db.SwapSession{
		SwapID:         uuid.New(),
		GlyphID:        id.String(),
		HTLCTxid:       sess.Txid,
		Amount:         sess.Amount,
		RedeemScript:   sess.RedeemScript,
		SecretHash:     sess.SecretHash,
		ReceiverPubKey: sess.ReceiverPubKey,
		SenderPubKey:   sess.SenderPubKey,
		Timelock:       sess.Timelock,
		Status:         status,
	})
}

func swapSessionResponse(s *swap.Session) gin.H {
	return gin.H{
		"txid":        s.Txid,
		"htlcAddress": s.HTLCAddress,
		"amount":      s.Amount,
		"timelock":    s.Timelock,
	}
}

// handleHealth returns engine status and capabilities for service
// discovery.
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "operational",
		"engine":      "Glyph Protocol Engine",
		"dbConnected": h.dbStore != nil,
		"chainReady":  h.adapter != nil,
	})
}
