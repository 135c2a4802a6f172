package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/glyph-engine/internal/chain"
	"github.com/rawblock/glyph-engine/internal/db"
	"github.com/rawblock/glyph-engine/internal/directive"
	"github.com/rawblock/glyph-engine/internal/indexer"
	"github.com/rawblock/glyph-engine/internal/swap"
)

var errNoSwapStore = errors.New("api: no database configured for swap bookkeeping")

// APIHandler holds the engines and collaborators the glyph HTTP
// surface dispatches to. Any of the engine fields may be nil in a
// dry-run/no-wallet deployment; handlers report 503 rather than panic.
type APIHandler struct {
	directiveEngine *directive.Engine
	swapEngine      *swap.Engine
	indexer         *indexer.Indexer
	dbStore         *db.Store
	adapter         chain.ChainAdapter
	wsHub           *Hub
}

// SetupRouter wires the glyph protocol's HTTP surface: etch/mint/transfer
// directives, HTLC swap lifecycle, and read-only glyph lookups, plus the
// websocket event stream and CORS/auth/rate-limit middleware the
// teacher's dashboard relies on.
func SetupRouter(directiveEngine *directive.Engine, swapEngine *swap.Engine, idx *indexer.Indexer, dbStore *db.Store, adapter chain.ChainAdapter, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://rawblock.net,https://www.rawblock.net
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		directiveEngine: directiveEngine,
		swapEngine:      swapEngine,
		indexer:         idx,
		dbStore:         dbStore,
		adapter:         adapter,
		wsHub:           wsHub,
	}

	// ── Public endpoints (no auth) ─────────────────────────────
	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
		pub.GET("/glyphs", handler.handleListGlyphs)
		pub.GET("/glyph/:id", handler.handleGetGlyph)
		pub.GET("/glyph/:id/balance/:txid/:vout", handler.handleGetGlyphBalance)
	}

	// ── Protected endpoints (require bearer token if API_AUTH_TOKEN set) ──
	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	// Rate-limit protected endpoints to 30 req/min per IP (burst=5) —
	// every one of these composes a transaction against wallet UTXOs.
	auth.Use(NewRateLimiter(30, 5).Middleware())
	{
		auth.POST("/glyph/etch", handler.handleEtch)
		auth.POST("/glyph/mint", handler.handleMint)
		auth.POST("/glyph/transfer", handler.handleTransfer)

		swapGroup := auth.Group("/swap")
		{
			swapGroup.POST("/initiate", handler.handleInitiateSwap)
			swapGroup.POST("/participate", handler.handleParticipateSwap)
			swapGroup.POST("/claim", handler.handleClaimSwap)
			swapGroup.POST("/refund", handler.handleRefundSwap)
		}
	}

	// Serve static dashboard.
	r.Static("/dashboard", "./public")

	return r
}

func eventJSON(kind string, payload gin.H) []byte {
	payload["type"] = kind
	b, err := json.Marshal(payload)
	if err != nil {
		return []byte(`{"type":"` + kind + `"}`)
	}
	return b
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// decodeTaprootKeys decodes the optional nostr/internal pubkey pair
// used for §6's best-effort taproot destination wrapping. Either or
// both may be empty, in which case the directive engine falls back to
// a plain destination script.
func decodeTaprootKeys(nostrHex, internalHex string) ([]byte, []byte, error) {
	var nostr, internal []byte
	var err error
	if nostrHex != "" {
		nostr, err = hex.DecodeString(nostrHex)
		if err != nil {
			return nil, nil, err
		}
	}
	if internalHex != "" {
		internal, err = hex.DecodeString(internalHex)
		if err != nil {
			return nil, nil, err
		}
	}
	return nostr, internal, nil
}

func parseVout(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func atoiOr(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}
