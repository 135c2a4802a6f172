package main

import (
	"log"
	"os"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/rawblock/glyph-engine/internal/api"
	"github.com/rawblock/glyph-engine/internal/chain"
	"github.com/rawblock/glyph-engine/internal/db"
	"github.com/rawblock/glyph-engine/internal/directive"
	"github.com/rawblock/glyph-engine/internal/indexer"
	"github.com/rawblock/glyph-engine/internal/swap"
)

func main() {
	log.Println("Starting Glyph Protocol Engine...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values.
	// ────────────────────────────────────────────────────────────────────

	dbUrl := requireEnv("DATABASE_URL")

	dbConn, err := db.Connect(dbUrl)
	if err != nil {
		log.Printf("Warning: Failed to connect to PostgreSQL, continuing without glyph persistence. Error: %v", err)
	} else {
		defer dbConn.Close()
		if err := dbConn.InitSchema(); err != nil {
			log.Printf("Warning: DB schema init failed: %v", err)
		}
	}

	btcHost := getEnvOrDefault("BTC_RPC_HOST", "localhost:8332")
	btcUser := requireEnv("BTC_RPC_USER")
	btcPass := requireEnv("BTC_RPC_PASS")
	params := networkParams(getEnvOrDefault("BTC_NETWORK", "mainnet"))

	var adapter chain.ChainAdapter
	rpcAdapter, err := chain.NewRPCAdapter(chain.RPCConfig{
		Host:   btcHost,
		User:   btcUser,
		Pass:   btcPass,
		Params: params,
	})
	if err != nil {
		log.Printf("Warning: Failed to connect to chain RPC: %v", err)
	} else {
		defer rpcAdapter.Shutdown()
		adapter = rpcAdapter
	}

	// Setup WebSocket Hub
	wsHub := api.NewHub()
	go wsHub.Run()

	var idx *indexer.Indexer
	var directiveEngine *directive.Engine
	var swapEngine *swap.Engine
	if adapter != nil {
		idx = &indexer.Indexer{Adapter: adapter}
		directiveEngine = &directive.Engine{
			Adapter:  adapter,
			Params:   params,
			Resolver: idx,
			Balances: idx,
		}
		swapEngine = &swap.Engine{
			Adapter:  adapter,
			Params:   params,
			Resolver: idx,
		}
		if dbConn != nil {
			directiveEngine.Minted = dbConn
			directiveEngine.Store = dbConn
			idx.Minted = dbConn
		}
	} else {
		log.Println("WARNING: chain RPC unavailable — engine running in read-only/no-op mode")
	}

	// Setup the Gin Router
	r := api.SetupRouter(directiveEngine, swapEngine, idx, dbConn, adapter, wsHub)

	port := getEnvOrDefault("PORT", "5339")

	// Start the server
	log.Printf("Engine running on :%s\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func networkParams(network string) *chaincfg.Params {
	switch network {
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	case "signet":
		return &chaincfg.SigNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// requireEnv reads a required environment variable and exits if it is not set.
// This prevents the binary from starting with missing critical configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set.", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
