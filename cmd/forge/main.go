package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/config"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/keypool"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/observability"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/orchestrator"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/referral"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/solana"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage"
	chstore "github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage/clickhouse"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage/memory"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage/migrations"
	pgstore "github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage/postgres"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/submitter"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/txwire"
)

// tokenProgramID is the SPL token program; new mint accounts are
// allocated under its ownership.
var tokenProgramID = txwire.MustParsePubkey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

// mintAccountSize is the byte size of an SPL mint account.
const mintAccountSize = 82

// mintRentLamports is the rent-exempt minimum for a mint account.
const mintRentLamports = 1_461_600

func main() {
	cfg := config.Load()

	requestPath := flag.String("request", "", "Path to a creation request JSON file (- for stdin)")
	rpcEndpoint := flag.String("rpc-endpoint", cfg.RPCURL, "Solana RPC HTTP endpoint")
	fallbackRPC := flag.String("fallback-rpc-endpoint", cfg.FallbackRPCURL, "Secondary RPC endpoint for blockhash failover")
	wsEndpoint := flag.String("ws-endpoint", cfg.WSURL, "Solana WebSocket endpoint (empty to confirm by polling)")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse DSN for the submission audit log (empty to disable)")
	walletPath := flag.String("wallet", cfg.WalletPath, "Path to the service wallet secret key")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	releaseStuckAge := flag.Duration("release-stuck-age", 30*time.Minute, "Release reservations older than this before processing")

	flag.Parse()

	logger := log.New(os.Stdout, "[forge] ", log.LstdFlags|log.Lshortfile)

	if *requestPath == "" {
		logger.Fatal("--request is required")
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling...", sig)
		cancel()
	}()

	if err := run(ctx, logger, cfg, *requestPath, *rpcEndpoint, *fallbackRPC, *wsEndpoint, *postgresDSN, *clickhouseDSN, *walletPath, *useMemory, *releaseStuckAge); err != nil {
		logger.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, logger *log.Logger, cfg *config.Config, requestPath, rpcEndpoint, fallbackRPC, wsEndpoint, postgresDSN, clickhouseDSN, walletPath string, useMemory bool, releaseStuckAge time.Duration) error {
	req, err := readRequest(requestPath)
	if err != nil {
		return err
	}

	payer, err := loadWallet(walletPath)
	if err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}
	logger.Printf("Service wallet: %s", payer.Address())

	// Stores
	var keyStore storage.KeyPoolStore = memory.NewKeyPoolStore()
	var userStore storage.UserStore = memory.NewUserStore()
	var paymentStore storage.PaymentStore = memory.NewPaymentStore()

	if !useMemory {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		keyStore = pgstore.NewKeyPoolStore(pool)
		userStore = pgstore.NewUserStore(pool)
		paymentStore = pgstore.NewPaymentStore(pool)
	}

	// Optional submission audit log
	var audit storage.SubmissionAudit
	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			logger.Printf("ClickHouse unavailable, submissions will not be audited: %v", err)
		} else {
			defer conn.Close()
			audit = chstore.NewAuditStore(conn)
		}
	}

	// Network
	rpc := solana.NewHTTPClient(rpcEndpoint)
	var confirmer solana.Confirmer
	if wsEndpoint != "" {
		confirmer = solana.NewWSConfirmer(wsEndpoint, rpc, solana.DefaultWSConfirmerConfig())
	} else {
		confirmer = solana.NewPollingConfirmer(rpc, 2*time.Second)
	}

	subLogger := log.New(os.Stdout, "[submitter] ", log.LstdFlags|log.Lshortfile)
	subOpts := []submitter.SubmitterOption{}
	if audit != nil {
		subOpts = append(subOpts, submitter.WithAudit(audit))
	}
	if fallbackRPC != "" {
		subOpts = append(subOpts, submitter.WithFallbackBlockhashSource(solana.NewHTTPClient(fallbackRPC)))
	}
	sub := submitter.New(rpc, confirmer, subLogger, subOpts...)

	// Services
	poolLogger := log.New(os.Stdout, "[keypool] ", log.LstdFlags|log.Lshortfile)
	manager := keypool.NewManager(keyStore, poolLogger)

	refLogger := log.New(os.Stdout, "[referral] ", log.LstdFlags|log.Lshortfile)
	ledger := referral.NewLedger(userStore, paymentStore, cfg.ReferralSecret, referral.DefaultRates(), refLogger)

	orch := orchestrator.New(manager, ledger, sub, rpc, &mintAccountBuilder{}, payer, logger)

	// Reclaim reservations left behind by dead flows before claiming.
	if _, err := manager.ReleaseStuck(ctx, releaseStuckAge); err != nil {
		logger.Printf("release stuck reservations: %v", err)
	}

	// The creator must have a user row: free custom endings draw on
	// their bonus quota.
	if _, err := ledger.EnsureUser(ctx, req.UserID, ""); err != nil {
		return fmt.Errorf("ensure user %d: %w", req.UserID, err)
	}

	result, err := orch.CreateToken(ctx, req)
	if err != nil {
		return err
	}
	logger.Printf("Token created: mint %s, tx %s (pool=%v, retries=%d)",
		result.MintAddress, result.Signature, result.FromPool, result.PoolRetries)

	if err := orch.ProcessReferralPayment(ctx, req.UserID, req.CustomPrice); err != nil {
		// The token exists; a failed commission payout is logged and
		// settled manually.
		logger.Printf("referral settlement failed: %v", err)
	}

	out, _ := json.Marshal(map[string]interface{}{
		"success":     true,
		"mintAddress": result.MintAddress,
		"txHash":      result.Signature,
	})
	fmt.Println(string(out))
	return nil
}

func readRequest(path string) (*orchestrator.CreateTokenRequest, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}

	var req orchestrator.CreateTokenRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	if req.UserID == 0 || req.Name == "" || req.Symbol == "" {
		return nil, fmt.Errorf("request must set userId, name and symbol")
	}
	return &req, nil
}

// loadWallet reads a base58 or hex encoded secret key from a file.
func loadWallet(path string) (*txwire.Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	secret := strings.TrimSpace(string(data))

	if kp, err := txwire.KeypairFromBase58(secret); err == nil {
		return kp, nil
	}
	if _, hexErr := hex.DecodeString(secret); hexErr == nil {
		return txwire.KeypairFromHex(secret)
	}
	return nil, fmt.Errorf("wallet key is neither base58 nor hex")
}

// mintAccountBuilder allocates the mint account under the token
// program. Metadata and minting instructions are appended by the
// external token tooling that consumes the created account.
type mintAccountBuilder struct{}

func (b *mintAccountBuilder) BuildCreateInstructions(req *orchestrator.CreateTokenRequest, mint, payer txwire.Pubkey) ([]txwire.Instruction, error) {
	return []txwire.Instruction{
		txwire.SystemCreateAccount(payer, mint, mintRentLamports, mintAccountSize, tokenProgramID),
	}, nil
}
