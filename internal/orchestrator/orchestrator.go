// Package orchestrator composes the key pool, submitter and referral
// ledger into the token creation and settlement flows.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/domain"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/keypool"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/referral"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/solana"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/submitter"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/txwire"
)

// maxPoolRetries bounds how many pool keys one creation may burn
// through when addresses turn out to be taken on-chain.
const maxPoolRetries = 3

// lamportsPerSOL is the fixed lamport denomination.
const lamportsPerSOL = 1_000_000_000

// feeReserveLamports is the flat fee headroom required on top of any
// transfer amount.
const feeReserveLamports = 5000

// ErrNoBonusAddresses rejects a free custom-ending creation once the
// user's bonus quota is spent.
var ErrNoBonusAddresses = errors.New("no bonus custom addresses left")

// CreateTokenRequest describes one token creation.
type CreateTokenRequest struct {
	UserID       int64   `json:"userId"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	TotalSupply  uint64  `json:"totalSupply"`
	MetadataURI  string  `json:"metadataUri"`
	UserWallet   string  `json:"userWallet"`
	CustomEnding string  `json:"customEnding"` // empty for a standard creation
	CustomPrice  float64 `json:"customPrice"`  // price paid for the ending, 0 for bonus
	UseMemePool  bool    `json:"useMemePool"`  // draw the mint from the branded pool
}

// CreateTokenResult reports a completed creation.
type CreateTokenResult struct {
	MintAddress string
	Signature   string
	// FromPool is false when the mint key was generated on the fly.
	FromPool bool
	// PoolRetries counts keys invalidated before one worked.
	PoolRetries int
}

// InstructionBuilder produces the on-chain instruction sequence for a
// creation. The program-level encoding is external to this module.
type InstructionBuilder interface {
	BuildCreateInstructions(req *CreateTokenRequest, mint, payer txwire.Pubkey) ([]txwire.Instruction, error)
}

// Orchestrator runs the end-to-end flows.
type Orchestrator struct {
	pool    *keypool.Manager
	ledger  *referral.Ledger
	sub     *submitter.Submitter
	rpc     solana.RPCClient
	builder InstructionBuilder
	payer   *txwire.Keypair
	logger  *log.Logger
}

// New creates an Orchestrator.
func New(pool *keypool.Manager, ledger *referral.Ledger, sub *submitter.Submitter, rpc solana.RPCClient, builder InstructionBuilder, payer *txwire.Keypair, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		pool:    pool,
		ledger:  ledger,
		sub:     sub,
		rpc:     rpc,
		builder: builder,
		payer:   payer,
		logger:  logger,
	}
}

// CreateToken acquires a mint key, submits the creation transaction and
// settles the key's pool state. Keys whose address is already taken
// on-chain are invalidated and the flow retries with the next key; after
// maxPoolRetries the flow falls back to a freshly generated keypair.
func (o *Orchestrator) CreateToken(ctx context.Context, req *CreateTokenRequest) (*CreateTokenResult, error) {
	if err := o.checkPayerBalance(ctx, feeReserveLamports); err != nil {
		return nil, err
	}

	// A custom ending with no price attached spends one bonus address.
	if req.CustomEnding != "" && req.CustomPrice == 0 {
		used, err := o.ledger.UseBonusCustomAddress(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("use bonus custom address: %w", err)
		}
		if !used {
			return nil, fmt.Errorf("user %d: %w", req.UserID, ErrNoBonusAddresses)
		}
		if left, err := o.ledger.GetBonusCustomAddresses(ctx, req.UserID); err == nil {
			o.logger.Printf("user %d spent a bonus address on ending %s, %d left", req.UserID, req.CustomEnding, left)
		}
	}

	retries := 0
	for retries <= maxPoolRetries {
		rec, err := o.acquireMintKey(ctx, req)
		if err != nil {
			return nil, err
		}

		mint, fromPool, err := o.mintKeypair(rec)
		if err != nil {
			if rec != nil {
				o.releaseQuietly(ctx, rec.ID)
			}
			return nil, err
		}

		sig, err := o.submitCreation(ctx, req, mint)
		if err == nil {
			if fromPool {
				if err := o.pool.Commit(ctx, rec.ID, mint.Address()); err != nil {
					// The token exists on-chain; a failed commit only
					// strands the pool row.
					o.logger.Printf("commit of key %d after mint %s failed: %v", rec.ID, mint.Address(), err)
				}
			}
			return &CreateTokenResult{
				MintAddress: mint.Address(),
				Signature:   sig,
				FromPool:    fromPool,
				PoolRetries: retries,
			}, nil
		}

		if fromPool && errors.Is(err, submitter.ErrAddressInUse) {
			o.logger.Printf("mint address %s already in use, invalidating key %d and retrying", mint.Address(), rec.ID)
			if invErr := o.pool.Invalidate(ctx, rec.ID); invErr != nil {
				o.logger.Printf("invalidate key %d: %v", rec.ID, invErr)
			}
			retries++
			continue
		}

		if fromPool {
			o.releaseQuietly(ctx, rec.ID)
		}
		return nil, fmt.Errorf("create token: %w", err)
	}

	// Pool keys exhausted on collisions; mint with a generated keypair.
	o.logger.Printf("exhausted %d pool retries, generating random mint", maxPoolRetries)
	mint, err := txwire.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate mint keypair: %w", err)
	}
	sig, err := o.submitCreation(ctx, req, mint)
	if err != nil {
		return nil, fmt.Errorf("create token with generated mint: %w", err)
	}
	return &CreateTokenResult{
		MintAddress: mint.Address(),
		Signature:   sig,
		FromPool:    false,
		PoolRetries: maxPoolRetries,
	}, nil
}

// acquireMintKey picks the pool record for this request, or nil when
// the flow should use a generated keypair. A spent or collided custom
// ending descends to a random mint rather than failing the creation.
func (o *Orchestrator) acquireMintKey(ctx context.Context, req *CreateTokenRequest) (*domain.KeyRecord, error) {
	usePool := req.UseMemePool
	if req.CustomEnding != "" {
		rec, err := o.pool.ReserveByEnding(ctx, req.CustomEnding)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		o.logger.Printf("no keys left for ending %s, falling back to a random mint", req.CustomEnding)
		usePool = true
	}

	if usePool {
		rec, err := o.pool.ReserveRandom(ctx, domain.CategoryMeme)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, storage.ErrPoolExhausted) {
			return nil, err
		}
		// Empty pool falls back to a generated keypair.
	}
	return nil, nil
}

// mintKeypair converts a pool record to a signing keypair, or generates
// one when the record is nil.
func (o *Orchestrator) mintKeypair(rec *domain.KeyRecord) (*txwire.Keypair, bool, error) {
	if rec == nil {
		kp, err := txwire.GenerateKeypair()
		if err != nil {
			return nil, false, fmt.Errorf("generate mint keypair: %w", err)
		}
		return kp, false, nil
	}
	kp, err := txwire.KeypairFromSecretKey(rec.SecretKey)
	if err != nil {
		return nil, true, fmt.Errorf("load pool key %d: %w", rec.ID, err)
	}
	return kp, true, nil
}

func (o *Orchestrator) submitCreation(ctx context.Context, req *CreateTokenRequest, mint *txwire.Keypair) (string, error) {
	instructions, err := o.builder.BuildCreateInstructions(req, mint.Pubkey(), o.payer.Pubkey())
	if err != nil {
		return "", fmt.Errorf("build instructions: %w", err)
	}
	return o.sub.Submit(ctx, instructions, []*txwire.Keypair{o.payer, mint}, o.payer.Pubkey(), submitter.Options{
		Flow: "mint",
	})
}

func (o *Orchestrator) releaseQuietly(ctx context.Context, id int64) {
	if err := o.pool.Release(ctx, id); err != nil {
		o.logger.Printf("release key %d: %v", id, err)
	}
}

// ProcessReferralPayment settles the referrer commission for one paid
// creation. The payout is skipped without error when the user has no
// referrer, the referrer has no payout wallet, or the commission rounds
// to zero. Both commission kinds are paid in one transfer and recorded
// as separate ledger rows sharing the payout tx hash, so a retried call
// never double-credits.
func (o *Orchestrator) ProcessReferralPayment(ctx context.Context, userID int64, customPrice float64) error {
	referrer, err := o.ledger.GetReferrer(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find referrer of %d: %w", userID, err)
	}
	if referrer == nil {
		return nil
	}
	if referrer.WalletAddress == nil || *referrer.WalletAddress == "" {
		o.logger.Printf("referrer %d has no payout wallet, skipping commission", referrer.UserID)
		return nil
	}

	rates := o.ledger.Rates()
	tokenAmount := rates.TokenCommission()
	customAmount := rates.CustomCommission(decimal.NewFromFloat(customPrice))
	total := tokenAmount.Add(customAmount)
	if !total.IsPositive() {
		return nil
	}

	recipient, err := txwire.ParsePubkey(*referrer.WalletAddress)
	if err != nil {
		return fmt.Errorf("referrer %d wallet: %w", referrer.UserID, err)
	}

	lamports := total.Mul(decimal.NewFromInt(lamportsPerSOL)).IntPart()
	if err := o.checkPayerBalance(ctx, uint64(lamports)+feeReserveLamports); err != nil {
		return err
	}

	transfer := txwire.SystemTransfer(o.payer.Pubkey(), recipient, uint64(lamports))
	sig, err := o.sub.Submit(ctx, []txwire.Instruction{transfer}, []*txwire.Keypair{o.payer}, o.payer.Pubkey(), submitter.Options{
		Flow: "payment",
	})
	if err != nil {
		return fmt.Errorf("pay commission to referrer %d: %w", referrer.UserID, err)
	}

	tokenFloat, _ := tokenAmount.Float64()
	if _, _, err := o.ledger.RecordPayment(ctx, &domain.ReferralPayment{
		ReferrerID:     referrer.UserID,
		ReferredUserID: userID,
		Amount:         tokenFloat,
		PaymentType:    domain.PaymentToken,
		TxHash:         &sig,
	}); err != nil {
		return err
	}

	if customAmount.IsPositive() {
		customFloat, _ := customAmount.Float64()
		if _, _, err := o.ledger.RecordPayment(ctx, &domain.ReferralPayment{
			ReferrerID:     referrer.UserID,
			ReferredUserID: userID,
			Amount:         customFloat,
			PaymentType:    domain.PaymentCustom,
			TxHash:         &sig,
		}); err != nil {
			return err
		}
	}

	o.logger.Printf("paid %s SOL commission to referrer %d (tx %s)", total.String(), referrer.UserID, sig)
	return nil
}

// checkPayerBalance verifies the service wallet can cover the spend.
func (o *Orchestrator) checkPayerBalance(ctx context.Context, requiredLamports uint64) error {
	balance, err := o.rpc.GetBalance(ctx, o.payer.Address())
	if err != nil {
		return fmt.Errorf("check payer balance: %w", err)
	}
	if balance < requiredLamports {
		return fmt.Errorf("insufficient payer balance: have %d lamports, need %d", balance, requiredLamports)
	}
	return nil
}
