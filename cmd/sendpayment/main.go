// Command sendpayment transfers SOL from the service wallet and prints
// a machine-readable JSON result. Exit code 0 with {"success":true} on
// confirmation, exit code 1 with {"success":false} otherwise.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/config"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/solana"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/submitter"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/txwire"
)

const lamportsPerSOL = 1_000_000_000

// feeReserveLamports is the flat fee headroom checked before sending.
const feeReserveLamports = 5000

type result struct {
	Success        bool            `json:"success"`
	TxHash         string          `json:"txHash,omitempty"`
	Amount         float64         `json:"amount,omitempty"`
	Recipient      string          `json:"recipient,omitempty"`
	PaymentDetails json.RawMessage `json:"paymentDetails,omitempty"`
	Error          string          `json:"error,omitempty"`
}

func main() {
	cfg := config.Load()

	rpcEndpoint := flag.String("rpc-endpoint", cfg.RPCURL, "Solana RPC HTTP endpoint")
	fallbackRPC := flag.String("fallback-rpc-endpoint", cfg.FallbackRPCURL, "Secondary RPC endpoint for blockhash failover")
	walletPath := flag.String("wallet", cfg.WalletPath, "Path to the service wallet secret key")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall operation timeout")

	flag.Parse()

	if flag.NArg() < 2 {
		fail("usage: sendpayment <recipient> <amount_sol> [details-json]")
	}
	recipientArg := flag.Arg(0)
	amountArg := flag.Arg(1)
	var details json.RawMessage
	if flag.NArg() > 2 {
		raw := flag.Arg(2)
		if !json.Valid([]byte(raw)) {
			fail("payment details must be valid JSON")
		}
		details = json.RawMessage(raw)
	}

	recipient, err := txwire.ValidateRecipient(recipientArg)
	if err != nil {
		fail(fmt.Sprintf("invalid recipient: %v", err))
	}

	amount, err := strconv.ParseFloat(amountArg, 64)
	if err != nil || amount <= 0 {
		fail("amount must be a positive number of SOL")
	}
	lamports := decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(lamportsPerSOL)).IntPart()

	payer, err := loadWallet(*walletPath)
	if err != nil {
		fail(fmt.Sprintf("load wallet: %v", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rpc := solana.NewHTTPClient(*rpcEndpoint)

	// Precheck: transfer amount plus the flat fee reserve.
	balance, err := rpc.GetBalance(ctx, payer.Address())
	if err != nil {
		fail(fmt.Sprintf("check balance: %v", err))
	}
	required := uint64(lamports) + feeReserveLamports
	if balance < required {
		fail(fmt.Sprintf("insufficient balance: have %d lamports, need %d", balance, required))
	}

	logger := log.New(os.Stderr, "[sendpayment] ", log.LstdFlags)
	confirmer := solana.NewPollingConfirmer(rpc, 2*time.Second)
	opts := []submitter.SubmitterOption{}
	if *fallbackRPC != "" {
		opts = append(opts, submitter.WithFallbackBlockhashSource(solana.NewHTTPClient(*fallbackRPC)))
	}
	sub := submitter.New(rpc, confirmer, logger, opts...)

	transfer := txwire.SystemTransfer(payer.Pubkey(), recipient, uint64(lamports))
	sig, err := sub.Submit(ctx, []txwire.Instruction{transfer}, []*txwire.Keypair{payer}, payer.Pubkey(), submitter.Options{
		Flow: "payment",
	})
	if err != nil {
		fail(err.Error())
	}

	emit(result{
		Success:        true,
		TxHash:         sig,
		Amount:         amount,
		Recipient:      recipientArg,
		PaymentDetails: details,
	})
}

func fail(msg string) {
	out, _ := json.Marshal(result{Success: false, Error: msg})
	fmt.Println(string(out))
	os.Exit(1)
}

func emit(r result) {
	out, _ := json.Marshal(r)
	fmt.Println(string(out))
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
