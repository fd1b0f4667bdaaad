// Command keypool administers the vanity key pool: importing generated
// keys, inspecting counts and reclaiming stuck reservations.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mr-tron/base58"

	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/config"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/domain"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/keypool"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage/migrations"
	pgstore "github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/storage/postgres"
	"github.com/solanamemeforge/solana-meme-forge-telegram-bot/internal/txwire"
)

func main() {
	cfg := config.Load()

	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	category := flag.String("category", "custom", "Key category for import: meme or custom")
	file := flag.String("file", "", "Input file for import (JSON lines, - for stdin)")
	age := flag.Duration("age", 30*time.Minute, "Reservation age threshold for release-stuck")

	flag.Parse()

	logger := log.New(os.Stdout, "[keypool] ", log.LstdFlags)

	if flag.NArg() < 1 {
		logger.Fatal("usage: keypool <import|stats|endings|release-stuck> [flags]")
	}
	command := flag.Arg(0)

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("apply migrations: %v", err)
	}

	manager := keypool.NewManager(pgstore.NewKeyPoolStore(pool), logger)

	switch command {
	case "import":
		err = runImport(ctx, manager, *file, domain.KeyCategory(*category))
	case "stats":
		err = runStats(ctx, manager)
	case "endings":
		err = runEndings(ctx, manager)
	case "release-stuck":
		err = runReleaseStuck(ctx, manager, *age)
	default:
		logger.Fatalf("unknown command: %s", command)
	}
	if err != nil {
		logger.Fatalf("Error: %v", err)
	}
}

// importLine is one generated key on the import stream.
type importLine struct {
	SecretKey string `json:"secretKey"` // base58, 64 bytes decoded
	Ending    string `json:"ending"`
}

func runImport(ctx context.Context, manager *keypool.Manager, file string, category domain.KeyCategory) error {
	if category != domain.CategoryMeme && category != domain.CategoryCustom {
		return fmt.Errorf("invalid category: %s", category)
	}

	in := os.Stdin
	if file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var records []*domain.KeyRecord
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry importLine
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		secret, err := base58.Decode(entry.SecretKey)
		if err != nil {
			return fmt.Errorf("line %d: decode secret: %w", lineNo, err)
		}
		kp, err := txwire.KeypairFromSecretKey(secret)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		address := kp.Address()
		if entry.Ending != "" && !txwire.HasEnding(address, entry.Ending) {
			return fmt.Errorf("line %d: address %s does not end with %s", lineNo, address, entry.Ending)
		}
		records = append(records, &domain.KeyRecord{
			Category:      category,
			SecretKey:     kp.SecretKey(),
			PublicAddress: address,
			Ending:        entry.Ending,
		})
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	inserted, skipped, err := manager.Import(ctx, records)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d keys (%d duplicates skipped)\n", inserted, skipped)
	return nil
}

func runStats(ctx context.Context, manager *keypool.Manager) error {
	stats, err := manager.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%-10s %10s %10s %10s\n", "CATEGORY", "AVAILABLE", "RESERVED", "USED")
	for _, st := range stats {
		fmt.Printf("%-10s %10d %10d %10d\n", st.Category, st.Available, st.Reserved, st.Used)
	}
	return nil
}

func runEndings(ctx context.Context, manager *keypool.Manager) error {
	endings, err := manager.AvailableEndings(ctx)
	if err != nil {
		return err
	}
	if len(endings) == 0 {
		fmt.Println("no custom endings available")
		return nil
	}
	for _, ec := range endings {
		fmt.Printf("%-12s %d\n", ec.Ending, ec.Available)
	}
	return nil
}

func runReleaseStuck(ctx context.Context, manager *keypool.Manager, age time.Duration) error {
	n, err := manager.ReleaseStuck(ctx, age)
	if err != nil {
		return err
	}
	fmt.Printf("released %d stuck reservations\n", n)
	return nil
}
