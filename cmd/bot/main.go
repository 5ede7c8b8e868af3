// cmd/bot/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/raydium-watcher/internal/bot"
	"github.com/rovshanmuradov/raydium-watcher/internal/config"
	"github.com/rovshanmuradov/raydium-watcher/internal/dex/raydium"
	"github.com/rovshanmuradov/raydium-watcher/internal/server"
	"github.com/rovshanmuradov/raydium-watcher/internal/utils/logger"
)

const usage = `usage: raydium-watcher [-config path] <command> [flags]

commands:
  discover   wait for new Raydium AMM v4 pools and publish them
  quote      print a constant-product quote for a pair
  serve      run the HTTP API (and the active listener when configured)
`

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config file (json/yaml/toml)")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		return 2
	}

	// .env не обязателен: без него читаем только окружение
	envErr := godotenv.Load(*envFile)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to load config: %v\n", err)
		return 1
	}

	log, err := logger.New(logger.ForApp(cfg.LogFile, cfg.DebugLogging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to init logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Close() }()

	if envErr != nil {
		log.Debug("No dotenv file loaded", zap.String("path", *envFile))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	runner, err := bot.NewRunner(ctx, cfg, logger.WithComponent(log.Logger, cmd))
	if err != nil {
		log.LogError("Failed to start", err)
		return 1
	}
	defer func() {
		if err := runner.Close(context.Background()); err != nil {
			log.LogError("Shutdown failed", err)
		}
	}()

	switch cmd {
	case "discover":
		err = discover(ctx, runner, log)
	case "quote":
		err = quote(ctx, runner, args)
	case "serve":
		err = runner.Serve(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flag.Usage()
		return 2
	}

	if err != nil {
		log.LogError("Command failed", err, zap.String("command", cmd))
		return 1
	}
	return 0
}

func discover(ctx context.Context, runner *bot.Runner, log *logger.Logger) error {
	pools, err := runner.Discover(ctx)
	for _, p := range pools {
		log.WithPool(p.PoolKey.ID, p.PoolKey.MintA.Address, p.PoolKey.MintB.Address).Info("🆕 Pool discovered",
			zap.String("signature", p.Signature.String()),
			zap.Uint64("slot", p.Slot))
	}
	// отмена по сигналу или таймауту - штатное завершение
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Info("Discovery stopped", zap.Int("pools", len(pools)), zap.Error(err))
		return nil
	}
	return err
}

func quote(ctx context.Context, runner *bot.Runner, args []string) error {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	tokenA := fs.String("tokenA", "", "first mint of the pair")
	tokenB := fs.String("tokenB", "", "second mint of the pair")
	side := fs.String("side", "buy", "buy or sell, relative to the non-reference token")
	amount := fs.String("amount", "1", "specified amount")
	isTokenBAmount := fs.Bool("isTokenBAmount", false, "amount refers to tokenB")
	price := fs.String("price", "", "optional price of A in B")
	slippage := fs.String("slippage", "0", "slippage fraction, e.g. 0.01")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req, err := buildQuoteRequest(*tokenA, *tokenB, *side, *amount, *price, *slippage, *isTokenBAmount)
	if err != nil {
		return err
	}

	q, err := runner.Quote(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(server.NewQuoteResponse(q))
}

func buildQuoteRequest(tokenA, tokenB, side, amount, price, slippage string, isTokenBAmount bool) (raydium.QuoteRequest, error) {
	var req raydium.QuoteRequest
	var err error

	if req.TokenA, err = solana.PublicKeyFromBase58(tokenA); err != nil {
		return req, fmt.Errorf("invalid tokenA: %w", err)
	}
	if req.TokenB, err = solana.PublicKeyFromBase58(tokenB); err != nil {
		return req, fmt.Errorf("invalid tokenB: %w", err)
	}
	if req.Side, err = raydium.ParseQuoteSide(side); err != nil {
		return req, err
	}
	if req.Amount, err = decimal.NewFromString(amount); err != nil {
		return req, fmt.Errorf("invalid amount: %w", err)
	}
	if price != "" {
		if req.Price, err = decimal.NewFromString(price); err != nil {
			return req, fmt.Errorf("invalid price: %w", err)
		}
	}
	if req.Slippage, err = decimal.NewFromString(slippage); err != nil {
		return req, fmt.Errorf("invalid slippage: %w", err)
	}
	req.IsTokenBAmount = isTokenBAmount
	return req, nil
}
