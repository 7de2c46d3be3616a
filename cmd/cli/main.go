package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/balansai/finance-miniapp/internal/app"
	"github.com/balansai/finance-miniapp/internal/auth"
	"github.com/balansai/finance-miniapp/internal/config"
	"github.com/balansai/finance-miniapp/internal/ledger"
	"github.com/balansai/finance-miniapp/internal/logger"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sign":
		runSign(log)
	case "verify":
		runVerify(log)
	case "summary":
		runSummary(log)
	case "registration":
		runRegistration(log)
	case "rate":
		runRate(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Mini-App CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  sign          Produce signed init data for a user id")
	fmt.Println("  verify        Verify an init data payload")
	fmt.Println("  summary       Print balance, statistics, trend and top categories for a user")
	fmt.Println("  registration  Print the registration status of a user")
	fmt.Println("  rate          Resolve the conversion rate of a currency")
	fmt.Println("  help          Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runSign(log zerolog.Logger) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	token := fs.String("token", os.Getenv("TELEGRAM_BOT_TOKEN"), "Bot token (or set TELEGRAM_BOT_TOKEN env)")
	userID := fs.Int64("user-id", 0, "Telegram user id")
	firstName := fs.String("first-name", "", "Optional first name")
	fs.Parse(os.Args[2:])

	if *token == "" || *userID == 0 {
		log.Fatal().Msg("Usage: cli sign -token TOKEN -user-id ID")
	}

	user := map[string]interface{}{"id": *userID}
	if *firstName != "" {
		user["first_name"] = *firstName
	}
	raw, err := json.Marshal(user)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode user")
	}

	fmt.Println(auth.Encode(map[string]string{
		"auth_date": strconv.FormatInt(time.Now().Unix(), 10),
		"user":      string(raw),
	}, *token))
}

func runVerify(log zerolog.Logger) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	token := fs.String("token", os.Getenv("TELEGRAM_BOT_TOKEN"), "Bot token (or set TELEGRAM_BOT_TOKEN env)")
	initData := fs.String("init-data", "", "Raw init data query string")
	fs.Parse(os.Args[2:])

	if *token == "" || *initData == "" {
		log.Fatal().Msg("Usage: cli verify -token TOKEN -init-data DATA")
	}

	id, err := auth.NewValidator(*token).Validate(*initData)
	if err != nil {
		log.Fatal().Err(err).Msg("Verification failed")
	}
	fmt.Printf("Valid: user_id=%d\n", id.UserID)
}

// withApp loads configuration and wires the components for one command. The
// app is closed before a failing command exits the process.
func withApp(log zerolog.Logger, fn func(ctx context.Context, a *app.App) error) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, log, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize components")
	}

	if err := runClosing(a, func() error { return fn(ctx, a) }); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Command failed")
	}
}

type closer interface {
	Close() error
}

// runClosing runs fn and then closes c. The first error wins.
func runClosing(c closer, fn func() error) error {
	err := fn()
	if cerr := c.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("closing: %w", cerr)
	}
	return err
}

func runSummary(log zerolog.Logger) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	userID := fs.Int64("user-id", 0, "User id")
	days := fs.Int("days", ledger.DefaultDays, "Statistics window in days")
	period := fs.String("period", "auto", "Trend period: day, month, year or auto")
	fs.Parse(os.Args[2:])

	if *userID == 0 {
		log.Fatal().Msg("Error: -user-id is required")
	}
	p, err := ledger.ParsePeriod(*period)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid period")
	}

	withApp(log, func(ctx context.Context, a *app.App) error {
		base := a.Aggregator.BaseCurrency()
		summary := a.Aggregator.Summary(ctx, *userID, *days)

		fmt.Printf("User %d\n", *userID)
		fmt.Printf("  Balance:  %s %s\n", summary.Balance.StringFixed(2), base)
		for code, v := range summary.CurrencyBalances {
			fmt.Printf("    %-4s %s\n", code, v.StringFixed(2))
		}
		fmt.Printf("  Last %d days: income %s, expense %s, net %s\n",
			summary.Statistics.Days,
			summary.Statistics.Income.StringFixed(2),
			summary.Statistics.Expense.StringFixed(2),
			summary.Statistics.Net.StringFixed(2))

		trend := a.Aggregator.Trend(ctx, *userID, p)
		fmt.Printf("  Income trend (%s):\n", trend.Period)
		for _, pt := range trend.Points {
			fmt.Printf("    %-10s %s\n", pt.Label, pt.Value.StringFixed(2))
		}

		top := a.Aggregator.TopExpenseCategories(ctx, *userID, ledger.DefaultTopLimit, *days)
		fmt.Println("  Top expense categories:")
		for i, c := range top.Categories {
			fmt.Printf("    %d. %s: %s %s (%s %s)\n", i+1, c.Category,
				c.Total.StringFixed(2), base, c.OriginalTotal.StringFixed(2), c.Currency)
		}

		if summary.Degraded || trend.Degraded || top.Degraded {
			fmt.Println("  Warning: some figures are degraded (store or rate lookup failed)")
		}
		return nil
	})
}

func runRegistration(log zerolog.Logger) {
	fs := flag.NewFlagSet("registration", flag.ExitOnError)
	userID := fs.Int64("user-id", 0, "User id")
	fs.Parse(os.Args[2:])

	if *userID == 0 {
		log.Fatal().Msg("Error: -user-id is required")
	}

	withApp(log, func(ctx context.Context, a *app.App) error {
		status, err := a.Gate.Status(ctx, *userID)
		if err != nil {
			return fmt.Errorf("checking registration of user %d: %w", *userID, err)
		}
		fmt.Printf("User %d: %s\n", *userID, status)
		return nil
	})
}

func runRate(log zerolog.Logger) {
	fs := flag.NewFlagSet("rate", flag.ExitOnError)
	code := fs.String("currency", "USD", "Currency code")
	fs.Parse(os.Args[2:])

	withApp(log, func(ctx context.Context, a *app.App) error {
		r := a.Rates.Rate(ctx, *code)
		source := "store"
		if r.Fallback {
			source = "default table"
		}
		fmt.Printf("1 %s = %s %s (%s)\n", *code, r.Value.String(), a.Rates.BaseCurrency(), source)
		return nil
	})
}
