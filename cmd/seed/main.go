package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/xtrntr/bazaar/internal/app"
	"github.com/xtrntr/bazaar/internal/auth"
	"github.com/xtrntr/bazaar/internal/bazaar"
	"github.com/xtrntr/bazaar/internal/config"
	"github.com/xtrntr/bazaar/internal/logger"
	"github.com/xtrntr/bazaar/internal/models"
)

type demoTrader struct {
	username string
	profile  bazaar.ProfileFields
}

var demoTraders = []demoTrader{
	{
		username: "trader1",
		profile: bazaar.ProfileFields{
			Name:     []byte("Trader One"),
			Headline: []byte("Quick bank transfers"),
			Country:  44,
			Method:   []byte("bank transfer"),
			AskPrice: models.NewAmount(101),
			AskLimit: models.NewAmount(5000),
			BidPrice: models.NewAmount(97),
			BidLimit: models.NewAmount(2500),
		},
	},
	{
		username: "trader2",
		profile: bazaar.ProfileFields{
			Name:     []byte("Trader Two"),
			Headline: []byte("Cash in person"),
			Country:  1,
			Method:   []byte("cash"),
			AskPrice: models.NewAmount(99),
			AskLimit: models.NewAmount(1000),
		},
	},
}

// Seed the store with demo logins, traders and balances
func main() {
	cliApp := &cli.App{
		Name:  "bazaar-seed",
		Usage: "create demo accounts and fund them",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "password", Value: "password123", Usage: "password of every demo login"},
			&cli.Uint64Flag{Name: "funds", Value: 100000, Usage: "balance deposited to each demo account"},
			&cli.StringSliceFlag{Name: "buyer", Value: cli.NewStringSlice("buyer1"), Usage: "extra non-trader logins"},
		},
		Action: seed,
	}
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func seed(cctx *cli.Context) error {
	ctx := cctx.Context
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, logCloser, err := logger.New(cfg.Logger(), os.Stdout)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, log, logCloser)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Bazaar.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		fmt.Printf("Store already has %d traders. No need to seed.\n", n)
		return nil
	}

	password := cctx.String("password")
	funds := models.NewAmount(cctx.Uint64("funds"))

	login := func(username string) (models.AccountID, error) {
		cred, err := a.Auth.Register(ctx, username, password)
		if err != nil {
			return models.AccountID{}, fmt.Errorf("failed to create %s: %w", username, err)
		}
		if err := a.Bazaar.Deposit(ctx, cred.Account, funds); err != nil {
			return models.AccountID{}, fmt.Errorf("failed to fund %s: %w", username, err)
		}
		return cred.Account, nil
	}

	for _, d := range demoTraders {
		account, err := login(d.username)
		if err != nil {
			return err
		}
		idx, err := a.Bazaar.Register(ctx, account, d.profile)
		if err != nil {
			return fmt.Errorf("failed to register %s: %w", d.username, err)
		}
		fmt.Printf("trader %-8s index=%d account=%s\n", d.username, idx, account)
	}
	for _, username := range cctx.StringSlice("buyer") {
		account, err := login(username)
		if err != nil {
			if errors.Is(err, auth.ErrUsernameTaken) {
				continue
			}
			return err
		}
		fmt.Printf("buyer  %-8s account=%s\n", username, account)
	}

	fmt.Printf("Seeded %d traders, escrow account %s\n", len(demoTraders), a.Bazaar.Escrow().Address())
	return nil
}
