package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/xtrntr/bazaar/internal/bazaar"
	"github.com/xtrntr/bazaar/internal/client"
	"github.com/xtrntr/bazaar/internal/models"
)

func main() {
	app := &cli.App{
		Name:  "bazaarctl",
		Usage: "talk to a bazaar server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:8080", EnvVars: []string{"BAZAARCTL_SERVER"}},
			&cli.StringFlag{Name: "token", EnvVars: []string{"BAZAARCTL_TOKEN"}, Usage: "bearer token from login"},
			&cli.DurationFlag{Name: "timeout", Value: 10 * time.Second},
		},
		Commands: []*cli.Command{
			registerCmd,
			loginCmd,
			traderCmd,
			tradeCmd,
			balanceCmd,
			escrowCmd,
			auditCmd,
			quotesCmd,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func newClient(cctx *cli.Context) *client.Client {
	c := client.New(cctx.String("server"), client.Options{Timeout: cctx.Duration("timeout"), Retries: 2})
	if tok := cctx.String("token"); tok != "" {
		c.SetToken(tok)
	}
	return c
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func amountFlag(cctx *cli.Context, name string) (models.Amount, error) {
	s := cctx.String(name)
	if s == "" {
		return models.Amount{}, nil
	}
	a, err := models.ParseAmount(s)
	if err != nil {
		return models.Amount{}, fmt.Errorf("--%s: %w", name, err)
	}
	return a, nil
}

func tradeArg(cctx *cli.Context) (models.TradeIndex, error) {
	if cctx.NArg() != 1 {
		return 0, fmt.Errorf("expected exactly one trade id")
	}
	id, err := strconv.ParseUint(cctx.Args().First(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid trade id %q", cctx.Args().First())
	}
	return models.TradeIndex(id), nil
}

var credentialFlags = []cli.Flag{
	&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
	&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true},
}

var registerCmd = &cli.Command{
	Name:  "register",
	Usage: "create a login",
	Flags: credentialFlags,
	Action: func(cctx *cli.Context) error {
		creds, err := newClient(cctx).Register(cctx.Context, cctx.String("username"), cctx.String("password"))
		if err != nil {
			return err
		}
		return printJSON(creds)
	},
}

var loginCmd = &cli.Command{
	Name:  "login",
	Usage: "print a bearer token",
	Flags: credentialFlags,
	Action: func(cctx *cli.Context) error {
		token, err := newClient(cctx).Login(cctx.Context, cctx.String("username"), cctx.String("password"))
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

var pricingFlags = []cli.Flag{
	&cli.StringFlag{Name: "ask-price"},
	&cli.StringFlag{Name: "ask-limit"},
	&cli.StringFlag{Name: "bid-price"},
	&cli.StringFlag{Name: "bid-limit"},
}

func limitsFromFlags(cctx *cli.Context) (bazaar.Limits, error) {
	var l bazaar.Limits
	var err error
	for name, dst := range map[string]*models.Amount{
		"ask-price": &l.AskPrice,
		"ask-limit": &l.AskLimit,
		"bid-price": &l.BidPrice,
		"bid-limit": &l.BidLimit,
	} {
		if *dst, err = amountFlag(cctx, name); err != nil {
			return l, err
		}
	}
	return l, nil
}

var traderCmd = &cli.Command{
	Name:  "trader",
	Usage: "manage trader profiles",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "register the logged in account as a trader",
			Flags: append([]cli.Flag{
				&cli.StringFlag{Name: "name", Required: true},
				&cli.StringFlag{Name: "headline"},
				&cli.UintFlag{Name: "country"},
				&cli.StringFlag{Name: "method"},
			}, pricingFlags...),
			Action: func(cctx *cli.Context) error {
				l, err := limitsFromFlags(cctx)
				if err != nil {
					return err
				}
				if cctx.Uint("country") > 255 {
					return fmt.Errorf("--country must fit in a byte")
				}
				idx, err := newClient(cctx).CreateTrader(cctx.Context, client.Profile{
					Name:     cctx.String("name"),
					Headline: cctx.String("headline"),
					Country:  uint8(cctx.Uint("country")),
					Method:   cctx.String("method"),
					AskPrice: l.AskPrice,
					AskLimit: l.AskLimit,
					BidPrice: l.BidPrice,
					BidLimit: l.BidLimit,
				})
				if err != nil {
					return err
				}
				fmt.Printf("trader index %d\n", idx)
				return nil
			},
		},
		{
			Name:  "profile",
			Usage: "replace headline and payment method",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "headline"},
				&cli.StringFlag{Name: "method"},
			},
			Action: func(cctx *cli.Context) error {
				return newClient(cctx).UpdateProfile(cctx.Context, cctx.String("headline"), cctx.String("method"))
			},
		},
		{
			Name:  "limits",
			Usage: "replace ask and bid prices and limits",
			Flags: pricingFlags,
			Action: func(cctx *cli.Context) error {
				l, err := limitsFromFlags(cctx)
				if err != nil {
					return err
				}
				return newClient(cctx).UpdateLimits(cctx.Context, l)
			},
		},
		{
			Name:      "show",
			ArgsUsage: "<account>",
			Action: func(cctx *cli.Context) error {
				account, err := models.ParseAccountID(cctx.Args().First())
				if err != nil {
					return err
				}
				p, err := newClient(cctx).Trader(cctx.Context, account)
				if err != nil {
					return err
				}
				return printJSON(p)
			},
		},
		{
			Name: "list",
			Action: func(cctx *cli.Context) error {
				ps, err := newClient(cctx).Traders(cctx.Context)
				if err != nil {
					return err
				}
				return printJSON(ps)
			},
		},
	},
}

func tradeAction(op func(c *client.Client, cctx *cli.Context, id models.TradeIndex) error) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		id, err := tradeArg(cctx)
		if err != nil {
			return err
		}
		if err := op(newClient(cctx), cctx, id); err != nil {
			return err
		}
		fmt.Printf("trade %d: ok\n", id)
		return nil
	}
}

var tradeCmd = &cli.Command{
	Name:  "trade",
	Usage: "initiate and settle trades",
	Subcommands: []*cli.Command{
		{
			Name:  "initiate",
			Usage: "open a buy against a seller",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "price", Required: true},
				&cli.StringFlag{Name: "amount", Required: true},
				&cli.Uint64Flag{Name: "seller", Required: true},
			},
			Action: func(cctx *cli.Context) error {
				price, err := amountFlag(cctx, "price")
				if err != nil {
					return err
				}
				amount, err := amountFlag(cctx, "amount")
				if err != nil {
					return err
				}
				id, err := newClient(cctx).InitiateBuy(cctx.Context, price, amount, models.TraderIndex(cctx.Uint64("seller")))
				if err != nil {
					return err
				}
				fmt.Printf("trade %d initiated\n", id)
				return nil
			},
		},
		{
			Name:      "escrow",
			ArgsUsage: "<id>",
			Action: tradeAction(func(c *client.Client, cctx *cli.Context, id models.TradeIndex) error {
				return c.EscrowCoin(cctx.Context, id)
			}),
		},
		{
			Name:      "cancel",
			ArgsUsage: "<id>",
			Action: tradeAction(func(c *client.Client, cctx *cli.Context, id models.TradeIndex) error {
				return c.CancelEscrow(cctx.Context, id)
			}),
		},
		{
			Name:      "confirm",
			ArgsUsage: "<id>",
			Action: tradeAction(func(c *client.Client, cctx *cli.Context, id models.TradeIndex) error {
				return c.ConfirmReceived(cctx.Context, id)
			}),
		},
		{
			Name:      "dispute",
			ArgsUsage: "<id>",
			Action: tradeAction(func(c *client.Client, cctx *cli.Context, id models.TradeIndex) error {
				return c.OpenDispute(cctx.Context, id)
			}),
		},
		{
			Name:      "dispute-close",
			ArgsUsage: "<id>",
			Flags: []cli.Flag{
				&cli.UintFlag{Name: "buyer-portion"},
				&cli.UintFlag{Name: "seller-portion"},
			},
			Action: tradeAction(func(c *client.Client, cctx *cli.Context, id models.TradeIndex) error {
				buyer, seller := cctx.Uint("buyer-portion"), cctx.Uint("seller-portion")
				if buyer > 255 || seller > 255 {
					return fmt.Errorf("portions must fit in a byte")
				}
				return c.CloseDispute(cctx.Context, id, uint8(buyer), uint8(seller))
			}),
		},
		{
			Name:      "show",
			ArgsUsage: "<id>",
			Action: func(cctx *cli.Context) error {
				id, err := tradeArg(cctx)
				if err != nil {
					return err
				}
				t, err := newClient(cctx).Trade(cctx.Context, id)
				if err != nil {
					return err
				}
				return printJSON(t)
			},
		},
		{
			Name:  "list",
			Usage: "list the caller's trades",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "role", Value: "buyer", Usage: "buyer or seller"},
				&cli.StringFlag{Name: "state", Usage: "Initiated, Escrowed, Completed or Cancelled"},
			},
			Action: func(cctx *cli.Context) error {
				ts, err := newClient(cctx).Trades(cctx.Context, cctx.String("role"), cctx.String("state"))
				if err != nil {
					return err
				}
				return printJSON(ts)
			},
		},
	},
}

var balanceCmd = &cli.Command{
	Name:  "balance",
	Usage: "show the caller's free balance",
	Action: func(cctx *cli.Context) error {
		b, err := newClient(cctx).Balance(cctx.Context)
		if err != nil {
			return err
		}
		return printJSON(b)
	},
}

var escrowCmd = &cli.Command{
	Name:  "escrow",
	Usage: "show the escrow account and its balance",
	Action: func(cctx *cli.Context) error {
		b, err := newClient(cctx).Escrow(cctx.Context)
		if err != nil {
			return err
		}
		return printJSON(b)
	},
}

var auditCmd = &cli.Command{
	Name:  "audit",
	Usage: "check the escrow account covers every open escrow",
	Action: func(cctx *cli.Context) error {
		r, err := newClient(cctx).Audit(cctx.Context)
		if r != nil {
			if perr := printJSON(r); perr != nil {
				return perr
			}
		}
		return err
	},
}

var quotesCmd = &cli.Command{
	Name:  "quotes",
	Usage: "show the ask and bid board",
	Flags: []cli.Flag{
		&cli.UintFlag{Name: "country"},
		&cli.StringFlag{Name: "method"},
	},
	Action: func(cctx *cli.Context) error {
		var country *uint8
		if cctx.IsSet("country") {
			if cctx.Uint("country") > 255 {
				return fmt.Errorf("--country must fit in a byte")
			}
			c := uint8(cctx.Uint("country"))
			country = &c
		}
		b, err := newClient(cctx).Quotes(cctx.Context, country, cctx.String("method"))
		if err != nil {
			return err
		}
		return printJSON(b)
	},
}
