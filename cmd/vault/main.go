package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dperdic/s3-asset-manager-vault/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	apiURL      string
	bearerToken string
	cfgFile     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vault",
	Short: "Custodial vault ledger CLI",
	Long: `vault is the command-line interface for the s3 asset manager vault.

It lets customers deposit into and withdraw from per-manager custodial
vaults, inspect balances, and list operation receipts.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.s3vault")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if apiURL == "" {
			apiURL = viper.GetString("api_url")
		}
		if apiURL == "" {
			apiURL = "http://localhost:8080"
		}
		if bearerToken == "" {
			bearerToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.s3vault/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "vaultd base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "token", "", "bearer token for authenticated calls")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(initVaultCmd)
	rootCmd.AddCommand(vaultInfoCmd)
	rootCmd.AddCommand(depositCmd)
	rootCmd.AddCommand(withdrawCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(receiptsCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	return client.New(apiURL, client.WithToken(bearerToken))
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// ── login ────────────────────────────────────────────────────────────────────

var loginAdminSecret string

var loginCmd = &cobra.Command{
	Use:   "login <wallet>",
	Short: "Obtain a bearer token for a wallet from the dev token endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		tok, err := newClient().IssueToken(ctx, args[0], loginAdminSecret)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginAdminSecret, "admin-secret", "", "admin secret for the dev token endpoint")
}

// ── init-vault ───────────────────────────────────────────────────────────────

var initVaultCmd = &cobra.Command{
	Use:   "init-vault",
	Short: "Initialize the vault managed by the caller's wallet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		v, err := newClient().InitializeVault(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("vault %s initialized for manager %s (bump %d)\n", v.Address, v.Manager, v.Bump)
		return nil
	},
}

// ── vault-info ───────────────────────────────────────────────────────────────

var vaultInfoCmd = &cobra.Command{
	Use:   "vault-info <manager>",
	Short: "Show a vault's address, bump, and aggregate deposits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		v, err := newClient().GetVault(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(v)
	},
}

// ── deposit / withdraw ───────────────────────────────────────────────────────

var depositCmd = &cobra.Command{
	Use:   "deposit <manager> <asset> <amount>",
	Short: "Deposit a decimal amount of an asset into a manager's vault",
	Long: `Deposit moves tokens from the caller's token account into the vault's
custodial account and credits the caller's sub-account, for example:

  vault deposit <manager-wallet> USDX 3.123`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTx(args, "deposited", func(ctx context.Context, c *client.Client) (*client.TxResult, error) {
			return c.Deposit(ctx, args[0], args[1], args[2])
		})
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <manager> <asset> <amount>",
	Short: "Withdraw a decimal amount of an asset from a manager's vault",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTx(args, "withdrew", func(ctx context.Context, c *client.Client) (*client.TxResult, error) {
			return c.Withdraw(ctx, args[0], args[1], args[2])
		})
	},
}

func runTx(args []string, verb string, fn func(context.Context, *client.Client) (*client.TxResult, error)) error {
	ctx, cancel := cmdContext()
	defer cancel()

	res, err := fn(ctx, newClient())
	if err != nil {
		return err
	}
	fmt.Printf("%s %s %s, balance now %d units (receipt %s)\n",
		verb, res.AmountDecimal, args[1], res.Receipt.NewBalance, res.Receipt.ID)
	return nil
}

// ── balance ──────────────────────────────────────────────────────────────────

var balanceCmd = &cobra.Command{
	Use:   "balance <manager> <customer> <asset>",
	Short: "Show a customer's sub-account balance in a manager's vault",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		sa, err := newClient().GetBalance(ctx, args[0], args[2], args[1])
		if err != nil {
			return err
		}
		return printJSON(sa)
	},
}

// ── receipts ─────────────────────────────────────────────────────────────────

var (
	receiptsLimit  int
	receiptsFormat string
)

var receiptsCmd = &cobra.Command{
	Use:   "receipts <manager> <customer> <asset>",
	Short: "List a customer's operation receipts, newest first",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		receipts, err := newClient().ListReceipts(ctx, args[0], args[2], args[1], receiptsLimit)
		if err != nil {
			return err
		}
		if receiptsFormat == "json" {
			return printJSON(receipts)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tKIND\tASSET\tAMOUNT\tNEW BALANCE\tRECEIPT")
		for _, r := range receipts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				r.CreatedAt.Format(time.RFC3339), r.Kind, r.Asset, r.Amount, r.NewBalance, r.ID)
		}
		return w.Flush()
	},
}

func init() {
	receiptsCmd.Flags().IntVar(&receiptsLimit, "limit", 20, "maximum receipts to list")
	receiptsCmd.Flags().StringVar(&receiptsFormat, "format", "text", "Output format: text or json")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
