package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// quotasCmd represents the quotas command
var quotasCmd = &cobra.Command{
	Use:     "quotas",
	Aliases: []string{"q", "quota"},
	Short:   "Show per-account quota usage",
	Long: `Display cached quota usage for the proxy's accounts.

Examples:
  # Show all accounts
  proxydeck quotas

  # Force a refresh pass first
  proxydeck quotas --refresh

  # Per-model breakdown for one account
  proxydeck quotas --account antigravity-ops@example.com

  # Output as JSON
  proxydeck quotas --json | jq '.'`,
	RunE: runQuotas,
}

var quotasFlags struct {
	Provider string
	Account  string
	Refresh  bool
}

func init() {
	quotasCmd.Flags().StringVar(&quotasFlags.Provider, "provider", "", "Filter by provider type (e.g. antigravity)")
	quotasCmd.Flags().StringVar(&quotasFlags.Account, "account", "", "Show per-model detail for one account (id or email)")
	quotasCmd.Flags().BoolVar(&quotasFlags.Refresh, "refresh", false, "Refresh all quotas before showing")

	RootCmd.AddCommand(quotasCmd)
}

func runQuotas(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := newConsoleClient(cfg)
	ctx := context.Background()

	if quotasFlags.Refresh {
		summary, err := client.RefreshAll(ctx)
		if err != nil {
			return err
		}
		if !globalFlags.JSON {
			fmt.Printf("Refreshed %d account(s): %d ok, %d static, %d failed\n\n",
				summary.Total, summary.OK, summary.Static, summary.Failed)
		}
	}

	resp, err := client.Accounts(ctx, false)
	if err != nil {
		return err
	}

	rows := make([]accountRow, 0, len(resp.Accounts))
	for _, row := range resp.Accounts {
		if quotasFlags.Provider != "" && string(row.Type) != quotasFlags.Provider {
			continue
		}
		if quotasFlags.Account != "" && row.ID != quotasFlags.Account && row.Email != quotasFlags.Account {
			continue
		}
		rows = append(rows, row)
	}

	if globalFlags.JSON {
		return printJSON(rows)
	}
	if quotasFlags.Account != "" {
		return printModelTables(rows)
	}
	return printQuotasTable(rows)
}

func printQuotasTable(rows []accountRow) error {
	if len(rows) == 0 {
		fmt.Println("No accounts found matching the criteria.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tEMAIL\tSTATUS\tUSED\tMODELS\tFETCHED")

	for _, row := range rows {
		email := row.Email
		if email == "" {
			email = "-"
		}
		status, used, modelCount, fetched := row.QuotaStatus, "-", "-", "-"
		if status == "" {
			status = "-"
		}
		if row.Quota != nil {
			modelCount = fmt.Sprintf("%d", len(row.Quota.Models))
			if len(row.Quota.Models) > 0 {
				used = fmt.Sprintf("%.1f%%", row.Quota.MaxUsedPercent())
			}
			fetched = humanAge(row.Quota.FetchedAt)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.ID, email, status, used, modelCount, fetched)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d account(s)\n", len(rows))
	return nil
}

func printModelTables(rows []accountRow) error {
	if len(rows) == 0 {
		fmt.Println("No accounts found matching the criteria.")
		return nil
	}

	for _, row := range rows {
		fmt.Printf("Account: %s", row.ID)
		if row.Email != "" {
			fmt.Printf(" (%s)", row.Email)
		}
		fmt.Println()

		if row.Quota == nil {
			fmt.Println("  no quota snapshot yet; run with --refresh")
			continue
		}
		if row.Quota.Error != "" {
			fmt.Printf("  last fetch error: %s\n", row.Quota.Error)
		}
		if len(row.Quota.Models) == 0 {
			fmt.Println("  no per-model quota reported")
			continue
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tUSED\tRESETS")
		for _, name := range row.Quota.ModelNames() {
			m := row.Quota.Models[name]
			reset := "-"
			if !m.ResetAt.IsZero() {
				reset = m.ResetAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%.1f%%\t%s\n", name, m.UsedPercent, reset)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func humanAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return time.Since(t).Truncate(time.Second).String() + " ago"
}
