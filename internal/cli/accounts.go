package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// accountsCmd groups account commands
var accountsCmd = &cobra.Command{
	Use:     "accounts",
	Aliases: []string{"a", "account"},
	Short:   "List and remove proxy accounts",
	Long: `List the proxy's accounts with their cached quota state, or remove an
account and the credential behind it.

Examples:
  proxydeck accounts list
  proxydeck accounts list --refresh
  proxydeck accounts remove antigravity-ops@example.com --yes`,
}

var accountsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List accounts with cached quota state",
	RunE:    runAccountsList,
}

var accountsListFlags struct {
	Refresh bool
}

var accountsRemoveCmd = &cobra.Command{
	Use:     "remove <account-id>",
	Aliases: []string{"rm", "delete"},
	Short:   "Remove an account and its credential",
	Args:    cobra.ExactArgs(1),
	RunE:    runAccountsRemove,
}

var accountsRemoveFlags struct {
	Yes bool
}

func init() {
	accountsListCmd.Flags().BoolVar(&accountsListFlags.Refresh, "refresh", false, "Force a quota refresh before listing")
	accountsRemoveCmd.Flags().BoolVar(&accountsRemoveFlags.Yes, "yes", false, "Confirm removal without prompting")

	accountsCmd.AddCommand(accountsListCmd, accountsRemoveCmd)
	RootCmd.AddCommand(accountsCmd)
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	resp, err := newConsoleClient(cfg).Accounts(context.Background(), accountsListFlags.Refresh)
	if err != nil {
		return err
	}

	if globalFlags.JSON {
		return printJSON(resp)
	}
	return printAccountsTable(resp)
}

func runAccountsRemove(cmd *cobra.Command, args []string) error {
	id := args[0]
	// Removal deletes the credential file and is irreversible.
	if !accountsRemoveFlags.Yes {
		return fmt.Errorf("removing %q deletes its credential file; re-run with --yes to confirm", id)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := newConsoleClient(cfg).RemoveAccount(context.Background(), id); err != nil {
		return err
	}

	if globalFlags.JSON {
		return printJSON(map[string]string{"status": "removed", "account_id": id})
	}
	fmt.Printf("Account %s removed\n", id)
	return nil
}

func printAccountsTable(resp *accountsResponse) error {
	if len(resp.Accounts) == 0 {
		fmt.Println("No accounts found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tEMAIL\tTIER\tACTIVE\tUSED\tQUOTA STATUS")

	for _, row := range resp.Accounts {
		email := row.Email
		if email == "" {
			email = "-"
		}
		active := "no"
		if row.Active {
			active = "yes"
		}
		used, quotaStatus := "-", "-"
		if row.Quota != nil {
			if len(row.Quota.Models) > 0 {
				used = fmt.Sprintf("%.1f%%", row.Quota.MaxUsedPercent())
			}
			quotaStatus = row.QuotaStatus
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.ID, row.Type, email, row.Tier, active, used, quotaStatus)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d account(s), source: %s\n", resp.Count, resp.Mode)
	if resp.SyncedAt != "" {
		fmt.Printf("Last management sync: %s\n", resp.SyncedAt)
	}
	return nil
}
