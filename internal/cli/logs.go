package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/proxydeck/proxydeck/internal/logtail"
)

// logsCmd tails the proxy log through the console
var logsCmd = &cobra.Command{
	Use:     "logs",
	Aliases: []string{"l", "log"},
	Short:   "Tail or clear the proxy log",
	Long: `Show the tail of the proxy's log file, or clear it.

Examples:
  proxydeck logs
  proxydeck logs --lines 200
  proxydeck logs clear --backup`,
	RunE: runLogs,
}

var logsFlags struct {
	Lines int
}

var logsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Truncate the proxy log",
	RunE:  runLogsClear,
}

var logsClearFlags struct {
	Backup bool
}

func init() {
	logsCmd.Flags().IntVar(&logsFlags.Lines, "lines", logtail.DefaultTailLines, "Number of lines to show")
	logsClearCmd.Flags().BoolVar(&logsClearFlags.Backup, "backup", false, "Back up the log before clearing")

	logsCmd.AddCommand(logsClearCmd)
	RootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lines, err := newConsoleClient(cfg).LogsTail(context.Background(), logsFlags.Lines)
	if err != nil {
		return err
	}

	if globalFlags.JSON {
		return printJSON(map[string]interface{}{"lines": lines, "count": len(lines)})
	}
	if len(lines) == 0 {
		fmt.Println("Log is empty.")
		return nil
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

func runLogsClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	backupPath, err := newConsoleClient(cfg).LogsClear(context.Background(), logsClearFlags.Backup)
	if err != nil {
		return err
	}

	if globalFlags.JSON {
		out := map[string]string{"status": "cleared"}
		if backupPath != "" {
			out["backup_path"] = backupPath
		}
		return printJSON(out)
	}
	if backupPath != "" {
		fmt.Printf("Log cleared (backup: %s)\n", backupPath)
	} else {
		fmt.Println("Log cleared")
	}
	return nil
}
