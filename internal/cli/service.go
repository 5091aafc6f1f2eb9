package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/models"
	"github.com/proxydeck/proxydeck/internal/telegram"
)

// serviceCmd groups proxy process control commands
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Control the proxy process",
	Long: `Control the CLIProxyAPI process through a running console server.

The console server owns the process handle, so these commands talk to its API
rather than spawning or signaling the proxy themselves.

Examples:
  proxydeck service status
  proxydeck service start
  proxydeck service restart`,
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show proxy process status",
	RunE:  runServiceStatus,
}

var serviceStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the proxy process",
	RunE:  runServiceStart,
}

var serviceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the proxy process",
	RunE:  runServiceStop,
}

var serviceRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the proxy process",
	RunE:  runServiceRestart,
}

func init() {
	serviceCmd.AddCommand(serviceStatusCmd, serviceStartCmd, serviceStopCmd, serviceRestartCmd)
	RootCmd.AddCommand(serviceCmd)
}

func runServiceStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	status, err := newConsoleClient(cfg).ServiceStatus(context.Background())
	if err != nil {
		return err
	}

	if globalFlags.JSON {
		return printJSON(status)
	}
	return printServiceStatus(status)
}

func runServiceStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	status, err := newConsoleClient(cfg).ServiceAction(context.Background(), "start")
	if err != nil {
		return err
	}

	notifyTelegram(cfg, fmt.Sprintf("▶️ %s started (pid %d)", cfg.Service.BinaryName, status.PID))
	if globalFlags.JSON {
		return printJSON(status)
	}
	fmt.Printf("Service started (pid %d)\n", status.PID)
	return nil
}

func runServiceStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if _, err := newConsoleClient(cfg).ServiceAction(context.Background(), "stop"); err != nil {
		return err
	}

	notifyTelegram(cfg, fmt.Sprintf("⏹ %s stopped", cfg.Service.BinaryName))
	if globalFlags.JSON {
		return printJSON(map[string]string{"status": "stopped"})
	}
	fmt.Println("Service stopped")
	return nil
}

func runServiceRestart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	status, err := newConsoleClient(cfg).ServiceAction(context.Background(), "restart")
	if err != nil {
		return err
	}

	notifyTelegram(cfg, fmt.Sprintf("🔄 %s restarted (pid %d)", cfg.Service.BinaryName, status.PID))
	if globalFlags.JSON {
		return printJSON(status)
	}
	fmt.Printf("Service restarted (pid %d)\n", status.PID)
	return nil
}

func printServiceStatus(status *models.ServiceStatus) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUNNING\tPID\tUPTIME\tWORKING DIR\tLOG FILE")

	running, pid, uptime := "no", "-", "-"
	if status.Running {
		running = "yes"
		pid = strconv.Itoa(status.PID)
		uptime = status.Uptime().String()
	}
	dir, logFile := status.WorkingDir, status.LogFile
	if dir == "" {
		dir = "-"
	}
	if logFile == "" {
		logFile = "-"
	}

	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", running, pid, uptime, dir, logFile)
	return w.Flush()
}

// notifyTelegram sends a fire-and-forget operator note for one-shot commands.
func notifyTelegram(cfg *config.Config, text string) {
	if !cfg.Telegram.Enabled {
		return
	}
	telegram.Notify(cfg.Telegram.BotToken, cfg.Telegram.ChatID, text)
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
