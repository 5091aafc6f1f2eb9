package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/proxydeck/proxydeck/internal/accounts"
	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/errors"
	"github.com/proxydeck/proxydeck/internal/store"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose environment and configuration issues",
	Long: `Perform an environment diagnostic for proxydeck.

This command checks:
- System information (OS, Go version)
- Configuration file and validation
- Proxy service directory, binary and log file
- Credential auth directory
- Quota database
- Management API and console reachability

Example:
  proxydeck doctor`,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

// doctorCategories orders the report sections.
var doctorCategories = []string{"System", "Configuration", "Service", "Accounts", "Database", "Connectivity"}

func runDoctor(cmd *cobra.Command, args []string) error {
	report := DoctorReport{
		Timestamp: time.Now().UTC(),
		Checks:    []DoctorCheck{},
	}

	report.Checks = append(report.Checks, collectSystemInfo()...)

	cfg, configChecks := checkConfiguration()
	report.Checks = append(report.Checks, configChecks...)

	if cfg != nil {
		report.Checks = append(report.Checks, checkService(cfg)...)
		report.Checks = append(report.Checks, checkAuthDir(cfg))
		report.Checks = append(report.Checks, checkDatabase(cfg))
		report.Checks = append(report.Checks, checkManagement(cfg))
		report.Checks = append(report.Checks, checkConsole(cfg))
	}

	report.Recommendations = generateRecommendations(report.Checks)

	return outputDoctorReport(report)
}

// DoctorReport represents the complete diagnostic report
type DoctorReport struct {
	Timestamp       time.Time     `json:"timestamp"`
	Checks          []DoctorCheck `json:"checks"`
	Recommendations []string      `json:"recommendations"`
}

// DoctorCheck represents a single diagnostic check
type DoctorCheck struct {
	Category    string `json:"category"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	Severity    string `json:"severity,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}

func collectSystemInfo() []DoctorCheck {
	checks := []DoctorCheck{
		{
			Category: "System",
			Name:     "Operating System",
			Status:   "OK",
			Message:  fmt.Sprintf("OS: %s (%s)", runtime.GOOS, runtime.GOARCH),
		},
		{
			Category: "System",
			Name:     "Go Version",
			Status:   "OK",
			Message:  fmt.Sprintf("Go: %s (CPUs: %d)", runtime.Version(), runtime.NumCPU()),
		},
	}

	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	wd := "unknown"
	if d, err := os.Getwd(); err == nil {
		wd = d
	}
	checks = append(checks, DoctorCheck{
		Category: "System",
		Name:     "User",
		Status:   "OK",
		Message:  fmt.Sprintf("User: %s, working directory: %s", username, wd),
	})

	return checks
}

// checkConfiguration loads the config and reports how. The loaded config is
// returned so the remaining checks run against the operator's actual setup.
func checkConfiguration() (*config.Config, []DoctorCheck) {
	check := DoctorCheck{
		Category: "Configuration",
		Name:     "Config File",
	}

	cfg, err := config.NewLoader(globalFlags.Config).Load()
	switch {
	case err == nil:
		check.Status = "OK"
		check.Message = fmt.Sprintf("Config loaded and valid: %s", globalFlags.Config)
	default:
		var notFound *errors.ErrConfigNotFound
		if stderrors.As(err, &notFound) && !globalFlags.configExplicit {
			cfg, err = config.Default()
		}
		if err != nil {
			check.Status = "FAIL"
			check.Message = fmt.Sprintf("Config not loadable: %v", err)
			check.Severity = "high"
			check.Remediation = "Fix the config file syntax or values, or pass --config with a valid path"
			return nil, []DoctorCheck{check}
		}
		check.Status = "WARN"
		check.Message = fmt.Sprintf("No config file at %s; using built-in defaults", globalFlags.Config)
		check.Severity = "low"
		check.Remediation = "Create a config.yaml or pass --config"
	}

	if globalFlags.DBPath != "" {
		cfg.Quota.DBPath = globalFlags.DBPath
	}
	return cfg, []DoctorCheck{check}
}

func checkService(cfg *config.Config) []DoctorCheck {
	checks := []DoctorCheck{}

	dirCheck := DoctorCheck{Category: "Service", Name: "Service Directory"}
	if cfg.Service.Dir == "" {
		dirCheck.Status = "WARN"
		dirCheck.Message = "Service dir not configured; process control is disabled"
		dirCheck.Severity = "medium"
		dirCheck.Remediation = "Set service.dir (or CPA_SERVICE_DIR) to the proxy's install directory"
		return append(checks, dirCheck)
	}
	if info, err := os.Stat(cfg.Service.Dir); err != nil || !info.IsDir() {
		dirCheck.Status = "FAIL"
		dirCheck.Message = fmt.Sprintf("Service dir does not exist: %s", cfg.Service.Dir)
		dirCheck.Severity = "high"
		dirCheck.Remediation = "Point service.dir at the directory the proxy binary lives in"
		return append(checks, dirCheck)
	}
	dirCheck.Status = "OK"
	dirCheck.Message = fmt.Sprintf("Service dir: %s", cfg.Service.Dir)
	checks = append(checks, dirCheck)

	binCheck := DoctorCheck{Category: "Service", Name: "Proxy Binary"}
	binary := cfg.Service.BinaryPath()
	if info, err := os.Stat(binary); err != nil {
		binCheck.Status = "FAIL"
		binCheck.Message = fmt.Sprintf("Binary not found: %s", binary)
		binCheck.Severity = "high"
		binCheck.Remediation = "Install the proxy binary or adjust service.binary_name"
	} else if info.Mode()&0111 == 0 {
		binCheck.Status = "FAIL"
		binCheck.Message = fmt.Sprintf("Binary is not executable: %s", binary)
		binCheck.Severity = "high"
		binCheck.Remediation = fmt.Sprintf("chmod +x %s", binary)
	} else {
		binCheck.Status = "OK"
		binCheck.Message = fmt.Sprintf("Binary: %s", binary)
	}
	checks = append(checks, binCheck)

	logCheck := DoctorCheck{Category: "Service", Name: "Log File"}
	if _, err := os.Stat(cfg.Service.LogFile); err != nil {
		logCheck.Status = "WARN"
		logCheck.Message = fmt.Sprintf("Log file not present yet: %s", cfg.Service.LogFile)
		logCheck.Severity = "low"
		logCheck.Remediation = "The proxy writes it on first start; log reads return empty until then"
	} else {
		logCheck.Status = "OK"
		logCheck.Message = fmt.Sprintf("Log file: %s", cfg.Service.LogFile)
	}
	checks = append(checks, logCheck)

	return checks
}

func checkAuthDir(cfg *config.Config) DoctorCheck {
	check := DoctorCheck{Category: "Accounts", Name: "Auth Directory"}

	entries, err := os.ReadDir(cfg.Accounts.AuthDir)
	if err != nil {
		check.Status = "WARN"
		check.Message = fmt.Sprintf("Auth dir not readable: %s", cfg.Accounts.AuthDir)
		check.Severity = "medium"
		check.Remediation = "Create the directory or set accounts.auth_dir; OAuth provisioning creates credentials there"
		return check
	}

	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			count++
		}
	}
	check.Status = "OK"
	check.Message = fmt.Sprintf("%d credential file(s) in %s", count, cfg.Accounts.AuthDir)
	if count == 0 {
		check.Status = "WARN"
		check.Message = fmt.Sprintf("No credential files in %s", cfg.Accounts.AuthDir)
		check.Severity = "low"
		check.Remediation = "Provision an account (POST /api/auth/<provider>) or copy credential JSON files in"
	}
	return check
}

func checkDatabase(cfg *config.Config) DoctorCheck {
	check := DoctorCheck{Category: "Database", Name: "Quota Database"}

	if _, err := os.Stat(filepath.Dir(cfg.Quota.DBPath)); err != nil {
		check.Status = "WARN"
		check.Message = fmt.Sprintf("Database directory does not exist: %s", filepath.Dir(cfg.Quota.DBPath))
		check.Severity = "low"
		check.Remediation = "It is created automatically on the first serve"
		return check
	}

	st, err := store.NewSQLiteStore(cfg.Quota.DBPath)
	if err != nil {
		check.Status = "FAIL"
		check.Message = fmt.Sprintf("Database not openable: %v", err)
		check.Severity = "high"
		check.Remediation = "Check permissions on the db path, or remove a corrupted file"
		return check
	}
	defer st.Close()

	stats := st.Stats()
	check.Status = "OK"
	check.Message = fmt.Sprintf("Database %s: %d snapshot(s), %d audit event(s)",
		cfg.Quota.DBPath, stats.SnapshotCount, stats.AuditEventCount)
	return check
}

func checkManagement(cfg *config.Config) DoctorCheck {
	check := DoctorCheck{Category: "Connectivity", Name: "Management API"}

	if !cfg.Management.Configured() {
		check.Status = "OK"
		check.Message = "Management API not configured; accounts come from local credential files"
		return check
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := accounts.NewManagementClient(cfg.Management.URL, cfg.Management.Key,
		accounts.WithTimeout(5*time.Second))
	files, err := client.ListAuthFiles(ctx)
	if err != nil {
		check.Status = "FAIL"
		check.Message = fmt.Sprintf("Management API at %s: %v", cfg.Management.URL, err)
		check.Severity = "medium"
		check.Remediation = "Check management.url and management.key; the console falls back to cached and local accounts meanwhile"
		return check
	}

	check.Status = "OK"
	check.Message = fmt.Sprintf("Management API reachable at %s (%d auth file(s))", cfg.Management.URL, len(files))
	return check
}

func checkConsole(cfg *config.Config) DoctorCheck {
	check := DoctorCheck{Category: "Connectivity", Name: "Console Server"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := newConsoleClient(cfg).Health(ctx)
	if err != nil {
		check.Status = "WARN"
		check.Message = fmt.Sprintf("Console not reachable at %s", consoleBaseURL(cfg))
		check.Severity = "low"
		check.Remediation = "Start it with \"proxydeck serve\"; service and quota commands need it"
		return check
	}

	proxState := "proxy not running"
	if health.ServiceRunning {
		proxState = "proxy running"
	}
	check.Status = "OK"
	check.Message = fmt.Sprintf("Console %s at %s (%s)", health.Version, consoleBaseURL(cfg), proxState)
	return check
}

func generateRecommendations(checks []DoctorCheck) []string {
	recommendations := []string{}

	failCount := 0
	warnCount := 0

	for _, check := range checks {
		if check.Status == "FAIL" {
			failCount++
			if check.Remediation != "" {
				recommendations = append(recommendations, fmt.Sprintf("[%s] %s: %s", check.Category, check.Name, check.Remediation))
			}
		}
		if check.Status == "WARN" {
			warnCount++
		}
	}

	if failCount == 0 && warnCount == 0 {
		recommendations = append(recommendations, "Environment is healthy. No recommendations needed.")
	} else if failCount > 0 {
		recommendations = append(recommendations, fmt.Sprintf("Found %d critical issue(s) and %d warning(s). Please address the critical issues first.", failCount, warnCount))
	}

	return recommendations
}

func outputDoctorReport(report DoctorReport) error {
	if globalFlags.JSON {
		return printJSON(report)
	}
	return outputDoctorReportTable(report)
}

func outputDoctorReportTable(report DoctorReport) error {
	fmt.Println("=== proxydeck doctor report ===")
	fmt.Printf("Generated: %s\n", report.Timestamp.Format(time.RFC3339))

	for _, category := range doctorCategories {
		printed := false
		for _, check := range report.Checks {
			if check.Category != category {
				continue
			}
			if !printed {
				fmt.Printf("\n--- %s ---\n", category)
				printed = true
			}
			statusIcon := "✓"
			if check.Status == "FAIL" {
				statusIcon = "✗"
			} else if check.Status == "WARN" {
				statusIcon = "!"
			}
			fmt.Printf("%s %s: %s\n", statusIcon, check.Name, check.Message)
		}
	}

	fmt.Println("\n--- Recommendations ---")
	if len(report.Recommendations) > 0 {
		for _, rec := range report.Recommendations {
			fmt.Printf("• %s\n", rec)
		}
	} else {
		fmt.Println("No recommendations.")
	}

	return nil
}
