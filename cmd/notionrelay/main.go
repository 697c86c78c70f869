// NotionRelay is a macOS daemon that syncs Apple Reminders ↔ Notion databases
// bidirectionally using last-write-wins conflict resolution.
//
// Usage:
//
//	notionrelay setup                     # interactive first-run wizard
//	notionrelay daemon [--config <path>]  # continuous polling sync
//	notionrelay sync-once [--config ...]  # single sync pass then exit
//	notionrelay status                    # show daemon & config state
//	notionrelay history [--limit N]       # show recent sync pass summaries
//	notionrelay uninstall [--purge]       # stop daemon and remove files
//	notionrelay version                   # print version
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"notionrelay/internal/config"
	"notionrelay/internal/notion"
	"notionrelay/internal/reminders"
	"notionrelay/internal/scheduler"
	"notionrelay/internal/setup"
	"notionrelay/internal/state"
	syncp "notionrelay/internal/sync"
	"notionrelay/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

var (
	flagConfig  string
	flagVerbose bool
	flagPurge   bool
	flagLimit   int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "notionrelay",
	Short:         "Sync Apple Reminders ↔ Notion databases",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive first-run wizard",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		wiz := setup.NewWizard(os.Stdin, os.Stdout, logger)
		return wiz.Run(ctx)
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run as continuous daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return startSync(flagConfig, flagVerbose, true)
	},
}

var syncOnceCmd = &cobra.Command{
	Use:   "sync-once",
	Short: "Run a single sync pass then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return startSync(flagConfig, flagVerbose, false)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon & config state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync pass summaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory(flagLimit)
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop daemon and remove installed files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUninstall(flagPurge)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("notionrelay", version)
	},
}

func init() {
	defaultCfg, _ := config.DefaultPath()
	for _, c := range []*cobra.Command{daemonCmd, syncOnceCmd} {
		c.Flags().StringVar(&flagConfig, "config", defaultCfg, "path to config.yaml")
		c.Flags().BoolVar(&flagVerbose, "verbose", false, "enable debug logging")
	}
	historyCmd.Flags().IntVar(&flagLimit, "limit", 10, "number of entries to show")
	uninstallCmd.Flags().BoolVar(&flagPurge, "purge", false, "also remove config, state DB, and logs")

	rootCmd.AddCommand(setupCmd, daemonCmd, syncOnceCmd, statusCmd, historyCmd, uninstallCmd, versionCmd)
}

// runStatus prints the current daemon and configuration state.
func runStatus() error {
	cfgPath, _ := config.DefaultPath()
	homeDir, _ := os.UserHomeDir()
	dbPath, _ := state.DefaultDBPath()

	fmt.Println("NotionRelay Status")
	fmt.Println("──────────────────")

	if setup.IsDaemonLoaded() {
		fmt.Println("  Daemon:    running (launchd)")
	} else {
		fmt.Println("  Daemon:    not loaded")
	}

	if _, err := os.Stat(cfgPath); err == nil {
		if cfg, loadErr := config.Load(cfgPath); loadErr == nil {
			fmt.Printf("  Config:    %s ✓\n", cfgPath)
			fmt.Printf("  Mappings:  %d\n", len(cfg.Mappings))
			fmt.Printf("  Poll:      %s\n", cfg.PollInterval)
		} else {
			fmt.Printf("  Config:    %s (invalid: %v)\n", cfgPath, loadErr)
		}
	} else {
		fmt.Printf("  Config:    not found (%s)\n", cfgPath)
	}

	if info, err := os.Stat(dbPath); err == nil {
		fmt.Printf("  State DB:  %s (%s)\n", dbPath, humanSize(info.Size()))
	} else {
		fmt.Printf("  State DB:  not found\n")
	}

	plistPath := setup.PlistPath(homeDir)
	if _, err := os.Stat(plistPath); err == nil {
		fmt.Printf("  Plist:     %s\n", plistPath)
	} else {
		fmt.Printf("  Plist:     not installed\n")
	}

	fmt.Printf("  Logs:      %s\n", setup.LogDir(homeDir))
	return nil
}

// runHistory prints recent sync pass summaries per mapping.
func runHistory(limit int) error {
	dbPath, err := state.DefaultDBPath()
	if err != nil {
		return err
	}
	store, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening state DB at %q: %w", dbPath, err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	mappings, err := store.ListMappings(ctx)
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		fmt.Println("No mappings in the state DB yet. Run 'notionrelay sync-once' first.")
		return nil
	}

	for _, m := range mappings {
		entries, err := store.RecentHistory(ctx, m.ID, limit)
		if err != nil {
			return err
		}

		fmt.Printf("%s ↔ %s\n", m.AppleListID, m.NotionDatabaseID)
		if len(entries) == 0 {
			fmt.Println("  (no passes recorded)")
			continue
		}
		for _, e := range entries {
			line := fmt.Sprintf("  %s  +%d ~%d -%d", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Created, e.Updated, e.Deleted)
			if e.Conflicts > 0 {
				line += fmt.Sprintf("  conflicts:%d", e.Conflicts)
			}
			if len(e.Errors) > 0 {
				line += fmt.Sprintf("  errors:%d", len(e.Errors))
			}
			fmt.Println(line)
		}
	}
	return nil
}

// runUninstall stops the daemon and removes installed files.
func runUninstall(purge bool) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}

	fmt.Println("Uninstalling NotionRelay...")

	if setup.IsDaemonLoaded() {
		fmt.Println("  Unloading daemon...")
		if err := setup.UnloadDaemon(homeDir); err != nil {
			fmt.Printf("  ⚠ %v\n", err)
		} else {
			fmt.Println("  ✓ Daemon unloaded")
		}
	}

	if err := setup.RemovePlist(homeDir); err != nil {
		fmt.Printf("  ⚠ %v\n", err)
	} else {
		fmt.Println("  ✓ Plist removed")
	}

	fmt.Println("  Removing binary...")
	if err := setup.RemoveBinary(); err != nil {
		fmt.Printf("  ⚠ %v\n", err)
	} else {
		fmt.Println("  ✓ Binary removed")
	}

	if purge {
		fmt.Println("  Purging config, state DB, and logs...")
		if err := setup.PurgeUserData(homeDir); err != nil {
			fmt.Printf("  ⚠ %v\n", err)
		} else {
			fmt.Println("  ✓ User data purged")
		}
	} else {
		fmt.Println("")
		fmt.Println("  Config and state DB preserved.")
		fmt.Println("  Run with --purge to also remove them:")
		fmt.Println("    notionrelay uninstall --purge")
	}

	fmt.Println("")
	fmt.Println("✓ NotionRelay uninstalled.")
	return nil
}

// --- Sync core (shared by daemon and sync-once) ------------------------------

// startSync is the shared implementation for daemon and sync-once modes.
func startSync(cfgPath string, verbose, daemon bool) error {
	// --- Logger --------------------------------------------------------------

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// --- Config --------------------------------------------------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config from %q: %w", cfgPath, err)
	}
	logger.Info("config loaded",
		"poll_interval", cfg.PollInterval,
		"mappings", len(cfg.Mappings),
	)

	// --- Telemetry (optional) ------------------------------------------------

	if cfg.Telemetry != nil {
		telCfg := telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Headers:      cfg.Telemetry.Headers,
		}
		shutdownTel, err := telemetry.Setup(context.Background(), telCfg)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			}()
		}
	}

	// --- State DB ------------------------------------------------------------

	dbPath, err := state.DefaultDBPath()
	if err != nil {
		return fmt.Errorf("resolving state DB path: %w", err)
	}
	store, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening state DB at %q: %w", dbPath, err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("closing state DB", "error", closeErr)
		}
	}()
	logger.Info("state DB opened", "path", dbPath)

	// --- Reminders adapter ---------------------------------------------------

	logger.Info("initialising Apple Reminders client (may trigger permissions prompt)…")
	remAdapter, err := reminders.NewAdapter(logger)
	if err != nil && strings.Contains(err.Error(), "access denied") {
		// macOS has denied Reminders access (TCC). Open System Settings to the
		// correct privacy page so the user can flip the switch, then retry once.
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "⚠️  Reminders access is denied.")
		fmt.Fprintln(os.Stderr, "   Opening System Settings → Privacy & Security → Reminders…")
		_ = exec.Command("open", "x-apple.systempreferences:com.apple.preference.security?Privacy_Reminders").Start()
		fmt.Fprint(os.Stderr, "   Press Enter after granting access to retry: ")
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		remAdapter, err = reminders.NewAdapter(logger)
	}
	if err != nil {
		return fmt.Errorf("initialising Reminders client: %w", err)
	}
	logger.Info("Reminders client ready")

	// --- Notion adapter & connectivity check ---------------------------------

	notionAdapter := notion.NewAdapter(cfg.NotionToken, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// --- Reconcile config mappings into the state DB -------------------------

	if err := ensureMappings(ctx, cfg, store, notionAdapter, logger); err != nil {
		return fmt.Errorf("preparing mappings: %w", err)
	}

	// --- Orchestrator --------------------------------------------------------

	orch := syncp.NewOrchestrator(remAdapter, notionAdapter, store, logger)

	if !daemon {
		logger.Info("running single sync pass")
		stats, err := orch.SyncAll(ctx)
		logger.Info("sync complete",
			"created", stats.Created,
			"updated", stats.Updated,
			"deleted", stats.Deleted,
			"conflicts", stats.Conflicts,
			"errors", stats.Errors,
		)
		return err
	}

	// daemon mode
	logger.Info("daemon starting", "poll_interval", cfg.PollInterval)
	sched := scheduler.New(orch, logger)
	if err := sched.Start(ctx, cfg.PollInterval); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	<-ctx.Done()
	sched.Stop()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// ensureMappings upserts the config's mappings into the state DB, resolves
// their property bindings against the live database schemas, and disables
// stored mappings that are no longer configured. Records of disabled mappings
// are kept so re-adding the mapping does not duplicate pages.
func ensureMappings(ctx context.Context, cfg *config.Config, store *state.Store, adapter *notion.Adapter, logger *slog.Logger) error {
	configured := make(map[string]bool, len(cfg.Mappings))

	for i := range cfg.Mappings {
		mc := &cfg.Mappings[i]
		m := mc.ToState()
		configured[m.AppleListID+"\x00"+m.NotionDatabaseID] = true

		if !m.Enabled {
			if err := store.UpsertMapping(ctx, m); err != nil {
				return fmt.Errorf("storing mapping %q: %w", m.AppleListID, err)
			}
			continue
		}

		logger.Info("verifying Notion database", "database", m.NotionDatabaseID)
		if err := adapter.Ping(ctx, m.NotionDatabaseID); err != nil {
			return fmt.Errorf("database %q unreachable: %w\n\nCheck that it is shared with the integration", m.NotionDatabaseID, err)
		}
		if err := adapter.ResolveBindings(ctx, m); err != nil {
			return fmt.Errorf("mapping %q: %w", m.AppleListID, err)
		}
		if err := store.UpsertMapping(ctx, m); err != nil {
			return fmt.Errorf("storing mapping %q: %w", m.AppleListID, err)
		}
	}

	stored, err := store.ListMappings(ctx)
	if err != nil {
		return err
	}
	for _, m := range stored {
		if configured[m.AppleListID+"\x00"+m.NotionDatabaseID] || !m.Enabled {
			continue
		}
		logger.Info("disabling mapping removed from config", "list", m.AppleListID, "database", m.NotionDatabaseID)
		if err := store.SetMappingEnabled(ctx, m.ID, false); err != nil {
			return err
		}
	}
	return nil
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
