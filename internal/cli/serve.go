package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yuna-network/yuna/internal/api"
	"github.com/yuna-network/yuna/internal/app/paidaction"
	"github.com/yuna-network/yuna/internal/daemon"
	"github.com/yuna-network/yuna/internal/dispatch"
	"github.com/yuna-network/yuna/internal/infra/sd"
	"github.com/yuna-network/yuna/internal/infra/sqlite"
	"github.com/yuna-network/yuna/internal/ledger"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	serveCmd.Flags().StringP("config", "c", "", "Path to config file (default ~/.yuna/config.toml)")
}

// ─── yuna serve ─────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend API server",
	Long: `Start the yuna daemon: open the account store, build the ledger and
the endpoint dispatcher from configuration, and serve the HTTP API the
chat frontend talks to.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = daemon.DefaultPath()
	}
	cfg, err := daemon.Load(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	store, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ledg := ledger.New(store, ledgerConfig(cfg.Economy))

	registry := dispatch.NewRegistry(cfg.Dispatch.Endpoints, dispatch.RegistryConfig{
		DownThreshold: cfg.Dispatch.DownThreshold,
		BackoffBase:   daemon.ParseDuration(cfg.Dispatch.BackoffBase, 30*time.Second),
		BackoffCap:    daemon.ParseDuration(cfg.Dispatch.BackoffCap, 10*time.Minute),
	})
	dispatcher := dispatch.NewDispatcher(registry, sd.NewClient(),
		daemon.ParseDuration(cfg.Dispatch.AttemptTimeout, 2*time.Minute))

	coordinator := paidaction.New(ledg, dispatcher)

	server := api.NewServer(ledg, coordinator, registry, cfg.Economy.GenerationCost)
	if cfg.API.Metrics {
		server.EnableMetrics()
	}

	httpSrv := &http.Server{
		Addr:    cfg.API.Addr(),
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("yuna: serving on %s (%d endpoints)", cfg.API.Addr(), len(cfg.Dispatch.Endpoints))
		errCh <- httpSrv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Printf("yuna: received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(ctx)
	}
}

// ledgerConfig maps the TOML economy section onto the ledger's config.
func ledgerConfig(eco daemon.EconomyConfig) ledger.Config {
	cfg := ledger.DefaultConfig()
	cfg.DailyMoney = eco.DailyMoney
	cfg.DailyExp = eco.DailyExp
	cfg.DailyCooldown = daemon.ParseDuration(eco.DailyCooldown, 24*time.Hour)
	cfg.MessageExpMin = eco.MessageExpMin
	cfg.MessageExpMax = eco.MessageExpMax
	cfg.MessageExpInterval = daemon.ParseDuration(eco.MessageExpInterval, time.Minute)
	if len(eco.GameRewards) > 0 {
		cfg.GameRewards = eco.GameRewards
	}
	return cfg
}

// ─── yuna config ────────────────────────────────────────────────────────────

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the daemon configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long:  `Write the default configuration to ~/.yuna/config.toml (refuses to overwrite).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := daemon.DefaultPath()
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := daemon.Write(daemon.DefaultConfig(), path); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	},
}
