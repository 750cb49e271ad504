// Command ledger is the operator CLI of splitledger. It works directly on the
// same database file as the server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/config"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
	"github.com/mmynk/splitledger/pkg/logging"
)

// app holds what every command needs once the root pre-run has finished.
type app struct {
	cfgFile  string
	logLevel string

	cfg    *config.Config
	store  *sqlite.SQLiteStore
	engine *ledger.Engine
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "ledger",
		Short: "Shared-expense ledger for two people",
		Long: `ledger ingests e-receipts, tracks who owes what for every line item and
settles the balance between the two primary participants.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.open,
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if a.store != nil {
				return a.store.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./splitledger.yaml or $HOME/.config/splitledger/splitledger.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		ingestCmd(a),
		uncountedCmd(a),
		countCmd(a),
		balancesCmd(a),
		settleCmd(a),
		settlementsCmd(a),
		expenseCmd(a),
		staticShareCmd(a),
		paymentCmd(a),
		exportCmd(a),
		hashPasswordCmd(),
	)
	return root
}

func (a *app) open(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations["standalone"] == "true" {
		return logging.Setup(a.logLevel)
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	level := a.logLevel
	if level == "" {
		level = cfg.Log.Level
	}
	if err := logging.Setup(level); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}

	engine := ledger.New(store, ledger.Options{DefaultCurrency: cfg.DefaultCurrency})
	if _, err := engine.EnsureParticipants(cmd.Context(), cfg.Participants.Primary, cfg.Participants.Excluded); err != nil {
		store.Close()
		return fmt.Errorf("failed to seed participants: %w", err)
	}

	a.cfg, a.store, a.engine = cfg, store, engine
	slog.Debug("Ledger opened", "database", cfg.DBPath)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
