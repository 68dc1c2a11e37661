// Command oma is the CLI entry point: "oma refresh" pulls repository
// metadata, "oma plan" computes a reconciliation dry run, and
// "oma apply" computes and executes it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AOSC-Dev/omakase/internal/config"
	"github.com/AOSC-Dev/omakase/internal/ctxutil"
	"github.com/AOSC-Dev/omakase/internal/effector/proc"
	"github.com/AOSC-Dev/omakase/internal/errs"
	"github.com/AOSC-Dev/omakase/internal/fetch"
	"github.com/AOSC-Dev/omakase/internal/logging"
	"github.com/AOSC-Dev/omakase/internal/metadatastore"
	"github.com/AOSC-Dev/omakase/internal/reconcile"
	"github.com/AOSC-Dev/omakase/internal/refresh"
	"github.com/AOSC-Dev/omakase/internal/sigverify"
)

// transactionContext builds the composed, signal-cancellable context
// every top-level command runs under: a SIGINT/SIGTERM either cancels
// the returned context directly, or cancel() does when the command
// returns early.
func transactionContext() (context.Context, context.CancelFunc) {
	txn := ctxutil.NewTransaction(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			txn.Cancel()
		case <-done:
		}
	}()

	return txn.Context(), func() {
		close(done)
		signal.Stop(sigCh)
		txn.Cancel()
	}
}

var (
	configRoot string
	verbose    bool
	quiet      bool

	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "oma",
	Short: "A declarative, SAT-solved package reconciler",
	Long: `oma keeps an installed system in sync with a declarative blueprint
of wanted packages, resolving the full dependency graph with a SAT
solver before touching anything on disk.`,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch and verify the latest repository metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.New(logging.Options{Verbose: verbose, Quiet: quiet})
		cfg, err := config.Load(configRoot)
		if err != nil {
			return err
		}

		kr, err := sigverify.LoadKeyring(cfg.KeysDir)
		if err != nil {
			return err
		}
		store := metadatastore.New(cfg.CacheRoot)
		f := fetch.New(fetch.Config{
			ParallelismPerHost: cfg.FetchParallelismPerHost,
			RetryCeiling:       cfg.FetchRetryCeiling,
			RetryMaxInterval:   cfg.FetchRetryMaxInterval,
		})
		r := refresh.New(f, store, kr)

		ctx, cancel := transactionContext()
		defer cancel()

		for name, repo := range cfg.Repos {
			log.Info("refreshing repository", "repo", name)
			if err := r.One(ctx, name, repo); err != nil {
				log.Error("refresh failed", "repo", name, "error", err)
				return err
			}
		}
		log.Info("refresh complete")
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute the reconciliation plan without applying it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(false)
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Compute the reconciliation plan and apply it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(true)
	},
}

func runReconcile(apply bool) error {
	log := logging.New(logging.Options{Verbose: verbose, Quiet: quiet})
	cfg, err := config.Load(configRoot)
	if err != nil {
		return err
	}

	store := metadatastore.New(cfg.CacheRoot)
	eff := proc.New(cfg.EffectorBinary)

	ctx, cancel := transactionContext()
	defer cancel()

	report, err := reconcile.Run(ctx, log, cfg, store, eff, apply)
	if err != nil {
		return err
	}

	for _, a := range report.Actions {
		fmt.Println(a.String())
	}
	if len(report.Actions) == 0 {
		fmt.Println("nothing to do")
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("oma", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configRoot, "config-root", "/etc/oma", "Directory holding config.toml, user.blueprint, blueprint.d/, and keys/")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log warnings and errors")

	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(errs.ExitCode(err))
	}
}
