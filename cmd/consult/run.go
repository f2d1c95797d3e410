package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/consult"
	"github.com/aretw0/consult/internal/cli"
	"github.com/aretw0/consult/internal/logging"
	"github.com/aretw0/consult/internal/presentation/tui"
	"github.com/aretw0/consult/pkg/domain"
	"github.com/aretw0/consult/pkg/observability"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an interactive consultation in the terminal",
	Long: `Starts an interactive consultation. Answer each question with y (yes),
n (no) or u (unknown); b goes back, r restarts, t shows the rule trace.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		targets, _ := cmd.Flags().GetStringSlice("target")
		showTrace, _ := cmd.Flags().GetBool("trace")
		debug, _ := cmd.Flags().GetBool("debug")
		plain, _ := cmd.Flags().GetBool("plain")

		// Logs would interleave with the prompt, so they stay off unless asked for.
		logger := logging.NewNop()
		hooks := domain.LifecycleHooks{}
		if debug {
			if logger, err = stderrLogger(cfg); err != nil {
				return err
			}
			hooks = observability.LogHooks(logger)
		}

		client, closeStore, err := newClient(cfg, logger, hooks)
		if err != nil {
			return err
		}
		defer closeStore()

		interactive := cli.IsTerminal(os.Stdout) && !plain
		opts := cli.Options{
			In:        os.Stdin,
			Out:       os.Stdout,
			ShowTrace: showTrace,
			Logger:    logger,
		}
		for _, t := range targets {
			opts.Targets = append(opts.Targets, domain.Target(t))
		}
		if interactive {
			tui.PrintBanner(os.Stdout)
			fmt.Printf(">>> consult %s, service %s\n", consult.Version, cfg.Service.URL)
			if opts.Render, err = tui.NewRenderer(""); err != nil {
				return err
			}
		}

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		sessionID, _ := cmd.Flags().GetString("session")
		resumable := sessionID != ""
		if !resumable {
			sessionID = uuid.NewString()
		}
		ctrl := client.NewConsultation(sessionID)
		store := client.Sessions().Store()

		if resumable {
			saved, err := store.Load(sigCtx, sessionID)
			switch {
			case err == nil:
				if err := ctrl.Restore(saved); err != nil {
					return err
				}
				fmt.Printf(">>> Resuming session '%s'.\n", sessionID)
			case !errors.Is(err, domain.ErrSessionNotFound):
				return fmt.Errorf("failed to load session: %w", err)
			}
		}

		runErr := cli.Run(sigCtx, ctrl, opts)
		if resumable {
			// The signal context may be gone already.
			if err := store.Save(context.Background(), sessionID, ctrl.Snapshot()); err != nil {
				logger.Error("Failed to save session", "session_id", sessionID, "err", err)
				return err
			}
		}
		if errors.Is(runErr, context.Canceled) && sigCtx.Signal() != nil {
			fmt.Println("\n>>> Interrupted.")
			return nil
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceP("target", "t", nil, "Target to diagnose (E, L, B or ALL); prompts when omitted")
	runCmd.Flags().StringP("session", "s", "", "Session ID to resume and save (use with the file or redis store)")
	runCmd.Flags().Bool("trace", false, "Print the rule trace after every answer")
	runCmd.Flags().Bool("debug", false, "Write logs to stderr")
	runCmd.Flags().Bool("plain", false, "Disable the banner and markdown rendering")

	rootCmd.RunE = runCmd.RunE
	rootCmd.Flags().AddFlagSet(runCmd.Flags())
}
