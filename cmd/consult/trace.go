package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/consult/internal/presentation/graph"
	"github.com/aretw0/consult/internal/presentation/tui"
	"github.com/aretw0/consult/pkg/domain"
	"github.com/aretw0/consult/pkg/trace"
	"github.com/spf13/cobra"
)

var traceCmd = &cobra.Command{
	Use:   "trace <session-id>",
	Short: "Fetch and classify the rule trace of a service session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		fact, _ := cmd.Flags().GetString("fact")

		logger, err := stderrLogger(cfg)
		if err != nil {
			return err
		}
		client, closeStore, err := newClient(cfg, logger, noHooks)
		if err != nil {
			return err
		}
		defer closeStore()

		snap, err := client.Service().Trace(cmd.Context(), domain.ServiceSession{ID: args[0], Token: cfg.Service.Token})
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrTraceFetchFailed, err)
		}
		res := trace.ClassifySnapshot(snap, fact)

		switch format {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		case "mermaid":
			fmt.Print(graph.GenerateMermaid(res))
			return nil
		case "markdown":
		default:
			return fmt.Errorf("unknown format %q. Supported: markdown, json, mermaid", format)
		}

		md := tui.TraceMarkdown(res)
		render, err := tui.NewRenderer("")
		if err != nil {
			fmt.Println(md)
			return nil
		}
		out, err := render(md)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.Flags().StringP("format", "f", "markdown", "Output format: markdown, json or mermaid")
	traceCmd.Flags().String("fact", "", "Fact to treat as the current question when the service reports none")
}
