package main

import (
	"fmt"

	"github.com/aretw0/nodeweave/internal/cli"
	"github.com/aretw0/nodeweave/internal/presentation/tui"
	"github.com/aretw0/nodeweave/pkg/walker"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <graph>",
	Short: "Walk a graph once in dependency order",
	Long: `Executes every node of a graph level by level. <graph> is either a .json or
.yaml file or the name of a graph in the configured store.

Manual input nodes and approvals are asked for on the terminal unless
--headless is set, in which case they are left waiting.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		headless, _ := cmd.Flags().GetBool("headless")
		jsonOut, _ := cmd.Flags().GetBool("json")
		save, _ := cmd.Flags().GetBool("save")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		app, err := newApp(cmd, cli.Options{
			Interactive: !headless,
			Out:         cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		defer app.Close()

		interactive := !jsonOut && tui.IsInteractive()
		if interactive && !headless {
			tui.PrintBanner(cmd.ErrOrStderr())
		}

		if err := app.Open(ctx, args[0]); err != nil {
			return err
		}

		concurrency := app.Config.Walker.Concurrency
		if cmd.Flags().Changed("concurrency") {
			concurrency, _ = cmd.Flags().GetInt("concurrency")
		}

		session := &cli.Session{Engine: app.Engine, Logger: app.Logger}
		if !headless {
			session.Prompter = app.Prompter
		}
		report, err := session.Walk(ctx, concurrency)
		if err != nil {
			if sig := ctx.Signal(); sig != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "\nInterrupted (%v)\n", sig)
				return nil
			}
			return err
		}

		var render func(string) (string, error)
		if interactive {
			render = tui.NewRenderer()
		}
		if err := cli.PrintReport(cmd.OutOrStdout(), report, jsonOut, render); err != nil {
			return err
		}

		if save {
			if err := app.Save(ctx, args[0]); err != nil {
				return err
			}
		}
		if n := report.Count(walker.OutcomeFailed); n > 0 {
			return fmt.Errorf("%d node(s) failed", n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("headless", false, "Do not prompt; leave manual nodes waiting")
	runCmd.Flags().Bool("json", false, "Print the walk report as JSON")
	runCmd.Flags().Bool("save", false, "Write node state and variables back after the run")
	runCmd.Flags().Int("concurrency", 0, "Nodes executed at once per level (default from config)")
}
