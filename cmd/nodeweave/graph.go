package main

import (
	"fmt"

	"github.com/aretw0/nodeweave/internal/cli"
	"github.com/aretw0/nodeweave/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <graph>",
	Short: "Print a graph as a Mermaid diagram",
	Long: `Prints the graph as a Mermaid flowchart. With --run the graph is walked
headless first so --status shows how far execution got.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showStatus, _ := cmd.Flags().GetBool("status")
		showVars, _ := cmd.Flags().GetBool("vars")
		walk, _ := cmd.Flags().GetBool("run")

		app, err := openGraph(cmd, args[0])
		if err != nil {
			return err
		}
		defer app.Close()

		if walk {
			session := &cli.Session{Engine: app.Engine, Logger: app.Logger}
			if _, err := session.Walk(cmd.Context(), app.Config.Walker.Concurrency); err != nil {
				return err
			}
		}

		var overlay *graph.Overlay
		if showStatus || showVars {
			overlay = &graph.Overlay{Status: showStatus, Variables: showVars}
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(app.Engine.Nodes(), app.Engine.Connections(), overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("status", false, "Color nodes by their execution status")
	graphCmd.Flags().Bool("vars", false, "Show the variables each node writes")
	graphCmd.Flags().Bool("run", false, "Walk the graph headless before drawing it")
}
