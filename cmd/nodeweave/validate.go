package main

import (
	"fmt"

	"github.com/aretw0/nodeweave/internal/cli"
	"github.com/aretw0/nodeweave/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <graph>",
	Short: "Check a graph for structural problems",
	Long: `Validates node types, ports and connections of a graph document.
Errors make the command fail; warnings are printed but do not.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd, cli.Options{})
		if err != nil {
			return err
		}
		defer app.Close()

		doc, err := app.LoadDocument(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		report := validator.ValidateGraph(doc, app.Engine.Registry())
		out := cmd.OutOrStdout()
		for _, w := range report.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		if !report.OK() {
			return report.Err()
		}
		fmt.Fprintf(out, "%s is valid (%d nodes, %d connections)\n", args[0], len(doc.Nodes), len(doc.Connections))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
