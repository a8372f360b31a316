package main

import (
	"fmt"

	"github.com/aretw0/nodeweave/internal/cli"
	"github.com/aretw0/nodeweave/internal/presentation/tui"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/schema"
	"github.com/aretw0/nodeweave/pkg/variables"
	"github.com/spf13/cobra"
)

var varsCmd = &cobra.Command{
	Use:   "vars <graph>",
	Short: "List the variables saved with a graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeFilter, _ := cmd.Flags().GetString("type")
		search, _ := cmd.Flags().GetString("search")

		app, err := openGraph(cmd, args[0])
		if err != nil {
			return err
		}
		defer app.Close()

		filter := variables.ListFilter{Search: search}
		if typeFilter != "" {
			if filter.Type, err = domain.ParseVarType(typeFilter); err != nil {
				return err
			}
		}

		out := tui.FormatVariables(app.Engine.Variables().List(filter))
		if tui.IsInteractive() {
			if rendered, err := tui.NewRenderer()(out); err == nil {
				out = rendered
			}
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var varsSetCmd = &cobra.Command{
	Use:   "set <graph> <name> <type> <value>",
	Short: "Create or overwrite a variable and save the graph",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, name := args[0], args[1]
		t, err := domain.ParseVarType(args[2])
		if err != nil {
			return err
		}
		value, err := schema.Coerce(args[3], t)
		if err != nil {
			return err
		}

		app, err := openGraph(cmd, ref)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Engine.Variables().Put(cmd.Context(), name, t, value); err != nil {
			return err
		}
		return app.Save(cmd.Context(), ref)
	},
}

var varsRmCmd = &cobra.Command{
	Use:   "rm <graph> <name>",
	Short: "Delete a variable and save the graph",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openGraph(cmd, args[0])
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Engine.Variables().Delete(cmd.Context(), args[1]); err != nil {
			return err
		}
		return app.Save(cmd.Context(), args[0])
	},
}

func openGraph(cmd *cobra.Command, ref string) (*cli.App, error) {
	app, err := newApp(cmd, cli.Options{})
	if err != nil {
		return nil, err
	}
	if err := app.Open(cmd.Context(), ref); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func init() {
	rootCmd.AddCommand(varsCmd)
	varsCmd.AddCommand(varsSetCmd, varsRmCmd)
	varsCmd.Flags().String("type", "", "Only list variables of this type")
	varsCmd.Flags().String("search", "", "Match names or descriptions")
}
