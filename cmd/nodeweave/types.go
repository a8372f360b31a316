package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/aretw0/nodeweave"
	"github.com/spf13/cobra"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the available node types",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tCATEGORY\tINPUTS\tOUTPUTS\tDESCRIPTION")
		for _, def := range nodeweave.New().Registry().Definitions() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", def.Type, def.Category,
				strings.Join(def.Inputs, ","), strings.Join(def.Outputs, ","), def.Description)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(typesCmd)
}
