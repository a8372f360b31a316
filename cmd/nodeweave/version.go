package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/nodeweave"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of nodeweave",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "nodeweave version %s\n", strings.TrimSpace(nodeweave.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
