package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/aretw0/nodeweave/internal/cli"
	"github.com/aretw0/nodeweave/pkg/adapters/mcp"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the engine as an MCP server so agents can build and run graphs
through tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		name, _ := cmd.Flags().GetString("graph")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		// Logs must never reach stdout, it carries JSON-RPC.
		app, err := newApp(cmd, cli.Options{LogOutput: os.Stderr})
		if err != nil {
			return err
		}
		defer app.Close()
		log.SetOutput(os.Stderr)

		if name != "" {
			if err := app.Open(ctx, name); err != nil && !errors.Is(err, domain.ErrGraphNotFound) {
				return err
			}
			defer func() {
				if err := app.Manager.Persist(context.WithoutCancel(ctx), name, app.Engine); err != nil {
					app.Logger.Error("Failed to save graph", "graph", name, "err", err)
				}
			}()
		}

		srv := mcp.NewServer(app.Engine, app.Logger)
		switch transport {
		case "stdio":
			app.Logger.Info("Starting MCP server (stdio)")
			return srv.ServeStdio()
		case "sse":
			port := app.Config.Server.MCPPort
			if cmd.Flags().Changed("port") {
				port, _ = cmd.Flags().GetInt("port")
			}
			app.Logger.Info("Starting MCP server (SSE)", "port", port)
			if err := srv.ServeSSE(ctx, port); err != nil {
				return err
			}
			app.Logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringP("transport", "t", "stdio", "Transport to use (stdio, sse)")
	mcpCmd.Flags().IntP("port", "p", 0, "Port for SSE transport (default from config)")
	mcpCmd.Flags().StringP("graph", "g", "", "Graph name to open and save on exit")
}
