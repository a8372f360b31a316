package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/nodeweave/internal/cli"
	api "github.com/aretw0/nodeweave/pkg/adapters/http"
	"github.com/aretw0/nodeweave/pkg/adapters/mcp"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Serves one engine over a JSON API with an SSE event stream at /events.

With --graph the named graph is opened at start (when it exists) and written
back to the store after every graph or variable change and on shutdown.
With --mcp an MCP SSE endpoint for the same engine is started on the MCP port.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("graph")
		withMCP, _ := cmd.Flags().GetBool("mcp")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		app, err := newApp(cmd, cli.Options{Observe: true})
		if err != nil {
			return err
		}
		defer app.Close()

		port := app.Config.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		if name != "" {
			err := app.Open(ctx, name)
			switch {
			case errors.Is(err, domain.ErrGraphNotFound):
				app.Logger.Info("Starting with an empty graph", "graph", name)
			case err != nil:
				return err
			}
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: api.NewHandler(app.Engine,
				api.WithBroker(app.Broker),
				api.WithMetrics(app.Metrics),
				api.WithLogger(app.Logger),
			),
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			app.Logger.Info("HTTP server listening", "address", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				app.Logger.Warn("Graceful shutdown did not complete", "err", err)
				return srv.Close()
			}
			return nil
		})
		if withMCP {
			g.Go(func() error {
				return mcp.NewServer(app.Engine, app.Logger).ServeSSE(gctx, app.Config.Server.MCPPort)
			})
		}
		if name != "" {
			g.Go(func() error {
				return autosave(gctx, app, name)
			})
		}

		err = g.Wait()
		if sig := ctx.Signal(); sig != nil {
			app.Logger.Info("Server stopped", "signal", sig.String())
		}
		return err
	},
}

// autosave persists the graph after every structural or variable change and
// once more when ctx ends.
func autosave(ctx context.Context, app *cli.App, name string) error {
	events, unsubscribe := app.Broker.Subscribe(16)
	defer unsubscribe()

	persist := func(ctx context.Context) {
		if err := app.Manager.Persist(ctx, name, app.Engine); err != nil {
			app.Logger.Error("Autosave failed", "graph", name, "err", err)
		}
	}
	for {
		select {
		case <-ctx.Done():
			saveCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			persist(saveCtx)
			cancel()
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case domain.EventGraphChange, domain.EventVariableChange:
				persist(ctx)
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (default from config)")
	serveCmd.Flags().StringP("graph", "g", "", "Graph name to open and autosave")
	serveCmd.Flags().Bool("mcp", false, "Also serve MCP over SSE on the MCP port")
}
