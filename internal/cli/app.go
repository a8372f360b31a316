package cli

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/nodeweave"
	"github.com/aretw0/nodeweave/internal/config"
	"github.com/aretw0/nodeweave/internal/logging"
	"github.com/aretw0/nodeweave/internal/presentation/tui"
	"github.com/aretw0/nodeweave/pkg/adapters/file"
	"github.com/aretw0/nodeweave/pkg/adapters/memory"
	"github.com/aretw0/nodeweave/pkg/adapters/openai"
	"github.com/aretw0/nodeweave/pkg/adapters/process"
	"github.com/aretw0/nodeweave/pkg/adapters/redis"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/graph"
	"github.com/aretw0/nodeweave/pkg/nodes"
	"github.com/aretw0/nodeweave/pkg/observability"
	"github.com/aretw0/nodeweave/pkg/persistence/middleware"
	"github.com/aretw0/nodeweave/pkg/ports"
	"github.com/aretw0/nodeweave/pkg/workspace"
)

// Options tune how an App is assembled for a particular command.
type Options struct {
	Config *config.Config
	Debug  bool
	// Interactive attaches a terminal prompter used for approvals and
	// waiting nodes.
	Interactive bool
	// Observe creates the event broker and, when the config enables them,
	// Prometheus metrics.
	Observe bool
	In      io.Reader
	Out     io.Writer
	// LogOutput overrides stderr as the log destination.
	LogOutput io.Writer
}

// App bundles everything a command needs: the engine, its persistence and
// the optional observability pieces.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Engine   *nodeweave.Engine
	Manager  *workspace.Manager
	Broker   *observability.Broker
	Metrics  *observability.Metrics
	Prompter *tui.Prompter

	closers []func() error
}

// NewApp wires an engine and a workspace from the configuration.
func NewApp(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	logger, err := createLogger(cfg.LogLevel, opts.Debug, opts.LogOutput)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger}

	store, locker, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		app.closers = append(app.closers, closeStore)
	}
	wsOpts := []workspace.Option{workspace.WithLogger(logger)}
	if locker != nil {
		wsOpts = append(wsOpts, workspace.WithLocker(locker))
	}
	app.Manager = workspace.NewManager(store, wsOpts...)

	engineOpts := []nodeweave.Option{nodeweave.WithLogger(logger)}

	var hooks []domain.LifecycleHooks
	if opts.Debug {
		hooks = append(hooks, observability.LogHooks(logger))
	}
	if opts.Observe {
		app.Broker = observability.NewBroker()
		app.closers = append(app.closers, func() error { app.Broker.Close(); return nil })
		hooks = append(hooks, app.Broker.Hooks())
		if cfg.Server.Metrics {
			app.Metrics = observability.NewMetrics()
			hooks = append(hooks, app.Metrics.Hooks())
		}
	}
	if len(hooks) > 0 {
		engineOpts = append(engineOpts, nodeweave.WithLifecycleHooks(domain.MergeHooks(hooks...)))
	}

	if opts.Interactive {
		var render func(string) (string, error)
		if tui.IsInteractive() {
			render = tui.NewRenderer()
		}
		app.Prompter = tui.NewPrompter(opts.In, opts.Out, render)
		engineOpts = append(engineOpts, nodeweave.WithConfirmer(app.Prompter))
	}

	if cfg.AI.APIKey != "" {
		engineOpts = append(engineOpts, nodeweave.WithAIClient(newAIClient(cfg.AI)))
	}

	runner, err := newCommandRunner(cfg.Nodes)
	if err != nil {
		return nil, err
	}
	engineOpts = append(engineOpts, nodeweave.WithNodeOptions(
		nodes.WithCommandRunner(runner),
		nodes.WithBaseDir(cfg.Nodes.BaseDir),
	))

	app.Engine = nodeweave.New(engineOpts...)
	return app, nil
}

// Close releases stores and brokers. It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// createLogger writes to stderr so stdout stays free for results and
// JSON-RPC. --debug always wins over the configured level.
func createLogger(level string, debug bool, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	if debug {
		return logging.NewWithWriter(w, slog.LevelDebug), nil
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithWriter(w, lvl), nil
}

// openStore builds the graph store named by the config, wrapped with the PII
// and encryption middlewares when they are configured. Redis also provides
// the distributed locker.
func openStore(cfg config.StoreConfig) (ports.GraphStore, ports.DistributedLocker, func() error, error) {
	var (
		store   ports.GraphStore
		locker  ports.DistributedLocker
		closeFn func() error
	)

	switch cfg.Driver {
	case "memory":
		store = memory.NewStore()
	case "", "file":
		format := graph.FormatJSON
		if cfg.Format == "yaml" {
			format = graph.FormatYAML
		}
		store = file.New(cfg.Dir, file.WithFormat(format))
	case "redis":
		rs := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			redis.WithTTL(cfg.TTL),
			redis.WithPrefix(cfg.RedisPrefix),
		)
		store = rs
		locker = redis.NewLocker(rs.Client(), cfg.RedisPrefix+"lock:")
		closeFn = rs.Close
	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}

	var mws []middleware.Middleware
	if len(cfg.PIIFields) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.PIIFields)
		if err != nil {
			return nil, nil, closeFn, err
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
		if err != nil {
			return nil, nil, closeFn, fmt.Errorf("invalid encryption key: %w", err)
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, nil, closeFn, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), locker, closeFn, nil
}

func newAIClient(cfg config.AIConfig) *openai.Client {
	var opts []openai.Option
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithChatModel(cfg.Model))
	}
	if cfg.ImageModel != "" {
		opts = append(opts, openai.WithImageModel(cfg.ImageModel))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, openai.WithTimeout(cfg.Timeout))
	}
	return openai.NewClient(cfg.APIKey, opts...)
}

func newCommandRunner(cfg config.NodesConfig) (*process.Runner, error) {
	opts := []process.RunnerOption{
		process.WithInlineExecution(cfg.AllowInline),
		process.WithBaseDir(cfg.BaseDir),
	}
	if cfg.Commands != "" {
		cmds, err := process.LoadCommands(cfg.Commands)
		if err != nil {
			return nil, err
		}
		opts = append(opts, process.WithRegistry(cmds))
	}
	return process.NewRunner(opts...), nil
}
