package nodes

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/nodeweave/pkg/registry"
	"github.com/mitchellh/mapstructure"
)

// CommandRunner executes allow-listed commands for shell.command nodes.
type CommandRunner interface {
	Run(ctx context.Context, name string, args map[string]any) (any, error)
}

type options struct {
	commands   CommandRunner
	httpClient *http.Client
	baseDir    string
}

// Option configures the built-in node types.
type Option func(*options)

// WithCommandRunner enables shell.command nodes.
func WithCommandRunner(r CommandRunner) Option {
	return func(o *options) {
		o.commands = r
	}
}

// WithHTTPClient sets the client used by http.request nodes.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithBaseDir resolves relative file paths against dir.
func WithBaseDir(dir string) Option {
	return func(o *options) {
		o.baseDir = dir
	}
}

// Register adds every built-in node type to reg.
func Register(reg *registry.Registry, opts ...Option) {
	o := &options{httpClient: &http.Client{Timeout: 60 * time.Second}}
	for _, opt := range opts {
		opt(o)
	}

	for _, def := range []registry.Definition{
		textInput(),
		textTemplate(),
		textTransform(),
		jsonParse(),
		merge(),
		aiChat(),
		aiImage(),
		fileRead(o),
		fileWrite(o),
		httpRequest(o),
		approval(),
		variableGet(),
		variableSet(),
		shellCommand(o),
	} {
		reg.MustRegister(def)
	}
}

// decode maps a node config onto a settings struct.
func decode(config map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// firstString returns the first non-empty string among an input value and fallbacks.
func firstString(values ...any) string {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}
