package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// EnvPrefix is prepended to every argument passed to a command.
const EnvPrefix = "NODEWEAVE_ARG_"

// ErrNotRegistered is returned for commands outside the allow-list.
var ErrNotRegistered = errors.New("command not registered")

// Runner executes allow-listed local processes for shell.command nodes.
// Node arguments never become command-line flags; they travel as environment
// variables named NODEWEAVE_ARG_<KEY>.
type Runner struct {
	registry    map[string]RegisteredCommand
	allowInline bool
	baseDir     string
}

// RegisteredCommand is one allowed executable with its fixed arguments.
type RegisteredCommand struct {
	Command string
	Args    []string
	Env     map[string]string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(cmds map[string]CommandConfig) RunnerOption {
	return func(r *Runner) {
		for name, c := range cmds {
			r.registry[name] = RegisteredCommand{Command: c.Command, Args: c.Args, Env: c.Environment}
		}
	}
}

// WithInlineExecution lets unregistered names run as literal command lines.
func WithInlineExecution(allow bool) RunnerOption {
	return func(r *Runner) {
		r.allowInline = allow
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// NewRunner creates a new process runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]RegisteredCommand),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.registry[name] = RegisteredCommand{
		Command: command,
		Args:    args,
	}
}

// Commands lists the registered names, sorted.
func (r *Runner) Commands() []string {
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named command and returns its trimmed stdout.
// Output that is a JSON object or array is decoded.
func (r *Runner) Run(ctx context.Context, name string, args map[string]any) (any, error) {
	proc, ok := r.registry[name]
	if !ok {
		fields := strings.Fields(name)
		if !r.allowInline || len(fields) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
		}
		proc = RegisteredCommand{Command: fields[0], Args: fields[1:]}
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir

	env := cmd.Environ()
	for k, v := range proc.Env {
		env = append(env, k+"="+v)
	}
	for k, v := range args {
		env = append(env, EnvPrefix+strings.ToUpper(k)+"="+envValue(v))
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("execution failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	trimmed := strings.TrimSpace(stdout.String())
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded, nil
		}
	}
	return trimmed, nil
}

// envValue renders primitives as text and everything else as JSON.
func envValue(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case string, int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}
