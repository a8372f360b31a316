package process

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
}

func TestRunner_Run(t *testing.T) {
	skipOnWindows(t)
	ctx := context.Background()

	runner := NewRunner()
	runner.Register("greet", "echo", "hello")
	runner.Register("echo_env", "sh", "-c", "echo $NODEWEAVE_ARG_MSG")
	runner.Register("emit_json", "sh", "-c", `echo '{"count": 2}'`)
	runner.Register("fail", "sh", "-c", "echo oops >&2; exit 3")

	t.Run("registered command", func(t *testing.T) {
		out, err := runner.Run(ctx, "greet", nil)
		require.NoError(t, err)
		assert.Equal(t, "hello", out)
	})

	t.Run("arguments travel as env vars", func(t *testing.T) {
		out, err := runner.Run(ctx, "echo_env", map[string]any{"msg": "; rm -rf /"})
		require.NoError(t, err)
		assert.Equal(t, "; rm -rf /", out)
	})

	t.Run("json output is decoded", func(t *testing.T) {
		out, err := runner.Run(ctx, "emit_json", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"count": float64(2)}, out)
	})

	t.Run("failure carries stderr", func(t *testing.T) {
		_, err := runner.Run(ctx, "fail", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "oops")
	})

	t.Run("unregistered is rejected", func(t *testing.T) {
		_, err := runner.Run(ctx, "rm -rf /tmp/x", nil)
		assert.ErrorIs(t, err, ErrNotRegistered)
	})
}

func TestRunner_Inline(t *testing.T) {
	skipOnWindows(t)
	runner := NewRunner(WithInlineExecution(true))

	out, err := runner.Run(context.Background(), "echo inline works", nil)
	require.NoError(t, err)
	assert.Equal(t, "inline works", out)
}

func TestLoadCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
commands:
  - name: wc
    command: wc
    args: ["-l"]
    description: count lines
  - command: nameless
`), 0o644))

	cmds, err := LoadCommands(path)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, []string{"-l"}, cmds["wc"].Args)

	runner := NewRunner(WithRegistry(cmds))
	assert.Equal(t, []string{"wc"}, runner.Commands())

	missing, err := LoadCommands(filepath.Join(dir, "none.yaml"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
