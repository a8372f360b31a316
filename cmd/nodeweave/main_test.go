package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/aretw0/nodeweave"
	"github.com/aretw0/nodeweave/internal/cli"
	"github.com/aretw0/nodeweave/pkg/walker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--store", "memory"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeGraph(t *testing.T) string {
	t.Helper()
	eng := nodeweave.New()
	a, err := eng.AddNode("text.template", map[string]any{"label": "Topic", "template": "cli"})
	require.NoError(t, err)
	b, err := eng.AddNode("text.transform", map[string]any{"label": "Loud", "operation": "upper"})
	require.NoError(t, err)
	_, err = eng.Connect(a.ID, "text", b.ID, "text")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, cli.WriteGraphFile(path, eng.Export()))
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "nodeweave version "+nodeweave.Version+"\n", out)
}

func TestTypesCmd(t *testing.T) {
	out, err := runCLI(t, "types")
	require.NoError(t, err)
	assert.Contains(t, out, "text.template")
	assert.Contains(t, out, "approval")
}

func TestValidateCmd(t *testing.T) {
	path := writeGraph(t)

	out, err := runCLI(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid (2 nodes, 1 connections)")

	_, err = runCLI(t, "validate", "no-such-graph")
	assert.Error(t, err)
}

func TestGraphCmd(t *testing.T) {
	out, err := runCLI(t, "graph", writeGraph(t), "--run", "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "graph LR")
	assert.Contains(t, out, "class node_2 success;")
}

func TestRunCmd_SavesState(t *testing.T) {
	path := writeGraph(t)

	out, err := runCLI(t, "run", path, "--headless", "--json", "--save")
	require.NoError(t, err)

	var report walker.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "CLI", report.Results["node_2"].Outputs["text"])

	out, err = runCLI(t, "vars", path, "--search", "loud")
	require.NoError(t, err)
	assert.Contains(t, out, "| Loud | string | CLI |")
}

func TestVarsSetCmd(t *testing.T) {
	path := writeGraph(t)

	_, err := runCLI(t, "vars", "set", path, "limit", "number", "12")
	require.NoError(t, err)

	doc, err := cli.ReadGraphFile(path)
	require.NoError(t, err)
	require.Len(t, doc.Variables, 1)
	assert.Equal(t, "limit", doc.Variables[0].Name)
	assert.EqualValues(t, 12, doc.Variables[0].Value)

	_, err = runCLI(t, "vars", "set", path, "limit", "widget", "1")
	assert.Error(t, err)

	_, err = runCLI(t, "vars", "rm", path, "limit")
	require.NoError(t, err)
	doc, err = cli.ReadGraphFile(path)
	require.NoError(t, err)
	assert.Empty(t, doc.Variables)
}
