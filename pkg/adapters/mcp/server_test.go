package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/aretw0/nodeweave"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *nodeweave.Engine) {
	t.Helper()
	eng := nodeweave.New()
	return NewServer(eng, slog.New(slog.NewTextHandler(io.Discard, nil))), eng
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func TestServer_BuildAndExecute(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleAddNode(ctx, call(map[string]any{
		"type":   "text.template",
		"config": map[string]any{"label": "Topic", "template": "mcp"},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var topic domain.Node
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &topic))

	res, err = s.handleAddNode(ctx, call(map[string]any{
		"type":   "text.transform",
		"config": map[string]any{"label": "Shout", "operation": "upper"},
	}))
	require.NoError(t, err)
	var shout domain.Node
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &shout))

	res, err = s.handleConnect(ctx, call(map[string]any{
		"from_node": topic.ID, "from_port": "text",
		"to_node": shout.ID, "to_port": "text",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	_, err = s.handleExecute(ctx, call(map[string]any{"node_id": topic.ID}))
	require.NoError(t, err)
	res, err = s.handleExecute(ctx, call(map[string]any{"node_id": shout.ID}))
	require.NoError(t, err)

	var result domain.Result
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &result))
	assert.Equal(t, "MCP", result.Outputs["text"])

	res, err = s.handleGetGraph(ctx, call(nil))
	require.NoError(t, err)
	var doc domain.GraphDocument
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &doc))
	assert.Len(t, doc.Nodes, 2)
	assert.Len(t, doc.Connections, 1)
}

func TestServer_ErrorsAreToolResults(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleExecute(ctx, call(map[string]any{"node_id": "node_42"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "node_42")

	res, err = s.handleAddNode(ctx, call(map[string]any{"type": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleDisconnect(ctx, call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError, "connection_id is required")
}

func TestServer_ResumeSanitizes(t *testing.T) {
	s, eng := newTestServer(t)
	ctx := context.Background()

	ask, err := eng.AddNode("text.input", map[string]any{"label": "Name"})
	require.NoError(t, err)

	res, err := s.handleExecute(ctx, call(map[string]any{"node_id": ask.ID}))
	require.NoError(t, err)
	var result domain.Result
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &result))
	assert.Equal(t, domain.StatusWaiting, result.Status)

	res, err = s.handleResume(ctx, call(map[string]any{"node_id": ask.ID, "value": "Ada\x00"}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &result))
	assert.Equal(t, "Ada", result.Outputs["text"])

	res, err = s.handleResume(ctx, call(map[string]any{"node_id": ask.ID, "value": "again"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestServer_Variables(t *testing.T) {
	s, eng := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleSetVariable(ctx, call(map[string]any{"name": "topic", "type": "string", "value": "otters"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	v, ok := eng.Variables().Peek("topic")
	require.True(t, ok)
	assert.Equal(t, "otters", v.Value)

	res, err = s.handleSetVariable(ctx, call(map[string]any{"name": "x", "type": "widget"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleListVariables(ctx, call(map[string]any{"search": "TOP"}))
	require.NoError(t, err)
	var vars []domain.Variable
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &vars))
	require.Len(t, vars, 1)
	assert.Equal(t, "topic", vars[0].Name)
}

func TestServer_Bindings(t *testing.T) {
	s, eng := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, eng.Variables().Put(ctx, "subject", domain.TypeString, "otters"))

	n, err := eng.AddNode("text.transform", map[string]any{"label": "Loud", "operation": "upper"})
	require.NoError(t, err)

	res, err := s.handleConfigureBindings(ctx, call(map[string]any{
		"node_id":        n.ID,
		"input_mappings": map[string]any{"text": "subject"},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	res, err = s.handleWalk(ctx, call(map[string]any{"concurrency": 2}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	v, ok := eng.Variables().Peek("Loud")
	require.True(t, ok)
	assert.Equal(t, "OTTERS", v.Value)
}
