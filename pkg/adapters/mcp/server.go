package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/nodeweave"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/registry"
	"github.com/aretw0/nodeweave/pkg/sanitize"
	"github.com/aretw0/nodeweave/pkg/variables"
	"github.com/aretw0/nodeweave/pkg/walker"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"
)

const (
	graphURI     = "nodeweave://graph"
	variablesURI = "nodeweave://variables"
)

// Engine defines the interface required by the MCP server to drive a graph.
type Engine interface {
	Registry() *registry.Registry
	Variables() *variables.Store

	AddNode(nodeType string, config map[string]any) (domain.Node, error)
	RemoveNode(ctx context.Context, nodeID string) error
	Nodes() []domain.Node
	ConfigureBindings(nodeID string, inputMappings, outputMappings map[string]string, extras nodeweave.Extras) error
	Connect(fromID, fromPort, toID, toPort string) (domain.Connection, error)
	Disconnect(connID string) error

	Execute(ctx context.Context, nodeID string) (*domain.Result, error)
	Resume(ctx context.Context, nodeID string, value any) (*domain.Result, error)
	Cancel(ctx context.Context, nodeID string) error
	Walk(ctx context.Context, opts ...walker.Option) (*walker.Report, error)

	Export() *domain.GraphDocument
}

// Server wraps the Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:    engine,
		logger:    logger,
		mcpServer: server.NewMCPServer("nodeweave-mcp", strings.TrimSpace(nodeweave.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_node_types",
		mcp.WithDescription("List the node types that can be added to the graph."),
	), s.handleListNodeTypes)

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the full graph document: nodes, connections and bindings."),
	), s.handleGetGraph)

	s.mcpServer.AddTool(mcp.NewTool("add_node",
		mcp.WithDescription("Add a node of the given type. Its outputs are bound to variables named after its label."),
		mcp.WithString("type", mcp.Required(), mcp.Description("Registered node type, e.g. text.template")),
		mcp.WithObject("config", mcp.Description("Node configuration overriding the type defaults")),
	), s.handleAddNode)

	s.mcpServer.AddTool(mcp.NewTool("remove_node",
		mcp.WithDescription("Remove a node and every connection touching it."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node ID")),
	), s.handleRemoveNode)

	s.mcpServer.AddTool(mcp.NewTool("connect",
		mcp.WithDescription("Connect an output port to an input port. An existing connection into that input is replaced."),
		mcp.WithString("from_node", mcp.Required(), mcp.Description("Source node ID")),
		mcp.WithString("from_port", mcp.Required(), mcp.Description("Source output port")),
		mcp.WithString("to_node", mcp.Required(), mcp.Description("Target node ID")),
		mcp.WithString("to_port", mcp.Required(), mcp.Description("Target input port")),
	), s.handleConnect)

	s.mcpServer.AddTool(mcp.NewTool("disconnect",
		mcp.WithDescription("Remove a connection."),
		mcp.WithString("connection_id", mcp.Required(), mcp.Description("Connection ID, e.g. node_1:text->node_2:text")),
	), s.handleDisconnect)

	s.mcpServer.AddTool(mcp.NewTool("configure_bindings",
		mcp.WithDescription("Bind node ports to global variables."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node ID")),
		mcp.WithObject("input_mappings", mcp.Description("Input port to variable name")),
		mcp.WithObject("output_mappings", mcp.Description("Output port to variable name")),
	), s.handleConfigureBindings)

	s.mcpServer.AddTool(mcp.NewTool("execute_node",
		mcp.WithDescription("Execute one node. Manual nodes answer with status waiting until resumed."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node ID")),
	), s.handleExecute)

	s.mcpServer.AddTool(mcp.NewTool("resume_node",
		mcp.WithDescription("Supply the value a waiting node asked for."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node ID")),
		mcp.WithString("value", mcp.Required(), mcp.Description("User input")),
	), s.handleResume)

	s.mcpServer.AddTool(mcp.NewTool("cancel_node",
		mcp.WithDescription("Abandon a waiting node."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node ID")),
	), s.handleCancel)

	s.mcpServer.AddTool(mcp.NewTool("walk_graph",
		mcp.WithDescription("Execute every node once in dependency order."),
		mcp.WithNumber("concurrency", mcp.Description("Maximum nodes running at once")),
	), s.handleWalk)

	s.mcpServer.AddTool(mcp.NewTool("list_variables",
		mcp.WithDescription("List global variables."),
		mcp.WithString("type", mcp.Description("Only variables of this type")),
		mcp.WithString("search", mcp.Description("Case-insensitive substring of the name or description")),
	), s.handleListVariables)

	s.mcpServer.AddTool(mcp.NewTool("set_variable",
		mcp.WithDescription("Create or overwrite a global variable."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Variable name")),
		mcp.WithString("type", mcp.Required(), mcp.Description("One of string, number, boolean, object, array, largeText, image, audio, video, document")),
		mcp.WithString("value", mcp.Description("Value, coerced to the type")),
	), s.handleSetVariable)
}

type nodeArgs struct {
	NodeID string `mapstructure:"node_id"`
}

type addNodeArgs struct {
	Type   string         `mapstructure:"type"`
	Config map[string]any `mapstructure:"config"`
}

type connectArgs struct {
	FromNode string `mapstructure:"from_node"`
	FromPort string `mapstructure:"from_port"`
	ToNode   string `mapstructure:"to_node"`
	ToPort   string `mapstructure:"to_port"`
}

type bindingArgs struct {
	NodeID         string            `mapstructure:"node_id"`
	InputMappings  map[string]string `mapstructure:"input_mappings"`
	OutputMappings map[string]string `mapstructure:"output_mappings"`
}

type resumeArgs struct {
	NodeID string `mapstructure:"node_id"`
	Value  string `mapstructure:"value"`
}

type variableArgs struct {
	Name   string `mapstructure:"name"`
	Type   string `mapstructure:"type"`
	Value  any    `mapstructure:"value"`
	Search string `mapstructure:"search"`
}

func bind(request mcp.CallToolRequest, dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(request.GetArguments())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func errorResult(op string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
}

func (s *Server) handleListNodeTypes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.engine.Registry().Definitions())
}

func (s *Server) handleGetGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.engine.Export())
}

func (s *Server) handleAddNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args addNodeArgs
	if err := bind(request, &args); err != nil {
		return errorResult("add_node", err), nil
	}
	n, err := s.engine.AddNode(args.Type, args.Config)
	if err != nil {
		return errorResult("add_node", err), nil
	}
	return jsonResult(n)
}

func (s *Server) handleRemoveNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args nodeArgs
	if err := bind(request, &args); err != nil {
		return errorResult("remove_node", err), nil
	}
	if err := s.engine.RemoveNode(ctx, args.NodeID); err != nil {
		return errorResult("remove_node", err), nil
	}
	return mcp.NewToolResultText("removed " + args.NodeID), nil
}

func (s *Server) handleConnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args connectArgs
	if err := bind(request, &args); err != nil {
		return errorResult("connect", err), nil
	}
	conn, err := s.engine.Connect(args.FromNode, args.FromPort, args.ToNode, args.ToPort)
	if err != nil {
		return errorResult("connect", err), nil
	}
	return jsonResult(conn)
}

func (s *Server) handleDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("connection_id")
	if err != nil {
		return errorResult("disconnect", err), nil
	}
	if err := s.engine.Disconnect(id); err != nil {
		return errorResult("disconnect", err), nil
	}
	return mcp.NewToolResultText("removed " + id), nil
}

func (s *Server) handleConfigureBindings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args bindingArgs
	if err := bind(request, &args); err != nil {
		return errorResult("configure_bindings", err), nil
	}
	if err := s.engine.ConfigureBindings(args.NodeID, args.InputMappings, args.OutputMappings, nodeweave.Extras{}); err != nil {
		return errorResult("configure_bindings", err), nil
	}
	return mcp.NewToolResultText("bindings updated for " + args.NodeID), nil
}

func (s *Server) handleExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args nodeArgs
	if err := bind(request, &args); err != nil {
		return errorResult("execute_node", err), nil
	}
	res, err := s.engine.Execute(ctx, args.NodeID)
	return s.resultOf("execute_node", res, err)
}

func (s *Server) handleResume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args resumeArgs
	if err := bind(request, &args); err != nil {
		return errorResult("resume_node", err), nil
	}

	clean, err := sanitize.Input(args.Value)
	if err != nil {
		s.logger.Warn("MCP Resume: Input rejected", "error", err, "size", len(args.Value))
		return errorResult("resume_node", err), nil
	}

	res, err := s.engine.Resume(ctx, args.NodeID, clean)
	return s.resultOf("resume_node", res, err)
}

func (s *Server) handleCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args nodeArgs
	if err := bind(request, &args); err != nil {
		return errorResult("cancel_node", err), nil
	}
	if err := s.engine.Cancel(ctx, args.NodeID); err != nil {
		return errorResult("cancel_node", err), nil
	}
	return mcp.NewToolResultText("cancelled " + args.NodeID), nil
}

func (s *Server) handleWalk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var opts []walker.Option
	if n := request.GetInt("concurrency", 0); n > 0 {
		opts = append(opts, walker.WithConcurrency(n))
	}
	report, err := s.engine.Walk(ctx, opts...)
	if err != nil {
		return errorResult("walk_graph", err), nil
	}
	return jsonResult(report)
}

func (s *Server) handleListVariables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args variableArgs
	if err := bind(request, &args); err != nil {
		return errorResult("list_variables", err), nil
	}
	filter := variables.ListFilter{Search: args.Search}
	if args.Type != "" {
		t, err := domain.ParseVarType(args.Type)
		if err != nil {
			return errorResult("list_variables", err), nil
		}
		filter.Type = t
	}
	return jsonResult(s.engine.Variables().List(filter))
}

func (s *Server) handleSetVariable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args variableArgs
	if err := bind(request, &args); err != nil {
		return errorResult("set_variable", err), nil
	}
	t, err := domain.ParseVarType(args.Type)
	if err != nil {
		return errorResult("set_variable", err), nil
	}
	if err := s.engine.Variables().Put(ctx, args.Name, t, args.Value); err != nil {
		return errorResult("set_variable", err), nil
	}
	v, _ := s.engine.Variables().Peek(args.Name)
	return jsonResult(v)
}

// resultOf reports a failed behavior as a tool error carrying the result.
func (s *Server) resultOf(op string, res *domain.Result, err error) (*mcp.CallToolResult, error) {
	var execErr *domain.ExecutionError
	if errors.As(err, &execErr) && res != nil {
		out, jerr := jsonResult(res)
		if jerr != nil {
			return nil, jerr
		}
		out.IsError = true
		return out, nil
	}
	if err != nil {
		return errorResult(op, err), nil
	}
	return jsonResult(res)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(graphURI, "Current Graph Document",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonResource(graphURI, s.engine.Export())
	})

	s.mcpServer.AddResource(mcp.NewResource(variablesURI, "Global Variables",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonResource(variablesURI, s.engine.Variables().List(variables.ListFilter{}))
	})
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
