// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package mcpserver

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/config"
)

// ErrNoRuntime is returned by [ServerBuilder.Build] when tools need a
// runtime and none was given.
var ErrNoRuntime = errors.New("mcpserver: tools need a runtime")

// ToolHandler defines the signature for tool handlers that matches [MCP] server expectations.
//
// [MCP]: https://modelcontextprotocol.io/docs/getting-started/intro
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// ToolHandlerWithRuntime defines tool handlers that validate through the
// shared runtime.
//
// Parameters:
//   - ctx: Context for cancellation and timeout handling
//   - request: The MCP tool call request containing arguments and metadata
//   - deps: Server dependencies holding the configuration and runtime
//
// Returns:
//   - The tool execution result or an error if the tool failed
type ToolHandlerWithRuntime func(ctx context.Context, request mcp.CallToolRequest, deps *ServerDependencies) (*mcp.CallToolResult, error)

// ResourceHandler defines the signature for resource handlers.
type ResourceHandler = func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error)

// ToolDefinition pairs an MCP tool specification with a handler that needs
// no runtime.
type ToolDefinition struct {
	Tool    mcp.Tool
	Handler ToolHandler
}

// ToolDefinitionWithRuntime pairs an MCP tool specification with a handler
// that validates through the runtime.
type ToolDefinitionWithRuntime struct {
	Tool    mcp.Tool
	Handler ToolHandlerWithRuntime
}

// ServerDependencies holds all dependencies needed to create the MCP server.
//
// Fields:
//   - Config: Loaded configuration, used for defaults such as concurrency
//   - Runtime: Verifier, metrics and cache built from Config
//   - Version: Server version string
//   - Tools: Tool definitions without runtime requirements
//   - ToolsWithRuntime: Tool definitions that validate
//   - Resources: Static and dynamic resources
type ServerDependencies struct {
	Config           *config.Config
	Runtime          *config.Runtime
	Version          string
	Tools            []ToolDefinition
	ToolsWithRuntime []ToolDefinitionWithRuntime
	Resources        []server.ServerResource
}

// ServerBuilder helps construct the [MCP] server with proper dependencies using a fluent interface.
//
// Example:
//
//	s, err := NewServerBuilder().
//	    WithConfig(cfg).
//	    WithRuntime(rt).
//	    WithVersion("1.0.0").
//	    WithDefaultTools().
//	    WithDefaultResources().
//	    Build()
//
// [MCP]: https://modelcontextprotocol.io/docs/getting-started/intro
type ServerBuilder struct{ deps ServerDependencies }

// NewServerBuilder creates a new server builder with default empty dependencies.
func NewServerBuilder() *ServerBuilder { return &ServerBuilder{} }

// WithConfig sets the configuration.
func (b *ServerBuilder) WithConfig(cfg *config.Config) *ServerBuilder {
	b.deps.Config = cfg
	return b
}

// WithRuntime sets the runtime the validation tools run on.
func (b *ServerBuilder) WithRuntime(rt *config.Runtime) *ServerBuilder {
	b.deps.Runtime = rt
	return b
}

// WithVersion sets the server version string.
func (b *ServerBuilder) WithVersion(version string) *ServerBuilder {
	b.deps.Version = version
	return b
}

// WithTools adds tools that need no runtime.
func (b *ServerBuilder) WithTools(tools ...ToolDefinition) *ServerBuilder {
	b.deps.Tools = append(b.deps.Tools, tools...)
	return b
}

// WithToolsWithRuntime adds tools that validate through the runtime.
func (b *ServerBuilder) WithToolsWithRuntime(tools ...ToolDefinitionWithRuntime) *ServerBuilder {
	b.deps.ToolsWithRuntime = append(b.deps.ToolsWithRuntime, tools...)
	return b
}

// WithResources adds resources to the server.
func (b *ServerBuilder) WithResources(resources ...server.ServerResource) *ServerBuilder {
	b.deps.Resources = append(b.deps.Resources, resources...)
	return b
}

// WithDefaultTools adds every validation tool from [createTools].
func (b *ServerBuilder) WithDefaultTools() *ServerBuilder {
	tools, withRuntime := createTools()
	b.deps.Tools = append(b.deps.Tools, tools...)
	b.deps.ToolsWithRuntime = append(b.deps.ToolsWithRuntime, withRuntime...)
	return b
}

// WithDefaultResources adds the resources from [createResources].
func (b *ServerBuilder) WithDefaultResources() *ServerBuilder {
	b.deps.Resources = append(b.deps.Resources, createResources(&b.deps)...)
	return b
}

// Build creates the [MCP] server with all configured dependencies.
//
// Returns:
//   - A pointer to the configured MCPServer instance
//   - [ErrNoRuntime] when runtime tools were added without a runtime
//
// [MCP]: https://modelcontextprotocol.io/docs/getting-started/intro
func (b *ServerBuilder) Build() (*server.MCPServer, error) {
	if len(b.deps.ToolsWithRuntime) > 0 && b.deps.Runtime == nil {
		return nil, ErrNoRuntime
	}
	if b.deps.Config == nil {
		b.deps.Config = config.Default()
	}

	s := server.NewMCPServer(
		serverName,
		b.deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithRecovery(),
	)

	for _, tool := range b.deps.Tools {
		s.AddTool(tool.Tool, tool.Handler)
	}

	deps := &b.deps
	for _, tool := range b.deps.ToolsWithRuntime {
		handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return tool.Handler(ctx, request, deps)
		}
		s.AddTool(tool.Tool, handler)
	}

	for _, resource := range b.deps.Resources {
		s.AddResource(resource.Resource, resource.Handler)
	}

	return s, nil
}
