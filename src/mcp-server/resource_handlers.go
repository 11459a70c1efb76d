// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/config"
)

// createResources returns the static and dynamic resources of the server.
// Handlers read deps when called, so resources may be created before the
// builder has all its dependencies.
func createResources(deps *ServerDependencies) []server.ServerResource {
	return []server.ServerResource{
		{
			Resource: mcp.NewResource("config://template", "Configuration Template",
				mcp.WithResourceDescription("Default validator configuration, usable as a starting point for a config file"),
				mcp.WithMIMEType("application/json"),
			),
			Handler: handleConfigResource,
		},
		{
			Resource: mcp.NewResource("info://version", "Version Information",
				mcp.WithResourceDescription("Server name, version and tool list"),
				mcp.WithMIMEType("application/json"),
			),
			Handler: func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
				return handleVersionResource(ctx, request, deps)
			},
		},
		{
			Resource: mcp.NewResource("status://server-status", "Server Status",
				mcp.WithResourceDescription("Effective configuration and response cache state"),
				mcp.WithMIMEType("application/json"),
			),
			Handler: func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
				return handleStatusResource(ctx, request, deps)
			},
		},
	}
}

// handleConfigResource serves [config.Default] as JSON.
//
// Returns:
//   - A slice containing the configuration template as JSON content
//   - An error if JSON marshaling fails
func handleConfigResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(request.Params.URI, config.Default())
}

func handleVersionResource(_ context.Context, request mcp.ReadResourceRequest, deps *ServerDependencies) ([]mcp.ResourceContents, error) {
	var tools []string
	for _, t := range deps.Tools {
		tools = append(tools, t.Tool.Name)
	}
	for _, t := range deps.ToolsWithRuntime {
		tools = append(tools, t.Tool.Name)
	}

	return jsonResource(request.Params.URI, map[string]any{
		"name":             serverName,
		"version":          deps.Version,
		"type":             "MCP Server",
		"tools":            tools,
		"supportedFormats": []string{"pem", "der", "pkcs7", "cms"},
		"levels":           []string{"BES", "EPES", "T", "C", "X", "XL", "A"},
	})
}

// handleStatusResource reports the effective configuration and the
// response cache of the runtime.
func handleStatusResource(_ context.Context, request mcp.ReadResourceRequest, deps *ServerDependencies) ([]mcp.ResourceContents, error) {
	status := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"server":    serverName,
		"version":   deps.Version,
	}
	if deps.Config != nil {
		cfg := *deps.Config
		if cfg.Trust.KeyStorePassword != "" {
			cfg.Trust.KeyStorePassword = "redacted"
		}
		status["config"] = cfg
	}
	if deps.Runtime != nil {
		status["responseCache"] = deps.Runtime.CacheStats()
	}
	return jsonResource(request.Params.URI, status)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
