// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createTools returns every MCP tool definition with its handler.
//
// Returns:
//   - A slice of ToolDefinition for tools without runtime dependencies
//   - A slice of ToolDefinitionWithRuntime for tools that validate
//
// The function defines the following tools:
//   - validate_certificate: Validates a certificate and its chain
//   - validate_signature: Validates a CMS/CAdES signature and reports its AdES level
//   - validate_remote_certificate: Validates the chain served by a TLS endpoint
//   - get_validation_metrics: Reports the Prometheus validation counters
//   - get_cache_stats: Reports response cache and process resource usage
func createTools() ([]ToolDefinition, []ToolDefinitionWithRuntime) {
	// No tool works without the runtime.
	var tools []ToolDefinition

	withRuntime := []ToolDefinitionWithRuntime{
		{
			Tool: mcp.NewTool("validate_certificate",
				mcp.WithDescription("Validate an X.509 certificate: build its chain to a trust anchor and resolve OCSP/CRL revocation status for every certificate"),
				mcp.WithString("certificate",
					mcp.Required(),
					mcp.Description("Certificate file path or base64-encoded certificate data (PEM, DER or PKCS#7); extra certificates are used as intermediates"),
				),
				mcp.WithString("format",
					mcp.Description("Output format: 'tree', 'table' or 'json' (default: tree)"),
					mcp.DefaultString("tree"),
					mcp.Enum("tree", "table", "json"),
				),
			),
			Handler: handleValidateCertificate,
		},
		{
			Tool: mcp.NewTool("validate_signature",
				mcp.WithDescription("Validate a CMS/CAdES signature: chain, revocation and timestamps, then report the AdES level reached (BES, EPES, T, C, X, XL, A)"),
				mcp.WithString("signature",
					mcp.Required(),
					mcp.Description("Signature file path or base64-encoded CMS data (DER or PEM)"),
				),
				mcp.WithString("content",
					mcp.Description("Detached content as a file path or base64 data"),
				),
				mcp.WithString("format",
					mcp.Description("Output format: 'tree', 'table' or 'json' (default: tree)"),
					mcp.DefaultString("tree"),
					mcp.Enum("tree", "table", "json"),
				),
			),
			Handler: handleValidateSignature,
		},
		{
			Tool: mcp.NewTool("validate_remote_certificate",
				mcp.WithDescription("Fetch the certificate chain served by a TLS endpoint and validate it"),
				mcp.WithString("hostname",
					mcp.Required(),
					mcp.Description("Remote hostname to connect to"),
				),
				mcp.WithNumber("port",
					mcp.Description("Port number (default: 443)"),
					mcp.DefaultNumber(443),
				),
				mcp.WithString("format",
					mcp.Description("Output format: 'tree', 'table' or 'json' (default: tree)"),
					mcp.DefaultString("tree"),
					mcp.Enum("tree", "table", "json"),
				),
			),
			Handler: handleValidateRemoteCertificate,
		},
		{
			Tool: mcp.NewTool("get_validation_metrics",
				mcp.WithDescription("Report validation counters: issuer resolution methods, revocation outcomes, fetch results and run durations"),
			),
			Handler: handleGetValidationMetrics,
		},
		{
			Tool: mcp.NewTool("get_cache_stats",
				mcp.WithDescription("Report revocation response cache statistics with memory and GC usage of the server"),
				mcp.WithBoolean("detailed",
					mcp.Description("Include detailed memory breakdown (default: false)"),
					mcp.DefaultBool(false),
				),
				mcp.WithString("format",
					mcp.Description("Output format: 'json' or 'markdown' (default: 'json')"),
					mcp.DefaultString("json"),
				),
			),
			Handler: handleGetCacheStats,
		},
	}

	return tools, withRuntime
}
