// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/level"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/signature"
	x509certs "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/certs"
	x509chain "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/chain"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
)

// readInput returns the bytes named by input, trying it as a file path
// first and as base64 data second.
func readInput(input string) ([]byte, error) {
	if data, err := os.ReadFile(input); err == nil {
		return data, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(input))
	if err != nil {
		return nil, fmt.Errorf("not a valid file path or base64 data")
	}
	return data, nil
}

// handleValidateCertificate validates the first certificate of the input,
// using any further certificates as intermediates.
//
// Parameters:
//   - ctx: Context for cancellation and timeout handling
//   - request: MCP tool call request with the certificate input and format
//   - deps: Server dependencies holding the runtime
//
// Returns:
//   - The rendered validation result; input problems are reported as tool errors
//   - An error only when the runtime fails
func handleValidateCertificate(ctx context.Context, request mcp.CallToolRequest, deps *ServerDependencies) (*mcp.CallToolResult, error) {
	input, err := request.RequireString("certificate")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("certificate parameter required: %v", err)), nil
	}
	format := request.GetString("format", "tree")

	data, err := readInput(input)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read certificate: %v", err)), nil
	}
	certs, err := x509certs.New().DecodeCertificates(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to decode certificate: %v", err)), nil
	}
	if len(certs) == 0 {
		return mcp.NewToolResultError("failed to decode certificate: no certificate in input"), nil
	}

	vc, err := x509chain.NewCertificateContext(deps.Runtime.Verifier)
	if err != nil {
		return nil, err
	}
	tok, err := vc.ValidateCertificate(ctx, certs[0], certs[1:]...)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("validation failed: %v", err)), nil
	}
	return render(vc, tok, nil, format)
}

// handleValidateSignature validates a CMS signature and reports the AdES
// level it reaches.
func handleValidateSignature(ctx context.Context, request mcp.CallToolRequest, deps *ServerDependencies) (*mcp.CallToolResult, error) {
	input, err := request.RequireString("signature")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("signature parameter required: %v", err)), nil
	}
	format := request.GetString("format", "tree")

	der, err := readInput(input)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read signature: %v", err)), nil
	}
	if block, _ := pem.Decode(der); block != nil {
		der = block.Bytes
	}
	var detached []byte
	if content := request.GetString("content", ""); content != "" {
		if detached, err = readInput(content); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read content: %v", err)), nil
		}
	}
	sig, err := signature.ParseCMS(der, detached)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse signature: %v", err)), nil
	}

	vc, err := x509chain.NewSignatureContext(deps.Runtime.Verifier, sig)
	if err != nil {
		return nil, err
	}
	tok, err := vc.ValidateSignature(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("validation failed: %v", err)), nil
	}
	report, err := level.Analyze(sig, vc)
	if err != nil {
		return nil, err
	}
	return render(vc, tok, report, format)
}

// handleValidateRemoteCertificate validates the chain a TLS endpoint
// presents. The handshake timeout is the configured HTTP timeout.
func handleValidateRemoteCertificate(ctx context.Context, request mcp.CallToolRequest, deps *ServerDependencies) (*mcp.CallToolResult, error) {
	hostname, err := request.RequireString("hostname")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("hostname parameter required: %v", err)), nil
	}
	port := int(request.GetFloat("port", 443))
	format := request.GetString("format", "tree")

	timeout := 10 * time.Second
	if d, err := time.ParseDuration(deps.Config.HTTP.Timeout); err == nil && d > 0 {
		timeout = d
	}

	certs, err := x509chain.FetchPeerCertificates(ctx, hostname, port, timeout)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch remote certificates: %v", err)), nil
	}

	vc, err := x509chain.NewCertificateContext(deps.Runtime.Verifier)
	if err != nil {
		return nil, err
	}
	tok, err := vc.ValidateCertificate(ctx, certs[0], certs[1:]...)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("validation failed: %v", err)), nil
	}
	return render(vc, tok, nil, format)
}

func handleGetValidationMetrics(_ context.Context, _ mcp.CallToolRequest, deps *ServerDependencies) (*mcp.CallToolResult, error) {
	if deps.Runtime.Metrics == nil {
		return mcp.NewToolResultText("metrics disabled"), nil
	}
	summary, err := deps.Runtime.Metrics.Summary()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to gather metrics: %v", err)), nil
	}
	if summary == "" {
		summary = "no validation recorded yet"
	}
	return mcp.NewToolResultText(summary), nil
}

// handleGetCacheStats reports the response cache together with process
// memory and GC statistics.
//
// JSON output is returned both as text and as structured content.
func handleGetCacheStats(_ context.Context, request mcp.CallToolRequest, deps *ServerDependencies) (*mcp.CallToolResult, error) {
	detailed := request.GetBool("detailed", false)
	format := request.GetString("format", "json")

	data := CollectResourceUsage(deps.Runtime, detailed)

	if format == "markdown" {
		return mcp.NewToolResultText(FormatResourceUsageAsMarkdown(data)), nil
	}

	jsonData, err := FormatResourceUsageAsJSON(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to format resource usage: %v", err)), nil
	}
	var structured map[string]any
	if err := json.Unmarshal([]byte(jsonData), &structured); err != nil {
		return mcp.NewToolResultText(jsonData), nil
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(jsonData)},
		StructuredContent: structured,
	}, nil
}

// render formats a finished run. The result is flagged as an error when
// the chain is not valid or the signature reached no level.
func render(vc *x509chain.ValidationContext, tok *token.CertificateToken, lr *level.Report, format string) (*mcp.CallToolResult, error) {
	ok := vc.ChainValid(tok)
	if lr != nil {
		ok = lr.Level != level.LevelNone
	}

	var body strings.Builder
	switch format {
	case "json":
		data, err := json.MarshalIndent(struct {
			Validation *x509chain.Report `json:"validation"`
			Level      *level.Report     `json:"level,omitempty"`
		}{vc.Report(tok), lr}, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode report: %v", err)), nil
		}
		body.Write(data)
	case "table":
		body.WriteString(vc.RenderTable())
	default:
		body.WriteString(vc.RenderASCIITree(tok))
	}
	if lr != nil && format != "json" {
		body.WriteString("\n" + lr.Summary())
	}

	header := fmt.Sprintf("Validation run %s: ", vc.RunID())
	if ok {
		header += "valid\n\n"
	} else {
		header += "not valid\n\n"
	}
	result := mcp.NewToolResultText(header + body.String())
	result.IsError = !ok
	return result, nil
}
