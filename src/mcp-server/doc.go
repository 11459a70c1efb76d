// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package mcpserver exposes certificate and AdES signature validation as a
// Model Context Protocol ([MCP]) server over stdio.
//
// Tools validate a certificate, a CMS/CAdES signature or the chain served by
// a TLS endpoint, and report validation metrics and response cache usage.
// Every tool call runs its own validation context on the verifier built from
// the configuration, so calls share trust anchors, the network loader and
// the response cache but never each other's results.
//
// [MCP]: https://modelcontextprotocol.io/docs/getting-started/intro
package mcpserver
