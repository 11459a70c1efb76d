// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package logger provides abstraction and implementation for logging operations.
// It defines the Logger interface and provides three implementations: CLILogger for
// human-readable command-line output, MCPLogger for structured JSON logging
// in MCP server environments, and a no-op logger used when a validation run is
// configured without one. Loggers are passed explicitly to every component; the
// package holds no global logger.
package logger
