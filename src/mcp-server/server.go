// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/config"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/logger"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/version"
)

const serverName = "AdES Chain Validator"

var appVersion = version.Version // default version

// GetVersion returns the version the server reports, as set by the last
// call to [Run].
func GetVersion() string {
	return appVersion
}

// Run serves the validation tools over stdio until ctx is done or the
// client closes its input.
//
// Parameters:
//   - ctx: Lifetime of the server, usually cancelled on SIGINT or SIGTERM
//   - version: Version string reported to clients
//   - configPath: Configuration file; empty falls back to [config.EnvConfigFile]
//
// Returns:
//   - nil on cancellation or end of input
//   - An error when the configuration is invalid or the server fails
//
// Logs go to stderr as JSON lines and are silent unless the HTTP debug
// option is set, since stdout carries the protocol.
func Run(ctx context.Context, version, configPath string) error {
	appVersion = version

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewMCPLogger(os.Stderr, !cfg.HTTP.Debug)
	rt, err := cfg.Build(version, log)
	if err != nil {
		return fmt.Errorf("failed to build runtime: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	rt.Start(ctx)

	s, err := NewServerBuilder().
		WithConfig(cfg).
		WithRuntime(rt).
		WithVersion(version).
		WithDefaultTools().
		WithDefaultResources().
		Build()
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	return serve(ctx, s, os.Stdin, os.Stdout)
}

// serve runs the stdio transport of s on in and out.
func serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s)

	errChan := make(chan error, 1)
	go func() {
		errChan <- stdio.Listen(ctx, in, out)
	}()

	select {
	case err := <-errChan:
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("server shutdown: %w", err)
	case <-ctx.Done():
		return nil
	}
}
