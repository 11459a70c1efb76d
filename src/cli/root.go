// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/config"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/logger"
)

var (
	// ErrInputFileRequired is returned when a command needs -f and got none.
	ErrInputFileRequired = errors.New("input file is required")
	// ErrValidationFailed is returned when the target did not validate: its
	// chain is incomplete, a certificate in it is revoked, or a signature
	// reached no level.
	ErrValidationFailed = errors.New("validation failed")
)

// OperationPerformed reports whether a command ran a validation.
var OperationPerformed bool

// OperationPerformedSuccessfully reports whether that validation succeeded.
var OperationPerformedSuccessfully bool

// options holds the flags shared by every command.
type options struct {
	configFile       string
	trustFiles       []string
	intermediates    []string
	keyStore         string
	keyStorePassword string
	trustDir         string
	offline          bool
	validationTime   string

	tree    bool
	table   bool
	json    bool
	metrics bool
}

// Execute runs the root command with the process arguments.
//
// Parameters:
//   - ctx: Context canceled on SIGINT/SIGTERM
//   - version: Application version
//   - log: Logger for progress messages
//
// Returns:
//   - error: Command failure, [ErrInputFileRequired] or [ErrValidationFailed]
func Execute(ctx context.Context, version string, log logger.Logger) error {
	return NewRootCommand(version, log).ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. Each call returns fresh flag state.
func NewRootCommand(version string, log logger.Logger) *cobra.Command {
	if log == nil {
		log = logger.Nop()
	}
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "ades-chain-validator",
		Short:         "Certificate chain and AdES signature validator",
		Long:          "Builds certificate chains from trust anchors, embedded data, AIA and remote trust sources,\nresolves OCSP/CRL revocation status and reports the AdES level of CMS signatures.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "configuration file (.json, .yaml, .yml); defaults to $"+config.EnvConfigFile)
	pf.StringSliceVarP(&opts.trustFiles, "trust", "t", nil, "trust anchor file (PEM, DER or PKCS#7); repeatable")
	pf.StringSliceVar(&opts.intermediates, "intermediate", nil, "extra intermediate certificate file; repeatable")
	pf.StringVar(&opts.keyStore, "keystore", "", "PKCS#12 trust store")
	pf.StringVar(&opts.keyStorePassword, "keystore-password", "", "PKCS#12 trust store password")
	pf.StringVar(&opts.trustDir, "trust-dir", "", "directory of trust anchors")
	pf.BoolVar(&opts.offline, "offline", false, "no network access: only embedded and local data")
	pf.StringVar(&opts.validationTime, "at", "", "validate at this RFC 3339 instant instead of now")
	pf.BoolVar(&opts.tree, "tree", false, "print the chain as an ASCII tree (default)")
	pf.BoolVar(&opts.table, "table", false, "print processed certificates as a markdown table")
	pf.BoolVar(&opts.json, "json", false, "print the full report as JSON")
	pf.BoolVar(&opts.metrics, "metrics", false, "print validation metrics after the report")
	rootCmd.MarkFlagsMutuallyExclusive("tree", "table", "json")

	rootCmd.AddCommand(
		newValidateCertCommand(opts, version, log),
		newValidateSignatureCommand(opts, version, log),
		newValidateRemoteCommand(opts, version, log),
	)
	return rootCmd
}

// runtime loads the configuration, applies the flag overrides and builds
// the validation runtime.
func (o *options) runtime(ctx context.Context, version string, log logger.Logger) (*config.Runtime, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	cfg.Trust.Files = append(cfg.Trust.Files, o.trustFiles...)
	cfg.Trust.Intermediates = append(cfg.Trust.Intermediates, o.intermediates...)
	if o.keyStore != "" {
		cfg.Trust.KeyStore = o.keyStore
		cfg.Trust.KeyStorePassword = o.keyStorePassword
	}
	if o.trustDir != "" {
		cfg.Trust.Directory = o.trustDir
	}
	if o.offline {
		cfg.Validation.Offline = true
	}
	if o.validationTime != "" {
		cfg.Validation.Time = o.validationTime
	}
	// One-shot commands never watch the trust directory.
	cfg.Trust.Watch = false
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rt, err := cfg.Build(version, log)
	if err != nil {
		return nil, err
	}
	rt.Start(ctx)
	return rt, nil
}

// finish records the outcome and prints metrics when asked.
func (o *options) finish(cmd *cobra.Command, rt *config.Runtime, started time.Time, ok bool) error {
	OperationPerformed = true
	OperationPerformedSuccessfully = ok

	if o.metrics {
		summary, err := rt.Metrics.Summary()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n%s\nelapsed %s\n", summary, rt.CacheStats(), time.Since(started).Round(time.Millisecond))
	}
	if !ok {
		return ErrValidationFailed
	}
	return nil
}
