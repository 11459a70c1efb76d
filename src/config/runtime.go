// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package config

import (
	"context"
	"fmt"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/metrics"
	x509chain "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/chain"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/fetch"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/revocation"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/trust"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/logger"
)

// Runtime holds the collaborators built from a [Config]. One Runtime serves
// any number of validation contexts.
type Runtime struct {
	Verifier *x509chain.Verifier
	Metrics  *metrics.Prometheus
	Loader   *fetch.Loader             // nil when offline
	Cache    *revocation.ResponseCache // nil when offline or CRL disabled

	directory *trust.DirectorySource
	watch     bool
	log       logger.Logger
}

// Build assembles the runtime described by c.
//
// Parameters:
//   - version: Application version, used in the User-Agent
//   - log: Logger handed to every component; nil discards
//
// Returns:
//   - *Runtime: Ready verifier with its cache and metrics
//   - error: A trust source failed to load
func (c *Config) Build(version string, log logger.Logger) (*Runtime, error) {
	if log == nil {
		log = logger.Nop()
	}
	rt := &Runtime{
		Metrics: metrics.NewPrometheus(c.Metrics.Namespace),
		watch:   c.Trust.Watch,
		log:     logger.WithComponent(log, "config"),
	}

	anchors, err := c.trusted(log, rt)
	if err != nil {
		return nil, err
	}

	policy := x509chain.DefaultPolicy()
	policy.ClimbRevocationSigners = c.Revocation.ClimbSigners
	policy.CrossCheckOffline = c.Revocation.CrossCheckOffline
	policy.ValidationTime = c.ValidationTime()

	opts := []x509chain.Option{
		x509chain.WithPolicy(policy),
		x509chain.WithMetrics(rt.Metrics),
		x509chain.WithLogger(log),
	}

	if len(c.Trust.Intermediates) > 0 {
		adjunct, err := trust.LoadPEMFiles(token.SourceAdjunct, c.Trust.Intermediates...)
		if err != nil {
			return nil, fmt.Errorf("config: intermediates: %w", err)
		}
		opts = append(opts, x509chain.WithAdjunct(adjunct))
	}

	if !c.Validation.Offline {
		opts = append(opts, c.online(version, log, rt)...)
	}

	rt.Verifier = x509chain.NewVerifier(anchors, opts...)
	if rt.directory != nil {
		rt.directory.OnReload(rt.Verifier.Refresh)
	}
	return rt, nil
}

func (c *Config) trusted(log logger.Logger, rt *Runtime) (trust.Multi, error) {
	var anchors trust.Multi
	if len(c.Trust.Files) > 0 {
		src, err := trust.LoadPEMFiles(token.SourceTrustedList, c.Trust.Files...)
		if err != nil {
			return nil, fmt.Errorf("config: trust files: %w", err)
		}
		anchors = append(anchors, src)
	}
	if c.Trust.KeyStore != "" {
		src, err := trust.LoadKeyStore(c.Trust.KeyStore, c.Trust.KeyStorePassword, token.SourceTrustStore)
		if err != nil {
			return nil, fmt.Errorf("config: key store: %w", err)
		}
		anchors = append(anchors, src)
	}
	if c.Trust.Directory != "" {
		dir, err := trust.NewDirectorySource(c.Trust.Directory, token.SourceTrustStore, log)
		if err != nil {
			return nil, fmt.Errorf("config: trust directory: %w", err)
		}
		rt.directory = dir
		anchors = append(anchors, dir)
	}
	return anchors, nil
}

func (c *Config) online(version string, log logger.Logger, rt *Runtime) []x509chain.Option {
	httpCfg := fetch.NewHTTPConfig(version)
	httpCfg.Timeout = duration(c.HTTP.Timeout)
	httpCfg.UserAgent = c.HTTP.UserAgent
	httpCfg.RetryMax = c.HTTP.RetryMax
	httpCfg.RequestsPerSecond = c.HTTP.RequestsPerSecond
	httpCfg.Burst = c.HTTP.Burst
	httpCfg.MaxResponseSize = c.HTTP.MaxResponseBytes
	httpCfg.Debug = c.HTTP.Debug
	rt.Loader = fetch.NewLoader(httpCfg, log)

	var opts []x509chain.Option
	if c.AIA.Enabled {
		opts = append(opts, x509chain.WithAIA(fetch.NewAIAFetcher(rt.Loader)))
	}
	if c.Revocation.OCSP {
		opts = append(opts, x509chain.WithOCSPSource(revocation.NewOnlineOCSPSource(rt.Loader, rt.Metrics, log)))
	}
	if c.Revocation.CRL {
		cacheCfg := revocation.DefaultCacheConfig()
		cacheCfg.MaxSize = c.Revocation.CacheSize
		cacheCfg.CleanupInterval = duration(c.Revocation.CacheCleanup)
		cacheCfg.MaxAge = duration(c.Revocation.CacheMaxAge)
		rt.Cache = revocation.NewResponseCache(cacheCfg)
		opts = append(opts, x509chain.WithCRLSource(revocation.NewOnlineCRLSource(rt.Loader, rt.Cache, rt.Metrics, log)))
	}
	if c.Trust.BundleURL != "" {
		opts = append(opts, x509chain.WithRemoteSource(trust.NewBundleSource(rt.Loader, c.Trust.BundleURL)))
	}
	return opts
}

// Start runs the background loops of the runtime until ctx is done: the
// response cache cleanup and, when enabled, the trust directory watch.
// It does not block.
func (rt *Runtime) Start(ctx context.Context) {
	if rt.Cache != nil {
		go rt.Cache.Run(ctx)
	}
	if rt.directory != nil && rt.watch {
		go func() {
			if err := rt.directory.Watch(ctx); err != nil && ctx.Err() == nil {
				rt.log.Printf("trust directory watch stopped: %v", err)
			}
		}()
	}
}

// CacheStats describes the response cache, or reports that none is in use.
func (rt *Runtime) CacheStats() string {
	if rt.Cache == nil {
		return "response cache disabled"
	}
	return rt.Cache.Stats()
}
