// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/config"
	x509chain "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/chain"
	x509certs "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/certs"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/testpki"
)

const version = "1.3.3.7-testing"

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Defaults",
			testFunc: func(t *testing.T) {
				t.Setenv(config.EnvConfigFile, "")
				cfg, err := config.Load("")
				require.NoError(t, err)
				assert.Equal(t, config.Default(), cfg)
				assert.True(t, cfg.Revocation.OCSP)
				assert.True(t, cfg.Revocation.ClimbSigners)
				assert.True(t, cfg.ValidationTime().IsZero())
			},
		},
		{
			name: "JSON Overrides Defaults",
			testFunc: func(t *testing.T) {
				path := writeFile(t, t.TempDir(), "config.json", []byte(`{
					"http": {"timeout": "3s", "retryMax": 0},
					"revocation": {"crl": false},
					"validation": {"concurrency": 8, "time": "2024-05-01T12:00:00Z"}
				}`))
				cfg, err := config.Load(path)
				require.NoError(t, err)
				assert.Equal(t, "3s", cfg.HTTP.Timeout)
				assert.Equal(t, 0, cfg.HTTP.RetryMax)
				assert.False(t, cfg.Revocation.CRL)
				assert.True(t, cfg.Revocation.OCSP, "untouched fields keep defaults")
				assert.Equal(t, 8, cfg.Validation.Concurrency)
				assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), cfg.ValidationTime().UTC())
			},
		},
		{
			name: "YAML From Environment",
			testFunc: func(t *testing.T) {
				path := writeFile(t, t.TempDir(), "config.YML", []byte("aia:\n  enabled: false\nmetrics:\n  namespace: signing_gateway\n"))
				t.Setenv(config.EnvConfigFile, path)
				cfg, err := config.Load("")
				require.NoError(t, err)
				assert.False(t, cfg.AIA.Enabled)
				assert.Equal(t, "signing_gateway", cfg.Metrics.Namespace)
			},
		},
		{
			name: "Missing File",
			testFunc: func(t *testing.T) {
				_, err := config.Load(filepath.Join(t.TempDir(), "absent.json"))
				assert.Error(t, err)
				assert.NotErrorIs(t, err, config.ErrInvalid)
			},
		},
		{
			name: "Malformed YAML",
			testFunc: func(t *testing.T) {
				path := writeFile(t, t.TempDir(), "config.yaml", []byte("http: [unclosed"))
				_, err := config.Load(path)
				assert.ErrorContains(t, err, "parse YAML")
			},
		},
		{
			name: "Invalid Values",
			testFunc: func(t *testing.T) {
				path := writeFile(t, t.TempDir(), "config.json", []byte(`{
					"http": {"timeout": "soon", "burst": 0},
					"trust": {"files": ["/nonexistent/anchor.pem"], "bundleUrl": "not a url"},
					"validation": {"concurrency": 0, "time": "yesterday"},
					"metrics": {"namespace": "bad-name"}
				}`))
				_, err := config.Load(path)
				require.ErrorIs(t, err, config.ErrInvalid)
				for _, field := range []string{"Timeout", "Burst", "Files[0]", "BundleURL", "Concurrency", "Time", "Namespace"} {
					assert.Contains(t, err.Error(), field)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

func TestBuild(t *testing.T) {
	root := testpki.NewRoot(t, "Config Root")
	inter := testpki.NewIntermediate(t, root, "Config Inter")
	leaf := testpki.NewLeaf(t, inter, "Config Leaf")
	codec := x509certs.New()

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Offline With Trust Files",
			testFunc: func(t *testing.T) {
				dir := t.TempDir()
				cfg := config.Default()
				cfg.Validation.Offline = true
				cfg.Trust.Files = []string{writeFile(t, dir, "root.pem", codec.EncodePEM(root.Cert))}
				cfg.Trust.Intermediates = []string{writeFile(t, dir, "inter.pem", codec.EncodePEM(inter.Cert))}
				require.NoError(t, cfg.Validate())

				rt, err := cfg.Build(version, nil)
				require.NoError(t, err)
				assert.Nil(t, rt.Loader)
				assert.Nil(t, rt.Cache)
				assert.Equal(t, "response cache disabled", rt.CacheStats())

				vc, err := x509chain.NewCertificateContext(rt.Verifier)
				require.NoError(t, err)
				tok, err := vc.ValidateCertificate(context.Background(), leaf.Cert)
				require.NoError(t, err)
				assert.True(t, vc.ChainComplete(tok))
			},
		},
		{
			name: "Online Collaborators",
			testFunc: func(t *testing.T) {
				cfg := config.Default()
				cfg.Trust.BundleURL = "https://trust.example.test/bundle.pem"
				rt, err := cfg.Build(version, nil)
				require.NoError(t, err)
				require.NotNil(t, rt.Loader)
				require.NotNil(t, rt.Cache)
				assert.Equal(t, cfg.Revocation.CacheSize, rt.Cache.Config().MaxSize)
				assert.Equal(t, time.Hour, rt.Cache.Config().CleanupInterval)
				assert.Equal(t, 10*time.Second, rt.Loader.Config().Timeout)
				assert.Contains(t, rt.CacheStats(), "0")
			},
		},
		{
			name: "Unreadable Key Store",
			testFunc: func(t *testing.T) {
				cfg := config.Default()
				cfg.Trust.KeyStore = writeFile(t, t.TempDir(), "store.p12", []byte("not pkcs12"))
				_, err := cfg.Build(version, nil)
				assert.ErrorContains(t, err, "key store")
			},
		},
		{
			name: "Watched Directory Refreshes Verifier",
			testFunc: func(t *testing.T) {
				dir := t.TempDir()
				other := testpki.NewRoot(t, "Config Late Root")
				otherLeaf := testpki.NewLeaf(t, other, "Config Late Leaf")
				writeFile(t, dir, "root.pem", codec.EncodePEM(root.Cert))

				cfg := config.Default()
				cfg.Validation.Offline = true
				cfg.Trust.Directory = dir
				cfg.Trust.Watch = true
				rt, err := cfg.Build(version, nil)
				require.NoError(t, err)

				ctx, cancel := context.WithCancel(context.Background())
				defer cancel()
				rt.Start(ctx)

				complete := func() bool {
					vc, err := x509chain.NewCertificateContext(rt.Verifier)
					if err != nil {
						return false
					}
					tok, err := vc.ValidateCertificate(ctx, otherLeaf.Cert)
					return err == nil && vc.ChainComplete(tok)
				}
				assert.False(t, complete())

				// Give the watcher time to register before the change.
				time.Sleep(100 * time.Millisecond)
				writeFile(t, dir, "late.pem", codec.EncodePEM(other.Cert))
				assert.Eventually(t, complete, 5*time.Second, 50*time.Millisecond)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}
