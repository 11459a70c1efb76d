// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cli_test

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/cli"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/config"
	x509certs "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/certs"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/testpki"
)

const version = "1.3.3.7-testing"

// run executes the command tree with args and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigFile, "")

	var out bytes.Buffer
	cmd := cli.NewRootCommand(version, nil)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writePEM(t *testing.T, dir, name string, certs ...*x509.Certificate) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, x509certs.New().EncodeMultiplePEM(certs), 0o644))
	return path
}

func TestExecute(t *testing.T) {
	root := testpki.NewRoot(t, "CLI Root")
	inter := testpki.NewIntermediate(t, root, "CLI Inter")
	leaf := testpki.NewLeaf(t, inter, "CLI Leaf")
	dir := t.TempDir()
	rootFile := writePEM(t, dir, "root.pem", root.Cert)
	chainFile := writePEM(t, dir, "chain.pem", leaf.Cert, inter.Cert)

	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "No Input File",
			testFunc: func(t *testing.T) {
				_, err := run(t, "validate-cert")
				assert.ErrorIs(t, err, cli.ErrInputFileRequired)
			},
		},
		{
			name: "Invalid File",
			testFunc: func(t *testing.T) {
				bad := filepath.Join(t.TempDir(), "invalid.cer")
				require.NoError(t, os.WriteFile(bad, []byte("invalid data"), 0o644))
				_, err := run(t, "validate-cert", "-f", bad)
				assert.ErrorContains(t, err, "decoding certificate")
			},
		},
		{
			name: "Non Existent File",
			testFunc: func(t *testing.T) {
				_, err := run(t, "validate-cert", "-f", filepath.Join(t.TempDir(), "nonexistent.cer"))
				assert.ErrorContains(t, err, "reading input file")
			},
		},
		{
			name: "Mutually Exclusive Formats",
			testFunc: func(t *testing.T) {
				_, err := run(t, "validate-cert", "-f", chainFile, "--json", "--table")
				assert.Error(t, err)
			},
		},
		{
			name: "Tree Output",
			testFunc: func(t *testing.T) {
				out, err := run(t, "validate-cert", "-f", chainFile, "-t", rootFile, "--offline")
				require.NoError(t, err)
				assert.Contains(t, out, "CLI Leaf (End-Entity Certificate)")
				assert.Contains(t, out, "CLI Root (Trust Anchor) trusted")
				assert.True(t, cli.OperationPerformed)
				assert.True(t, cli.OperationPerformedSuccessfully)
			},
		},
		{
			name: "Table Output With Metrics",
			testFunc: func(t *testing.T) {
				out, err := run(t, "validate-cert", "-f", chainFile, "-t", rootFile, "--offline", "--table", "--metrics")
				require.NoError(t, err)
				assert.Contains(t, out, "SUBJECT")
				assert.Contains(t, out, "ades_validator_issuer_resolutions_total")
				assert.Contains(t, out, "response cache disabled")
			},
		},
		{
			name: "JSON Output",
			testFunc: func(t *testing.T) {
				out, err := run(t, "validate-cert", "-f", chainFile, "-t", rootFile, "--offline", "--json")
				require.NoError(t, err)

				var doc struct {
					Validation struct {
						ChainComplete bool `json:"chainComplete"`
						Certificates  []struct {
							Role string `json:"role"`
						} `json:"certificates"`
					} `json:"validation"`
					Level json.RawMessage `json:"level"`
				}
				require.NoError(t, json.Unmarshal([]byte(out), &doc))
				assert.True(t, doc.Validation.ChainComplete)
				assert.Len(t, doc.Validation.Certificates, 3)
				assert.Nil(t, doc.Level)
			},
		},
		{
			name: "Untrusted Chain Fails",
			testFunc: func(t *testing.T) {
				out, err := run(t, "validate-cert", "-f", chainFile, "--offline")
				assert.ErrorIs(t, err, cli.ErrValidationFailed)
				assert.Contains(t, out, "issuer not found")
				assert.False(t, cli.OperationPerformedSuccessfully)
			},
		},
		{
			name: "Revoked Leaf Fails",
			testFunc: func(t *testing.T) {
				revoked := testpki.NewLeaf(t, inter, "CLI Revoked Leaf")
				cmsFile := filepath.Join(t.TempDir(), "revoked.p7s")
				require.NoError(t, os.WriteFile(cmsFile, testpki.CMS(t, revoked, []byte("payload"), testpki.CMSOptions{
					Certificates: []*x509.Certificate{inter.Cert},
					CRLs:         [][]byte{inter.CRL(t, testpki.Revoked{Serial: revoked.Cert.SerialNumber, At: time.Now().Add(-time.Hour)})},
				}), 0o644))

				out, err := run(t, "validate-signature", "-f", cmsFile, "-t", rootFile, "--offline")
				assert.ErrorIs(t, err, cli.ErrValidationFailed)
				assert.Contains(t, out, "AdES level: none")
				assert.Contains(t, out, "CLI Revoked Leaf is revoked")
			},
		},
		{
			name: "Signature Level",
			testFunc: func(t *testing.T) {
				cmsFile := filepath.Join(t.TempDir(), "signed.p7s")
				require.NoError(t, os.WriteFile(cmsFile, testpki.CMS(t, leaf, []byte("payload"), testpki.CMSOptions{
					Certificates: []*x509.Certificate{inter.Cert},
				}), 0o644))

				out, err := run(t, "validate-signature", "-f", cmsFile, "-t", rootFile, "--offline")
				require.NoError(t, err)
				assert.Contains(t, out, "AdES level: BES")
				assert.Contains(t, out, "[✗] T: no signature timestamp")
			},
		},
		{
			name: "Detached Signature Needs Content",
			testFunc: func(t *testing.T) {
				dir := t.TempDir()
				cmsFile := filepath.Join(dir, "detached.p7s")
				contentFile := filepath.Join(dir, "payload.txt")
				require.NoError(t, os.WriteFile(contentFile, []byte("payload"), 0o644))
				require.NoError(t, os.WriteFile(cmsFile, testpki.CMS(t, leaf, []byte("payload"), testpki.CMSOptions{
					Certificates: []*x509.Certificate{inter.Cert},
					Detached:     true,
				}), 0o644))

				_, err := run(t, "validate-signature", "-f", cmsFile, "-t", rootFile, "--offline")
				assert.ErrorIs(t, err, cli.ErrValidationFailed)

				out, err := run(t, "validate-signature", "-f", cmsFile, "--content", contentFile, "-t", rootFile, "--offline", "--json")
				require.NoError(t, err)
				assert.Contains(t, out, `"level": "BES"`)
			},
		},
		{
			name: "Bad Config File",
			testFunc: func(t *testing.T) {
				cfgFile := filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(cfgFile, []byte("validation:\n  concurrency: 0\n"), 0o644))
				_, err := run(t, "validate-cert", "-f", chainFile, "--config", cfgFile)
				assert.ErrorIs(t, err, config.ErrInvalid)
			},
		},
		{
			name: "Remote Requires Host",
			testFunc: func(t *testing.T) {
				_, err := run(t, "validate-remote")
				assert.Error(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}
