// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cli

import (
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/level"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/signature"
	x509certs "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/certs"
	x509chain "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/chain"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/logger"
)

func newValidateCertCommand(opts *options, version string, log logger.Logger) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "validate-cert",
		Short: "Validate a certificate and its chain",
		Long:  "Validates the first certificate of the input file. Any further certificates in the file are used as intermediates.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input == "" {
				return ErrInputFileRequired
			}
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("error reading input file: %w", err)
			}
			certs, err := x509certs.New().DecodeCertificates(data)
			if err != nil {
				return fmt.Errorf("error decoding certificate: %w", err)
			}
			if len(certs) == 0 {
				return fmt.Errorf("error decoding certificate: no certificate in %s", input)
			}

			rt, err := opts.runtime(cmd.Context(), version, log)
			if err != nil {
				return err
			}
			started := time.Now()

			vc, err := x509chain.NewCertificateContext(rt.Verifier)
			if err != nil {
				return err
			}
			tok, err := vc.ValidateCertificate(cmd.Context(), certs[0], certs[1:]...)
			if err != nil {
				return err
			}
			log.Printf("validation run %s processed %d certificate(s)", vc.RunID(), len(vc.ProcessedCertificates()))

			if err := opts.print(cmd, vc, tok, nil); err != nil {
				return err
			}
			return opts.finish(cmd, rt, started, vc.ChainValid(tok))
		},
	}
	cmd.Flags().StringVarP(&input, "file", "f", "", "certificate file (PEM, DER or PKCS#7 bundle)")
	return cmd
}

func newValidateSignatureCommand(opts *options, version string, log logger.Logger) *cobra.Command {
	var input, content string
	cmd := &cobra.Command{
		Use:   "validate-signature",
		Short: "Validate a CMS/CAdES signature and report its AdES level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input == "" {
				return ErrInputFileRequired
			}
			der, err := readCMS(input)
			if err != nil {
				return err
			}
			var detached []byte
			if content != "" {
				if detached, err = os.ReadFile(content); err != nil {
					return fmt.Errorf("error reading content file: %w", err)
				}
			}
			sig, err := signature.ParseCMS(der, detached)
			if err != nil {
				return fmt.Errorf("error parsing signature: %w", err)
			}
			for _, n := range sig.Notes() {
				log.Printf("signature: %s", n)
			}

			rt, err := opts.runtime(cmd.Context(), version, log)
			if err != nil {
				return err
			}
			started := time.Now()

			vc, err := x509chain.NewSignatureContext(rt.Verifier, sig)
			if err != nil {
				return err
			}
			tok, err := vc.ValidateSignature(cmd.Context())
			if err != nil {
				return err
			}
			report, err := level.Analyze(sig, vc)
			if err != nil {
				return err
			}
			log.Printf("validation run %s reached level %s", vc.RunID(), report.Level)

			if err := opts.print(cmd, vc, tok, report); err != nil {
				return err
			}
			return opts.finish(cmd, rt, started, report.Level != level.LevelNone)
		},
	}
	cmd.Flags().StringVarP(&input, "file", "f", "", "CMS signature file (DER or PEM)")
	cmd.Flags().StringVar(&content, "content", "", "signed content of a detached signature")
	return cmd
}

func newValidateRemoteCommand(opts *options, version string, log logger.Logger) *cobra.Command {
	var (
		port    int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "validate-remote HOST",
		Short: "Validate the certificate chain served by a TLS endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			certs, err := x509chain.FetchPeerCertificates(cmd.Context(), args[0], port, timeout)
			if err != nil {
				return err
			}

			rt, err := opts.runtime(cmd.Context(), version, log)
			if err != nil {
				return err
			}
			started := time.Now()

			vc, err := x509chain.NewCertificateContext(rt.Verifier)
			if err != nil {
				return err
			}
			tok, err := vc.ValidateCertificate(cmd.Context(), certs[0], certs[1:]...)
			if err != nil {
				return err
			}

			if err := opts.print(cmd, vc, tok, nil); err != nil {
				return err
			}
			return opts.finish(cmd, rt, started, vc.ChainValid(tok))
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 443, "TLS port")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "handshake timeout")
	return cmd
}

// readCMS returns the DER form of a CMS file that may be PEM armored.
func readCMS(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading input file: %w", err)
	}
	if block, _ := pem.Decode(data); block != nil {
		return block.Bytes, nil
	}
	return data, nil
}
