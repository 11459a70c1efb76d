// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// ades-chain-validator is a command-line tool that validates certificates
// and CMS/CAdES signatures: it builds the trust chain, resolves OCSP and
// CRL revocation status and reports the AdES level (BES to A) a signature
// reaches.
//
// # Installation
//
// Install with Go 1.25.5 or later:
//
//	go install github.com/H0llyW00dzZ/ades-chain-validator/cmd/ades-chain-validator@latest
//
// # Usage
//
//	ades-chain-validator validate-cert -f CERT [FLAGS]
//	ades-chain-validator validate-signature -f SIGNATURE.p7s [--content FILE] [FLAGS]
//	ades-chain-validator validate-remote HOST [--port 443] [FLAGS]
//
// # Flags
//
//	-c, --config             Configuration file (.json, .yaml, .yml)
//	-t, --trust              Trust anchor file; repeatable
//	    --intermediate       Extra intermediate certificate file; repeatable
//	    --keystore           PKCS#12 trust store
//	    --keystore-password  PKCS#12 trust store password
//	    --trust-dir          Directory of trust anchors
//	    --offline            Only embedded and local data, no network access
//	    --at                 Validate at an RFC 3339 instant
//	    --tree               ASCII tree output (default)
//	    --table              Markdown table output
//	    --json               JSON report
//	    --metrics            Print validation metrics after the report
//
// # Examples
//
// Validate a server certificate bundle against a local root:
//
//	ades-chain-validator validate-cert -f chain.pem -t root.pem
//
// Report the level of a detached signature as JSON:
//
//	ades-chain-validator validate-signature -f contract.p7s --content contract.pdf --json
//
// Validate the chain served by a host and print it as a table:
//
//	ades-chain-validator validate-remote example.com --table
//
// The process exits with status 1 when validation fails and 130 when
// interrupted.
package main
