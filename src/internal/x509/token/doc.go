// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package token models the artifacts met while building a trust chain:
// certificates, CRLs, OCSP responses and RFC 3161 timestamps.
//
// Every artifact is a [Token]. The set of implementations is closed
// ([*CertificateToken], [*CRLToken], [*OCSPToken], [*TimestampToken]) and callers
// dispatch with a type switch. Shared state lives in an embedded base guarded by
// a mutex so tokens held by a shared [pool] can be read from several
// validation contexts at once.
//
// The issuer of a token is resolved lazily through IsSignedBy. The first
// candidate whose key verifies the token's signature is cached and never
// replaced.
//
// [pool]: https://pkg.go.dev/github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/pool
package token
